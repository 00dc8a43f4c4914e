//go:build unix

package session

import (
	"os/exec"
	"strings"
	"sync"
	"testing"
	"time"
)

type bufferConsumer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (c *bufferConsumer) OnMessage(data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(data)
}

func (c *bufferConsumer) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.buf.String()
}

func TestStartPTY_ReportsGeometry(t *testing.T) {
	if _, err := exec.LookPath("stty"); err != nil {
		t.Skip("stty not available")
	}

	exited := make(chan error, 1)
	b := NewBridge(Config{
		Shell:  "/bin/sh",
		Args:   []string{"-c", "stty size"},
		OnExit: func(err error) { exited <- err },
	})
	t.Cleanup(b.Dispose)

	consumer := &bufferConsumer{}
	b.Bind(consumer)

	if err := b.Init(24, 80, t.TempDir()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	select {
	case err := <-exited:
		if err != nil {
			t.Fatalf("child exit error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("child did not exit")
	}

	if got := consumer.String(); !strings.Contains(got, "24 80") {
		t.Fatalf("stty size output = %q, want 24 80", got)
	}
}

func TestStartPTY_EchoesInput(t *testing.T) {
	b := NewBridge(Config{Shell: "/bin/sh", Args: []string{"-c", "read line; echo got:$line"}})
	t.Cleanup(b.Dispose)

	consumer := &bufferConsumer{}
	b.Bind(consumer)

	if err := b.Init(24, 80, t.TempDir()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	b.OnMessage([]byte("ping\n"))

	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(consumer.String(), "got:ping") {
		if time.Now().After(deadline) {
			t.Fatalf("output = %q, want got:ping", consumer.String())
		}

		time.Sleep(10 * time.Millisecond)
	}
}

func TestDispose_KillsChildIgnoringHangup(t *testing.T) {
	var (
		mu      sync.Mutex
		spawned *creackPTY
	)

	b := NewBridge(Config{
		Shell:     "/bin/sh",
		Args:      []string{"-c", "trap '' HUP; echo ready; exec sleep 30"},
		KillGrace: 200 * time.Millisecond,
		Spawn: func(req SpawnRequest) (PTY, error) {
			p, err := StartPTY(req)
			if err != nil {
				return nil, err
			}

			mu.Lock()
			spawned = p.(*creackPTY)
			mu.Unlock()

			return p, nil
		},
	})

	consumer := &bufferConsumer{}
	b.Bind(consumer)

	if err := b.Init(24, 80, t.TempDir()); err != nil {
		t.Fatalf("Init() error = %v", err)
	}

	deadline := time.Now().Add(10 * time.Second)
	for !strings.Contains(consumer.String(), "ready") {
		if time.Now().After(deadline) {
			t.Fatalf("child never became ready, output %q", consumer.String())
		}

		time.Sleep(10 * time.Millisecond)
	}

	b.Dispose()

	mu.Lock()
	p := spawned
	mu.Unlock()

	select {
	case <-p.exited:
	case <-time.After(5 * time.Second):
		t.Fatalf("pid %d still running after Dispose", p.cmd.Process.Pid)
	}
}
