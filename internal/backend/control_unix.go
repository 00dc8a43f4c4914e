//go:build unix

package backend

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync"

	"golang.org/x/sys/unix"
)

const maxControlLine = 1 << 20

// controlPair creates the socketpair backing the control channel. The
// returned file is the child's end, to be passed through ExtraFiles.
func controlPair() (net.Conn, *os.File, error) {
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_STREAM|unix.SOCK_CLOEXEC, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("create control socketpair: %w", err)
	}

	parentFile := os.NewFile(uintptr(fds[0]), "idehost-control")
	childFile := os.NewFile(uintptr(fds[1]), "idehost-control-child")

	conn, err := net.FileConn(parentFile)
	_ = parentFile.Close()

	if err != nil {
		_ = childFile.Close()
		return nil, nil, fmt.Errorf("wrap control socket: %w", err)
	}

	return conn, childFile, nil
}

func newControlScanner(conn net.Conn) *bufio.Scanner {
	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 4096), maxControlLine)

	return scanner
}

// Child is the backend side of the control channel.
type Child struct {
	conn net.Conn
	mu   sync.Mutex
}

// OpenChild opens the control channel inherited from the supervisor.
func OpenChild() (*Child, error) {
	raw := os.Getenv(ControlFDEnv)
	if raw == "" {
		return nil, ErrNoControlChannel
	}

	fd, err := strconv.Atoi(raw)
	if err != nil || fd < 0 {
		return nil, fmt.Errorf("invalid %s %q", ControlFDEnv, raw)
	}

	file := os.NewFile(uintptr(fd), "idehost-control")
	if file == nil {
		return nil, fmt.Errorf("invalid control fd %d", fd)
	}

	conn, err := net.FileConn(file)
	_ = file.Close()

	if err != nil {
		return nil, fmt.Errorf("open control channel: %w", err)
	}

	return &Child{conn: conn}, nil
}

// NotifyReady sends the readiness sentinel.
func (c *Child) NotifyReady() error {
	return c.writeLine([]byte(ReadySentinel + "\n"))
}

// Send writes a structured envelope to the supervisor.
func (c *Child) Send(msg Message) error {
	data, err := encodeMessage(msg)
	if err != nil {
		return fmt.Errorf("encode control message: %w", err)
	}

	return c.writeLine(data)
}

// Receive calls fn for each envelope sent by the supervisor until the
// channel closes. Non-envelope lines are skipped.
func (c *Child) Receive(fn func(Message)) error {
	scanner := newControlScanner(c.conn)
	for scanner.Scan() {
		if kind, msg := parseControlLine(scanner.Bytes()); kind == lineMessage {
			fn(msg)
		}
	}

	return scanner.Err()
}

// Close closes the child's end of the channel.
func (c *Child) Close() error {
	return c.conn.Close()
}

func (c *Child) writeLine(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("write control channel: %w", err)
	}

	return nil
}

var defaultChild = sync.OnceValues(OpenChild)

// NotifyReady signals readiness over the inherited control channel.
func NotifyReady() error {
	child, err := defaultChild()
	if err != nil {
		return err
	}

	return child.NotifyReady()
}

// SendMessage sends msg over the inherited control channel.
func SendMessage(msg Message) error {
	child, err := defaultChild()
	if err != nil {
		return err
	}

	return child.Send(msg)
}
