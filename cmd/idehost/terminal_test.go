package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"
)

func TestFollowResize(t *testing.T) {
	tests := []struct {
		name    string
		sizeErr error
		want    [][2]int
	}{
		{name: "applies terminal size", want: [][2]int{{40, 120}}},
		{name: "skips unreadable size", sizeErr: errors.New("not a terminal")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(t.Context())
			sigs := make(chan os.Signal, 1)

			var (
				mu  sync.Mutex
				got [][2]int
			)

			size := func() (int, int, error) { return 120, 40, tt.sizeErr }
			resize := func(rows, cols int) error {
				mu.Lock()
				defer mu.Unlock()

				got = append(got, [2]int{rows, cols})

				return nil
			}

			done := make(chan struct{})
			go func() {
				defer close(done)
				followResize(ctx, sigs, size, resize, slog.New(slog.NewTextHandler(io.Discard, nil)))
			}()

			sigs <- os.Interrupt
			// A second send only completes once the first was consumed.
			sigs <- os.Interrupt
			time.Sleep(50 * time.Millisecond)
			cancel()

			select {
			case <-done:
			case <-time.After(5 * time.Second):
				t.Fatal("followResize did not return after cancel")
			}

			mu.Lock()
			defer mu.Unlock()

			if tt.want == nil {
				if len(got) != 0 {
					t.Fatalf("resize calls = %v, want none", got)
				}

				return
			}

			if len(got) < 1 || got[0] != tt.want[0] {
				t.Fatalf("resize calls = %v, want first %v", got, tt.want[0])
			}
		})
	}
}
