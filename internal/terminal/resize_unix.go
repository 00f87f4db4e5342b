//go:build unix

package terminal

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// WatchResize applies the current size of f to s, then again on every
// SIGWINCH until ctx is done.
func WatchResize(ctx context.Context, f *os.File, s *Screen) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGWINCH)
	applySize(f, s)

	go func() {
		defer signal.Stop(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				applySize(f, s)
			}
		}
	}()
}

func applySize(f *os.File, s *Screen) {
	cols, rows, err := Size(f)
	if err != nil {
		slog.Debug("resize skipped", "error", err)
		return
	}
	s.Resize(cols, rows)
}
