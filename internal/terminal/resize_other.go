//go:build !unix

package terminal

import (
	"context"
	"log/slog"
	"os"
)

// WatchResize applies the current size of f once. There is no resize signal
// on this platform.
func WatchResize(_ context.Context, f *os.File, s *Screen) {
	cols, rows, err := Size(f)
	if err != nil {
		slog.Debug("resize skipped", "error", err)
		return
	}
	s.Resize(cols, rows)
}
