package terminal

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/creack/pty"
	"golang.org/x/term"
)

// Input owns the keyboard side of the local terminal.
type Input struct {
	file  *os.File
	state *term.State
}

// OpenInput puts f into raw mode when it is a terminal. Non-terminal input
// (pipes, files) is read as is.
func OpenInput(f *os.File) (*Input, error) {
	in := &Input{file: f}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return in, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("enable raw mode: %w", err)
	}
	in.state = state
	return in, nil
}

// Raw reports whether raw mode is active.
func (in *Input) Raw() bool {
	return in.state != nil
}

// Restore returns the terminal to the mode it had before OpenInput.
func (in *Input) Restore() error {
	if in.state == nil {
		return nil
	}
	err := term.Restore(int(in.file.Fd()), in.state)
	in.state = nil
	return err
}

// Keys starts reading key units from the terminal. Piped input is read line
// by line, each line feed submitting like Enter.
func (in *Input) Keys(ctx context.Context) <-chan string {
	if !in.Raw() {
		return ReadLines(ctx, in.file)
	}
	return ReadKeys(ctx, in.file)
}

// ReadKeys reads r in a goroutine and delivers key units on the returned
// channel, which is closed on EOF, read error, or cancellation.
func ReadKeys(ctx context.Context, r io.Reader) <-chan string {
	return readKeys(ctx, r, &KeyDecoder{})
}

// ReadLines is ReadKeys for cooked input: line feeds are delivered as Enter.
func ReadLines(ctx context.Context, r io.Reader) <-chan string {
	return readKeys(ctx, r, &KeyDecoder{Lines: true})
}

func readKeys(ctx context.Context, r io.Reader, dec *KeyDecoder) <-chan string {
	out := make(chan string, 64)
	go func() {
		defer close(out)
		buf := make([]byte, 1024)
		for {
			n, err := r.Read(buf)
			if n > 0 {
				for _, unit := range dec.Feed(buf[:n]) {
					select {
					case out <- unit:
					case <-ctx.Done():
						return
					}
				}
			}
			if err != nil {
				if err != io.EOF {
					slog.Debug("key reader stopped", "error", err)
				}
				for _, unit := range dec.Flush() {
					select {
					case out <- unit:
					case <-ctx.Done():
						return
					}
				}
				return
			}
		}
	}()
	return out
}

// Size returns the terminal size of f in columns and rows.
func Size(f *os.File) (cols, rows int, err error) {
	ws, err := pty.GetsizeFull(f)
	if err != nil {
		return 0, 0, fmt.Errorf("get terminal size: %w", err)
	}
	return int(ws.Cols), int(ws.Rows), nil
}
