package terminal

import (
	"io"
	"log/slog"
	"strings"
	"sync"
)

const (
	clearScreen = "\x1b[2J\x1b[H"
)

// DefaultScrollback is the number of written chunks kept for replay.
const DefaultScrollback = 1000

// Screen is the output side of the terminal widget. All session output
// passes through Write.
type Screen struct {
	mu         sync.Mutex
	out        io.Writer
	convertEOL bool
	setTitle   bool
	scrollback *Scrollback
	lastCR     bool
	cols, rows int
	title      string
}

// ScreenOptions configures a Screen.
type ScreenOptions struct {
	Scrollback int
	ConvertEOL bool
	SetTitle   bool
	Title      string
}

// NewScreen wraps out.
func NewScreen(out io.Writer, opts ScreenOptions) *Screen {
	if opts.Scrollback <= 0 {
		opts.Scrollback = DefaultScrollback
	}
	if opts.Title == "" {
		opts.Title = "webterm"
	}
	return &Screen{
		out:        out,
		convertEOL: opts.ConvertEOL,
		setTitle:   opts.SetTitle,
		scrollback: NewScrollback(opts.Scrollback),
		title:      opts.Title,
	}
}

// Write renders s, converting bare line feeds to CRLF when enabled.
func (s *Screen) Write(text string) {
	if text == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.convertEOL {
		text = s.normalize(text)
	}
	s.scrollback.Write(text)
	if _, err := io.WriteString(s.out, text); err != nil {
		slog.Debug("screen write failed", "error", err)
	}
}

// normalize turns every LF that is not already preceded by CR into CRLF.
// A CR at the end of the previous write counts.
func (s *Screen) normalize(text string) string {
	if !strings.Contains(text, "\n") {
		s.lastCR = strings.HasSuffix(text, "\r")
		return text
	}
	var b strings.Builder
	b.Grow(len(text) + 8)
	prevCR := s.lastCR
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c == '\n' && !prevCR {
			b.WriteByte('\r')
		}
		b.WriteByte(c)
		prevCR = c == '\r'
	}
	s.lastCR = prevCR
	return b.String()
}

// Resize records the new size. When the width changes the screen is cleared
// and the scrollback replayed so wrapped lines are laid out again.
func (s *Screen) Resize(cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	widthChanged := s.cols != 0 && cols != s.cols
	s.cols, s.rows = cols, rows
	if !widthChanged {
		return
	}

	var b strings.Builder
	b.WriteString(clearScreen)
	for _, chunk := range s.scrollback.ReadAll() {
		b.WriteString(chunk)
	}
	if _, err := io.WriteString(s.out, b.String()); err != nil {
		slog.Debug("screen replay failed", "error", err)
	}
}

// Size returns the last recorded size.
func (s *Screen) Size() (cols, rows int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cols, s.rows
}

// SetConnected reports the connection state in the window title.
func (s *Screen) SetConnected(connected bool) {
	if !s.setTitle {
		return
	}
	state := "disconnected"
	if connected {
		state = "connected"
	}
	s.SetTitle(s.title + " (" + state + ")")
}

// SetTitle sets the terminal window title. Titles are not kept in scrollback.
func (s *Screen) SetTitle(title string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	title = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, title)
	if _, err := io.WriteString(s.out, "\x1b]0;"+title+"\x07"); err != nil {
		slog.Debug("title write failed", "error", err)
	}
}

// History returns the scrollback contents in order.
func (s *Screen) History() []string {
	return s.scrollback.ReadAll()
}
