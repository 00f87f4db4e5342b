package auth

import (
	"context"
	"os"
	"sync"

	"github.com/charmbracelet/huh"
)

// FormPanel is the interactive login panel: a masked huh input whose
// description carries the current error. It implements Panel and Prompter.
type FormPanel struct {
	title string

	mu      sync.Mutex
	message string
	changed chan struct{}
}

// NewFormPanel creates a login panel with the given title.
func NewFormPanel(title string) *FormPanel {
	return &FormPanel{
		title:   title,
		changed: make(chan struct{}),
	}
}

// ShowError displays message until ClearError is called.
func (p *FormPanel) ShowError(message string) {
	p.set(message)
}

// ClearError removes the displayed error.
func (p *FormPanel) ClearError() {
	p.set("")
}

// Error returns the message currently on display.
func (p *FormPanel) Error() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message
}

func (p *FormPanel) set(message string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.message == message {
		return
	}
	p.message = message
	close(p.changed)
	p.changed = make(chan struct{})
}

func (p *FormPanel) snapshot() (string, <-chan struct{}) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.message, p.changed
}

// Prompt shows the password form. When the displayed error changes while the
// form is open, the form is redrawn with the typed value preserved.
func (p *FormPanel) Prompt(ctx context.Context) (string, error) {
	var password string

	for {
		message, changed := p.snapshot()

		formCtx, cancel := context.WithCancel(ctx)
		redraw := make(chan struct{})
		go func() {
			select {
			case <-changed:
				close(redraw)
				cancel()
			case <-formCtx.Done():
			}
		}()

		err := p.form(&password, message).RunWithContext(formCtx)
		cancel()

		if err == nil {
			return password, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		select {
		case <-redraw:
			continue
		default:
		}
		return "", err
	}
}

func (p *FormPanel) form(password *string, message string) *huh.Form {
	input := huh.NewInput().
		Title(p.title).
		EchoMode(huh.EchoModePassword).
		Value(password)
	if message != "" {
		input = input.Description(message)
	}

	return huh.NewForm(huh.NewGroup(input)).
		WithShowHelp(false).
		WithAccessible(os.Getenv("ACCESSIBLE") != "")
}

// Ensure FormPanel implements Panel and Prompter.
var (
	_ Panel    = (*FormPanel)(nil)
	_ Prompter = (*FormPanel)(nil)
)
