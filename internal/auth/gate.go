// Package auth turns a submitted credential into the one-way
// unauthenticated → authenticated transition that unlocks the terminal.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"webterm/internal/adapters/realclock"
	"webterm/internal/ports"
	"webterm/internal/protocol"
)

// ErrorDisplayDuration is how long a failure stays on the login panel.
const ErrorDisplayDuration = 3 * time.Second

// maxResponseBody bounds how much of a failure response is read.
const maxResponseBody = 64 * 1024

// Panel displays login failures.
type Panel interface {
	ShowError(message string)
	ClearError()
}

// Options configures a Gate.
type Options struct {
	// Endpoint is the absolute URL of the authentication endpoint.
	Endpoint string
	// Client performs the request; http.DefaultClient when nil.
	Client *http.Client
	Clock  ports.Clock
	Panel  Panel
	// OnUnlock runs exactly once, on the first successful submission.
	OnUnlock func()
}

// Gate exchanges a credential with the authentication endpoint.
type Gate struct {
	endpoint string
	client   *http.Client
	clock    ports.Clock
	panel    Panel
	onUnlock func()

	mu            sync.Mutex
	authenticated bool
	errTimer      ports.Timer
	unlockOnce    sync.Once
}

// NewGate creates a gate in the unauthenticated state.
func NewGate(opts Options) *Gate {
	client := opts.Client
	if client == nil {
		client = http.DefaultClient
	}
	clock := opts.Clock
	if clock == nil {
		clock = realclock.New()
	}
	return &Gate{
		endpoint: opts.Endpoint,
		client:   client,
		clock:    clock,
		panel:    opts.Panel,
		onUnlock: opts.OnUnlock,
	}
}

// Authenticated reports whether a credential has been accepted. Once true it
// stays true for the lifetime of the gate.
func (g *Gate) Authenticated() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.authenticated
}

// Submit checks credential against the endpoint. Failures are returned as
// *Error and shown on the panel for ErrorDisplayDuration.
func (g *Gate) Submit(ctx context.Context, credential string) error {
	if credential == "" {
		g.fail(ErrEmptyCredential)
		return ErrEmptyCredential
	}

	if err := g.exchange(ctx, credential); err != nil {
		g.fail(err)
		return err
	}

	g.mu.Lock()
	g.authenticated = true
	g.mu.Unlock()

	g.unlockOnce.Do(func() {
		slog.Info("authenticated", slog.String("endpoint", g.endpoint))
		if g.onUnlock != nil {
			g.onUnlock()
		}
	})
	return nil
}

func (g *Gate) exchange(ctx context.Context, credential string) *Error {
	body, err := json.Marshal(protocol.LoginRequest{Password: credential})
	if err != nil {
		return &Error{Kind: KindConnectivity, Message: msgConnectivity, Err: fmt.Errorf("marshal login request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return &Error{Kind: KindConnectivity, Message: msgConnectivity, Err: fmt.Errorf("build login request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		slog.Warn("login request failed", slog.String("error", err.Error()))
		return &Error{Kind: KindConnectivity, Message: msgConnectivity, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBody))
		return nil
	}

	message := msgRejected
	var payload protocol.LoginResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBody)).Decode(&payload); err == nil && payload.Message != "" {
		message = payload.Message
	}

	slog.Info("login rejected", slog.Int("status", resp.StatusCode))
	return &Error{Kind: KindRejected, Message: message}
}

// fail shows err on the panel and schedules it to clear. A newer failure
// restarts the window.
func (g *Gate) fail(err *Error) {
	if g.panel == nil {
		return
	}

	g.panel.ShowError(err.Message)

	g.mu.Lock()
	defer g.mu.Unlock()
	if g.errTimer != nil {
		g.errTimer.Stop()
	}
	g.errTimer = g.clock.AfterFunc(ErrorDisplayDuration, g.panel.ClearError)
}
