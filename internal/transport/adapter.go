// Package transport connects to the command execution backend over a
// WebSocket and turns its messages into Events.
package transport

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"webterm/internal/adapters/realclock"
	"webterm/internal/ports"
	"webterm/internal/protocol"

	"github.com/gorilla/websocket"
)

const (
	DefaultHandshakeTimeout  = 20 * time.Second
	DefaultReconnectInterval = 2 * time.Second
	DefaultPingInterval      = 30 * time.Second
	DefaultReadTimeout       = 60 * time.Second
	DefaultWriteTimeout      = 10 * time.Second

	sendBufferSize  = 256
	eventBufferSize = 256
)

var (
	// ErrNotConnected is returned by Execute and Cancel while there is no
	// open connection. The message is dropped.
	ErrNotConnected = errors.New("transport: not connected")
	// ErrSendBufferFull is returned when the write pump is not keeping up.
	ErrSendBufferFull = errors.New("transport: send buffer full")
)

// Options configures an Adapter.
type Options struct {
	URL    string
	Header http.Header
	// Insecure skips TLS certificate verification.
	Insecure bool

	HandshakeTimeout time.Duration
	// ReconnectInterval is the fixed wait between connection attempts.
	// Zero disables reconnection.
	ReconnectInterval time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration

	Clock ports.Clock
}

// Adapter maintains the connection to the backend.
type Adapter struct {
	opts   Options
	dialer *websocket.Dialer
	events chan Event

	mu   sync.Mutex
	send chan []byte
}

// New creates an adapter. Nothing is dialed until Run.
func New(opts Options) *Adapter {
	if opts.HandshakeTimeout <= 0 {
		opts.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if opts.PingInterval <= 0 {
		opts.PingInterval = DefaultPingInterval
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = DefaultWriteTimeout
	}
	if opts.Clock == nil {
		opts.Clock = realclock.New()
	}

	dialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: opts.HandshakeTimeout,
	}
	if opts.Insecure {
		dialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	return &Adapter{
		opts:   opts,
		dialer: dialer,
		events: make(chan Event, eventBufferSize),
	}
}

// Events delivers normalized events in arrival order. The channel is closed
// when Run returns.
func (a *Adapter) Events() <-chan Event {
	return a.events
}

// Connected reports whether a connection is open.
func (a *Adapter) Connected() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.send != nil
}

// Run dials the backend and keeps the connection alive until ctx is done.
// Only the first failure of a run of failed dials is reported as a
// ConnectionError; the streak ends with the next successful connection.
func (a *Adapter) Run(ctx context.Context) error {
	defer close(a.events)

	failing := false
	for {
		conn, _, err := a.dialer.DialContext(ctx, a.opts.URL, a.opts.Header)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Warn("transport dial failed", "url", a.opts.URL, "error", err)
			if !failing {
				failing = true
				a.emit(ctx, Event{Type: EventConnectionError, Err: &DialError{URL: a.opts.URL, Err: err}})
			}
		} else {
			failing = false
			reason := a.serve(ctx, conn)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			slog.Info("transport disconnected", "reason", reason)
			a.emit(ctx, Event{Type: EventDisconnected, Reason: reason})
		}

		if a.opts.ReconnectInterval <= 0 {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-a.opts.Clock.After(a.opts.ReconnectInterval):
		}
	}
}

// serve runs one connection until it ends and returns the reason.
func (a *Adapter) serve(ctx context.Context, conn *websocket.Conn) string {
	send := make(chan []byte, sendBufferSize)
	a.mu.Lock()
	a.send = send
	a.mu.Unlock()

	slog.Info("transport connected", "url", a.opts.URL)
	a.emit(ctx, Event{Type: EventConnected})

	done := make(chan struct{})
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		a.writePump(conn, send, done)
	}()
	stop := context.AfterFunc(ctx, func() { conn.Close() })

	reason := a.readPump(ctx, conn)

	stop()
	a.mu.Lock()
	a.send = nil
	a.mu.Unlock()
	close(done)
	<-pumpDone
	conn.Close()
	return reason
}

func (a *Adapter) readPump(ctx context.Context, conn *websocket.Conn) string {
	conn.SetReadDeadline(time.Now().Add(a.opts.ReadTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(a.opts.ReadTimeout))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				if closeErr.Text != "" {
					return closeErr.Text
				}
				return "connection closed"
			}
			return err.Error()
		}
		a.handleMessage(ctx, message)
	}
}

func (a *Adapter) writePump(conn *websocket.Conn, send <-chan []byte, done <-chan struct{}) {
	ticker := time.NewTicker(a.opts.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-send:
			conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				slog.Debug("transport write failed", "error", err)
				conn.Close()
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(a.opts.WriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				conn.Close()
				return
			}
		}
	}
}

func (a *Adapter) handleMessage(ctx context.Context, raw []byte) {
	msg, err := protocol.ValidateServerMessage(raw)
	if err != nil {
		slog.Warn("dropping invalid server message", "error", err)
		return
	}

	switch msg.Type {
	case protocol.TypeConnected:
		var p protocol.ConnectedPayload
		json.Unmarshal(msg.Payload, &p)
		slog.Debug("server greeting", "data", p.Data)

	case protocol.TypeTerminalOutput:
		var p protocol.TerminalOutputPayload
		json.Unmarshal(msg.Payload, &p)
		a.emit(ctx, Event{Type: EventOutput, SessionID: p.SessionID, Data: p.Data})

	case protocol.TypeCommandFinished:
		var p protocol.CommandFinishedPayload
		json.Unmarshal(msg.Payload, &p)
		a.emit(ctx, Event{Type: EventCompleted, SessionID: p.SessionID, ReturnCode: p.ReturnCode})

	case protocol.TypeTerminalError:
		var p protocol.TerminalErrorPayload
		json.Unmarshal(msg.Payload, &p)
		a.emit(ctx, Event{Type: EventError, SessionID: p.SessionID, Message: p.Error})
	}
}

func (a *Adapter) emit(ctx context.Context, ev Event) {
	select {
	case a.events <- ev:
	case <-ctx.Done():
	}
}

// Execute asks the backend to run command for the session.
func (a *Adapter) Execute(command, sessionID string) error {
	data, err := protocol.Encode(protocol.TypeCommandExecute, protocol.CommandExecutePayload{
		SessionID: sessionID,
		Command:   command,
	})
	if err != nil {
		return err
	}
	return a.enqueue(protocol.TypeCommandExecute, data)
}

// Cancel asks the backend to interrupt the session's running command.
func (a *Adapter) Cancel(sessionID string) error {
	data, err := protocol.Encode(protocol.TypeCommandKill, protocol.CommandKillPayload{
		SessionID: sessionID,
	})
	if err != nil {
		return err
	}
	return a.enqueue(protocol.TypeCommandKill, data)
}

func (a *Adapter) enqueue(msgType string, data []byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.send == nil {
		slog.Warn("dropping message while disconnected", "type", msgType)
		return ErrNotConnected
	}
	select {
	case a.send <- data:
		return nil
	default:
		slog.Warn("dropping message, send buffer full", "type", msgType)
		return ErrSendBufferFull
	}
}
