// Package fakebackend is an in-process command execution backend speaking
// the webterm wire protocol. Tests use it in place of the real server.
package fakebackend

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"webterm/internal/protocol"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
)

const (
	pingInterval  = 30 * time.Second
	readDeadline  = 60 * time.Second
	writeDeadline = 10 * time.Second
)

// Greeting is the data of the connected message sent to every new client.
const Greeting = "Connected to terminal server"

// ErrNoActiveProcess is the terminal.error text for a kill with nothing running.
const ErrNoActiveProcess = "No active process to kill"

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Script describes how the backend answers one command.
type Script struct {
	Output     []string
	ReturnCode int
	// Hold keeps the command running until it is killed.
	Hold bool
	// Error answers with terminal.error instead of running.
	Error string
}

// Options configures a Backend.
type Options struct {
	Password string
	Scripts  map[string]Script
}

// Backend serves POST /api/login and the /ws endpoint.
type Backend struct {
	opts Options
	srv  *httptest.Server

	clients   map[*client]bool
	clientsMu sync.RWMutex

	mu       sync.Mutex
	received []protocol.Message
	running  map[string]bool
	notify   chan struct{}
}

type client struct {
	conn    *websocket.Conn
	send    chan []byte
	backend *Backend
}

// New creates a backend. Call Handler to serve it, or use Start.
func New(opts Options) *Backend {
	return &Backend{
		opts:    opts,
		clients: make(map[*client]bool),
		running: make(map[string]bool),
		notify:  make(chan struct{}, 1),
	}
}

// Start serves a new backend on a local httptest server closed at the end
// of the test.
func Start(t testing.TB, opts Options) *Backend {
	t.Helper()
	b := New(opts)
	b.srv = httptest.NewServer(b.Handler())
	t.Cleanup(b.Close)
	return b
}

// Handler returns the routes of the backend.
func (b *Backend) Handler() http.Handler {
	r := chi.NewRouter()
	r.Post("/api/login", b.handleLogin)
	r.Get("/ws", b.handleWebSocket)
	return r
}

// URL is the base HTTP URL of a started backend.
func (b *Backend) URL() string {
	return b.srv.URL
}

// LoginURL is the login endpoint of a started backend.
func (b *Backend) LoginURL() string {
	return b.srv.URL + "/api/login"
}

// WebSocketURL is the ws:// endpoint of a started backend.
func (b *Backend) WebSocketURL() string {
	return "ws" + strings.TrimPrefix(b.srv.URL, "http") + "/ws"
}

// Close drops all clients and stops the server.
func (b *Backend) Close() {
	b.DropClients()
	if b.srv != nil {
		b.srv.Close()
	}
}

func (b *Backend) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req protocol.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocol.LoginResponse{Message: "invalid request body"})
		return
	}
	if req.Password != b.opts.Password {
		writeJSON(w, http.StatusUnauthorized, protocol.LoginResponse{Message: "Invalid password"})
		return
	}
	writeJSON(w, http.StatusOK, protocol.LoginResponse{Success: true})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (b *Backend) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Debug("websocket upgrade error", "error", err)
		return
	}

	c := &client{
		conn:    conn,
		send:    make(chan []byte, 256),
		backend: b,
	}

	b.clientsMu.Lock()
	b.clients[c] = true
	b.clientsMu.Unlock()

	c.queue(protocol.TypeConnected, protocol.ConnectedPayload{Data: Greeting})

	go c.writePump()
	go c.readPump()
}

func (c *client) readPump() {
	defer func() {
		c.backend.removeClient(c)
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(readDeadline))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		c.backend.handleMessage(c, message)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) queue(msgType string, payload any) {
	data, err := protocol.Encode(msgType, payload)
	if err != nil {
		return
	}
	c.backend.clientsMu.RLock()
	defer c.backend.clientsMu.RUnlock()
	if !c.backend.clients[c] {
		return
	}
	select {
	case c.send <- data:
	default:
	}
}

func (b *Backend) removeClient(c *client) {
	b.clientsMu.Lock()
	defer b.clientsMu.Unlock()
	if b.clients[c] {
		delete(b.clients, c)
		close(c.send)
	}
}

// DropClients closes every client connection.
func (b *Backend) DropClients() {
	for _, c := range b.snapshot() {
		b.removeClient(c)
	}
}

func (b *Backend) snapshot() []*client {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	clients := make([]*client, 0, len(b.clients))
	for c := range b.clients {
		clients = append(clients, c)
	}
	return clients
}

// Clients returns the number of connected clients.
func (b *Backend) Clients() int {
	b.clientsMu.RLock()
	defer b.clientsMu.RUnlock()
	return len(b.clients)
}

// Broadcast sends a message to every connected client.
func (b *Backend) Broadcast(msgType string, payload any) {
	for _, c := range b.snapshot() {
		c.queue(msgType, payload)
	}
}

func (b *Backend) handleMessage(c *client, raw []byte) {
	msg, err := protocol.ValidateClientMessage(raw)
	if err != nil {
		slog.Debug("invalid client message", "error", err)
		return
	}
	b.record(*msg)

	switch msg.Type {
	case protocol.TypeCommandExecute:
		var p protocol.CommandExecutePayload
		json.Unmarshal(msg.Payload, &p)
		b.execute(c, p)
	case protocol.TypeCommandKill:
		var p protocol.CommandKillPayload
		json.Unmarshal(msg.Payload, &p)
		b.kill(c, p.SessionID)
	}
}

func (b *Backend) execute(c *client, p protocol.CommandExecutePayload) {
	script, ok := b.opts.Scripts[p.Command]
	if !ok {
		script = Script{Output: []string{p.Command + ": command not found\n"}, ReturnCode: 127}
	}
	if script.Error != "" {
		c.queue(protocol.TypeTerminalError, protocol.TerminalErrorPayload{SessionID: p.SessionID, Error: script.Error})
		return
	}

	c.queue(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{SessionID: p.SessionID, Data: "$ " + p.Command + "\n"})
	for _, line := range script.Output {
		c.queue(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{SessionID: p.SessionID, Data: line})
	}
	if script.Hold {
		b.mu.Lock()
		b.running[p.SessionID] = true
		b.mu.Unlock()
		return
	}
	c.queue(protocol.TypeCommandFinished, protocol.CommandFinishedPayload{SessionID: p.SessionID, ReturnCode: script.ReturnCode})
}

func (b *Backend) kill(c *client, sessionID string) {
	b.mu.Lock()
	running := b.running[sessionID]
	delete(b.running, sessionID)
	b.mu.Unlock()

	if !running {
		c.queue(protocol.TypeTerminalError, protocol.TerminalErrorPayload{SessionID: sessionID, Error: ErrNoActiveProcess})
		return
	}
	c.queue(protocol.TypeTerminalOutput, protocol.TerminalOutputPayload{SessionID: sessionID, Data: "\n^C\n"})
	c.queue(protocol.TypeCommandFinished, protocol.CommandFinishedPayload{SessionID: sessionID, ReturnCode: -2})
}

func (b *Backend) record(msg protocol.Message) {
	b.mu.Lock()
	b.received = append(b.received, msg)
	b.mu.Unlock()
	select {
	case b.notify <- struct{}{}:
	default:
	}
}

// Received returns every valid client message seen so far.
func (b *Backend) Received() []protocol.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]protocol.Message, len(b.received))
	copy(out, b.received)
	return out
}

// WaitReceived blocks until at least n client messages arrived or timeout
// passes, and returns what was received.
func (b *Backend) WaitReceived(n int, timeout time.Duration) []protocol.Message {
	deadline := time.After(timeout)
	for {
		if msgs := b.Received(); len(msgs) >= n {
			return msgs
		}
		select {
		case <-b.notify:
		case <-deadline:
			return b.Received()
		}
	}
}
