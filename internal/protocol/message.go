package protocol

import (
	"encoding/json"
	"fmt"
	"time"
)

// Message is the envelope for all WebSocket messages.
type Message struct {
	Type      string          `json:"type"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

// NewMessage creates a message with the current timestamp.
func NewMessage(msgType string, payload interface{}) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return &Message{
		Type:      msgType,
		Payload:   data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// Encode marshals a message envelope for the wire.
func Encode(msgType string, payload interface{}) ([]byte, error) {
	msg, err := NewMessage(msgType, payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

// Server → Client message types.
const (
	TypeConnected       = "connected"
	TypeTerminalOutput  = "terminal.output"
	TypeCommandFinished = "command.finished"
	TypeTerminalError   = "terminal.error"
)

// Client → Server message types.
const (
	TypeCommandExecute = "command.execute"
	TypeCommandKill    = "command.kill"
)

// Server → Client payloads.

type ConnectedPayload struct {
	Data string `json:"data"`
}

type TerminalOutputPayload struct {
	SessionID string `json:"sessionId"`
	Data      string `json:"data"`
}

type CommandFinishedPayload struct {
	SessionID  string `json:"sessionId"`
	ReturnCode int    `json:"returnCode"`
}

type TerminalErrorPayload struct {
	SessionID string `json:"sessionId"`
	Error     string `json:"error"`
}

// Client → Server payloads.

type CommandExecutePayload struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
}

type CommandKillPayload struct {
	SessionID string `json:"sessionId"`
}

// Login endpoint bodies.

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse is returned by the login endpoint. Message is set on failure.
type LoginResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}
