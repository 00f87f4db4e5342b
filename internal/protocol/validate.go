package protocol

import (
	"encoding/json"
	"fmt"
)

// validClientTypes is the set of allowed client→server message types.
var validClientTypes = map[string]bool{
	TypeCommandExecute: true,
	TypeCommandKill:    true,
}

// validServerTypes is the set of allowed server→client message types.
var validServerTypes = map[string]bool{
	TypeConnected:       true,
	TypeTerminalOutput:  true,
	TypeCommandFinished: true,
	TypeTerminalError:   true,
}

// ValidateClientMessage validates a raw JSON message sent by a client.
func ValidateClientMessage(raw []byte) (*Message, error) {
	msg, err := parseEnvelope(raw, validClientTypes)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case TypeCommandExecute:
		var p CommandExecutePayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, missingField("sessionId", msg.Type)
		}
		if p.Command == "" {
			return nil, missingField("command", msg.Type)
		}

	case TypeCommandKill:
		var p CommandKillPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, missingField("sessionId", msg.Type)
		}
	}

	return msg, nil
}

// ValidateServerMessage validates a raw JSON message received from the
// backend. Session-scoped messages must carry a sessionId.
func ValidateServerMessage(raw []byte) (*Message, error) {
	msg, err := parseEnvelope(raw, validServerTypes)
	if err != nil {
		return nil, err
	}

	switch msg.Type {
	case TypeTerminalOutput:
		var p TerminalOutputPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, missingField("sessionId", msg.Type)
		}

	case TypeCommandFinished:
		var p CommandFinishedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, missingField("sessionId", msg.Type)
		}

	case TypeTerminalError:
		var p TerminalErrorPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
		if p.SessionID == "" {
			return nil, missingField("sessionId", msg.Type)
		}

	case TypeConnected:
		var p ConnectedPayload
		if err := json.Unmarshal(msg.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid payload for %s: %w", msg.Type, err)
		}
	}

	return msg, nil
}

func parseEnvelope(raw []byte, allowed map[string]bool) (*Message, error) {
	var msg Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	if msg.Type == "" {
		return nil, fmt.Errorf("missing 'type' field")
	}

	if !allowed[msg.Type] {
		return nil, fmt.Errorf("unknown message type: %s", msg.Type)
	}

	if msg.Payload == nil {
		return nil, fmt.Errorf("missing 'payload' field")
	}

	return &msg, nil
}

func missingField(field, msgType string) error {
	return fmt.Errorf("missing required field '%s' in %s payload", field, msgType)
}
