// Package backend supervises out-of-process backends: one OS process per
// Process, spawned with a control channel on fd 3 and considered usable only
// after it sends the readiness sentinel.
package backend

import (
	"bytes"
	"encoding/json"
)

const (
	// ControlFDEnv names the variable that advertises the control fd to the child.
	ControlFDEnv = "IDEHOST_CONTROL_FD"

	// ReadySentinel is the control message a backend sends once it is ready.
	ReadySentinel = "ready"

	controlFD = 3
)

// Message is a structured control-channel envelope.
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

type lineKind int

const (
	lineEmpty lineKind = iota
	lineReady
	lineMessage
	lineOpaque
)

// parseControlLine classifies one newline-delimited control line. The
// sentinel is accepted bare, as a JSON string, or as {"type":"ready"}.
func parseControlLine(line []byte) (lineKind, Message) {
	line = bytes.TrimSpace(line)
	if len(line) == 0 {
		return lineEmpty, Message{}
	}

	if string(line) == ReadySentinel {
		return lineReady, Message{Type: ReadySentinel}
	}

	switch line[0] {
	case '"':
		var s string
		if err := json.Unmarshal(line, &s); err == nil && s == ReadySentinel {
			return lineReady, Message{Type: ReadySentinel}
		}
	case '{':
		var msg Message
		if err := json.Unmarshal(line, &msg); err == nil && msg.Type != "" {
			if msg.Type == ReadySentinel {
				return lineReady, msg
			}

			return lineMessage, msg
		}
	}

	return lineOpaque, Message{}
}

func encodeMessage(msg Message) ([]byte, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	return append(data, '\n'), nil
}
