package frame

import (
	"bytes"
	"encoding/json"
	"strings"
)

// JSONHandler handles a parsed JSON frame. The raw body is passed so
// handlers can unmarshal into their own payload struct.
type JSONHandler func(frameType string, body []byte)

// TokenHandler handles a plain-text command token.
type TokenHandler func(token string)

// Dispatcher routes complete frame bodies to named handlers. JSON frames
// route by their required "type" field, plain tokens by literal match.
type Dispatcher struct {
	jsonHandlers  map[string]JSONHandler
	tokenHandlers map[string]TokenHandler

	// OnUnknown is called for JSON types and tokens with no handler.
	OnUnknown func(command string)
	// OnText is called for frames that start with '{' but are not valid
	// JSON or carry no "type" field; they are log entries, never commands.
	OnText func(line string)
}

// NewDispatcher creates an empty dispatcher.
func NewDispatcher() *Dispatcher {
	return &Dispatcher{
		jsonHandlers:  make(map[string]JSONHandler),
		tokenHandlers: make(map[string]TokenHandler),
	}
}

// HandleJSON registers a handler for a JSON frame type.
func (d *Dispatcher) HandleJSON(frameType string, h JSONHandler) {
	d.jsonHandlers[frameType] = h
}

// HandleToken registers a handler for a plain-text command token.
func (d *Dispatcher) HandleToken(token string, h TokenHandler) {
	d.tokenHandlers[token] = h
}

// typeProbe extracts only the type tag from a JSON frame.
type typeProbe struct {
	Type string `json:"type"`
}

// Dispatch routes one complete frame body.
func (d *Dispatcher) Dispatch(body []byte) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '{' {
		var probe typeProbe
		if err := json.Unmarshal(trimmed, &probe); err != nil || probe.Type == "" {
			// Malformed JSON is a log entry, never a command.
			if d.OnText != nil {
				d.OnText(string(trimmed))
			}
			return
		}
		if h, ok := d.jsonHandlers[probe.Type]; ok {
			h(probe.Type, trimmed)
			return
		}
		if d.OnUnknown != nil {
			d.OnUnknown(probe.Type)
		}
		return
	}

	token := strings.TrimSpace(string(trimmed))
	if h, ok := d.tokenHandlers[token]; ok {
		h(token)
		return
	}
	if d.OnUnknown != nil {
		d.OnUnknown(token)
	}
}
