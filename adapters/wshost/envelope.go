package wshost

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/artpar/roomkit/ports"
)

// Envelope types.
const (
	// TypeEvent carries a host event to the room.
	TypeEvent = "event"

	// TypeSync replaces the whole roster.
	TypeSync = "sync"

	// TypeChat carries a chat message to the host.
	TypeChat = "chat"

	// TypeResult answers an event that carried a sequence number.
	TypeResult = "result"
)

// Everyone is the chat target of a broadcast.
const Everyone = -1

// Envelope is one websocket message in either direction.
type Envelope struct {
	Type string `json:"type"`

	// Event fields.
	Seq  uint64            `json:"seq,omitempty"`
	Name string            `json:"name,omitempty"`
	Args []json.RawMessage `json:"args,omitempty"`

	// Sync fields.
	Players []ports.Player `json:"players,omitempty"`

	// Chat fields.
	Message string `json:"message,omitempty"`
	Target  *int   `json:"target,omitempty"`

	// Result fields.
	OK *bool `json:"ok,omitempty"`
}

// decodeArgs turns raw event arguments into Go values. Objects carrying both
// "id" and "name" are player snapshots; everything else decodes generically,
// with integral numbers as int.
func decodeArgs(raw []json.RawMessage) ([]any, error) {
	args := make([]any, 0, len(raw))
	for i, r := range raw {
		if p, ok := decodePlayer(r); ok {
			args = append(args, p)
			continue
		}
		var v any
		if err := json.Unmarshal(r, &v); err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		args = append(args, normalizeNumber(v))
	}
	return args, nil
}

func decodePlayer(r json.RawMessage) (ports.Player, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(r, &fields); err != nil {
		return ports.Player{}, false
	}
	if _, ok := fields[ports.FieldID]; !ok {
		return ports.Player{}, false
	}
	if _, ok := fields[ports.FieldName]; !ok {
		return ports.Player{}, false
	}
	var p ports.Player
	if err := json.Unmarshal(r, &p); err != nil {
		return ports.Player{}, false
	}
	return p, true
}

func normalizeNumber(v any) any {
	switch t := v.(type) {
	case float64:
		// Only integers float64 represents exactly become ints.
		if math.Trunc(t) == t && math.Abs(t) < 1<<53 {
			return int(t)
		}
		return t
	case []any:
		for i := range t {
			t[i] = normalizeNumber(t[i])
		}
		return t
	case map[string]any:
		for k := range t {
			t[k] = normalizeNumber(t[k])
		}
		return t
	default:
		return v
	}
}
