// Package players holds the per-player state that modules extend the host's
// player snapshots with, and generates the accessors that mutate it.
package players

import (
	"github.com/artpar/roomkit/ports"
)

// View is a merged, detached copy of one player: the module-declared
// properties overlaid with the host's snapshot fields. Mutating a View never
// changes stored state.
type View map[string]any

// ID returns the host player id.
func (v View) ID() int { return v.Int(ports.FieldID) }

// Name returns the player's display name.
func (v View) Name() string { return v.String(ports.FieldName) }

// Team returns the player's team.
func (v View) Team() int { return v.Int(ports.FieldTeam) }

// Admin reports whether the host flags the player as room admin.
func (v View) Admin() bool { return v.Bool(ports.FieldAdmin) }

// Auth returns the player's public auth identity.
func (v View) Auth() string { return v.String(ports.FieldAuth) }

// Get returns the raw value stored under key.
func (v View) Get(key string) (any, bool) {
	val, ok := v[key]
	return val, ok
}

// String returns the value under key if it is a string.
func (v View) String(key string) string {
	s, _ := v[key].(string)
	return s
}

// Bool returns the value under key if it is a bool.
func (v View) Bool(key string) bool {
	b, _ := v[key].(bool)
	return b
}

// Int returns the value under key as an int. Floats (from JSON or YAML
// decoding) are truncated.
func (v View) Int(key string) int {
	switch n := v[key].(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

var rawFields = map[string]struct{}{
	ports.FieldID:    {},
	ports.FieldName:  {},
	ports.FieldTeam:  {},
	ports.FieldAdmin: {},
	ports.FieldAuth:  {},
	ports.FieldConn:  {},
}

// IsHostField reports whether key is owned by the host snapshot.
func IsHostField(key string) bool {
	_, ok := rawFields[key]
	return ok
}
