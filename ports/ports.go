// Package ports defines interfaces (contracts) between the engine and the
// outside world. The host room runtime, persistence and observability are
// reached only through these; implementations live in adapters/.
package ports

import (
	"context"
	"errors"
	"time"
)

// -----------------------------------------------------------------------------
// Infrastructure Ports
// -----------------------------------------------------------------------------

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// IDGenerator generates unique identifiers.
type IDGenerator interface {
	New() string
}

// Hasher hashes and verifies secrets.
type Hasher interface {
	// Hash generates a hash from plaintext.
	Hash(plaintext string) ([]byte, error)

	// Compare checks if plaintext matches hash.
	Compare(hash []byte, plaintext string) bool
}

// -----------------------------------------------------------------------------
// Host Ports
// -----------------------------------------------------------------------------

// Team identifiers used by the host runtime.
const (
	TeamSpectators = 0
	TeamRed        = 1
	TeamBlue       = 2
)

// Player is the raw snapshot of a player as the host runtime reports it.
type Player struct {
	ID    int    `json:"id"`
	Name  string `json:"name"`
	Team  int    `json:"team"`
	Admin bool   `json:"admin"`
	Auth  string `json:"auth,omitempty"`
	Conn  string `json:"conn,omitempty"`
}

// Field names of a raw player snapshot when merged into a player view.
const (
	FieldID    = "id"
	FieldName  = "name"
	FieldTeam  = "team"
	FieldAdmin = "admin"
	FieldAuth  = "auth"
	FieldConn  = "conn"
)

// Fields returns the snapshot as a flat map keyed by the Field* names.
func (p Player) Fields() map[string]any {
	return map[string]any{
		FieldID:    p.ID,
		FieldName:  p.Name,
		FieldTeam:  p.Team,
		FieldAdmin: p.Admin,
		FieldAuth:  p.Auth,
		FieldConn:  p.Conn,
	}
}

// Host is the externally supplied room runtime. The engine never mutates
// players through it; it only reads snapshots and sends chat.
type Host interface {
	// Player returns the current snapshot for id.
	Player(id int) (Player, bool)

	// Players returns snapshots for everyone in the room.
	Players() []Player

	// Broadcast sends a chat message to every player.
	Broadcast(message string) error

	// Whisper sends a chat message to a single player.
	Whisper(id int, message string) error
}

// -----------------------------------------------------------------------------
// Data Store Ports
// -----------------------------------------------------------------------------

// ErrNotFound is returned by stores when a record does not exist.
var ErrNotFound = errors.New("not found")

// RoleAssignment binds a player's auth identity to a role name.
type RoleAssignment struct {
	Auth       string
	Name       string // last known player name, informational
	Role       string
	AssignedBy string
	AssignedAt time.Time
}

// RoleStore persists role assignments across sessions.
type RoleStore interface {
	// Get returns the assignment for an auth identity.
	Get(ctx context.Context, auth string) (RoleAssignment, error)

	// Put creates or replaces an assignment.
	Put(ctx context.Context, a RoleAssignment) error

	// Delete removes an assignment.
	Delete(ctx context.Context, auth string) error

	// List returns all assignments.
	List(ctx context.Context) ([]RoleAssignment, error)
}

// -----------------------------------------------------------------------------
// Observability Ports
// -----------------------------------------------------------------------------

// Command execution outcomes reported to an Observer.
const (
	OutcomeOK       = "ok"
	OutcomeNotFound = "not_found"
	OutcomeDenied   = "denied"
	OutcomeError    = "error"
)

// Observer receives engine activity for metrics.
type Observer interface {
	EventDispatched(event string, handlers int, vetoed bool)
	HandlerFailed(event string)
	CommandExecuted(command, outcome string)
	PropertyChanged(property string)
}

// NopObserver discards all observations.
type NopObserver struct{}

func (NopObserver) EventDispatched(string, int, bool) {}
func (NopObserver) HandlerFailed(string)              {}
func (NopObserver) CommandExecuted(string, string)    {}
func (NopObserver) PropertyChanged(string)            {}

// Ensure interface compliance.
var _ Observer = NopObserver{}
