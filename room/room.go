// Package room is the framework instance feature modules compose onto.
//
// A Room owns one event registry, one command registry, one player state
// store, a method table and a shared state map, all layered over a host
// runtime it does not control. Modules never talk to each other directly:
// they register callbacks, methods, commands and player properties here and
// interact through events and the method table.
//
// A Room is not safe for concurrent use. Drive it from the goroutine that
// runs its loop and hand work from other goroutines over with Loop().Post.
package room

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/commands"
	"github.com/artpar/roomkit/core/events"
	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/core/roles"
	"github.com/artpar/roomkit/core/state"
	"github.com/artpar/roomkit/ports"
)

// DefaultFailureNotice is broadcast when a callback fails. It deliberately
// says nothing about the failure itself.
const DefaultFailureNotice = "WARNING! There is an error in the code!"

// RoleProperty is the player property the default role resolver reads.
const RoleProperty = "role"

// Host event names the room reacts to itself.
const (
	EventRoomLink    = "roomLink"
	EventReady       = "ready"
	EventPlayerJoin  = "playerJoin"
	EventPlayerLeave = "playerLeave"
	EventPlayerChat  = "playerChat"
)

var (
	// ErrMethodNotFound is returned by Call for unknown method names.
	ErrMethodNotFound = errors.New("room: method not found")

	// ErrInvalidMethod is returned by Method for malformed input.
	ErrInvalidMethod = errors.New("room: invalid method")
)

// Callback handles an event on behalf of a module.
type Callback func(ctx context.Context, r *Room, args []any) error

// Method is an entry in the room's method table.
type Method func(ctx context.Context, r *Room, args ...any) (any, error)

// Filter decides whether a player appears in PlayerList and Teams.
type Filter func(p players.View, opts map[string]any) bool

// Config configures a Room.
type Config struct {
	// Roles in ascending rank order.
	Roles []string

	// Player properties declared before any module is bound.
	Player map[string]players.PropertyOptions

	// State seeds the shared room state.
	State map[string]any

	// RoleOf resolves a player's role name. Defaults to the string value of
	// the RoleProperty property.
	RoleOf commands.RoleFunc

	// Filter defaults to accepting every player.
	Filter Filter

	// FailureNotice defaults to DefaultFailureNotice.
	FailureNotice string

	Logger   zerolog.Logger
	Observer ports.Observer
	IDs      ports.IDGenerator
}

// Room is the framework instance.
type Room struct {
	host     ports.Host
	loop     *loop.Loop
	events   *events.Registry
	commands *commands.Registry
	players  *players.Store
	roles    roles.Table
	filter   Filter
	notice   string
	logger   zerolog.Logger

	mu      sync.RWMutex
	methods map[string]Method
	state   map[string]any
}

// New creates a room over host, scheduled on lp.
func New(host ports.Host, lp *loop.Loop, cfg Config) (*Room, error) {
	if host == nil {
		return nil, errors.New("room: host is required")
	}
	if lp == nil {
		return nil, errors.New("room: loop is required")
	}

	table, err := roles.New(cfg.Roles...)
	if err != nil {
		return nil, fmt.Errorf("room: %w", err)
	}

	r := &Room{
		host:    host,
		loop:    lp,
		roles:   table,
		filter:  cfg.Filter,
		notice:  cfg.FailureNotice,
		logger:  cfg.Logger,
		methods: make(map[string]Method),
		state:   state.CloneMap(cfg.State),
	}
	if r.filter == nil {
		r.filter = func(players.View, map[string]any) bool { return true }
	}
	if r.notice == "" {
		r.notice = DefaultFailureNotice
	}
	if r.state == nil {
		r.state = make(map[string]any)
	}

	roleOf := cfg.RoleOf
	if roleOf == nil {
		roleOf = func(p players.View) string { return p.String(RoleProperty) }
	}

	r.events = events.NewRegistry(events.Options{
		Logger:   cfg.Logger,
		Reporter: events.ReporterFunc(r.reportFailure),
		Observer: cfg.Observer,
		IDs:      cfg.IDs,
	})
	r.players = players.NewStore(players.Options{
		Host:      host,
		Dispatch:  r.events.Dispatch,
		Scheduler: lp,
		Observer:  cfg.Observer,
		Logger:    cfg.Logger,
	})
	r.commands = commands.NewRegistry(commands.Options{
		Roles:    table,
		RoleOf:   roleOf,
		Observer: cfg.Observer,
		Logger:   cfg.Logger,
	})

	for _, name := range slices.Sorted(maps.Keys(cfg.Player)) {
		if _, err := r.DeclareProperty(name, cfg.Player[name]); err != nil {
			return nil, fmt.Errorf("room: %w", err)
		}
	}

	if err := r.installBuiltins(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Room) installBuiltins() error {
	if _, err := r.On(EventRoomLink, func(ctx context.Context, r *Room, args []any) error {
		r.Dispatch(ctx, EventReady)
		return nil
	}); err != nil {
		return err
	}

	_, err := r.On(EventPlayerLeave, func(ctx context.Context, r *Room, args []any) error {
		if len(args) == 0 {
			return nil
		}
		if id, ok := playerID(args[0]); ok {
			r.players.ForgetLater(id)
		}
		return nil
	})
	return err
}

func (r *Room) reportFailure(ctx context.Context, event string, err error) {
	if berr := r.host.Broadcast(r.notice); berr != nil {
		r.logger.Error().Err(berr).Str("event", event).Msg("failed to broadcast failure notice")
	}
}

// On registers callbacks for an event. The returned Unbind removes exactly
// these callbacks.
func (r *Room) On(event string, callbacks ...Callback) (events.Unbind, error) {
	handlers := make([]events.Handler, 0, len(callbacks))
	for i, cb := range callbacks {
		if cb == nil {
			return nil, fmt.Errorf("%w: callback %d for %s is nil", events.ErrInvalidHandler, i, event)
		}
		handlers = append(handlers, func(ctx context.Context, args []any) error {
			return cb(ctx, r, args)
		})
	}
	return r.events.On(event, handlers...)
}

// Dispatch fires an event and returns false if any callback vetoed it.
func (r *Room) Dispatch(ctx context.Context, event string, args ...any) bool {
	return r.events.Dispatch(ctx, event, args...)
}

// HandleHostEvent dispatches an event that originated in the host. Raw
// player snapshots among args are replaced with merged player views.
func (r *Room) HandleHostEvent(ctx context.Context, event string, args ...any) bool {
	wrapped := make([]any, len(args))
	for i, arg := range args {
		switch a := arg.(type) {
		case ports.Player:
			wrapped[i] = r.players.Wrap(a)
		case *ports.Player:
			if a != nil {
				wrapped[i] = r.players.Wrap(*a)
			}
		default:
			wrapped[i] = arg
		}
	}
	return r.events.Dispatch(ctx, event, wrapped...)
}

// Listeners returns the number of callbacks registered for event.
func (r *Room) Listeners(event string) int {
	return r.events.Count(event)
}

// EventNames returns every event with at least one callback.
func (r *Room) EventNames() []string {
	return r.events.Events()
}

// State returns the shared room state. Modules may read and write it from
// the loop goroutine.
func (r *Room) State() map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state
}

// Roles returns the role table.
func (r *Room) Roles() roles.Table { return r.roles }

// Host returns the underlying host.
func (r *Room) Host() ports.Host { return r.host }

// Loop returns the loop the room is scheduled on.
func (r *Room) Loop() *loop.Loop { return r.loop }

// Logger returns the room logger.
func (r *Room) Logger() zerolog.Logger { return r.logger }

// Broadcast sends a chat message to everyone.
func (r *Room) Broadcast(message string) error {
	return r.host.Broadcast(message)
}

// Whisper sends a chat message to one player.
func (r *Room) Whisper(id int, message string) error {
	return r.host.Whisper(id, message)
}

func playerID(arg any) (int, bool) {
	switch p := arg.(type) {
	case players.View:
		_, ok := p[ports.FieldID]
		return p.ID(), ok
	case ports.Player:
		return p.ID, true
	case *ports.Player:
		if p == nil {
			return 0, false
		}
		return p.ID, true
	default:
		return 0, false
	}
}
