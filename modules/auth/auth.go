// Package auth assigns roles to players. Players log in with a per-role
// password; assignments are keyed by the host's auth identity and persisted
// so returning players get their role back on join.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/ports"
	"github.com/artpar/roomkit/room"
)

// ErrNoDefaultRole is returned by New when Config.DefaultRole is empty.
var ErrNoDefaultRole = errors.New("auth: default role is required")

// Config holds the role credentials.
type Config struct {
	// DefaultRole is what every player starts with.
	DefaultRole string

	// Passwords maps role name to a password hash.
	Passwords map[string]string

	// Static maps auth identity to a role that always applies on join.
	Static map[string]string

	// ManageAccess gates setrole. Defaults to ">" + DefaultRole.
	ManageAccess string
}

// Options configures the module.
type Options struct {
	Store  ports.RoleStore
	Hasher ports.Hasher
	Clock  ports.Clock
	Logger zerolog.Logger
	Config Config
}

// Auth is the role assignment module.
type Auth struct {
	store  ports.RoleStore
	hasher ports.Hasher
	clock  ports.Clock
	logger zerolog.Logger

	defaultRole string
	manage      string

	mu        sync.RWMutex
	passwords map[string]string
	static    map[string]string
}

// New creates the module.
func New(opts Options) (*Auth, error) {
	if opts.Config.DefaultRole == "" {
		return nil, ErrNoDefaultRole
	}
	if opts.Store == nil || opts.Hasher == nil || opts.Clock == nil {
		return nil, errors.New("auth: store, hasher and clock are required")
	}

	a := &Auth{
		store:       opts.Store,
		hasher:      opts.Hasher,
		clock:       opts.Clock,
		logger:      opts.Logger.With().Str("module", "auth").Logger(),
		defaultRole: opts.Config.DefaultRole,
		manage:      opts.Config.ManageAccess,
	}
	if a.manage == "" {
		a.manage = ">" + a.defaultRole
	}
	a.Update(opts.Config)
	return a, nil
}

// Update swaps in new passwords and static assignments. The default role
// and setrole access are fixed at construction.
func (a *Auth) Update(cfg Config) {
	passwords := make(map[string]string, len(cfg.Passwords))
	for role, hash := range cfg.Passwords {
		passwords[role] = hash
	}
	static := make(map[string]string, len(cfg.Static))
	for auth, role := range cfg.Static {
		static[auth] = role
	}

	a.mu.Lock()
	a.passwords = passwords
	a.static = static
	a.mu.Unlock()

	a.logger.Debug().
		Int("passwords", len(passwords)).
		Int("static", len(static)).
		Msg("credentials updated")
}

// Module returns the room module.
func (a *Auth) Module() room.Module {
	return room.Module{
		Name: "auth",
		Player: map[string]players.PropertyOptions{
			room.RoleProperty: {Default: a.defaultRole, Sync: true},
		},
		Callbacks: map[string][]room.Callback{
			room.EventPlayerJoin: {a.onJoin},
			"playerRoleChange":   {a.onRoleChange},
		},
		Methods: map[string]room.Method{
			"assignRole": a.assignRoleMethod,
		},
		Commands: []room.Command{
			{
				Names:       []string{"login"},
				Description: "Log in to a role: login <password>",
				Execute:     a.login,
			},
			{
				Names:       []string{"logout"},
				Description: "Drop back to the default role",
				Execute:     a.logout,
			},
			{
				Names:       []string{"setrole"},
				Access:      a.manage,
				Description: "Assign a role: setrole <player id> <role>",
				Execute:     a.setRole,
			},
			{
				Names:       []string{"whois"},
				Description: "Show a player's role: whois [player id]",
				Execute:     a.whois,
			},
		},
	}
}

func (a *Auth) onJoin(ctx context.Context, r *room.Room, args []any) error {
	if len(args) == 0 {
		return nil
	}
	p, ok := args[0].(players.View)
	if !ok || p.Auth() == "" {
		return nil
	}

	role, err := a.lookup(ctx, p.Auth())
	if err != nil {
		return fmt.Errorf("restore role for %s: %w", p.Name(), err)
	}
	if role == "" {
		return nil
	}
	if _, known := r.Roles().Lookup(role); !known {
		a.logger.Warn().Str("role", role).Int("player_id", p.ID()).Msg("stored role no longer exists")
		return nil
	}
	return r.SetProperty(ctx, room.RoleProperty, p.ID(), role)
}

func (a *Auth) onRoleChange(ctx context.Context, r *room.Room, args []any) error {
	if len(args) == 0 {
		return nil
	}
	p, ok := args[0].(players.View)
	if !ok {
		return nil
	}
	return r.Whisper(p.ID(), "Your role is now "+p.String(room.RoleProperty))
}

func (a *Auth) lookup(ctx context.Context, auth string) (string, error) {
	a.mu.RLock()
	role, ok := a.static[auth]
	a.mu.RUnlock()
	if ok {
		return role, nil
	}

	stored, err := a.store.Get(ctx, auth)
	if errors.Is(err, ports.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return stored.Role, nil
}

func (a *Auth) login(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("usage: login <password>")
	}
	password := args[1]

	a.mu.RLock()
	passwords := a.passwords
	a.mu.RUnlock()

	names := r.Roles().Names()
	for i := len(names) - 1; i >= 0; i-- {
		hash, ok := passwords[names[i]]
		if !ok || !a.hasher.Compare([]byte(hash), password) {
			continue
		}
		if err := a.assign(ctx, r, caller, names[i], "login"); err != nil {
			return nil, err
		}
		a.logger.Info().Int("player_id", caller.ID()).Str("role", names[i]).Msg("player logged in")
		return nil, nil
	}

	a.logger.Warn().Int("player_id", caller.ID()).Str("player", caller.Name()).Msg("failed login")
	return nil, errors.New("wrong password")
}

func (a *Auth) logout(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
	if caller.String(room.RoleProperty) == a.defaultRole {
		return "You are not logged in", nil
	}
	if err := a.assign(ctx, r, caller, a.defaultRole, "logout"); err != nil {
		return nil, err
	}
	return nil, nil
}

func (a *Auth) setRole(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
	if len(args) < 3 {
		return nil, errors.New("usage: setrole <player id> <role>")
	}
	id, err := strconv.Atoi(args[1])
	if err != nil {
		return nil, fmt.Errorf("invalid player id %q", args[1])
	}
	role := args[2]

	rank, known := r.Roles().Lookup(role)
	if !known {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	target, ok := r.Player(id)
	if !ok {
		return nil, fmt.Errorf("no player with id %d", id)
	}

	own := r.Rank(caller)
	if rank > own {
		return nil, fmt.Errorf("cannot grant %s above your own role", role)
	}
	if r.Rank(target) > own {
		return nil, fmt.Errorf("cannot change the role of %s", target.Name())
	}

	if err := a.assign(ctx, r, target, role, caller.Name()); err != nil {
		return nil, err
	}
	return fmt.Sprintf("%s is now %s", target.Name(), role), nil
}

func (a *Auth) whois(ctx context.Context, r *room.Room, caller players.View, args []string) (any, error) {
	target := caller
	if len(args) > 1 {
		id, err := strconv.Atoi(args[1])
		if err != nil {
			return nil, fmt.Errorf("invalid player id %q", args[1])
		}
		p, ok := r.Player(id)
		if !ok {
			return nil, fmt.Errorf("no player with id %d", id)
		}
		target = p
	}
	return fmt.Sprintf("%s (#%d): %s", target.Name(), target.ID(), target.String(room.RoleProperty)), nil
}

func (a *Auth) assignRoleMethod(ctx context.Context, r *room.Room, args ...any) (any, error) {
	if len(args) < 2 {
		return nil, errors.New("assignRole: want player id and role")
	}
	id, ok := args[0].(int)
	if !ok {
		return nil, fmt.Errorf("assignRole: invalid player id %v", args[0])
	}
	role, ok := args[1].(string)
	if !ok {
		return nil, fmt.Errorf("assignRole: invalid role %v", args[1])
	}
	if _, known := r.Roles().Lookup(role); !known {
		return nil, fmt.Errorf("assignRole: unknown role %q", role)
	}
	target, found := r.Player(id)
	if !found {
		return nil, fmt.Errorf("assignRole: no player with id %d", id)
	}
	return nil, a.assign(ctx, r, target, role, "method")
}

// assign sets the role property and persists it for players with an auth
// identity. Dropping to the default role removes the stored assignment.
func (a *Auth) assign(ctx context.Context, r *room.Room, target players.View, role, by string) error {
	if err := r.SetProperty(ctx, room.RoleProperty, target.ID(), role); err != nil {
		return err
	}

	auth := target.Auth()
	if auth == "" {
		return nil
	}

	if role == a.defaultRole {
		if err := a.store.Delete(ctx, auth); err != nil && !errors.Is(err, ports.ErrNotFound) {
			return fmt.Errorf("forget role: %w", err)
		}
		return nil
	}

	err := a.store.Put(ctx, ports.RoleAssignment{
		Auth:       auth,
		Name:       target.Name(),
		Role:       role,
		AssignedBy: by,
		AssignedAt: a.clock.Now(),
	})
	if err != nil {
		return fmt.Errorf("save role: %w", err)
	}
	return nil
}
