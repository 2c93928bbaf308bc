// Package commands stores chat commands and runs them on behalf of players
// after checking the caller's role against the command's access expression.
package commands

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/access"
	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/core/roles"
	"github.com/artpar/roomkit/ports"
)

// ExecFunc runs a command. args[0] is the normalized command name and the
// rest are the whitespace-separated arguments the caller typed.
type ExecFunc func(ctx context.Context, caller players.View, args []string) (any, error)

// RoleFunc returns the role name assigned to a player. Unknown or empty names
// resolve to the baseline rank.
type RoleFunc func(p players.View) string

// Definition is the input to Register.
type Definition struct {
	Names       []string
	Access      string
	Description string
	Execute     ExecFunc
}

// Command is a registered, immutable command.
type Command struct {
	names       []string
	access      string
	description string
	allow       access.Predicate
	execute     ExecFunc
}

// Name returns the primary (first) name.
func (c *Command) Name() string { return c.names[0] }

// Names returns every alias, primary first.
func (c *Command) Names() []string {
	out := make([]string, len(c.names))
	copy(out, c.names)
	return out
}

// Access returns the source access expression.
func (c *Command) Access() string { return c.access }

// Description returns the help text.
func (c *Command) Description() string { return c.description }

// Allows reports whether a caller with rank may run the command.
func (c *Command) Allows(rank int) bool { return c.allow(rank) }

// Options configures a Registry.
type Options struct {
	Roles    roles.Table
	RoleOf   RoleFunc
	Observer ports.Observer
	Logger   zerolog.Logger
}

// Registry maps every alias to its command.
type Registry struct {
	mu      sync.RWMutex
	byName  map[string]*Command
	ordered []*Command

	roles    roles.Table
	roleOf   RoleFunc
	observer ports.Observer
	logger   zerolog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		byName:   make(map[string]*Command),
		roles:    opts.Roles,
		roleOf:   opts.RoleOf,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if r.roleOf == nil {
		r.roleOf = func(players.View) string { return "" }
	}
	if r.observer == nil {
		r.observer = ports.NopObserver{}
	}
	return r
}

// Normalize returns the lookup form of a command name.
func Normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register validates def, compiles its access expression and stores the
// command under every alias. An alias already in use is rebound to the new
// command; the old command keeps its other aliases.
func (r *Registry) Register(def Definition) (*Command, error) {
	if len(def.Names) == 0 {
		return nil, invalid("command must have at least one name")
	}
	if def.Execute == nil {
		return nil, invalid("command %q has no execute function", def.Names[0])
	}

	names := make([]string, 0, len(def.Names))
	seen := make(map[string]struct{}, len(def.Names))
	for i, raw := range def.Names {
		name := Normalize(raw)
		if name == "" {
			return nil, invalid("name %d is empty", i)
		}
		if strings.ContainsAny(name, " \t\r\n") {
			return nil, invalid("name %q contains whitespace", name)
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}

	allow, err := access.Compile(def.Access, r.roles)
	if err != nil {
		return nil, fmt.Errorf("%w: command %q: %w", ErrInvalidDefinition, names[0], err)
	}

	cmd := &Command{
		names:       names,
		access:      def.Access,
		description: def.Description,
		allow:       allow,
		execute:     def.Execute,
	}

	r.mu.Lock()
	for _, name := range names {
		r.byName[name] = cmd
	}
	r.ordered = append(r.ordered, cmd)
	r.mu.Unlock()

	r.logger.Debug().
		Strs("names", names).
		Str("access", def.Access).
		Msg("command registered")
	return cmd, nil
}

// Resolve looks a command up by any alias, ignoring case and padding.
func (r *Registry) Resolve(name string) (*Command, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cmd, ok := r.byName[Normalize(name)]
	return cmd, ok
}

// List returns every reachable command once, in registration order, that
// passes filter. A nil filter matches everything.
func (r *Registry) List(filter func(*Command) bool) []*Command {
	r.mu.RLock()
	defer r.mu.RUnlock()

	live := make(map[*Command]struct{}, len(r.byName))
	for _, cmd := range r.byName {
		live[cmd] = struct{}{}
	}

	var out []*Command
	for _, cmd := range r.ordered {
		if _, ok := live[cmd]; !ok {
			continue
		}
		if filter == nil || filter(cmd) {
			out = append(out, cmd)
		}
	}
	return out
}

// Rank returns the caller's rank in the role table.
func (r *Registry) Rank(caller players.View) int {
	return r.roles.Rank(r.roleOf(caller))
}

// Allowed reports whether caller could run cmd. It is meant for listings;
// Execute performs its own check.
func (r *Registry) Allowed(cmd *Command, caller players.View) bool {
	return cmd.allow(r.Rank(caller))
}

// Execute parses raw, authorizes caller and runs the command.
func (r *Registry) Execute(ctx context.Context, caller players.View, raw string) (any, error) {
	args := strings.Fields(raw)
	name := ""
	if len(args) > 0 {
		name = strings.ToLower(args[0])
		args[0] = name
	}

	logger := r.logger.With().
		Str("command", name).
		Int("player_id", caller.ID()).
		Logger()

	cmd, ok := r.Resolve(name)
	if !ok {
		r.observer.CommandExecuted(name, ports.OutcomeNotFound)
		logger.Debug().Msg("unknown command")
		return nil, &Error{Name: name, Caller: caller.Name(), Err: ErrNotFound}
	}

	role := r.roleOf(caller)
	if !cmd.allow(r.roles.Rank(role)) {
		r.observer.CommandExecuted(cmd.Name(), ports.OutcomeDenied)
		logger.Info().Str("role", role).Msg("command denied")
		return nil, &Error{Name: name, Caller: caller.Name(), Err: ErrAccessDenied}
	}

	result, err := cmd.execute(ctx, caller, args)
	if err != nil {
		r.observer.CommandExecuted(cmd.Name(), ports.OutcomeError)
		logger.Warn().Err(err).Msg("command failed")
		return result, &Error{Name: name, Caller: caller.Name(), Err: err}
	}

	r.observer.CommandExecuted(cmd.Name(), ports.OutcomeOK)
	return result, nil
}
