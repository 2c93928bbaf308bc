package room

import (
	"fmt"
	"maps"
	"slices"

	"github.com/artpar/roomkit/core/players"
	"github.com/artpar/roomkit/core/state"
)

// Module is a unit of functionality bound onto a room.
type Module struct {
	Name string

	// DefaultState is merged under the room state. Values already in the
	// room state win.
	DefaultState map[string]any

	Player    map[string]players.PropertyOptions
	Methods   map[string]Method
	Callbacks map[string][]Callback
	Commands  []Command
}

// Bind installs a module: callbacks, player properties, methods, commands,
// then default state. Map-keyed parts are installed in sorted key order.
// A failure leaves whatever was installed before it in place.
func (r *Room) Bind(m Module) error {
	for _, event := range slices.Sorted(maps.Keys(m.Callbacks)) {
		if _, err := r.On(event, m.Callbacks[event]...); err != nil {
			return bindError(m, err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(m.Player)) {
		if _, err := r.DeclareProperty(name, m.Player[name]); err != nil {
			return bindError(m, err)
		}
	}

	for _, name := range slices.Sorted(maps.Keys(m.Methods)) {
		if err := r.Method(name, m.Methods[name]); err != nil {
			return bindError(m, err)
		}
	}

	for _, cmd := range m.Commands {
		if _, err := r.AddCommand(cmd); err != nil {
			return bindError(m, err)
		}
	}

	if len(m.DefaultState) > 0 {
		r.mu.Lock()
		r.state = state.Merge(r.state, m.DefaultState)
		r.mu.Unlock()
	}

	r.logger.Info().
		Str("module", m.Name).
		Int("callbacks", len(m.Callbacks)).
		Int("methods", len(m.Methods)).
		Int("commands", len(m.Commands)).
		Int("properties", len(m.Player)).
		Msg("module bound")
	return nil
}

// BindAll binds modules in order and stops at the first failure.
func (r *Room) BindAll(modules ...Module) error {
	for _, m := range modules {
		if err := r.Bind(m); err != nil {
			return err
		}
	}
	return nil
}

func bindError(m Module, err error) error {
	if m.Name == "" {
		return fmt.Errorf("bind module: %w", err)
	}
	return fmt.Errorf("bind module %s: %w", m.Name, err)
}
