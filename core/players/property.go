package players

import (
	"context"

	"github.com/artpar/roomkit/core/events"
	"github.com/artpar/roomkit/core/state"
)

// SetFunc applies new values to a player view. It may mutate p freely; the
// mutated view is persisted. Returning false suppresses the change event.
type SetFunc func(p View, values ...any) bool

// PropertyOptions describes a player property.
type PropertyOptions struct {
	// Default is the initial value, deep-copied for every player.
	Default any `yaml:"default"`

	// Set replaces the default equality-checked assignment.
	Set SetFunc `yaml:"-"`

	// MethodName defaults to "setPlayer<Name>".
	MethodName string `yaml:"method"`

	// EventName defaults to "player<Name>Change".
	EventName string `yaml:"event"`

	// Sync applies writes in the caller's stack instead of the next loop
	// quantum.
	Sync bool `yaml:"sync"`
}

// Property is a declared player attribute together with its accessor.
type Property struct {
	store  *Store
	name   string
	method string
	event  string
	def    any
	set    SetFunc
	sync   bool
}

func newProperty(s *Store, name string, opts PropertyOptions) *Property {
	p := &Property{
		store:  s,
		name:   name,
		method: opts.MethodName,
		event:  opts.EventName,
		def:    state.Clone(opts.Default),
		set:    opts.Set,
		sync:   opts.Sync,
	}
	if p.method == "" {
		p.method = events.CamelCase("set-player-" + name)
	}
	if p.event == "" {
		p.event = events.CamelCase("player-" + name + "-change")
	} else {
		p.event = events.Normalize(p.event)
	}
	if p.set == nil {
		p.set = assign(name)
	}
	return p
}

// assign is the default setter: store the first value unless it is
// structurally equal to the current one.
func assign(name string) SetFunc {
	return func(p View, values ...any) bool {
		var value any
		if len(values) > 0 {
			value = values[0]
		}
		if state.Equal(p[name], value) {
			return false
		}
		p[name] = state.Clone(value)
		return true
	}
}

// Name returns the property name.
func (p *Property) Name() string { return p.name }

// MethodName returns the name the accessor is published under.
func (p *Property) MethodName() string { return p.method }

// EventName returns the change event name.
func (p *Property) EventName() string { return p.event }

// Async reports whether writes are deferred to the next loop quantum.
func (p *Property) Async() bool { return !p.sync }

// Default returns a copy of the default value.
func (p *Property) Default() any { return state.Clone(p.def) }

// Set writes values for the player id. Async properties apply the write in
// the next loop quantum, so the new value is not visible when Set returns.
// Writes for ids the host does not know are dropped silently.
func (p *Property) Set(ctx context.Context, id int, values ...any) {
	if p.sync || p.store.sched == nil {
		p.apply(ctx, id, values)
		return
	}
	ctx = context.WithoutCancel(ctx)
	values = append([]any(nil), values...)
	p.store.sched.Defer(func() { p.apply(ctx, id, values) })
}

func (p *Property) apply(ctx context.Context, id int, values []any) {
	s := p.store
	view, ok := s.View(id)
	if !ok {
		s.logger.Debug().Int("player_id", id).Str("property", p.name).Msg("property write for unknown player dropped")
		return
	}

	changed := p.set(view, values...)
	s.persist(id, view)
	if !changed {
		return
	}

	s.observer.PropertyChanged(p.name)
	s.dispatch(ctx, p.event, View(state.CloneMap(view)))
}
