// Package events provides the per-room event registry that modules hook into.
// Host events ("playerJoin", "playerChat", ...) and module events
// ("playerAfkChange", "ready", ...) share one namespace of camelCase names.
package events

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/state"
	"github.com/artpar/roomkit/ports"
)

// ErrVeto is returned by a handler to vote against the event. It is not a
// failure: it only makes Dispatch report false.
var ErrVeto = errors.New("events: vetoed")

// ErrInvalidHandler is returned by On for malformed registrations.
var ErrInvalidHandler = errors.New("events: invalid handler")

// Handler is a function that processes an event. Each handler receives its
// own deep copy of the dispatch arguments.
type Handler func(ctx context.Context, args []any) error

// Unbind removes the handlers added by one On call. Calling it more than once
// is harmless.
type Unbind func()

// Reporter is told about every handler failure after it has been logged.
type Reporter interface {
	ReportFailure(ctx context.Context, event string, err error)
}

// ReporterFunc adapts a function to Reporter.
type ReporterFunc func(ctx context.Context, event string, err error)

// ReportFailure calls f.
func (f ReporterFunc) ReportFailure(ctx context.Context, event string, err error) {
	f(ctx, event, err)
}

// PanicError wraps a value recovered from a panicking handler.
type PanicError struct {
	Value any
	Stack []byte
}

// Error returns the panic message.
func (e *PanicError) Error() string {
	return fmt.Sprintf("handler panicked: %v", e.Value)
}

type entry struct {
	id      uint64
	handler Handler
}

// Options configures a Registry. Zero values are replaced with no-ops.
type Options struct {
	Logger   zerolog.Logger
	Reporter Reporter
	Observer ports.Observer
	IDs      ports.IDGenerator
}

// Registry stores ordered handler lists per event name.
type Registry struct {
	mu       sync.RWMutex
	handlers map[string][]entry
	nextID   uint64

	logger   zerolog.Logger
	reporter Reporter
	observer ports.Observer
	ids      ports.IDGenerator
}

// NewRegistry creates an empty registry.
func NewRegistry(opts Options) *Registry {
	r := &Registry{
		handlers: make(map[string][]entry),
		logger:   opts.Logger,
		reporter: opts.Reporter,
		observer: opts.Observer,
		ids:      opts.IDs,
	}
	if r.observer == nil {
		r.observer = ports.NopObserver{}
	}
	return r
}

// On appends handlers to the event, after anything already registered.
// The event name is normalized with Normalize.
func (r *Registry) On(event string, handlers ...Handler) (Unbind, error) {
	name := Normalize(event)
	if name == "" {
		return nil, fmt.Errorf("%w: event name %q has no words", ErrInvalidHandler, event)
	}
	if len(handlers) == 0 {
		return nil, fmt.Errorf("%w: no handlers provided for %s", ErrInvalidHandler, name)
	}
	for i, h := range handlers {
		if h == nil {
			return nil, fmt.Errorf("%w: handler %d for %s is nil", ErrInvalidHandler, i, name)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make(map[uint64]struct{}, len(handlers))
	for _, h := range handlers {
		r.nextID++
		ids[r.nextID] = struct{}{}
		r.handlers[name] = append(r.handlers[name], entry{id: r.nextID, handler: h})
	}

	return func() { r.remove(name, ids) }, nil
}

func (r *Registry) remove(name string, ids map[uint64]struct{}) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current := r.handlers[name]
	kept := make([]entry, 0, len(current))
	for _, e := range current {
		if _, drop := ids[e.id]; !drop {
			kept = append(kept, e)
		}
	}
	if len(kept) == 0 {
		delete(r.handlers, name)
		return
	}
	r.handlers[name] = kept
}

// Dispatch calls every handler registered for the event, in registration
// order, and returns false if any of them returned ErrVeto.
//
// The handler list is snapshotted first, so registrations and unbinds made by
// handlers only affect later dispatches. A handler that fails (returns another
// error or panics) is logged and reported; the remaining handlers still run
// and the failure never reaches the caller.
func (r *Registry) Dispatch(ctx context.Context, event string, args ...any) bool {
	name := Normalize(event)

	r.mu.RLock()
	entries := r.handlers[name]
	r.mu.RUnlock()

	if len(entries) == 0 {
		return true
	}

	logger := r.logger.With().Str("event", name).Logger()
	if r.ids != nil {
		logger = logger.With().Str("dispatch_id", r.ids.New()).Logger()
	}
	logger.Debug().Int("handlers", len(entries)).Msg("event dispatched")

	vetoed := false
	for _, e := range entries {
		err := invoke(ctx, e.handler, args)
		switch {
		case err == nil:
		case errors.Is(err, ErrVeto):
			vetoed = true
		default:
			r.fail(ctx, logger, name, err)
		}
	}

	r.observer.EventDispatched(name, len(entries), vetoed)
	return !vetoed
}

func (r *Registry) fail(ctx context.Context, logger zerolog.Logger, name string, err error) {
	evt := logger.Error().Err(err)
	var pe *PanicError
	if errors.As(err, &pe) {
		evt = evt.Bytes("stack", pe.Stack)
	}
	evt.Msg("event handler error")

	r.observer.HandlerFailed(name)
	if r.reporter != nil {
		r.reporter.ReportFailure(ctx, name, err)
	}
}

func invoke(ctx context.Context, h Handler, args []any) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &PanicError{Value: v, Stack: debug.Stack()}
		}
	}()
	return h(ctx, cloneArgs(args))
}

func cloneArgs(args []any) []any {
	out := make([]any, len(args))
	for i, a := range args {
		out[i] = state.Clone(a)
	}
	return out
}

// Count returns the number of handlers registered for the event.
func (r *Registry) Count(event string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers[Normalize(event)])
}

// Events returns the names of events with at least one handler, sorted.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
