package players

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/artpar/roomkit/core/loop"
	"github.com/artpar/roomkit/core/state"
	"github.com/artpar/roomkit/ports"
)

// ErrInvalidProperty is returned when a property declaration is rejected.
var ErrInvalidProperty = errors.New("players: invalid property")

// Lookup resolves live host players by id.
type Lookup interface {
	Player(id int) (ports.Player, bool)
}

// Dispatcher fires change events.
type Dispatcher func(ctx context.Context, event string, args ...any) bool

// Scheduler runs work in a later loop quantum.
type Scheduler interface {
	Defer(task loop.Task)
}

// Options configures a Store.
type Options struct {
	Host      Lookup
	Dispatch  Dispatcher
	Scheduler Scheduler
	Observer  ports.Observer
	Logger    zerolog.Logger
}

// Store owns the extension records of every player seen by the room.
// Records are created lazily from the declared defaults and live until the
// player leaves.
type Store struct {
	mu       sync.Mutex
	records  map[int]map[string]any
	defaults map[string]any
	props    map[string]*Property
	order    []string

	host     Lookup
	dispatch Dispatcher
	sched    Scheduler
	observer ports.Observer
	logger   zerolog.Logger
}

// NewStore creates a store with no declared properties.
func NewStore(opts Options) *Store {
	s := &Store{
		records:  make(map[int]map[string]any),
		defaults: make(map[string]any),
		props:    make(map[string]*Property),
		host:     opts.Host,
		dispatch: opts.Dispatch,
		sched:    opts.Scheduler,
		observer: opts.Observer,
		logger:   opts.Logger,
	}
	if s.observer == nil {
		s.observer = ports.NopObserver{}
	}
	if s.dispatch == nil {
		s.dispatch = func(context.Context, string, ...any) bool { return true }
	}
	return s
}

// Declare registers a property and returns its accessor.
func (s *Store) Declare(name string, opts PropertyOptions) (*Property, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: empty name", ErrInvalidProperty)
	}
	if IsHostField(name) {
		return nil, fmt.Errorf("%w: %q is a host player field", ErrInvalidProperty, name)
	}

	p := newProperty(s, name, opts)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.props[name]; dup {
		return nil, fmt.Errorf("%w: %q already declared", ErrInvalidProperty, name)
	}
	s.props[name] = p
	s.order = append(s.order, name)
	s.defaults[name] = state.Clone(opts.Default)

	s.logger.Debug().
		Str("property", name).
		Str("method", p.method).
		Str("event", p.event).
		Bool("async", !p.sync).
		Msg("player property declared")
	return p, nil
}

// Property returns a declared property by name.
func (s *Store) Property(name string) (*Property, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.props[name]
	return p, ok
}

// Properties returns declared properties in declaration order.
func (s *Store) Properties() []*Property {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*Property, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.props[name])
	}
	return out
}

// Defaults returns a copy of the defaults template.
func (s *Store) Defaults() map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return state.CloneMap(s.defaults)
}

// View returns the merged view of a live player. It reports false when the
// host does not know the id.
func (s *Store) View(id int) (View, bool) {
	if s.host == nil {
		return nil, false
	}
	raw, ok := s.host.Player(id)
	if !ok {
		return nil, false
	}
	return s.Wrap(raw), true
}

// Wrap merges a raw snapshot with its extension record, creating the record
// if needed. Host fields win on key collision.
func (s *Store) Wrap(raw ports.Player) View {
	s.mu.Lock()
	rec := s.recordLocked(raw.ID)
	v := View(state.CloneMap(rec))
	s.mu.Unlock()

	for k, val := range raw.Fields() {
		v[k] = val
	}
	return v
}

// recordLocked returns the record for id, creating it from the defaults and
// backfilling properties declared after it was created.
func (s *Store) recordLocked(id int) map[string]any {
	rec, ok := s.records[id]
	if !ok {
		rec = state.CloneMap(s.defaults)
		s.records[id] = rec
		return rec
	}
	for k, def := range s.defaults {
		if _, present := rec[k]; !present {
			rec[k] = state.Clone(def)
		}
	}
	return rec
}

// persist stores the non-host fields of v as the record for id.
func (s *Store) persist(id int, v View) {
	rec := make(map[string]any, len(v))
	for k, val := range v {
		if IsHostField(k) {
			continue
		}
		rec[k] = state.Clone(val)
	}

	s.mu.Lock()
	s.records[id] = rec
	s.mu.Unlock()
}

// Has reports whether a record exists for id without creating one.
func (s *Store) Has(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[id]
	return ok
}

// Len returns the number of materialized records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// IDs returns the ids with materialized records, sorted.
func (s *Store) IDs() []int {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int, 0, len(s.records))
	for id := range s.records {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}

// Forget drops the record for id immediately.
func (s *Store) Forget(id int) {
	s.mu.Lock()
	delete(s.records, id)
	s.mu.Unlock()
}

// ForgetLater drops the record for id in the next loop quantum, so handlers
// of the event that triggered it can still read the final state.
func (s *Store) ForgetLater(id int) {
	if s.sched == nil {
		s.Forget(id)
		return
	}
	s.sched.Defer(func() { s.Forget(id) })
}
