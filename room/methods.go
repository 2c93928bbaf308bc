package room

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strings"
)

// Method adds fn to the method table under name. A later registration under
// the same name replaces the earlier one.
func (r *Room) Method(name string, fn Method) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidMethod)
	}
	if fn == nil {
		return fmt.Errorf("%w: %q has no function", ErrInvalidMethod, name)
	}

	r.mu.Lock()
	_, replaced := r.methods[name]
	r.methods[name] = fn
	r.mu.Unlock()

	if replaced {
		r.logger.Debug().Str("method", name).Msg("method replaced")
	}
	return nil
}

// Call invokes a method from the table.
func (r *Room) Call(ctx context.Context, name string, args ...any) (any, error) {
	r.mu.RLock()
	fn, ok := r.methods[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrMethodNotFound, name)
	}
	return fn(ctx, r, args...)
}

// HasMethod reports whether name is in the method table.
func (r *Room) HasMethod(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.methods[name]
	return ok
}

// Methods returns the names in the method table, sorted.
func (r *Room) Methods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return slices.Sorted(maps.Keys(r.methods))
}
