// Package idgen produces dispatch correlation ids.
package idgen

import (
	"strconv"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/artpar/roomkit/ports"
)

// UUID generates random v4 UUIDs.
type UUID struct{}

// New returns a new UUID string.
func (UUID) New() string {
	return uuid.NewString()
}

// Short generates the first eight hex digits of a random UUID. Dispatch ids
// only need to be unique within one log stream.
type Short struct{}

// New returns a short random id.
func (Short) New() string {
	return uuid.NewString()[:8]
}

// Sequential generates prefix1, prefix2, ... for tests.
type Sequential struct {
	prefix string
	n      atomic.Uint64
}

// NewSequential creates a sequential generator.
func NewSequential(prefix string) *Sequential {
	return &Sequential{prefix: prefix}
}

// New returns the next id.
func (s *Sequential) New() string {
	return s.prefix + strconv.FormatUint(s.n.Add(1), 10)
}

var (
	_ ports.IDGenerator = UUID{}
	_ ports.IDGenerator = Short{}
	_ ports.IDGenerator = (*Sequential)(nil)
)
