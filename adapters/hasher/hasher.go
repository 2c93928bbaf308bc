// Package hasher hashes and verifies role passwords.
package hasher

import (
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/roomkit/ports"
)

// ErrEmptyPassword is returned when asked to hash an empty password.
var ErrEmptyPassword = errors.New("hasher: empty password")

// Bcrypt hashes role passwords with bcrypt.
type Bcrypt struct {
	cost int
}

// NewBcrypt creates a bcrypt hasher. Out-of-range costs fall back to
// bcrypt.DefaultCost.
func NewBcrypt(cost int) *Bcrypt {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return &Bcrypt{cost: cost}
}

// Cost returns the work factor new hashes are generated with.
func (h *Bcrypt) Cost() int { return h.cost }

// Hash returns the bcrypt hash of a password.
func (h *Bcrypt) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return bcrypt.GenerateFromPassword([]byte(password), h.cost)
}

// Compare reports whether password matches hash. Surrounding whitespace in
// hash, common in YAML block scalars, is ignored.
func (h *Bcrypt) Compare(hash []byte, password string) bool {
	hash = []byte(strings.TrimSpace(string(hash)))
	if len(hash) == 0 {
		return false
	}
	return bcrypt.CompareHashAndPassword(hash, []byte(password)) == nil
}

// IsHash reports whether s looks like a bcrypt hash rather than a plaintext
// password pasted into config by mistake.
func IsHash(s string) bool {
	_, err := bcrypt.Cost([]byte(strings.TrimSpace(s)))
	return err == nil
}

var _ ports.Hasher = (*Bcrypt)(nil)

// Fake stores passwords as "fake:<password>". Tests only.
type Fake struct{}

const fakePrefix = "fake:"

// Hash prefixes the password.
func (Fake) Hash(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return []byte(fakePrefix + password), nil
}

// Compare checks the prefixed password.
func (Fake) Compare(hash []byte, password string) bool {
	return string(hash) == fakePrefix+password
}

var _ ports.Hasher = Fake{}
