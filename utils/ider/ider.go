// Package ider provides run identifier generation and test utilities.
package ider

import (
	"crypto/rand"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// IDers generate identifiers.
type IDer interface {
	ID() string
}

// UUID is an ID generator utilizing a random UUID.
type UUID struct{}

// NewUUID creates a new UUID ID generator.
func NewUUID() *UUID {
	return &UUID{}
}

// ID generates a new UUID ID.
func (u *UUID) ID() string {
	return uuid.NewString()
}

// ULID is an ID generator of lexically sortable ULIDs.
// IDs generated within the same millisecond are monotonically increasing.
type ULID struct {
	mu      sync.Mutex
	entropy io.Reader
}

// NewULID creates a new ULID ID generator.
func NewULID() *ULID {
	return &ULID{entropy: ulid.Monotonic(rand.Reader, 0)}
}

// ID generates a new ULID ID.
func (u *ULID) ID() string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), u.entropy).String()
}

// New returns the ID generator for format.
// Supported formats are "uuid" (the default when empty) and "ulid".
func New(format string) (IDer, bool) {
	switch format {
	case "", "uuid":
		return NewUUID(), true
	case "ulid":
		return NewULID(), true
	}
	return nil, false
}

// StaticIDs is an ID generator thats cycles through provided IDs.
type StaticIDs struct {
	mu  sync.Mutex
	ids []string
	i   int
}

// NewStaticIDs creates a new static ID generator.
func NewStaticIDs(ids ...string) *StaticIDs {
	return &StaticIDs{ids: ids}
}

// ID returns the next ID.
// It will continually cycle through the IDs.
func (s *StaticIDs) ID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := s.ids[s.i%len(s.ids)]
	s.i++
	return id
}
