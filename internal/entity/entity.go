package entity

import (
	"fmt"
	"regexp"
	"time"
)

// Entity is a record with a stable id and a last-modified timestamp.
//
// Within one collection an id identifies at most one live record.
// LastUpdated is assigned by the remote and never moves backwards for a
// given id.
type Entity interface {
	ID() string
	LastUpdated() time.Time
}

// Stored is an entity as persisted locally, paired with its local
// primary key.
type Stored[E Entity] struct {
	Entity   E
	LocalKey int64
}

// ID returns the wrapped entity's id.
func (s Stored[E]) ID() string { return s.Entity.ID() }

// LastUpdated returns the wrapped entity's timestamp.
func (s Stored[E]) LastUpdated() time.Time { return s.Entity.LastUpdated() }

// Type names an entity collection, e.g. "users" or "data_elements".
// It doubles as a table name suffix so it is restricted to a safe
// identifier alphabet.
type Type string

var typePattern = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Validate reports whether t is usable as a collection name.
func (t Type) Validate() error {
	if !typePattern.MatchString(string(t)) {
		return fmt.Errorf("invalid entity type %q: must match %s", string(t), typePattern.String())
	}
	return nil
}

// String implements fmt.Stringer.
func (t Type) String() string { return string(t) }

// ParseTypes validates and converts a list of type names.
func ParseTypes(names []string) ([]Type, error) {
	types := make([]Type, 0, len(names))
	seen := make(map[Type]bool, len(names))
	for _, name := range names {
		t := Type(name)
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if seen[t] {
			return nil, fmt.Errorf("duplicate entity type %q", name)
		}
		seen[t] = true
		types = append(types, t)
	}
	return types, nil
}
