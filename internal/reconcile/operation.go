package reconcile

import (
	"fmt"
	"time"

	"github.com/roach88/replica/internal/entity"
)

// Kind tags an Operation.
type Kind int

const (
	KindInsert Kind = iota + 1
	KindUpdate
	KindDelete
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindInsert:
		return "insert"
	case KindUpdate:
		return "update"
	case KindDelete:
		return "delete"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "insert":
		return KindInsert, nil
	case "update":
		return KindUpdate, nil
	case "delete":
		return KindDelete, nil
	default:
		return 0, fmt.Errorf("unknown operation kind %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Operation is one local change derived by Diff.
//
// For KindInsert, Entity is the new entity and LocalKey is zero.
// For KindUpdate, Entity is the new entity and LocalKey addresses the row
// it replaces. For KindDelete, Entity is the old local entity.
type Operation[E entity.Entity] struct {
	Kind     Kind
	Entity   E
	LocalKey int64
}

// Insert builds an insert operation.
func Insert[E entity.Entity](e E) Operation[E] {
	return Operation[E]{Kind: KindInsert, Entity: e}
}

// Update builds an update operation for the row at localKey.
func Update[E entity.Entity](e E, localKey int64) Operation[E] {
	return Operation[E]{Kind: KindUpdate, Entity: e, LocalKey: localKey}
}

// Delete builds a delete operation for a stored entity.
func Delete[E entity.Entity](old entity.Stored[E]) Operation[E] {
	return Operation[E]{Kind: KindDelete, Entity: old.Entity, LocalKey: old.LocalKey}
}

// ID returns the id of the entity the operation touches.
func (op Operation[E]) ID() string { return op.Entity.ID() }

// Describe returns a one-line human-readable form.
func (op Operation[E]) Describe() string {
	switch op.Kind {
	case KindInsert:
		return fmt.Sprintf("insert %s (lastUpdated %s)", op.ID(), formatTime(op.Entity.LastUpdated()))
	case KindUpdate:
		return fmt.Sprintf("update %s at key %d (lastUpdated %s)", op.ID(), op.LocalKey, formatTime(op.Entity.LastUpdated()))
	case KindDelete:
		return fmt.Sprintf("delete %s at key %d", op.ID(), op.LocalKey)
	default:
		return fmt.Sprintf("%s %s", op.Kind, op.ID())
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.UTC().Format(time.RFC3339Nano)
}
