package entity

import (
	"bytes"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
)

// Reserved JSON keys of a Record.
const (
	KeyID          = "id"
	KeyLastUpdated = "lastUpdated"
)

var (
	// ErrMissingID is returned when a payload carries no usable id.
	ErrMissingID = errors.New("entity: missing id")

	// ErrMissingLastUpdated is returned when a payload carries no lastUpdated.
	ErrMissingLastUpdated = errors.New("entity: missing lastUpdated")
)

// Record is the schema-less entity used by the replica binary.
//
// Its JSON form is flat: the id and lastUpdated keys sit next to the
// opaque fields, as remote APIs deliver them.
type Record struct {
	Key     string
	Updated time.Time
	Fields  map[string]any
}

var _ Entity = Record{}

// NewRecord builds a record. A nil fields map is allowed.
func NewRecord(id string, lastUpdated time.Time, fields map[string]any) Record {
	return Record{Key: id, Updated: lastUpdated.UTC(), Fields: fields}
}

// ID implements Entity.
func (r Record) ID() string { return r.Key }

// LastUpdated implements Entity.
func (r Record) LastUpdated() time.Time { return r.Updated }

// MarshalJSON encodes the record as one flat object.
// Object keys come out sorted, so equal records encode to equal bytes.
func (r Record) MarshalJSON() ([]byte, error) {
	if r.Key == "" {
		return nil, ErrMissingID
	}
	obj := make(map[string]any, len(r.Fields)+2)
	for k, v := range r.Fields {
		obj[k] = v
	}
	obj[KeyID] = r.Key
	obj[KeyLastUpdated] = r.Updated.UTC().Format(time.RFC3339Nano)
	return json.Marshal(obj)
}

// UnmarshalJSON decodes a flat object. Numbers are kept as json.Number
// so payloads survive a round trip without float rounding.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return fmt.Errorf("decode record: %w", err)
	}
	if obj == nil {
		return fmt.Errorf("decode record: expected object")
	}

	id, ok := obj[KeyID].(string)
	if !ok || id == "" {
		return ErrMissingID
	}
	raw, ok := obj[KeyLastUpdated].(string)
	if !ok || raw == "" {
		return fmt.Errorf("record %q: %w", id, ErrMissingLastUpdated)
	}
	updated, err := ParseTimestamp(raw)
	if err != nil {
		return fmt.Errorf("record %q: %w", id, err)
	}

	delete(obj, KeyID)
	delete(obj, KeyLastUpdated)
	if len(obj) == 0 {
		obj = nil
	}

	r.Key = id
	r.Updated = updated
	r.Fields = obj
	return nil
}

// timestampLayouts are tried in order. The last one is the zone-less form
// some servers emit, read as UTC.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
}

// ParseTimestamp parses a lastUpdated value. Values outside the range
// CheckTimestamp accepts are rejected.
func ParseTimestamp(s string) (time.Time, error) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			if err := CheckTimestamp(t); err != nil {
				return time.Time{}, err
			}
			return t.UTC(), nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
}
