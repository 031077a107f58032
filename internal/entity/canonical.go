package entity

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
	"strconv"

	"github.com/goccy/go-json"
	"golang.org/x/text/unicode/norm"
)

// DomainPayload prefixes payload digests. The version suffix leaves room
// for a future encoding change.
const DomainPayload = "replica/payload/v1"

// DomainCollection prefixes collection fingerprints.
const DomainCollection = "replica/collection/v1"

// MarshalCanonical encodes a decoded JSON value deterministically:
// object keys sorted, strings NFC normalized, no HTML escaping.
// Two payloads that differ only in key order or Unicode normal form
// encode to the same bytes.
func MarshalCanonical(v any) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeCanonical(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func writeCanonical(buf *bytes.Buffer, v any) error {
	switch val := v.(type) {
	case nil:
		buf.WriteString("null")
	case bool:
		buf.WriteString(strconv.FormatBool(val))
	case string:
		return writeCanonicalString(buf, val)
	case json.Number:
		buf.WriteString(val.String())
	case int:
		buf.WriteString(strconv.Itoa(val))
	case int64:
		buf.WriteString(strconv.FormatInt(val, 10))
	case float64:
		if math.IsNaN(val) || math.IsInf(val, 0) {
			return fmt.Errorf("non-finite number %v", val)
		}
		buf.WriteString(strconv.FormatFloat(val, 'g', -1, 64))
	case []any:
		buf.WriteByte('[')
		for i, elem := range val {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonical(buf, elem); err != nil {
				return fmt.Errorf("[%d]: %w", i, err)
			}
		}
		buf.WriteByte(']')
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		buf.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				buf.WriteByte(',')
			}
			if err := writeCanonicalString(buf, k); err != nil {
				return fmt.Errorf("key %q: %w", k, err)
			}
			buf.WriteByte(':')
			if err := writeCanonical(buf, val[k]); err != nil {
				return fmt.Errorf("[%q]: %w", k, err)
			}
		}
		buf.WriteByte('}')
	default:
		return fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
	return nil
}

func writeCanonicalString(buf *bytes.Buffer, s string) error {
	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(norm.NFC.String(s)); err != nil {
		return err
	}
	buf.Write(bytes.TrimSuffix(tmp.Bytes(), []byte("\n")))
	return nil
}

// Digest returns the content digest of a JSON payload:
// SHA256(domain + 0x00 + canonical(payload)), hex encoded.
func Digest(payload []byte) (string, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}
	canonical, err := MarshalCanonical(v)
	if err != nil {
		return "", fmt.Errorf("digest: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(DomainPayload))
	h.Write([]byte{0x00})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Fingerprint combines the payload digests of a collection, keyed by id,
// into one digest that is independent of row order and local keys:
// SHA256(domain + 0x00 + id + 0x00 + digest + 0x00 ...) over ids in
// sorted order, hex encoded. An empty collection has an empty fingerprint.
func Fingerprint(digests map[string]string) string {
	if len(digests) == 0 {
		return ""
	}
	ids := make([]string, 0, len(digests))
	for id := range digests {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	h := sha256.New()
	h.Write([]byte(DomainCollection))
	for _, id := range ids {
		h.Write([]byte{0x00})
		h.Write([]byte(id))
		h.Write([]byte{0x00})
		h.Write([]byte(digests[id]))
	}
	return hex.EncodeToString(h.Sum(nil))
}
