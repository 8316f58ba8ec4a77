package syncable

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
)

// corrupt wraps common.ErrDataCorruption so callers can match with errors.Is.
func corrupt(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrDataCorruption, fmt.Sprintf(format, args...))
}

// ToDocument builds the full remote representation of a live entity:
// id, userId and updatedAt plus all business fields.
func ToDocument(e Entity) (Document, error) {
	m := e.SyncMeta()
	if m.ID == "" {
		return nil, corrupt("%s: missing id", e.Collection())
	}
	doc := Document{
		KeyID:        m.ID,
		KeyUserID:    m.OwnerUserID,
		KeyUpdatedAt: m.LastUpdated.UTC(),
	}
	if err := e.EncodeFields(doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ApplyDocument overwrites the entity with the full remote representation.
// Tombstone metadata is cleared; the caller decides the resulting Status.
func ApplyDocument(e Entity, doc Document) error {
	m := e.SyncMeta()

	id, err := StringField(doc, KeyID)
	if err != nil {
		return err
	}
	owner, _ := OptionalString(doc, KeyUserID)
	if owner == "" && e.OwnerRequired() {
		return corrupt("%s %s: missing %s", e.Collection(), id, KeyUserID)
	}
	ts, err := TimeField(doc, KeyUpdatedAt)
	if err != nil {
		return err
	}
	if err := e.DecodeFields(doc); err != nil {
		return err
	}

	m.ID = id
	if owner != "" {
		m.OwnerUserID = owner
	}
	m.LastUpdated = ts.UTC()
	m.IsDeleted = false
	m.DeletedAt = nil
	m.DeletedBy = ""
	return nil
}

// IsTombstone reports whether doc is a deletion marker. Either legacy key
// counts, and numeric truthiness is accepted for stores that persist flags
// as 0/1.
func IsTombstone(doc Document) bool {
	return truthy(doc[KeyIsDeleted]) || truthy(doc[KeyDeleted])
}

func truthy(v any) bool {
	switch value := v.(type) {
	case bool:
		return value
	case int:
		return value != 0
	case int64:
		return value != 0
	case float64:
		return value != 0
	case json.Number:
		f, err := value.Float64()
		return err == nil && f != 0
	default:
		return false
	}
}

// BestTimestamp extracts the most authoritative timestamp from a remote
// document: updatedAt when it parses, deletedAt when the document is itself
// a tombstone, the zero time when neither does.
func BestTimestamp(doc Document) time.Time {
	if t, ok := OptionalTime(doc, KeyUpdatedAt); ok {
		return t
	}
	if t, ok := OptionalTime(doc, KeyDeletedAt); ok {
		return t
	}
	return time.Time{}
}

// IsNewer compares the local authoritative timestamp (DeletedAt for a local
// tombstone, LastUpdated otherwise) against the best timestamp extractable
// from the remote payload. Strictly-after comparison; tie-break policy
// belongs to the resolver.
func IsNewer(e Entity, doc Document) bool {
	m := e.SyncMeta()
	local := m.LastUpdated
	if m.IsDeleted && m.DeletedAt != nil {
		local = *m.DeletedAt
	}
	return local.After(BestTimestamp(doc))
}

// ValidateForSync rejects entities that must not reach the push path: no id,
// no owner where ownership is required, or a tombstone without a deletion
// timestamp.
func ValidateForSync(e Entity) error {
	m := e.SyncMeta()
	if m.ID == "" {
		return corrupt("%s: missing id", e.Collection())
	}
	if e.OwnerRequired() && m.OwnerUserID == "" {
		return corrupt("%s %s: missing owner", e.Collection(), m.ID)
	}
	if m.IsDeleted && m.DeletedAt == nil {
		return corrupt("%s %s: tombstone without deletion timestamp", e.Collection(), m.ID)
	}
	return nil
}

// ParseTimestamp converts any supported wire encoding of a timestamp into a
// time.Time: native time.Time values, ISO-8601 strings, and numeric Unix
// seconds (fractional part allowed).
func ParseTimestamp(v any) (time.Time, bool) {
	switch value := v.(type) {
	case time.Time:
		return value, true
	case *time.Time:
		if value == nil {
			return time.Time{}, false
		}
		return *value, true
	case string:
		if t, err := time.Parse(time.RFC3339Nano, value); err == nil {
			return t, true
		}
		if t, err := time.Parse(time.RFC3339, value); err == nil {
			return t, true
		}
		return time.Time{}, false
	case int64:
		return time.Unix(value, 0).UTC(), true
	case int:
		return time.Unix(int64(value), 0).UTC(), true
	case float64:
		sec := int64(value)
		nsec := int64((value - float64(sec)) * float64(time.Second))
		return time.Unix(sec, nsec).UTC(), true
	case json.Number:
		f, err := value.Float64()
		if err != nil {
			return time.Time{}, false
		}
		return ParseTimestamp(f)
	default:
		return time.Time{}, false
	}
}

// StringField returns a required string value from doc.
func StringField(doc Document, key string) (string, error) {
	v, ok := doc[key]
	if !ok {
		return "", corrupt("missing key %q", key)
	}
	s, ok := v.(string)
	if !ok {
		return "", corrupt("key %q: expected string, got %T", key, v)
	}
	return s, nil
}

// OptionalString returns a string value when present and well-typed.
func OptionalString(doc Document, key string) (string, bool) {
	s, ok := doc[key].(string)
	return s, ok && s != ""
}

// Int64Field returns a required integer value from doc, tolerating the
// numeric types a JSON round trip can produce.
func Int64Field(doc Document, key string) (int64, error) {
	v, ok := doc[key]
	if !ok {
		return 0, corrupt("missing key %q", key)
	}
	switch value := v.(type) {
	case int64:
		return value, nil
	case int:
		return int64(value), nil
	case float64:
		return int64(value), nil
	case json.Number:
		n, err := value.Int64()
		if err != nil {
			return 0, corrupt("key %q: %v", key, err)
		}
		return n, nil
	default:
		return 0, corrupt("key %q: expected number, got %T", key, v)
	}
}

// TimeField returns a required timestamp value from doc.
func TimeField(doc Document, key string) (time.Time, error) {
	v, ok := doc[key]
	if !ok {
		return time.Time{}, corrupt("missing key %q", key)
	}
	t, ok := ParseTimestamp(v)
	if !ok {
		return time.Time{}, corrupt("key %q: unparseable timestamp %v", key, v)
	}
	return t, nil
}

// OptionalTime returns a timestamp value when present and parseable.
func OptionalTime(doc Document, key string) (time.Time, bool) {
	v, ok := doc[key]
	if !ok {
		return time.Time{}, false
	}
	return ParseTimestamp(v)
}
