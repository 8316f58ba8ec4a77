// Package syncable defines the capability every synchronizable entity type
// implements: identity, ownership, sync lifecycle metadata, and conversion
// to and from the flat key-value documents stored remotely. The shared
// behavior (timestamps, tombstones, validation) is provided as free
// functions over the Entity interface so entity types only supply explicit
// accessors and field codecs, never reflection.
package syncable

import "time"

// State marks where an entity is in the sync lifecycle.
type State string

const (
	StateCreated  State = "created"
	StateUpdated  State = "updated"
	StateSynced   State = "synced"
	StateConflict State = "conflict"
	StateDeleted  State = "deleted"
)

// Dirty reports whether the state belongs to the local dirty set, i.e. the
// entity carries changes not yet acknowledged by the remote store.
func (s State) Dirty() bool {
	return s == StateCreated || s == StateUpdated || s == StateDeleted
}

// Document is the flat key-value remote representation of an entity.
// Relationships are represented as foreign-key scalars, never nested
// objects, to keep documents normalized and merges entity-local.
type Document map[string]any

// Reserved document keys. Both "deleted" and "isDeleted" are written on
// tombstones for backward compatibility with readers expecting either name.
const (
	KeyID        = "id"
	KeyUserID    = "userId"
	KeyUpdatedAt = "updatedAt"
	KeyDeleted   = "deleted"
	KeyIsDeleted = "isDeleted"
	KeyDeletedAt = "deletedAt"
	KeyDeletedBy = "deletedBy"
)

// Meta holds the sync metadata embedded in every synchronizable entity.
//
// Invariants:
//   - IsDeleted == true implies DeletedAt != nil.
//   - LastUpdated strictly increases on every local mutation.
//   - ID is assigned once at local creation and never reused.
type Meta struct {
	ID          string
	OwnerUserID string
	LastUpdated time.Time
	Status      State
	IsDeleted   bool
	DeletedAt   *time.Time
	DeletedBy   string
}

// SyncMeta returns the metadata itself so embedding a Meta satisfies the
// accessor half of the Entity interface.
func (m *Meta) SyncMeta() *Meta { return m }

// Touch sets LastUpdated to now (UTC), nudging forward by a nanosecond when
// the clock has not advanced so the timestamp stays strictly increasing.
func (m *Meta) Touch(now time.Time) {
	now = now.UTC()
	if !now.After(m.LastUpdated) {
		now = m.LastUpdated.Add(time.Nanosecond)
	}
	m.LastUpdated = now
}

// Entity is implemented by every synchronizable type. Field codecs work on
// business fields only; the sync metadata keys are handled by ToDocument,
// ApplyDocument and the tombstone helpers.
type Entity interface {
	// SyncMeta exposes the entity's sync metadata for mutation.
	SyncMeta() *Meta

	// Collection names the remote collection (and local table) the
	// entity belongs to.
	Collection() string

	// OwnerRequired reports whether the entity must be scoped to an
	// owner. False only for the profile entity, which is the identity.
	OwnerRequired() bool

	// EncodeFields writes the business fields into doc. Fails with
	// common.ErrDataCorruption when a required field is absent.
	EncodeFields(doc Document) error

	// DecodeFields reads the business fields from doc. Fails with
	// common.ErrDataCorruption on a type mismatch or missing required
	// key. Date fields must tolerate both ISO-8601 strings and native
	// timestamp encodings.
	DecodeFields(doc Document) error
}
