package syncable

import "time"

// MarkDeleted turns the entity into a tombstone: the row is retained so the
// deletion can be propagated and ordered against competing updates before
// physical removal. Idempotent — a second call only refreshes LastUpdated.
func MarkDeleted(e Entity, now time.Time, by string) {
	m := e.SyncMeta()
	if m.IsDeleted {
		m.Touch(now)
		return
	}
	at := now.UTC()
	m.IsDeleted = true
	m.DeletedAt = &at
	m.DeletedBy = by
	m.Touch(now)
	m.Status = StateDeleted
}

// ToTombstoneDocument builds the minimal deletion payload, cheap to transmit
// and distinguishable from a field update.
func ToTombstoneDocument(e Entity) (Document, error) {
	m := e.SyncMeta()
	if m.ID == "" {
		return nil, corrupt("%s: missing id", e.Collection())
	}
	if !m.IsDeleted || m.DeletedAt == nil {
		return nil, corrupt("%s %s: not a tombstone", e.Collection(), m.ID)
	}
	doc := Document{
		KeyID:        m.ID,
		KeyDeleted:   true,
		KeyIsDeleted: true,
		KeyDeletedAt: m.DeletedAt.UTC(),
		KeyUserID:    m.OwnerUserID,
		KeyUpdatedAt: m.LastUpdated.UTC(),
	}
	if m.DeletedBy != "" {
		doc[KeyDeletedBy] = m.DeletedBy
	}
	return doc, nil
}

// ApplyTombstoneDocument overwrites the entity's metadata with a remote
// deletion marker. Business fields are left as they were; the caller decides
// the resulting Status. Falls back to updatedAt when the payload carries no
// parseable deletedAt.
func ApplyTombstoneDocument(e Entity, doc Document) error {
	m := e.SyncMeta()

	id, err := StringField(doc, KeyID)
	if err != nil {
		return err
	}
	at, ok := OptionalTime(doc, KeyDeletedAt)
	if !ok {
		at, ok = OptionalTime(doc, KeyUpdatedAt)
		if !ok {
			return corrupt("%s %s: tombstone without timestamp", e.Collection(), id)
		}
	}
	by, _ := OptionalString(doc, KeyDeletedBy)
	owner, _ := OptionalString(doc, KeyUserID)

	atUTC := at.UTC()
	m.ID = id
	if owner != "" {
		m.OwnerUserID = owner
	}
	m.IsDeleted = true
	m.DeletedAt = &atUTC
	m.DeletedBy = by
	if ts, ok := OptionalTime(doc, KeyUpdatedAt); ok && ts.After(atUTC) {
		m.LastUpdated = ts.UTC()
	} else {
		m.LastUpdated = atUTC
	}
	return nil
}
