package syncable

import (
	"errors"
	"testing"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// note is a minimal entity used to exercise the shared contract logic.
type note struct {
	Meta
	Text string
}

func (n *note) Collection() string  { return "notes" }
func (n *note) OwnerRequired() bool { return true }

func (n *note) EncodeFields(doc Document) error {
	if n.Text == "" {
		return corrupt("notes %s: missing text", n.ID)
	}
	doc["text"] = n.Text
	return nil
}

func (n *note) DecodeFields(doc Document) error {
	text, err := StringField(doc, "text")
	if err != nil {
		return err
	}
	n.Text = text
	return nil
}

func newNote(id string) *note {
	return &note{
		Meta: Meta{
			ID:          id,
			OwnerUserID: "user-1",
			LastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Status:      StateCreated,
		},
		Text: "groceries",
	}
}

func TestMeta_Touch_StrictlyIncreases(t *testing.T) {
	m := &Meta{LastUpdated: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)}

	m.Touch(m.LastUpdated) // clock did not advance
	first := m.LastUpdated
	assert.True(t, first.After(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

	m.Touch(first.Add(-time.Hour)) // clock went backwards
	assert.True(t, m.LastUpdated.After(first))
}

func TestToDocument_And_ApplyDocument_RoundTrip(t *testing.T) {
	n := newNote("n1")

	doc, err := ToDocument(n)
	require.NoError(t, err)
	assert.Equal(t, "n1", doc[KeyID])
	assert.Equal(t, "user-1", doc[KeyUserID])
	assert.Equal(t, "groceries", doc["text"])

	got := &note{}
	require.NoError(t, ApplyDocument(got, doc))
	assert.Equal(t, "n1", got.ID)
	assert.Equal(t, "user-1", got.OwnerUserID)
	assert.Equal(t, n.LastUpdated, got.LastUpdated)
	assert.Equal(t, "groceries", got.Text)
	assert.False(t, got.IsDeleted)
}

func TestApplyDocument_ToleratesStringTimestamps(t *testing.T) {
	got := &note{}
	err := ApplyDocument(got, Document{
		KeyID:        "n2",
		KeyUserID:    "user-1",
		KeyUpdatedAt: "2024-03-01T12:30:00Z",
		"text":       "rent",
	})
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC), got.LastUpdated)
}

func TestApplyDocument_Corruption(t *testing.T) {
	tests := []struct {
		name string
		doc  Document
	}{
		{"missing id", Document{KeyUserID: "u", KeyUpdatedAt: time.Now(), "text": "x"}},
		{"missing owner", Document{KeyID: "a", KeyUpdatedAt: time.Now(), "text": "x"}},
		{"missing updatedAt", Document{KeyID: "a", KeyUserID: "u", "text": "x"}},
		{"missing text", Document{KeyID: "a", KeyUserID: "u", KeyUpdatedAt: time.Now()}},
		{"text type mismatch", Document{KeyID: "a", KeyUserID: "u", KeyUpdatedAt: time.Now(), "text": 7}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := ApplyDocument(&note{}, tc.doc)
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrDataCorruption), "want ErrDataCorruption, got %v", err)
		})
	}
}

func TestToDocument_MissingRequiredField(t *testing.T) {
	n := newNote("n1")
	n.Text = ""
	_, err := ToDocument(n)
	require.ErrorIs(t, err, common.ErrDataCorruption)
}

func TestMarkDeleted_Idempotent(t *testing.T) {
	n := newNote("n1")
	now := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	MarkDeleted(n, now, "device-a")
	require.True(t, n.IsDeleted)
	require.NotNil(t, n.DeletedAt)
	assert.Equal(t, now, *n.DeletedAt)
	assert.Equal(t, "device-a", n.DeletedBy)
	assert.Equal(t, StateDeleted, n.Status)
	assert.Equal(t, now, n.LastUpdated)

	// Second call only refreshes the timestamp.
	later := now.Add(time.Minute)
	MarkDeleted(n, later, "device-b")
	assert.Equal(t, now, *n.DeletedAt)
	assert.Equal(t, "device-a", n.DeletedBy)
	assert.Equal(t, later, n.LastUpdated)
}

func TestTombstoneDocument_RoundTrip(t *testing.T) {
	n := newNote("n1")
	MarkDeleted(n, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "device-a")

	doc, err := ToTombstoneDocument(n)
	require.NoError(t, err)
	assert.Equal(t, true, doc[KeyDeleted])
	assert.Equal(t, true, doc[KeyIsDeleted])
	assert.NotContains(t, doc, "text", "tombstones must not carry business fields")
	assert.True(t, IsTombstone(doc))

	got := &note{}
	require.NoError(t, ApplyTombstoneDocument(got, doc))
	assert.Equal(t, "n1", got.ID)
	assert.True(t, got.IsDeleted)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, *n.DeletedAt, *got.DeletedAt)
	assert.Equal(t, "device-a", got.DeletedBy)
}

func TestToTombstoneDocument_RejectsLiveEntity(t *testing.T) {
	_, err := ToTombstoneDocument(newNote("n1"))
	require.ErrorIs(t, err, common.ErrDataCorruption)
}

func TestApplyTombstoneDocument_FallsBackToUpdatedAt(t *testing.T) {
	got := &note{}
	err := ApplyTombstoneDocument(got, Document{
		KeyID:        "n3",
		KeyDeleted:   true,
		KeyUpdatedAt: "2024-03-02T10:00:00Z",
	})
	require.NoError(t, err)
	require.NotNil(t, got.DeletedAt)
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC), *got.DeletedAt)
}

func TestIsTombstone_EitherKeyAndNumericTruth(t *testing.T) {
	assert.True(t, IsTombstone(Document{KeyDeleted: true}))
	assert.True(t, IsTombstone(Document{KeyIsDeleted: true}))
	assert.True(t, IsTombstone(Document{KeyIsDeleted: float64(1)}))
	assert.False(t, IsTombstone(Document{KeyDeleted: false}))
	assert.False(t, IsTombstone(Document{}))
}

func TestBestTimestamp_Fallbacks(t *testing.T) {
	upd := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)
	del := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)

	assert.Equal(t, upd, BestTimestamp(Document{KeyUpdatedAt: upd, KeyDeletedAt: del}))
	assert.Equal(t, del, BestTimestamp(Document{KeyDeletedAt: del}))
	assert.True(t, BestTimestamp(Document{KeyUpdatedAt: "garbage"}).IsZero())
	assert.True(t, BestTimestamp(Document{}).IsZero())
}

func TestIsNewer_UsesDeletedAtForLocalTombstone(t *testing.T) {
	n := newNote("n1")
	MarkDeleted(n, time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC), "")

	older := Document{KeyUpdatedAt: time.Date(2024, 3, 2, 8, 0, 0, 0, time.UTC)}
	newer := Document{KeyUpdatedAt: time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC)}

	assert.True(t, IsNewer(n, older))
	assert.False(t, IsNewer(n, newer))
	assert.True(t, IsNewer(n, Document{}), "unparseable remote timestamp loses")
}

func TestValidateForSync(t *testing.T) {
	ok := newNote("n1")
	require.NoError(t, ValidateForSync(ok))

	noID := newNote("")
	require.ErrorIs(t, ValidateForSync(noID), common.ErrDataCorruption)

	noOwner := newNote("n1")
	noOwner.OwnerUserID = ""
	require.ErrorIs(t, ValidateForSync(noOwner), common.ErrDataCorruption)

	badTombstone := newNote("n1")
	badTombstone.IsDeleted = true
	require.ErrorIs(t, ValidateForSync(badTombstone), common.ErrDataCorruption)
}

func TestParseTimestamp_NumericEncodings(t *testing.T) {
	want := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

	got, ok := ParseTimestamp(want.Unix())
	require.True(t, ok)
	assert.Equal(t, want, got)

	got, ok = ParseTimestamp(float64(want.Unix()))
	require.True(t, ok)
	assert.Equal(t, want, got)

	_, ok = ParseTimestamp(struct{}{})
	assert.False(t, ok)
}
