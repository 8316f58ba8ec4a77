// Package models defines the synchronizable finance entities. Every type
// embeds syncable.Meta and maps its business fields to remote document keys
// through an explicit codec; relationships stay foreign-key scalars.
package models

import (
	"fmt"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Expense is a single spend record. Amounts are integer cents to keep the
// wire format and arithmetic exact. ReceiptKey points at an object in blob
// storage and may be empty.
type Expense struct {
	syncable.Meta
	AmountCents int64
	CategoryID  string
	Note        string
	OccurredOn  time.Time
	ReceiptKey  string
}

func (e *Expense) Collection() string  { return "expenses" }
func (e *Expense) OwnerRequired() bool { return true }

func (e *Expense) EncodeFields(doc syncable.Document) error {
	if e.CategoryID == "" {
		return fmt.Errorf("%w: expense %s: missing categoryId", common.ErrDataCorruption, e.ID)
	}
	if e.OccurredOn.IsZero() {
		return fmt.Errorf("%w: expense %s: missing occurredOn", common.ErrDataCorruption, e.ID)
	}
	doc["amount"] = e.AmountCents
	doc["categoryId"] = e.CategoryID
	doc["occurredOn"] = e.OccurredOn.UTC()
	if e.Note != "" {
		doc["note"] = e.Note
	}
	if e.ReceiptKey != "" {
		doc["receiptKey"] = e.ReceiptKey
	}
	return nil
}

func (e *Expense) DecodeFields(doc syncable.Document) error {
	amount, err := syncable.Int64Field(doc, "amount")
	if err != nil {
		return err
	}
	category, err := syncable.StringField(doc, "categoryId")
	if err != nil {
		return err
	}
	occurred, err := syncable.TimeField(doc, "occurredOn")
	if err != nil {
		return err
	}
	e.AmountCents = amount
	e.CategoryID = category
	e.OccurredOn = occurred.UTC()
	e.Note, _ = syncable.OptionalString(doc, "note")
	e.ReceiptKey, _ = syncable.OptionalString(doc, "receiptKey")
	return nil
}
