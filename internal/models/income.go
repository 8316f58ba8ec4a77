package models

import (
	"fmt"
	"time"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Income is a single earning record.
type Income struct {
	syncable.Meta
	AmountCents int64
	Source      string
	OccurredOn  time.Time
}

func (i *Income) Collection() string  { return "incomes" }
func (i *Income) OwnerRequired() bool { return true }

func (i *Income) EncodeFields(doc syncable.Document) error {
	if i.Source == "" {
		return fmt.Errorf("%w: income %s: missing source", common.ErrDataCorruption, i.ID)
	}
	if i.OccurredOn.IsZero() {
		return fmt.Errorf("%w: income %s: missing occurredOn", common.ErrDataCorruption, i.ID)
	}
	doc["amount"] = i.AmountCents
	doc["source"] = i.Source
	doc["occurredOn"] = i.OccurredOn.UTC()
	return nil
}

func (i *Income) DecodeFields(doc syncable.Document) error {
	amount, err := syncable.Int64Field(doc, "amount")
	if err != nil {
		return err
	}
	source, err := syncable.StringField(doc, "source")
	if err != nil {
		return err
	}
	occurred, err := syncable.TimeField(doc, "occurredOn")
	if err != nil {
		return err
	}
	i.AmountCents = amount
	i.Source = source
	i.OccurredOn = occurred.UTC()
	return nil
}
