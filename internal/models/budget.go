package models

import (
	"fmt"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Budget caps spending for one category in one calendar month.
// Month uses the "YYYY-MM" form.
type Budget struct {
	syncable.Meta
	CategoryID string
	LimitCents int64
	Month      string
}

func (b *Budget) Collection() string  { return "budgets" }
func (b *Budget) OwnerRequired() bool { return true }

func (b *Budget) EncodeFields(doc syncable.Document) error {
	if b.CategoryID == "" {
		return fmt.Errorf("%w: budget %s: missing categoryId", common.ErrDataCorruption, b.ID)
	}
	if b.Month == "" {
		return fmt.Errorf("%w: budget %s: missing month", common.ErrDataCorruption, b.ID)
	}
	doc["categoryId"] = b.CategoryID
	doc["limit"] = b.LimitCents
	doc["month"] = b.Month
	return nil
}

func (b *Budget) DecodeFields(doc syncable.Document) error {
	category, err := syncable.StringField(doc, "categoryId")
	if err != nil {
		return err
	}
	limit, err := syncable.Int64Field(doc, "limit")
	if err != nil {
		return err
	}
	month, err := syncable.StringField(doc, "month")
	if err != nil {
		return err
	}
	b.CategoryID = category
	b.LimitCents = limit
	b.Month = month
	return nil
}
