package models

import (
	"fmt"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// CategoryKind splits categories between the two ledgers.
type CategoryKind string

const (
	CategoryKindExpense CategoryKind = "expense"
	CategoryKindIncome  CategoryKind = "income"
)

// Category labels expenses and incomes. Referenced by ID only.
type Category struct {
	syncable.Meta
	Name  string
	Kind  CategoryKind
	Color string
}

func (c *Category) Collection() string  { return "categories" }
func (c *Category) OwnerRequired() bool { return true }

func (c *Category) EncodeFields(doc syncable.Document) error {
	if c.Name == "" {
		return fmt.Errorf("%w: category %s: missing name", common.ErrDataCorruption, c.ID)
	}
	if c.Kind != CategoryKindExpense && c.Kind != CategoryKindIncome {
		return fmt.Errorf("%w: category %s: invalid kind %q", common.ErrDataCorruption, c.ID, c.Kind)
	}
	doc["name"] = c.Name
	doc["kind"] = string(c.Kind)
	if c.Color != "" {
		doc["color"] = c.Color
	}
	return nil
}

func (c *Category) DecodeFields(doc syncable.Document) error {
	name, err := syncable.StringField(doc, "name")
	if err != nil {
		return err
	}
	kind, err := syncable.StringField(doc, "kind")
	if err != nil {
		return err
	}
	if k := CategoryKind(kind); k != CategoryKindExpense && k != CategoryKindIncome {
		return fmt.Errorf("%w: category %s: invalid kind %q", common.ErrDataCorruption, c.ID, kind)
	}
	c.Name = name
	c.Kind = CategoryKind(kind)
	c.Color, _ = syncable.OptionalString(doc, "color")
	return nil
}
