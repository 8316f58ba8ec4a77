package models

import (
	"fmt"

	"github.com/mkorchagin/finsync/internal/common"
	"github.com/mkorchagin/finsync/internal/syncable"
)

// Profile is the identity entity. It is the one type whose queries are not
// scoped by an owner key: its ID equals the user ID it describes.
type Profile struct {
	syncable.Meta
	DisplayName string
	Currency    string
}

func (p *Profile) Collection() string  { return "profiles" }
func (p *Profile) OwnerRequired() bool { return false }

func (p *Profile) EncodeFields(doc syncable.Document) error {
	if p.DisplayName == "" {
		return fmt.Errorf("%w: profile %s: missing displayName", common.ErrDataCorruption, p.ID)
	}
	if p.Currency == "" {
		return fmt.Errorf("%w: profile %s: missing currency", common.ErrDataCorruption, p.ID)
	}
	doc["displayName"] = p.DisplayName
	doc["currency"] = p.Currency
	return nil
}

func (p *Profile) DecodeFields(doc syncable.Document) error {
	name, err := syncable.StringField(doc, "displayName")
	if err != nil {
		return err
	}
	currency, err := syncable.StringField(doc, "currency")
	if err != nil {
		return err
	}
	p.DisplayName = name
	p.Currency = currency
	return nil
}
