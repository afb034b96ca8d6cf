package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Account is one row of the internal chart of accounts. Rows mirrored from
// Tally carry the external GUID; a nil GUID means the account was created
// locally and has never been synced.
type Account struct {
	ID             int             `gorm:"primary_key" json:"id"`
	Name           string          `gorm:"uniqueIndex;size:255;not null" json:"name"`
	MainType       AccountMainType `gorm:"type:enum('Asset','Liability','Equity','Income','Expense');default:'Asset';index;size:10;not null" json:"main_type"`
	Code           string          `gorm:"index;size:10" json:"code"`
	ParentGroup    string          `gorm:"size:100" json:"parent_group"`
	OpeningBalance decimal.Decimal `gorm:"type:decimal(20,5)" json:"opening_balance"`
	TallyGUID      *string         `gorm:"uniqueIndex;size:64" json:"tally_guid"`
	MetadataJSON   []byte          `gorm:"type:json" json:"metadata"`
	IsActive       *bool           `gorm:"not null;default:true" json:"is_active"`
	CreatedAt      time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt      time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerGroup is a ledger-classification master imported from Tally
// (e.g. "Sundry Debtors" under "Current Assets"). The mapper consults it
// when a ledger's direct parent is not in the fixed lookup table.
type LedgerGroup struct {
	ID        int       `gorm:"primary_key" json:"id"`
	Name      string    `gorm:"uniqueIndex;size:100;not null" json:"name"`
	Parent    string    `gorm:"size:100" json:"parent"`
	TallyGUID *string   `gorm:"uniqueIndex;size:64" json:"tally_guid"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// AccountFilter narrows QueryAccounts. Zero values mean "no restriction".
type AccountFilter struct {
	MainTypes  []AccountMainType
	SyncedOnly bool
}
