package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Voucher is a transaction document (payment, receipt, journal, ...) made of
// ledger entries. Mirrored vouchers carry the Tally GUID; locally authored
// ones that have not been pushed yet have a nil GUID.
type Voucher struct {
	ID            int             `gorm:"primary_key" json:"id"`
	VoucherType   string          `gorm:"index;size:50;not null" json:"voucher_type"`
	VoucherNumber string          `gorm:"index;size:64" json:"voucher_number"`
	VoucherDate   time.Time       `gorm:"index;not null" json:"voucher_date"`
	Narration     string          `gorm:"type:text" json:"narration"`
	TotalAmount   decimal.Decimal `gorm:"type:decimal(20,5)" json:"total_amount"`
	TallyGUID     *string         `gorm:"uniqueIndex;size:64" json:"tally_guid"`
	Entries       []VoucherEntry  `gorm:"foreignKey:VoucherId" json:"entries"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// VoucherEntry is one leg of a voucher. Amount is always the absolute value;
// the debit/credit side lives in IsDebit. The signed wire representation is
// confined to the tally package.
type VoucherEntry struct {
	ID                  int             `gorm:"primary_key" json:"id"`
	VoucherId           int             `gorm:"index;not null" json:"voucher_id"`
	AccountId           int             `gorm:"index;not null" json:"account_id"`
	LedgerName          string          `gorm:"size:255;not null" json:"ledger_name"`
	Amount              decimal.Decimal `gorm:"type:decimal(20,5);not null" json:"amount"`
	IsDebit             bool            `gorm:"not null" json:"is_debit"`
	BillAllocationsJSON []byte          `gorm:"type:json" json:"bill_allocations"`
	CreatedAt           time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

type BillAllocation struct {
	Name     string          `json:"name"`
	BillType string          `json:"bill_type"`
	Amount   decimal.Decimal `json:"amount"`
}

// EntryRow is a voucher entry joined with its voucher date, the shape the
// report generators consume.
type EntryRow struct {
	AccountId int             `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	IsDebit   bool            `json:"is_debit"`
	Date      time.Time       `json:"date"`
}

// EntryFilter narrows QueryEntries. Zero time values mean "unbounded".
type EntryFilter struct {
	AccountId int
	FromDate  time.Time
	ToDate    time.Time
}

// VoucherFilter narrows QueryVouchers.
type VoucherFilter struct {
	FromDate time.Time
	ToDate   time.Time
}
