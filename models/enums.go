package models

import (
	"database/sql/driver"
	"errors"
	"fmt"
)

type AccountMainType string

const (
	AccountMainTypeAsset     AccountMainType = "Asset"
	AccountMainTypeLiability AccountMainType = "Liability"
	AccountMainTypeEquity    AccountMainType = "Equity"
	AccountMainTypeIncome    AccountMainType = "Income"
	AccountMainTypeExpense   AccountMainType = "Expense"
)

func (t *AccountMainType) Scan(value interface{}) error {
	switch v := value.(type) {
	case []byte:
		*t = AccountMainType(v)
	case string:
		*t = AccountMainType(v)
	default:
		return fmt.Errorf("unsupported account main type value: %v", value)
	}
	return nil
}

func (t AccountMainType) Value() (driver.Value, error) {
	return string(t), nil
}

type SyncType string

const (
	SyncTypeLedgers  SyncType = "ledgers"
	SyncTypeVouchers SyncType = "vouchers"
	SyncTypeMasters  SyncType = "masters"
)

func ParseSyncType(s string) (SyncType, error) {
	switch SyncType(s) {
	case SyncTypeLedgers, SyncTypeVouchers, SyncTypeMasters:
		return SyncType(s), nil
	}
	return "", errors.New("invalid sync type")
}

const (
	SyncStatusInProgress = "in_progress"
	SyncStatusCompleted  = "completed"
	SyncStatusFailed     = "failed"
)

type ExportType string

const (
	ExportTypeVouchers     ExportType = "vouchers"
	ExportTypeLedgers      ExportType = "ledgers"
	ExportTypeTrialBalance ExportType = "trial_balance"
	ExportTypeProfitLoss   ExportType = "profit_loss"
	ExportTypeBalanceSheet ExportType = "balance_sheet"
)

type ExportFormat string

const (
	ExportFormatXML   ExportFormat = "xml"
	ExportFormatJSON  ExportFormat = "json"
	ExportFormatCSV   ExportFormat = "csv"
	ExportFormatExcel ExportFormat = "excel"
)
