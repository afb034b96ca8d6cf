package reports

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"github.com/shopspring/decimal"
)

// Datasource is the slice of the ledger store the report generators need.
type Datasource interface {
	QueryAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error)
	QueryEntries(ctx context.Context, filter models.EntryFilter) ([]models.EntryRow, error)
}

// FiscalYearStart returns April 1 of the fiscal year containing t.
func FiscalYearStart(t time.Time) time.Time {
	year := t.Year()
	if t.Month() < time.April {
		year--
	}
	return time.Date(year, time.April, 1, 0, 0, 0, 0, t.Location())
}

type TrialBalanceRow struct {
	AccountId int                    `json:"account_id"`
	Code      string                 `json:"code"`
	Name      string                 `json:"name"`
	MainType  models.AccountMainType `json:"main_type"`
	Opening   decimal.Decimal        `json:"opening"`
	Debit     decimal.Decimal        `json:"debit"`
	Credit    decimal.Decimal        `json:"credit"`
	Closing   decimal.Decimal        `json:"closing"`
}

type TrialBalance struct {
	FromDate    time.Time         `json:"from_date"`
	ToDate      time.Time         `json:"to_date"`
	Rows        []TrialBalanceRow `json:"rows"`
	TotalDebit  decimal.Decimal   `json:"total_debit"`
	TotalCredit decimal.Decimal   `json:"total_credit"`
}

// accountTotals sums entry amounts per account into debit/credit buckets.
func accountTotals(ctx context.Context, ds Datasource, from, to time.Time) (map[int]*struct{ Debit, Credit decimal.Decimal }, error) {
	entries, err := ds.QueryEntries(ctx, models.EntryFilter{FromDate: from, ToDate: to})
	if err != nil {
		return nil, err
	}
	totals := map[int]*struct{ Debit, Credit decimal.Decimal }{}
	for _, entry := range entries {
		bucket, ok := totals[entry.AccountId]
		if !ok {
			bucket = &struct{ Debit, Credit decimal.Decimal }{}
			totals[entry.AccountId] = bucket
		}
		if entry.IsDebit {
			bucket.Debit = bucket.Debit.Add(entry.Amount)
		} else {
			bucket.Credit = bucket.Credit.Add(entry.Amount)
		}
	}
	return totals, nil
}

// BuildTrialBalance lists every account with its period movement and closing
// balance, dormant accounts included. A zero from-date defaults to the
// fiscal year start; a zero to-date means today. Closing is computed
// debit-positive for every account so the debit and credit columns foot to
// the same total.
func BuildTrialBalance(ctx context.Context, ds Datasource, from, to time.Time) (*TrialBalance, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = FiscalYearStart(to)
	}

	accounts, err := ds.QueryAccounts(ctx, models.AccountFilter{})
	if err != nil {
		return nil, err
	}
	totals, err := accountTotals(ctx, ds, from, to)
	if err != nil {
		return nil, err
	}

	report := &TrialBalance{FromDate: from, ToDate: to}
	for _, account := range accounts {
		var debit, credit decimal.Decimal
		if bucket, ok := totals[account.ID]; ok {
			debit, credit = bucket.Debit, bucket.Credit
		}
		report.Rows = append(report.Rows, TrialBalanceRow{
			AccountId: account.ID,
			Code:      account.Code,
			Name:      account.Name,
			MainType:  account.MainType,
			Opening:   account.OpeningBalance,
			Debit:     debit,
			Credit:    credit,
			Closing:   account.OpeningBalance.Add(debit).Sub(credit),
		})
		report.TotalDebit = report.TotalDebit.Add(debit)
		report.TotalCredit = report.TotalCredit.Add(credit)
	}

	sort.Slice(report.Rows, func(i, j int) bool {
		if report.Rows[i].Code != report.Rows[j].Code {
			return report.Rows[i].Code < report.Rows[j].Code
		}
		return report.Rows[i].Name < report.Rows[j].Name
	})
	return report, nil
}
