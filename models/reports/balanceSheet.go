package reports

import (
	"context"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"github.com/shopspring/decimal"
)

type BalanceSheetLine struct {
	AccountId int             `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

type BalanceSheet struct {
	AsOfDate    time.Time          `json:"as_of_date"`
	Assets      []BalanceSheetLine `json:"assets"`
	Liabilities []BalanceSheetLine `json:"liabilities"`
	Equity      []BalanceSheetLine `json:"equity"`
	// RetainedEarnings is the lifetime net profit up to AsOfDate, carried
	// into equity so the sheet balances without a closing entry.
	RetainedEarnings decimal.Decimal `json:"retained_earnings"`
	TotalAssets      decimal.Decimal `json:"total_assets"`
	TotalLiabilities decimal.Decimal `json:"total_liabilities"`
	TotalEquity      decimal.Decimal `json:"total_equity"`
	// BalanceCheck is true when assets equal liabilities plus equity within
	// a 0.01 rounding tolerance.
	BalanceCheck bool `json:"balance_check"`
}

var balanceTolerance = decimal.NewFromFloat(0.01)

// BuildBalanceSheet reports financial position as of a date. Asset balances
// are debit-positive; liability and equity balances are credit-positive.
func BuildBalanceSheet(ctx context.Context, ds Datasource, asOf time.Time) (*BalanceSheet, error) {
	if asOf.IsZero() {
		asOf = time.Now()
	}

	accounts, err := ds.QueryAccounts(ctx, models.AccountFilter{})
	if err != nil {
		return nil, err
	}
	totals, err := accountTotals(ctx, ds, time.Time{}, asOf)
	if err != nil {
		return nil, err
	}

	report := &BalanceSheet{AsOfDate: asOf}
	for _, account := range accounts {
		var debit, credit decimal.Decimal
		if bucket, ok := totals[account.ID]; ok {
			debit, credit = bucket.Debit, bucket.Credit
		}

		line := BalanceSheetLine{AccountId: account.ID, Code: account.Code, Name: account.Name}
		switch account.MainType {
		case models.AccountMainTypeAsset:
			line.Amount = account.OpeningBalance.Add(debit).Sub(credit)
			if line.Amount.IsZero() {
				continue
			}
			report.Assets = append(report.Assets, line)
			report.TotalAssets = report.TotalAssets.Add(line.Amount)
		case models.AccountMainTypeLiability:
			line.Amount = account.OpeningBalance.Add(credit).Sub(debit)
			if line.Amount.IsZero() {
				continue
			}
			report.Liabilities = append(report.Liabilities, line)
			report.TotalLiabilities = report.TotalLiabilities.Add(line.Amount)
		case models.AccountMainTypeEquity:
			line.Amount = account.OpeningBalance.Add(credit).Sub(debit)
			if line.Amount.IsZero() {
				continue
			}
			report.Equity = append(report.Equity, line)
			report.TotalEquity = report.TotalEquity.Add(line.Amount)
		case models.AccountMainTypeIncome:
			report.RetainedEarnings = report.RetainedEarnings.Add(credit.Sub(debit))
		case models.AccountMainTypeExpense:
			report.RetainedEarnings = report.RetainedEarnings.Sub(debit.Sub(credit))
		}
	}

	report.TotalEquity = report.TotalEquity.Add(report.RetainedEarnings)
	diff := report.TotalAssets.Sub(report.TotalLiabilities.Add(report.TotalEquity)).Abs()
	report.BalanceCheck = diff.LessThan(balanceTolerance)
	return report, nil
}
