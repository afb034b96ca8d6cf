package reports

import (
	"context"
	"sort"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"github.com/shopspring/decimal"
)

type ProfitLossLine struct {
	AccountId int             `json:"account_id"`
	Code      string          `json:"code"`
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
}

type ProfitLoss struct {
	FromDate     time.Time        `json:"from_date"`
	ToDate       time.Time        `json:"to_date"`
	Income       []ProfitLossLine `json:"income"`
	Expenses     []ProfitLossLine `json:"expenses"`
	TotalIncome  decimal.Decimal  `json:"total_income"`
	TotalExpense decimal.Decimal  `json:"total_expense"`
	NetProfit    decimal.Decimal  `json:"net_profit"`
	// ProfitMargin is NetProfit as a percentage of TotalIncome, zero when
	// there is no revenue in the period.
	ProfitMargin decimal.Decimal `json:"profit_margin"`
}

// BuildProfitLoss reports income and expense movement over the period.
// Income lines are credit-positive, expense lines debit-positive; contra
// movement shows up as a negative line rather than being dropped.
func BuildProfitLoss(ctx context.Context, ds Datasource, from, to time.Time) (*ProfitLoss, error) {
	if to.IsZero() {
		to = time.Now()
	}
	if from.IsZero() {
		from = FiscalYearStart(to)
	}

	accounts, err := ds.QueryAccounts(ctx, models.AccountFilter{
		MainTypes: []models.AccountMainType{models.AccountMainTypeIncome, models.AccountMainTypeExpense},
	})
	if err != nil {
		return nil, err
	}
	totals, err := accountTotals(ctx, ds, from, to)
	if err != nil {
		return nil, err
	}

	report := &ProfitLoss{FromDate: from, ToDate: to}
	for _, account := range accounts {
		bucket, ok := totals[account.ID]
		if !ok {
			continue
		}
		line := ProfitLossLine{AccountId: account.ID, Code: account.Code, Name: account.Name}
		switch account.MainType {
		case models.AccountMainTypeIncome:
			line.Amount = bucket.Credit.Sub(bucket.Debit)
			report.Income = append(report.Income, line)
			report.TotalIncome = report.TotalIncome.Add(line.Amount)
		case models.AccountMainTypeExpense:
			line.Amount = bucket.Debit.Sub(bucket.Credit)
			report.Expenses = append(report.Expenses, line)
			report.TotalExpense = report.TotalExpense.Add(line.Amount)
		}
	}

	sortLines(report.Income)
	sortLines(report.Expenses)

	report.NetProfit = report.TotalIncome.Sub(report.TotalExpense)
	if !report.TotalIncome.IsZero() {
		report.ProfitMargin = report.NetProfit.Div(report.TotalIncome).Mul(decimal.NewFromInt(100)).Round(2)
	}
	return report, nil
}

func sortLines(lines []ProfitLossLine) {
	sort.Slice(lines, func(i, j int) bool {
		if lines[i].Code != lines[j].Code {
			return lines[i].Code < lines[j].Code
		}
		return lines[i].Name < lines[j].Name
	})
}
