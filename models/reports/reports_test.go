package reports

import (
	"context"
	"testing"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"github.com/shopspring/decimal"
)

type fakeDatasource struct {
	accounts []models.Account
	entries  []models.EntryRow
}

func (f *fakeDatasource) QueryAccounts(ctx context.Context, filter models.AccountFilter) ([]models.Account, error) {
	var out []models.Account
	for _, account := range f.accounts {
		if len(filter.MainTypes) > 0 {
			match := false
			for _, mainType := range filter.MainTypes {
				if account.MainType == mainType {
					match = true
				}
			}
			if !match {
				continue
			}
		}
		out = append(out, account)
	}
	return out, nil
}

func (f *fakeDatasource) QueryEntries(ctx context.Context, filter models.EntryFilter) ([]models.EntryRow, error) {
	var out []models.EntryRow
	for _, entry := range f.entries {
		if !filter.FromDate.IsZero() && entry.Date.Before(filter.FromDate) {
			continue
		}
		if !filter.ToDate.IsZero() && entry.Date.After(filter.ToDate) {
			continue
		}
		out = append(out, entry)
	}
	return out, nil
}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var reportDate = time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

func TestFiscalYearStart(t *testing.T) {
	cases := []struct {
		in   time.Time
		want time.Time
	}{
		{time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC), time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), time.Date(2024, time.April, 1, 0, 0, 0, 0, time.UTC)},
		{time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC), time.Date(2025, time.April, 1, 0, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		if got := FiscalYearStart(tc.in); !got.Equal(tc.want) {
			t.Errorf("FiscalYearStart(%s) = %s, want %s", tc.in, got, tc.want)
		}
	}
}

func TestBuildTrialBalance(t *testing.T) {
	ds := &fakeDatasource{
		accounts: []models.Account{
			{ID: 1, Code: "10001", Name: "Cash", MainType: models.AccountMainTypeAsset, OpeningBalance: dec("1000")},
			{ID: 2, Code: "40001", Name: "Consultation Fees", MainType: models.AccountMainTypeIncome},
			{ID: 3, Code: "50001", Name: "Medical Supplies", MainType: models.AccountMainTypeExpense},
			{ID: 4, Code: "10002", Name: "Dormant", MainType: models.AccountMainTypeAsset},
		},
		entries: []models.EntryRow{
			{AccountId: 1, Amount: dec("500"), IsDebit: true, Date: reportDate},
			{AccountId: 1, Amount: dec("200"), IsDebit: false, Date: reportDate},
			{AccountId: 2, Amount: dec("500"), IsDebit: false, Date: reportDate},
			{AccountId: 3, Amount: dec("200"), IsDebit: true, Date: reportDate},
		},
	}

	report, err := BuildTrialBalance(context.Background(), ds, time.Time{}, reportDate)
	if err != nil {
		t.Fatal(err)
	}
	if !report.FromDate.Equal(FiscalYearStart(reportDate)) {
		t.Errorf("default from date = %s, want fiscal year start", report.FromDate)
	}

	if len(report.Rows) != 4 {
		t.Fatalf("rows = %d, want every account including the dormant one", len(report.Rows))
	}
	var cash, dormant *TrialBalanceRow
	for i := range report.Rows {
		switch report.Rows[i].Name {
		case "Cash":
			cash = &report.Rows[i]
		case "Dormant":
			dormant = &report.Rows[i]
		}
	}
	if cash == nil {
		t.Fatal("Cash row missing")
	}
	if dormant == nil {
		t.Fatal("dormant accounts must still be listed")
	}
	if !dormant.Closing.IsZero() || !dormant.Debit.IsZero() || !dormant.Credit.IsZero() {
		t.Errorf("dormant row = %+v, want all-zero movement", dormant)
	}
	if !cash.Closing.Equal(dec("1300")) {
		t.Errorf("Cash closing = %s, want 1300 (1000 + 500 - 200)", cash.Closing)
	}
	if !report.TotalDebit.Equal(dec("700")) || !report.TotalCredit.Equal(dec("700")) {
		t.Errorf("totals = %s/%s, want 700/700", report.TotalDebit, report.TotalCredit)
	}
}

func TestBuildProfitLoss(t *testing.T) {
	ds := &fakeDatasource{
		accounts: []models.Account{
			{ID: 1, Code: "10001", Name: "Cash", MainType: models.AccountMainTypeAsset},
			{ID: 2, Code: "40001", Name: "Consultation Fees", MainType: models.AccountMainTypeIncome},
			{ID: 3, Code: "50001", Name: "Medical Supplies", MainType: models.AccountMainTypeExpense},
		},
		entries: []models.EntryRow{
			{AccountId: 2, Amount: dec("1000"), IsDebit: false, Date: reportDate},
			{AccountId: 3, Amount: dec("400"), IsDebit: true, Date: reportDate},
			// Asset movement must not leak into the P&L.
			{AccountId: 1, Amount: dec("600"), IsDebit: true, Date: reportDate},
		},
	}

	report, err := BuildProfitLoss(context.Background(), ds, time.Time{}, reportDate)
	if err != nil {
		t.Fatal(err)
	}
	if len(report.Income) != 1 || len(report.Expenses) != 1 {
		t.Fatalf("lines = %d income / %d expense, want 1/1", len(report.Income), len(report.Expenses))
	}
	if !report.NetProfit.Equal(dec("600")) {
		t.Errorf("net profit = %s, want 600", report.NetProfit)
	}
	if !report.ProfitMargin.Equal(dec("60")) {
		t.Errorf("margin = %s, want 60", report.ProfitMargin)
	}
}

func TestBuildProfitLossZeroRevenue(t *testing.T) {
	ds := &fakeDatasource{
		accounts: []models.Account{
			{ID: 1, Code: "50001", Name: "Medical Supplies", MainType: models.AccountMainTypeExpense},
		},
		entries: []models.EntryRow{
			{AccountId: 1, Amount: dec("400"), IsDebit: true, Date: reportDate},
		},
	}

	report, err := BuildProfitLoss(context.Background(), ds, time.Time{}, reportDate)
	if err != nil {
		t.Fatal(err)
	}
	if !report.NetProfit.Equal(dec("-400")) {
		t.Errorf("net profit = %s, want -400", report.NetProfit)
	}
	if !report.ProfitMargin.IsZero() {
		t.Errorf("margin with zero revenue = %s, want 0", report.ProfitMargin)
	}
}

func TestBuildBalanceSheet(t *testing.T) {
	ds := &fakeDatasource{
		accounts: []models.Account{
			{ID: 1, Code: "10001", Name: "Cash", MainType: models.AccountMainTypeAsset},
			{ID: 2, Code: "30001", Name: "Owner Capital", MainType: models.AccountMainTypeEquity},
			{ID: 3, Code: "40001", Name: "Consultation Fees", MainType: models.AccountMainTypeIncome},
			{ID: 4, Code: "20001", Name: "TDS Payable", MainType: models.AccountMainTypeLiability},
		},
		entries: []models.EntryRow{
			// Capital injection: Dr Cash 1000 / Cr Capital 1000.
			{AccountId: 1, Amount: dec("1000"), IsDebit: true, Date: reportDate},
			{AccountId: 2, Amount: dec("1000"), IsDebit: false, Date: reportDate},
			// Fees earned: Dr Cash 500 / Cr Income 500.
			{AccountId: 1, Amount: dec("500"), IsDebit: true, Date: reportDate},
			{AccountId: 3, Amount: dec("500"), IsDebit: false, Date: reportDate},
		},
	}

	report, err := BuildBalanceSheet(context.Background(), ds, reportDate)
	if err != nil {
		t.Fatal(err)
	}
	if !report.TotalAssets.Equal(dec("1500")) {
		t.Errorf("assets = %s, want 1500", report.TotalAssets)
	}
	if !report.RetainedEarnings.Equal(dec("500")) {
		t.Errorf("retained earnings = %s, want 500", report.RetainedEarnings)
	}
	if !report.TotalEquity.Equal(dec("1500")) {
		t.Errorf("equity = %s, want 1500 (1000 capital + 500 retained)", report.TotalEquity)
	}
	if !report.BalanceCheck {
		t.Error("sheet must balance")
	}
}

func TestBuildBalanceSheetDetectsImbalance(t *testing.T) {
	ds := &fakeDatasource{
		accounts: []models.Account{
			{ID: 1, Code: "10001", Name: "Cash", MainType: models.AccountMainTypeAsset},
		},
		entries: []models.EntryRow{
			// A one-sided entry, as left behind by a bad import.
			{AccountId: 1, Amount: dec("750"), IsDebit: true, Date: reportDate},
		},
	}

	report, err := BuildBalanceSheet(context.Background(), ds, reportDate)
	if err != nil {
		t.Fatal(err)
	}
	if report.BalanceCheck {
		t.Error("one-sided books must fail the balance check")
	}
}
