package tally

import (
	"strings"
	"testing"

	"bitbucket.org/synergymed/hims_backend/models"
)

func TestMapParentToAccountType(t *testing.T) {
	cases := []struct {
		parent string
		want   models.AccountMainType
		known  bool
	}{
		{"Sundry Debtors", models.AccountMainTypeAsset, true},
		{"Bank Accounts", models.AccountMainTypeAsset, true},
		{"  cash-in-hand  ", models.AccountMainTypeAsset, true},
		{"Sundry Creditors", models.AccountMainTypeLiability, true},
		{"Duties & Taxes", models.AccountMainTypeLiability, true},
		{"Capital Account", models.AccountMainTypeEquity, true},
		{"Sales Accounts", models.AccountMainTypeIncome, true},
		{"Indirect Incomes", models.AccountMainTypeIncome, true},
		{"Purchase Accounts", models.AccountMainTypeExpense, true},
		{"Indirect Expenses", models.AccountMainTypeExpense, true},
		{"Some Custom Group", models.AccountMainTypeAsset, false},
		{"", models.AccountMainTypeAsset, false},
	}

	for _, tc := range cases {
		got, known := MapParentToAccountType(tc.parent)
		if got != tc.want || known != tc.known {
			t.Errorf("MapParentToAccountType(%q) = (%s, %v), want (%s, %v)",
				tc.parent, got, known, tc.want, tc.known)
		}
	}
}

func TestGenerateGLCode(t *testing.T) {
	code := GenerateGLCode("Consultation Fees", "Direct Incomes")
	if len(code) != 5 {
		t.Fatalf("code %q must be 5 digits", code)
	}
	if code[0] != '4' {
		t.Errorf("income code %q must start with 4", code)
	}

	if again := GenerateGLCode("Consultation Fees", "Direct Incomes"); again != code {
		t.Errorf("code must be deterministic: %q vs %q", code, again)
	}

	if liab := GenerateGLCode("TDS Payable", "Duties & Taxes"); liab[0] != '2' {
		t.Errorf("liability code %q must start with 2", liab)
	}
	if asset := GenerateGLCode("Petty Cash", "Cash-in-Hand"); asset[0] != '1' {
		t.Errorf("asset code %q must start with 1", asset)
	}
	// Unknown parents fall back to the Asset classification.
	if unknown := GenerateGLCode("Anything", "No Such Group"); unknown[0] != '1' {
		t.Errorf("unknown-parent code %q must start with 1", unknown)
	}
}

func TestGLCodeStaysFiveDigitsOnHashOverflow(t *testing.T) {
	// Long names overflow the 32-bit rolling hash into negative territory;
	// the suffix must still come out as four non-negative digits.
	for _, name := range []string{
		"zzzzzzzzzz",
		strings.Repeat("Medical Supplies and Consumables ", 4),
		strings.Repeat("\uffff", 8),
	} {
		code := GLCodeForType(models.AccountMainTypeExpense, name)
		if len(code) != 5 {
			t.Fatalf("code %q for %q must be 5 characters", code, name)
		}
		for _, ch := range code {
			if ch < '0' || ch > '9' {
				t.Fatalf("code %q for %q must be all digits", code, name)
			}
		}
	}
}
