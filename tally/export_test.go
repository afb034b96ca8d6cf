package tally

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"github.com/shopspring/decimal"
)

func exportTestStore(t *testing.T) *fakeStore {
	t.Helper()
	store := newFakeStore()
	active := true
	guid := "guid-cash"
	for _, account := range []*models.Account{
		{Name: "Cash", MainType: models.AccountMainTypeAsset, Code: "10001", OpeningBalance: decimal.NewFromInt(1000), TallyGUID: &guid, IsActive: &active},
		{Name: "Consultation Fees", MainType: models.AccountMainTypeIncome, Code: "40001", IsActive: &active},
	} {
		if err := store.UpsertAccount(context.Background(), account); err != nil {
			t.Fatal(err)
		}
	}

	voucher := &models.Voucher{
		VoucherType:   "Receipt",
		VoucherNumber: "RCT-1",
		VoucherDate:   time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC),
		TotalAmount:   decimal.NewFromInt(500),
	}
	if err := store.UpsertVoucher(context.Background(), voucher); err != nil {
		t.Fatal(err)
	}
	err := store.ReplaceVoucherEntries(context.Background(), voucher.ID, []models.VoucherEntry{
		{AccountId: 1, LedgerName: "Cash", Amount: decimal.NewFromInt(500), IsDebit: true},
		{AccountId: 2, LedgerName: "Consultation Fees", Amount: decimal.NewFromInt(500), IsDebit: false},
	})
	if err != nil {
		t.Fatal(err)
	}
	return store
}

func TestExportTrialBalanceCSV(t *testing.T) {
	data, contentType, err := ExportData(context.Background(), exportTestStore(t), ExportRequest{
		ExportType: models.ExportTypeTrialBalance,
		Format:     models.ExportFormatCSV,
		FromDate:   "2025-04-01",
		ToDate:     "2025-06-30",
	})
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "text/csv" {
		t.Errorf("content type = %q", contentType)
	}

	out := string(data)
	for _, want := range []string{"Trial Balance", "From,2025-04-01", "Code,Account,Type,Opening,Debit,Credit,Closing", "Cash", "Total"} {
		if !strings.Contains(out, want) {
			t.Errorf("csv missing %q:\n%s", want, out)
		}
	}
}

func TestExportLedgersJSON(t *testing.T) {
	data, contentType, err := ExportData(context.Background(), exportTestStore(t), ExportRequest{
		ExportType: models.ExportTypeLedgers,
		Format:     models.ExportFormatJSON,
	})
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "application/json" {
		t.Errorf("content type = %q", contentType)
	}

	var accounts []models.Account
	if err := json.Unmarshal(data, &accounts); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(accounts) != 2 {
		t.Errorf("accounts = %d, want 2", len(accounts))
	}
}

func TestExportVouchersXML(t *testing.T) {
	data, contentType, err := ExportData(context.Background(), exportTestStore(t), ExportRequest{
		ExportType: models.ExportTypeVouchers,
		Format:     models.ExportFormatXML,
	})
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "application/xml" {
		t.Errorf("content type = %q", contentType)
	}

	out := string(data)
	if !strings.HasPrefix(out, "<ENVELOPE>") {
		t.Errorf("xml must be an envelope: %s", out)
	}
	if !strings.Contains(out, "<ROW>") || !strings.Contains(out, "RCT-1") {
		t.Errorf("xml missing voucher row: %s", out)
	}

	// Must round-trip through our own decoder.
	if _, err := DecodeEnvelope(out); err != nil {
		t.Errorf("generated xml must decode: %v", err)
	}
}

func TestExportTrialBalanceXMLIncludesTotals(t *testing.T) {
	data, _, err := ExportData(context.Background(), exportTestStore(t), ExportRequest{
		ExportType: models.ExportTypeTrialBalance,
		Format:     models.ExportFormatXML,
		FromDate:   "2025-04-01",
		ToDate:     "2025-06-30",
	})
	if err != nil {
		t.Fatal(err)
	}

	doc, err := DecodeEnvelope(string(data))
	if err != nil {
		t.Fatalf("generated xml must decode: %v", err)
	}
	totalsRow := asMap(dig(doc, "BODY", "DATA", "REPORT", "TOTALS", "ROW"))
	if totalsRow == nil {
		t.Fatalf("xml missing totals row:\n%s", data)
	}
	if asString(totalsRow["ACCOUNT"]) != "Total" {
		t.Errorf("totals row = %v", totalsRow)
	}
	if asString(totalsRow["DEBIT"]) != "500" || asString(totalsRow["CREDIT"]) != "500" {
		t.Errorf("totals debit/credit = %q/%q, want 500/500", asString(totalsRow["DEBIT"]), asString(totalsRow["CREDIT"]))
	}
}

func TestExportProfitLossExcel(t *testing.T) {
	data, contentType, err := ExportData(context.Background(), exportTestStore(t), ExportRequest{
		ExportType: models.ExportTypeProfitLoss,
		Format:     models.ExportFormatExcel,
	})
	if err != nil {
		t.Fatal(err)
	}
	if contentType != "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet" {
		t.Errorf("content type = %q", contentType)
	}
	if !bytes.HasPrefix(data, []byte("PK")) {
		t.Error("xlsx output must be a zip archive")
	}
}

func TestExportBadInputs(t *testing.T) {
	store := exportTestStore(t)

	if _, _, err := ExportData(context.Background(), store, ExportRequest{
		ExportType: "nonsense", Format: models.ExportFormatJSON,
	}); err == nil {
		t.Error("unknown export type must fail")
	}
	if _, _, err := ExportData(context.Background(), store, ExportRequest{
		ExportType: models.ExportTypeLedgers, Format: "nonsense",
	}); err == nil {
		t.Error("unknown format must fail")
	}
	if _, _, err := ExportData(context.Background(), store, ExportRequest{
		ExportType: models.ExportTypeVouchers, Format: models.ExportFormatCSV, FromDate: "04/01/2025",
	}); err == nil {
		t.Error("bad date must fail")
	}
}
