package tally

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"bitbucket.org/synergymed/hims_backend/models/reports"
	"github.com/xuri/excelize/v2"
)

const exportDateLayout = "2006-01-02"

// exportDocument is the format-neutral shape every export type is reduced
// to before rendering. Payload drives the JSON rendering; the tabular
// fields drive CSV and Excel; XML is rebuilt from header+rows.
type exportDocument struct {
	Title   string
	Meta    [][]string
	Header  []string
	Rows    [][]string
	Totals  [][]string
	Payload any
}

// ExportData renders one export in the requested format and returns the
// bytes plus their content type.
func ExportData(ctx context.Context, store models.LedgerStore, req ExportRequest) ([]byte, string, error) {
	from, to, err := parseExportWindow(req.FromDate, req.ToDate)
	if err != nil {
		return nil, "", err
	}

	doc, err := buildExportDocument(ctx, store, req.ExportType, from, to)
	if err != nil {
		return nil, "", err
	}

	switch req.Format {
	case models.ExportFormatJSON:
		data, err := json.MarshalIndent(doc.Payload, "", "  ")
		return data, "application/json", err
	case models.ExportFormatXML:
		return []byte(renderExportXML(doc)), "application/xml", nil
	case models.ExportFormatCSV:
		data, err := renderExportCSV(doc)
		return data, "text/csv", err
	case models.ExportFormatExcel:
		data, err := renderExportExcel(doc)
		return data, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", err
	}
	return nil, "", fmt.Errorf("unknown export format %q", req.Format)
}

func parseExportWindow(fromStr, toStr string) (time.Time, time.Time, error) {
	var from, to time.Time
	var err error
	if fromStr != "" {
		if from, err = time.Parse(exportDateLayout, fromStr); err != nil {
			return from, to, fmt.Errorf("bad fromDate %q, want YYYY-MM-DD", fromStr)
		}
	}
	if toStr != "" {
		if to, err = time.Parse(exportDateLayout, toStr); err != nil {
			return from, to, fmt.Errorf("bad toDate %q, want YYYY-MM-DD", toStr)
		}
	}
	return from, to, nil
}

func buildExportDocument(ctx context.Context, store models.LedgerStore, exportType models.ExportType, from, to time.Time) (*exportDocument, error) {
	switch exportType {
	case models.ExportTypeLedgers:
		return ledgersDocument(ctx, store)
	case models.ExportTypeVouchers:
		return vouchersDocument(ctx, store, from, to)
	case models.ExportTypeTrialBalance:
		report, err := reports.BuildTrialBalance(ctx, store, from, to)
		if err != nil {
			return nil, err
		}
		return trialBalanceDocument(report), nil
	case models.ExportTypeProfitLoss:
		report, err := reports.BuildProfitLoss(ctx, store, from, to)
		if err != nil {
			return nil, err
		}
		return profitLossDocument(report), nil
	case models.ExportTypeBalanceSheet:
		asOf := to
		if asOf.IsZero() {
			asOf = time.Now()
		}
		report, err := reports.BuildBalanceSheet(ctx, store, asOf)
		if err != nil {
			return nil, err
		}
		return balanceSheetDocument(report), nil
	}
	return nil, fmt.Errorf("unknown export type %q", exportType)
}

func ledgersDocument(ctx context.Context, store models.LedgerStore) (*exportDocument, error) {
	accounts, err := store.QueryAccounts(ctx, models.AccountFilter{})
	if err != nil {
		return nil, err
	}
	doc := &exportDocument{
		Title:   "Chart of Accounts",
		Header:  []string{"Code", "Name", "Type", "Parent Group", "Opening Balance", "Tally GUID"},
		Payload: accounts,
	}
	for _, account := range accounts {
		guid := ""
		if account.TallyGUID != nil {
			guid = *account.TallyGUID
		}
		doc.Rows = append(doc.Rows, []string{
			account.Code, account.Name, string(account.MainType),
			account.ParentGroup, account.OpeningBalance.String(), guid,
		})
	}
	return doc, nil
}

func vouchersDocument(ctx context.Context, store models.LedgerStore, from, to time.Time) (*exportDocument, error) {
	vouchers, err := store.QueryVouchers(ctx, models.VoucherFilter{FromDate: from, ToDate: to})
	if err != nil {
		return nil, err
	}
	doc := &exportDocument{
		Title:   "Vouchers",
		Meta:    windowMeta(from, to),
		Header:  []string{"Date", "Type", "Number", "Narration", "Amount", "Tally GUID"},
		Payload: vouchers,
	}
	for _, voucher := range vouchers {
		guid := ""
		if voucher.TallyGUID != nil {
			guid = *voucher.TallyGUID
		}
		doc.Rows = append(doc.Rows, []string{
			voucher.VoucherDate.Format(exportDateLayout), voucher.VoucherType,
			voucher.VoucherNumber, voucher.Narration, voucher.TotalAmount.String(), guid,
		})
	}
	return doc, nil
}

func trialBalanceDocument(report *reports.TrialBalance) *exportDocument {
	doc := &exportDocument{
		Title:   "Trial Balance",
		Meta:    windowMeta(report.FromDate, report.ToDate),
		Header:  []string{"Code", "Account", "Type", "Opening", "Debit", "Credit", "Closing"},
		Payload: report,
	}
	for _, row := range report.Rows {
		doc.Rows = append(doc.Rows, []string{
			row.Code, row.Name, string(row.MainType), row.Opening.String(),
			row.Debit.String(), row.Credit.String(), row.Closing.String(),
		})
	}
	doc.Totals = [][]string{
		{"", "Total", "", "", report.TotalDebit.String(), report.TotalCredit.String(), ""},
	}
	return doc
}

func profitLossDocument(report *reports.ProfitLoss) *exportDocument {
	doc := &exportDocument{
		Title:   "Profit and Loss",
		Meta:    windowMeta(report.FromDate, report.ToDate),
		Header:  []string{"Section", "Code", "Account", "Amount"},
		Payload: report,
	}
	for _, line := range report.Income {
		doc.Rows = append(doc.Rows, []string{"Income", line.Code, line.Name, line.Amount.String()})
	}
	for _, line := range report.Expenses {
		doc.Rows = append(doc.Rows, []string{"Expense", line.Code, line.Name, line.Amount.String()})
	}
	doc.Totals = [][]string{
		{"", "", "Total Income", report.TotalIncome.String()},
		{"", "", "Total Expense", report.TotalExpense.String()},
		{"", "", "Net Profit", report.NetProfit.String()},
		{"", "", "Profit Margin %", report.ProfitMargin.String()},
	}
	return doc
}

func balanceSheetDocument(report *reports.BalanceSheet) *exportDocument {
	doc := &exportDocument{
		Title:   "Balance Sheet",
		Meta:    [][]string{{"As of", report.AsOfDate.Format(exportDateLayout)}},
		Header:  []string{"Section", "Code", "Account", "Amount"},
		Payload: report,
	}
	for _, line := range report.Assets {
		doc.Rows = append(doc.Rows, []string{"Assets", line.Code, line.Name, line.Amount.String()})
	}
	for _, line := range report.Liabilities {
		doc.Rows = append(doc.Rows, []string{"Liabilities", line.Code, line.Name, line.Amount.String()})
	}
	for _, line := range report.Equity {
		doc.Rows = append(doc.Rows, []string{"Equity", line.Code, line.Name, line.Amount.String()})
	}
	doc.Rows = append(doc.Rows, []string{"Equity", "", "Retained Earnings", report.RetainedEarnings.String()})
	doc.Totals = [][]string{
		{"", "", "Total Assets", report.TotalAssets.String()},
		{"", "", "Total Liabilities", report.TotalLiabilities.String()},
		{"", "", "Total Equity", report.TotalEquity.String()},
		{"", "", "Balanced", fmt.Sprintf("%v", report.BalanceCheck)},
	}
	return doc
}

func windowMeta(from, to time.Time) [][]string {
	var meta [][]string
	if !from.IsZero() {
		meta = append(meta, []string{"From", from.Format(exportDateLayout)})
	}
	if !to.IsZero() {
		meta = append(meta, []string{"To", to.Format(exportDateLayout)})
	}
	return meta
}

// renderExportXML rebuilds the document as an envelope: one ROW element per
// line with header-derived child tags, totals under a TOTALS element.
func renderExportXML(doc *exportDocument) string {
	report := map[string]any{
		"TITLE": doc.Title,
		"ROW":   xmlRowObjects(doc.Header, doc.Rows),
	}
	for _, meta := range doc.Meta {
		if len(meta) == 2 {
			report[columnTag(meta[0])] = meta[1]
		}
	}
	if len(doc.Totals) > 0 {
		report["TOTALS"] = map[string]any{
			"ROW": xmlRowObjects(doc.Header, doc.Totals),
		}
	}
	return EncodeEnvelope(map[string]any{
		"BODY": map[string]any{
			"DATA": map[string]any{"REPORT": report},
		},
	})
}

// xmlRowObjects maps tabular rows to tag/value objects, dropping blank cells
// so padding columns don't become empty tags.
func xmlRowObjects(header []string, rows [][]string) []any {
	out := make([]any, 0, len(rows))
	for _, row := range rows {
		obj := map[string]any{}
		for i, column := range header {
			if i < len(row) && row[i] != "" {
				obj[columnTag(column)] = row[i]
			}
		}
		out = append(out, obj)
	}
	return out
}

func columnTag(column string) string {
	var out []rune
	for _, r := range column {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		}
	}
	if len(out) == 0 {
		return "FIELD"
	}
	return string(out)
}

// renderExportCSV writes the title and metadata as leading sections, then
// the header, the rows and the totals, separated by blank lines.
func renderExportCSV(doc *exportDocument) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	if err := w.Write([]string{doc.Title}); err != nil {
		return nil, err
	}
	for _, meta := range doc.Meta {
		if err := w.Write(meta); err != nil {
			return nil, err
		}
	}
	if err := w.Write(nil); err != nil {
		return nil, err
	}
	if err := w.Write(doc.Header); err != nil {
		return nil, err
	}
	for _, row := range doc.Rows {
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	if len(doc.Totals) > 0 {
		if err := w.Write(nil); err != nil {
			return nil, err
		}
		for _, row := range doc.Totals {
			if err := w.Write(row); err != nil {
				return nil, err
			}
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

func renderExportExcel(doc *exportDocument) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	const sheet = "Sheet1"
	rowIdx := 1
	writeRow := func(values []string) error {
		for colIdx, value := range values {
			cell, err := excelize.CoordinatesToCellName(colIdx+1, rowIdx)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, value); err != nil {
				return err
			}
		}
		rowIdx++
		return nil
	}

	if err := writeRow([]string{doc.Title}); err != nil {
		return nil, err
	}
	for _, meta := range doc.Meta {
		if err := writeRow(meta); err != nil {
			return nil, err
		}
	}
	rowIdx++
	if err := writeRow(doc.Header); err != nil {
		return nil, err
	}
	for _, row := range doc.Rows {
		if err := writeRow(row); err != nil {
			return nil, err
		}
	}
	if len(doc.Totals) > 0 {
		rowIdx++
		for _, row := range doc.Totals {
			if err := writeRow(row); err != nil {
				return nil, err
			}
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
