package tally

import (
	"encoding/json"
	"strings"
	"time"

	"bitbucket.org/synergymed/hims_backend/models"
	"github.com/shopspring/decimal"
)

const wireDateLayout = "20060102"

// TallyLedger is a ledger record as parsed off the wire.
type TallyLedger struct {
	Name           string
	Parent         string
	GUID           string
	Address        string
	Email          string
	Phone          string
	TaxID          string
	OpeningBalance decimal.Decimal
}

// TallyGroup is a ledger-group master record.
type TallyGroup struct {
	Name   string
	Parent string
	GUID   string
}

// TallyVoucher is a voucher record as parsed off the wire. Entry amounts are
// already normalized to absolute value + IsDebit.
type TallyVoucher struct {
	VoucherType string
	Number      string
	Narration   string
	GUID        string
	Date        time.Time
	Amount      decimal.Decimal
	Entries     []TallyVoucherEntry
}

type TallyVoucherEntry struct {
	LedgerName      string
	Amount          decimal.Decimal
	IsDebit         bool
	BillAllocations []models.BillAllocation
}

// ImportRequest is the generic entry point payload: a raw XML document or an
// inline JSON record list, plus the import-type discriminator. The record
// list stays raw here so the worker can decode it per import type.
type ImportRequest struct {
	Type models.SyncType `json:"type" binding:"required"`
	XML  string          `json:"xml"`
	JSON json.RawMessage `json:"json"`
}

// ImportResult is returned synchronously by ImportFromTally. Success is true
// iff no record failed.
type ImportResult struct {
	Success          bool     `json:"success"`
	RecordsProcessed int      `json:"recordsProcessed"`
	RecordsFailed    int      `json:"recordsFailed"`
	Errors           []string `json:"errors"`
}

// ExportRequest is the export surface payload.
type ExportRequest struct {
	ExportType models.ExportType   `json:"exportType" binding:"required"`
	Format     models.ExportFormat `json:"format" binding:"required"`
	FromDate   string              `json:"fromDate"`
	ToDate     string              `json:"toDate"`
}

// ---- request builders ----

func exportEnvelope(company string, staticVars map[string]any, tdl map[string]any) map[string]any {
	desc := map[string]any{}
	vars := map[string]any{
		"SVEXPORTFORMAT": "$$SysName:XML",
	}
	if company != "" {
		vars["SVCURRENTCOMPANY"] = company
	}
	for key, value := range staticVars {
		vars[key] = value
	}
	desc["STATICVARIABLES"] = vars
	if tdl != nil {
		desc["TDL"] = tdl
	}
	return map[string]any{
		"HEADER": map[string]any{"TALLYREQUEST": "Export"},
		"BODY":   map[string]any{"DESC": desc},
	}
}

func collectionTDL(collectionName, collectionType string, fetch []any) map[string]any {
	return map[string]any{
		"TDLMESSAGE": map[string]any{
			"COLLECTION": map[string]any{
				"@attributes": map[string]string{"NAME": collectionName, "ISMODIFY": "No"},
				"TYPE":        collectionType,
				"FETCH":       fetch,
			},
		},
	}
}

func buildLedgerExportRequest(company string) map[string]any {
	return exportEnvelope(company,
		map[string]any{"EXPORTCOLLECTION": "HIMS Ledgers"},
		collectionTDL("HIMS Ledgers", "Ledger", []any{
			"NAME", "PARENT", "GUID", "OPENINGBALANCE", "ADDRESS", "EMAIL", "LEDGERPHONE", "PARTYGSTIN",
		}))
}

func buildGroupExportRequest(company string) map[string]any {
	return exportEnvelope(company,
		map[string]any{"EXPORTCOLLECTION": "HIMS Groups"},
		collectionTDL("HIMS Groups", "Group", []any{"NAME", "PARENT", "GUID"}))
}

func buildVoucherExportRequest(company string, from, to time.Time) map[string]any {
	vars := map[string]any{"EXPORTCOLLECTION": "HIMS Vouchers"}
	if !from.IsZero() {
		vars["SVFROMDATE"] = from.Format(wireDateLayout)
	}
	if !to.IsZero() {
		vars["SVTODATE"] = to.Format(wireDateLayout)
	}
	return exportEnvelope(company, vars,
		collectionTDL("HIMS Vouchers", "Voucher", []any{
			"VOUCHERTYPENAME", "DATE", "VOUCHERNUMBER", "NARRATION", "GUID", "AMOUNT", "ALLLEDGERENTRIES",
		}))
}

func buildCompanyInfoRequest(company string) map[string]any {
	return exportEnvelope(company, map[string]any{"EXPORTCOLLECTION": "HIMS Company"},
		collectionTDL("HIMS Company", "Company", []any{"NAME"}))
}

// buildVoucherImportEnvelope renders a locally authored voucher for push.
// The signed-amount convention is applied at this wire boundary only:
// debits are negative, credits positive.
func buildVoucherImportEnvelope(voucher *models.Voucher) map[string]any {
	entries := make([]any, 0, len(voucher.Entries))
	for _, entry := range voucher.Entries {
		amount := entry.Amount
		deemedPositive := "No"
		if entry.IsDebit {
			amount = amount.Neg()
			deemedPositive = "Yes"
		}
		entries = append(entries, map[string]any{
			"LEDGERNAME":       entry.LedgerName,
			"ISDEEMEDPOSITIVE": deemedPositive,
			"AMOUNT":           amount.String(),
		})
	}

	voucherObj := map[string]any{
		"DATE":                  voucher.VoucherDate.Format(wireDateLayout),
		"VOUCHERTYPENAME":       voucher.VoucherType,
		"VOUCHERNUMBER":         voucher.VoucherNumber,
		"NARRATION":             voucher.Narration,
		"ALLLEDGERENTRIES.LIST": entries,
	}
	if voucher.TallyGUID != nil && *voucher.TallyGUID != "" {
		voucherObj["GUID"] = *voucher.TallyGUID
	}

	return map[string]any{
		"HEADER": map[string]any{"TALLYREQUEST": "Import"},
		"BODY": map[string]any{
			"DATA": map[string]any{
				"TALLYMESSAGE": map[string]any{
					"VOUCHER": voucherObj,
				},
			},
		},
	}
}

// ---- response parsing ----

// exportRecords locates the repeated record elements of an export response,
// whether the server nested them under a COLLECTION or under TALLYMESSAGE
// wrappers.
func exportRecords(doc map[string]any, recordTag string) []map[string]any {
	data := asMap(dig(doc, "BODY", "DATA"))
	if data == nil {
		return nil
	}

	var records []map[string]any
	if collection := asMap(data["COLLECTION"]); collection != nil {
		for _, raw := range asSlice(collection[recordTag]) {
			if record := asMap(raw); record != nil {
				records = append(records, record)
			}
		}
	}
	for _, raw := range asSlice(data["TALLYMESSAGE"]) {
		message := asMap(raw)
		if message == nil {
			continue
		}
		for _, inner := range asSlice(message[recordTag]) {
			if record := asMap(inner); record != nil {
				records = append(records, record)
			}
		}
	}
	return records
}

func parseLedgers(doc map[string]any) []TallyLedger {
	records := exportRecords(doc, "LEDGER")
	ledgers := make([]TallyLedger, 0, len(records))
	for _, record := range records {
		ledgers = append(ledgers, TallyLedger{
			Name:           recordName(record),
			Parent:         asString(record["PARENT"]),
			GUID:           asString(record["GUID"]),
			Address:        asString(record["ADDRESS"]),
			Email:          asString(record["EMAIL"]),
			Phone:          asString(record["LEDGERPHONE"]),
			TaxID:          asString(record["PARTYGSTIN"]),
			OpeningBalance: parseWireAmount(asString(record["OPENINGBALANCE"])),
		})
	}
	return ledgers
}

func parseGroups(doc map[string]any) []TallyGroup {
	records := exportRecords(doc, "GROUP")
	groups := make([]TallyGroup, 0, len(records))
	for _, record := range records {
		groups = append(groups, TallyGroup{
			Name:   recordName(record),
			Parent: asString(record["PARENT"]),
			GUID:   asString(record["GUID"]),
		})
	}
	return groups
}

func parseVouchers(doc map[string]any) []TallyVoucher {
	records := exportRecords(doc, "VOUCHER")
	vouchers := make([]TallyVoucher, 0, len(records))
	for _, record := range records {
		voucher := TallyVoucher{
			VoucherType: asString(record["VOUCHERTYPENAME"]),
			Number:      asString(record["VOUCHERNUMBER"]),
			Narration:   asString(record["NARRATION"]),
			GUID:        asString(record["GUID"]),
			Date:        parseWireDate(asString(record["DATE"])),
			Amount:      parseWireAmount(asString(record["AMOUNT"])),
		}
		for _, raw := range asSlice(entriesSlot(record)) {
			entry := asMap(raw)
			if entry == nil {
				continue
			}
			voucher.Entries = append(voucher.Entries, parseVoucherEntry(entry))
		}
		vouchers = append(vouchers, voucher)
	}
	return vouchers
}

// entriesSlot tolerates both entry list spellings seen in exports.
func entriesSlot(record map[string]any) any {
	if v, ok := record["ALLLEDGERENTRIES.LIST"]; ok {
		return v
	}
	return record["ALLLEDGERENTRIES"]
}

func parseVoucherEntry(entry map[string]any) TallyVoucherEntry {
	amount := parseWireAmount(asString(entry["AMOUNT"]))
	deemedPositive := strings.EqualFold(asString(entry["ISDEEMEDPOSITIVE"]), "Yes")
	// Debit legs carry the ISDEEMEDPOSITIVE flag; a negative amount is the
	// same signal from older exports.
	isDebit := deemedPositive || amount.IsNegative()

	parsed := TallyVoucherEntry{
		LedgerName: asString(entry["LEDGERNAME"]),
		Amount:     amount.Abs(),
		IsDebit:    isDebit,
	}
	for _, raw := range asSlice(billsSlot(entry)) {
		bill := asMap(raw)
		if bill == nil {
			continue
		}
		parsed.BillAllocations = append(parsed.BillAllocations, models.BillAllocation{
			Name:     asString(bill["NAME"]),
			BillType: asString(bill["BILLTYPE"]),
			Amount:   parseWireAmount(asString(bill["AMOUNT"])).Abs(),
		})
	}
	return parsed
}

func billsSlot(entry map[string]any) any {
	if v, ok := entry["BILLALLOCATIONS.LIST"]; ok {
		return v
	}
	return entry["BILLALLOCATIONS"]
}

// recordName prefers the NAME child and falls back to the NAME attribute,
// which is where Tally puts it on collection exports.
func recordName(record map[string]any) string {
	if name := asString(record["NAME"]); name != "" {
		return name
	}
	if attrs, ok := record[attributesKey].(map[string]string); ok {
		return attrs["NAME"]
	}
	return ""
}

// responseStatusOK reports whether an import response header carries the
// success status code 1.
func responseStatusOK(doc map[string]any) bool {
	return asString(dig(doc, "HEADER", "STATUS")) == "1"
}

func parseWireDate(value string) time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}
	}
	if t, err := time.Parse(wireDateLayout, value); err == nil {
		return t
	}
	return time.Time{}
}

func parseWireAmount(value string) decimal.Decimal {
	value = strings.TrimSpace(value)
	if value == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(value); err == nil {
		return d
	}
	return decimal.Zero
}
