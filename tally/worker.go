package tally

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"bitbucket.org/synergymed/hims_backend/config"
	"bitbucket.org/synergymed/hims_backend/models"
	"bitbucket.org/synergymed/hims_backend/models/reports"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const moduleName = "tally"

// Syncer runs sync jobs against one Tally server. Jobs of the same type are
// serialized through the store's advisory lock; per-record failures are
// counted and recorded but never abort the batch.
type Syncer struct {
	client *Client
	store  models.LedgerStore
	log    *logrus.Logger
}

func NewSyncer(cfg config.TallyConfig, store models.LedgerStore) *Syncer {
	return &Syncer{
		client: NewClient(cfg),
		store:  store,
		log:    config.GetLogger(),
	}
}

func NewSyncerWithClient(client *Client, store models.LedgerStore) *Syncer {
	return &Syncer{client: client, store: store, log: config.GetLogger()}
}

// RunSync dispatches one sync job by type. From/to only apply to vouchers.
func (s *Syncer) RunSync(ctx context.Context, syncType models.SyncType, from, to time.Time) (*models.SyncStatus, error) {
	switch syncType {
	case models.SyncTypeLedgers:
		return s.SyncLedgers(ctx)
	case models.SyncTypeVouchers:
		return s.SyncVouchers(ctx, from, to)
	case models.SyncTypeMasters:
		return s.SyncMasters(ctx)
	}
	return nil, fmt.Errorf("unknown sync type %q", syncType)
}

// SyncLedgers pulls the full ledger collection and reconciles it into the
// chart of accounts, matching by Tally GUID.
func (s *Syncer) SyncLedgers(ctx context.Context) (*models.SyncStatus, error) {
	release, err := s.store.AcquireSyncLock(ctx, models.SyncTypeLedgers)
	if err != nil {
		return nil, err
	}
	defer release()

	status, err := s.beginStatus(ctx, models.SyncTypeLedgers)
	if err != nil {
		return nil, err
	}

	doc, err := s.exchange(ctx, buildLedgerExportRequest(s.client.Company()))
	if err != nil {
		return status, s.failJob(ctx, status, err)
	}

	for _, ledger := range parseLedgers(doc) {
		if err := s.upsertLedger(ctx, ledger); err != nil {
			s.recordFailure(ctx, status, asRecordError("ledger", ledger.GUID, err), ledger)
			continue
		}
		status.RecordsProcessed++
	}
	return status, s.finishJob(ctx, status)
}

// SyncVouchers pulls vouchers in the given date window. A zero from-date
// defaults to the start of the current fiscal year; a zero to-date means
// today.
func (s *Syncer) SyncVouchers(ctx context.Context, from, to time.Time) (*models.SyncStatus, error) {
	release, err := s.store.AcquireSyncLock(ctx, models.SyncTypeVouchers)
	if err != nil {
		return nil, err
	}
	defer release()

	if from.IsZero() {
		from = reports.FiscalYearStart(time.Now())
	}
	if to.IsZero() {
		to = time.Now()
	}

	status, err := s.beginStatus(ctx, models.SyncTypeVouchers)
	if err != nil {
		return nil, err
	}

	doc, err := s.exchange(ctx, buildVoucherExportRequest(s.client.Company(), from, to))
	if err != nil {
		return status, s.failJob(ctx, status, err)
	}

	for _, voucher := range parseVouchers(doc) {
		if err := s.upsertVoucher(ctx, voucher); err != nil {
			s.recordFailure(ctx, status, asRecordError("voucher", voucher.GUID, err), voucher)
			continue
		}
		status.RecordsProcessed++
	}
	return status, s.finishJob(ctx, status)
}

// SyncMasters pulls the ledger-group tree. Groups feed the account-type
// mapper: a ledger under an unknown direct parent is classified through its
// group's ancestry on the next ledger sync.
func (s *Syncer) SyncMasters(ctx context.Context) (*models.SyncStatus, error) {
	release, err := s.store.AcquireSyncLock(ctx, models.SyncTypeMasters)
	if err != nil {
		return nil, err
	}
	defer release()

	status, err := s.beginStatus(ctx, models.SyncTypeMasters)
	if err != nil {
		return nil, err
	}

	doc, err := s.exchange(ctx, buildGroupExportRequest(s.client.Company()))
	if err != nil {
		return status, s.failJob(ctx, status, err)
	}

	for _, group := range parseGroups(doc) {
		if err := s.upsertGroup(ctx, group); err != nil {
			s.recordFailure(ctx, status, asRecordError("group", group.GUID, err), group)
			continue
		}
		status.RecordsProcessed++
	}
	return status, s.finishJob(ctx, status)
}

// ImportFromTally processes records handed to us directly (an uploaded XML
// export, or a pre-parsed JSON payload) through the same reconciliation path
// as a pull sync, without a sync-status row or the per-type lock.
func (s *Syncer) ImportFromTally(ctx context.Context, req ImportRequest) (*ImportResult, error) {
	result := &ImportResult{}

	switch req.Type {
	case models.SyncTypeLedgers:
		ledgers, err := importLedgers(req)
		if err != nil {
			return nil, err
		}
		for _, ledger := range ledgers {
			applyImport(result, ledger.GUID, s.upsertLedger(ctx, ledger))
		}
	case models.SyncTypeVouchers:
		vouchers, err := importVouchers(req)
		if err != nil {
			return nil, err
		}
		for _, voucher := range vouchers {
			applyImport(result, voucher.GUID, s.upsertVoucher(ctx, voucher))
		}
	case models.SyncTypeMasters:
		groups, err := importGroups(req)
		if err != nil {
			return nil, err
		}
		for _, group := range groups {
			applyImport(result, group.GUID, s.upsertGroup(ctx, group))
		}
	default:
		return nil, fmt.Errorf("unknown import type %q", req.Type)
	}

	result.Success = result.RecordsFailed == 0
	return result, nil
}

func applyImport(result *ImportResult, guid string, err error) {
	if err != nil {
		result.RecordsFailed++
		result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", guid, err))
		return
	}
	result.RecordsProcessed++
}

func importLedgers(req ImportRequest) ([]TallyLedger, error) {
	if req.XML != "" {
		doc, err := DecodeEnvelope(req.XML)
		if err != nil {
			return nil, err
		}
		return parseLedgers(doc), nil
	}
	var ledgers []TallyLedger
	if err := json.Unmarshal(req.JSON, &ledgers); err != nil {
		return nil, fmt.Errorf("parse ledger payload: %w", err)
	}
	return ledgers, nil
}

func importVouchers(req ImportRequest) ([]TallyVoucher, error) {
	if req.XML != "" {
		doc, err := DecodeEnvelope(req.XML)
		if err != nil {
			return nil, err
		}
		return parseVouchers(doc), nil
	}
	var vouchers []TallyVoucher
	if err := json.Unmarshal(req.JSON, &vouchers); err != nil {
		return nil, fmt.Errorf("parse voucher payload: %w", err)
	}
	return vouchers, nil
}

func importGroups(req ImportRequest) ([]TallyGroup, error) {
	if req.XML != "" {
		doc, err := DecodeEnvelope(req.XML)
		if err != nil {
			return nil, err
		}
		return parseGroups(doc), nil
	}
	var groups []TallyGroup
	if err := json.Unmarshal(req.JSON, &groups); err != nil {
		return nil, fmt.Errorf("parse group payload: %w", err)
	}
	return groups, nil
}

// ImportVoucher pushes a locally authored voucher into Tally. Success is the
// status code 1 in the response header; anything else is a ProtocolError.
func (s *Syncer) ImportVoucher(ctx context.Context, voucher *models.Voucher) error {
	if len(voucher.Entries) == 0 {
		return errors.New("voucher has no entries")
	}
	if err := checkBalanced(voucher.Entries); err != nil {
		return err
	}

	doc, err := s.exchange(ctx, buildVoucherImportEnvelope(voucher))
	if err != nil {
		return err
	}
	if !responseStatusOK(doc) {
		return &ProtocolError{Reason: "import rejected by server"}
	}
	return nil
}

// TestConnection probes the server with a company-info export.
func (s *Syncer) TestConnection(ctx context.Context) bool {
	_, err := s.exchange(ctx, buildCompanyInfoRequest(s.client.Company()))
	return err == nil
}

func checkBalanced(entries []models.VoucherEntry) error {
	var debits, credits decimal.Decimal
	for _, entry := range entries {
		if entry.IsDebit {
			debits = debits.Add(entry.Amount)
		} else {
			credits = credits.Add(entry.Amount)
		}
	}
	if !debits.Equal(credits) {
		return fmt.Errorf("voucher is unbalanced: debits %s, credits %s", debits, credits)
	}
	return nil
}

// ---- per-record reconciliation ----

func (s *Syncer) upsertLedger(ctx context.Context, ledger TallyLedger) error {
	if ledger.GUID == "" {
		return errors.New("ledger has no guid")
	}
	if ledger.Name == "" {
		return errors.New("ledger has no name")
	}

	metadata, _ := json.Marshal(map[string]string{
		"address": ledger.Address,
		"email":   ledger.Email,
		"phone":   ledger.Phone,
		"tax_id":  ledger.TaxID,
	})

	account, err := s.store.FindAccountByGUID(ctx, ledger.GUID)
	if err != nil {
		return err
	}
	if account != nil {
		account.Name = ledger.Name
		account.ParentGroup = ledger.Parent
		account.OpeningBalance = ledger.OpeningBalance
		account.MetadataJSON = metadata
		return s.store.UpsertAccount(ctx, account)
	}

	// A local account with the same name and no GUID is adopted rather than
	// duplicated; a different GUID on the same name is a conflict.
	existing, err := s.store.FindAccountByName(ctx, ledger.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		if existing.TallyGUID != nil && *existing.TallyGUID != ledger.GUID {
			return fmt.Errorf("account %q already linked to guid %s", ledger.Name, *existing.TallyGUID)
		}
		guid := ledger.GUID
		existing.TallyGUID = &guid
		existing.ParentGroup = ledger.Parent
		existing.OpeningBalance = ledger.OpeningBalance
		existing.MetadataJSON = metadata
		return s.store.UpsertAccount(ctx, existing)
	}

	mainType := s.classify(ctx, ledger.Name, ledger.Parent)
	code, err := s.store.ReserveGLCode(ctx, GLCodeForType(mainType, ledger.Name))
	if err != nil {
		return err
	}

	guid := ledger.GUID
	active := true
	return s.store.UpsertAccount(ctx, &models.Account{
		Name:           ledger.Name,
		MainType:       mainType,
		Code:           code,
		ParentGroup:    ledger.Parent,
		OpeningBalance: ledger.OpeningBalance,
		TallyGUID:      &guid,
		MetadataJSON:   metadata,
		IsActive:       &active,
	})
}

// classify maps a ledger's parent group to an account type, walking up the
// imported group tree when the direct parent is not in the fixed table.
func (s *Syncer) classify(ctx context.Context, name, parent string) models.AccountMainType {
	current := parent
	for depth := 0; depth < 8 && current != ""; depth++ {
		if mainType, ok := MapParentToAccountType(current); ok {
			return mainType
		}
		group, err := s.store.FindLedgerGroup(ctx, current)
		if err != nil || group == nil {
			break
		}
		current = group.Parent
	}

	mainType, _ := MapParentToAccountType(parent)
	s.log.WithFields(logrus.Fields{
		"module": moduleName,
		"ledger": name,
		"parent": parent,
	}).Warnf("unmapped parent group, defaulting to %s", mainType)
	return mainType
}

func (s *Syncer) upsertVoucher(ctx context.Context, wire TallyVoucher) error {
	if wire.GUID == "" {
		return errors.New("voucher has no guid")
	}
	if wire.Date.IsZero() {
		return errors.New("voucher has no date")
	}

	entries := make([]models.VoucherEntry, 0, len(wire.Entries))
	total := decimal.Zero
	for _, entry := range wire.Entries {
		account, err := s.store.FindAccountByName(ctx, entry.LedgerName)
		if err != nil {
			return err
		}
		if account == nil {
			return fmt.Errorf("entry ledger %q has no account; run a ledger sync first", entry.LedgerName)
		}

		var billsJSON []byte
		if len(entry.BillAllocations) > 0 {
			billsJSON, _ = json.Marshal(entry.BillAllocations)
		}
		entries = append(entries, models.VoucherEntry{
			AccountId:           account.ID,
			LedgerName:          entry.LedgerName,
			Amount:              entry.Amount,
			IsDebit:             entry.IsDebit,
			BillAllocationsJSON: billsJSON,
		})
		if entry.IsDebit {
			total = total.Add(entry.Amount)
		}
	}

	amount := wire.Amount.Abs()
	if amount.IsZero() {
		amount = total
	}

	voucher, err := s.store.FindVoucherByGUID(ctx, wire.GUID)
	if err != nil {
		return err
	}
	if voucher == nil {
		guid := wire.GUID
		voucher = &models.Voucher{TallyGUID: &guid}
	}
	voucher.VoucherType = wire.VoucherType
	voucher.VoucherNumber = wire.Number
	voucher.VoucherDate = wire.Date
	voucher.Narration = wire.Narration
	voucher.TotalAmount = amount

	if err := s.store.UpsertVoucher(ctx, voucher); err != nil {
		return err
	}
	return s.store.ReplaceVoucherEntries(ctx, voucher.ID, entries)
}

func (s *Syncer) upsertGroup(ctx context.Context, wire TallyGroup) error {
	if wire.Name == "" {
		return errors.New("group has no name")
	}
	group := &models.LedgerGroup{Name: wire.Name, Parent: wire.Parent}
	if wire.GUID != "" {
		guid := wire.GUID
		group.TallyGUID = &guid
	}
	return s.store.UpsertLedgerGroup(ctx, group)
}

// ---- job plumbing ----

// exchange encodes, sends and decodes one request/response pair.
func (s *Syncer) exchange(ctx context.Context, request map[string]any) (map[string]any, error) {
	response, err := s.client.Send(ctx, EncodeEnvelope(request))
	if err != nil {
		return nil, err
	}
	return DecodeEnvelope(response)
}

func (s *Syncer) beginStatus(ctx context.Context, syncType models.SyncType) (*models.SyncStatus, error) {
	status := &models.SyncStatus{
		SyncType:  syncType,
		Status:    models.SyncStatusInProgress,
		StartedAt: time.Now(),
	}
	if err := s.store.InsertSyncStatus(ctx, status); err != nil {
		return nil, err
	}
	return status, nil
}

// failJob marks the status row failed and wraps err as fatal. Used only for
// failures before the per-record loop; a partial batch still completes.
func (s *Syncer) failJob(ctx context.Context, status *models.SyncStatus, err error) error {
	config.LogError(s.log, moduleName, "failJob", string(status.SyncType), nil, err)

	now := time.Now()
	status.Status = models.SyncStatusFailed
	status.FinishedAt = &now
	status.ErrorMessage = err.Error()
	if updateErr := s.store.UpdateSyncStatus(ctx, status.ID, map[string]interface{}{
		"status":        models.SyncStatusFailed,
		"finished_at":   now,
		"error_message": err.Error(),
	}); updateErr != nil {
		config.LogError(s.log, moduleName, "failJob", "update sync status", nil, updateErr)
	}
	return &JobFatalError{SyncType: status.SyncType, Err: err}
}

func (s *Syncer) finishJob(ctx context.Context, status *models.SyncStatus) error {
	now := time.Now()
	status.Status = models.SyncStatusCompleted
	status.FinishedAt = &now
	return s.store.UpdateSyncStatus(ctx, status.ID, map[string]interface{}{
		"status":            models.SyncStatusCompleted,
		"finished_at":       now,
		"records_processed": status.RecordsProcessed,
		"records_failed":    status.RecordsFailed,
	})
}

func (s *Syncer) recordFailure(ctx context.Context, status *models.SyncStatus, recordErr *RecordSyncError, payload any) {
	status.RecordsFailed++
	config.LogError(s.log, moduleName, "recordFailure", recordErr.EntityType, payload, recordErr)

	payloadJSON, _ := json.Marshal(payload)
	if err := s.store.InsertSyncError(ctx, &models.SyncError{
		SyncStatusId: status.ID,
		EntityType:   recordErr.EntityType,
		ExternalId:   recordErr.GUID,
		Message:      recordErr.Err.Error(),
		PayloadJSON:  payloadJSON,
	}); err != nil {
		config.LogError(s.log, moduleName, "recordFailure", "insert sync error", nil, err)
	}
}
