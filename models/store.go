package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"gorm.io/gorm"
)

// ErrSyncAlreadyRunning is returned by AcquireSyncLock when a job of the
// same sync type holds the lock.
var ErrSyncAlreadyRunning = errors.New("a sync job of this type is already running")

// LedgerStore is the durable-store contract the sync engine and the report
// generators depend on. Find* methods return (nil, nil) when no row matches.
type LedgerStore interface {
	FindAccountByGUID(ctx context.Context, guid string) (*Account, error)
	FindAccountByName(ctx context.Context, name string) (*Account, error)
	UpsertAccount(ctx context.Context, account *Account) error
	QueryAccounts(ctx context.Context, filter AccountFilter) ([]Account, error)
	// ReserveGLCode returns candidate if no account uses it yet, otherwise the
	// nearest free code with the same leading parent digit.
	ReserveGLCode(ctx context.Context, candidate string) (string, error)

	FindVoucherByGUID(ctx context.Context, guid string) (*Voucher, error)
	UpsertVoucher(ctx context.Context, voucher *Voucher) error
	ReplaceVoucherEntries(ctx context.Context, voucherId int, entries []VoucherEntry) error
	QueryVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error)
	QueryEntries(ctx context.Context, filter EntryFilter) ([]EntryRow, error)

	FindLedgerGroup(ctx context.Context, name string) (*LedgerGroup, error)
	UpsertLedgerGroup(ctx context.Context, group *LedgerGroup) error

	InsertSyncStatus(ctx context.Context, status *SyncStatus) error
	UpdateSyncStatus(ctx context.Context, id uint, fields map[string]interface{}) error
	InsertSyncError(ctx context.Context, syncErr *SyncError) error
	SyncHistory(ctx context.Context, limit int) ([]SyncStatus, error)
	SyncErrors(ctx context.Context, statusId uint) ([]SyncError, error)

	// AcquireSyncLock serializes jobs of the same sync type. The returned
	// release func must be called when the job finishes.
	AcquireSyncLock(ctx context.Context, syncType SyncType) (func(), error)
}

// GormLedgerStore implements LedgerStore over MySQL via gorm.
type GormLedgerStore struct {
	db      *gorm.DB
	resolve func() *gorm.DB
}

func NewGormLedgerStore(db *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{db: db}
}

// NewLazyGormLedgerStore defers DB resolution to first use, for services
// that start listening before the database connection is established.
func NewLazyGormLedgerStore(resolve func() *gorm.DB) *GormLedgerStore {
	return &GormLedgerStore{resolve: resolve}
}

func (s *GormLedgerStore) conn() *gorm.DB {
	if s.db != nil {
		return s.db
	}
	return s.resolve()
}

func (s *GormLedgerStore) AutoMigrate() error {
	return s.conn().AutoMigrate(
		&Account{},
		&LedgerGroup{},
		&Voucher{},
		&VoucherEntry{},
		&SyncStatus{},
		&SyncError{},
	)
}

func (s *GormLedgerStore) FindAccountByGUID(ctx context.Context, guid string) (*Account, error) {
	var account Account
	err := s.conn().WithContext(ctx).Where("tally_guid = ?", guid).Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (s *GormLedgerStore) FindAccountByName(ctx context.Context, name string) (*Account, error) {
	var account Account
	err := s.conn().WithContext(ctx).Where("name = ?", name).Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &account, nil
}

func (s *GormLedgerStore) UpsertAccount(ctx context.Context, account *Account) error {
	return s.conn().WithContext(ctx).Save(account).Error
}

func (s *GormLedgerStore) QueryAccounts(ctx context.Context, filter AccountFilter) ([]Account, error) {
	dbCtx := s.conn().WithContext(ctx)
	if len(filter.MainTypes) > 0 {
		dbCtx = dbCtx.Where("main_type IN ?", filter.MainTypes)
	}
	if filter.SyncedOnly {
		dbCtx = dbCtx.Where("tally_guid IS NOT NULL")
	}
	var accounts []Account
	if err := dbCtx.Order("name ASC").Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

func (s *GormLedgerStore) ReserveGLCode(ctx context.Context, candidate string) (string, error) {
	if len(candidate) != 5 {
		return "", fmt.Errorf("gl code %q must be 5 digits", candidate)
	}
	parent := candidate[:1]
	suffix, err := strconv.Atoi(candidate[1:])
	if err != nil {
		return "", fmt.Errorf("gl code %q is not numeric", candidate)
	}

	code := candidate
	for probe := 0; probe < 10000; probe++ {
		var count int64
		if err := s.conn().WithContext(ctx).Model(&Account{}).Where("code = ?", code).Count(&count).Error; err != nil {
			return "", err
		}
		if count == 0 {
			return code, nil
		}
		suffix = (suffix + 1) % 10000
		code = fmt.Sprintf("%s%04d", parent, suffix)
	}
	return "", fmt.Errorf("no free gl code under parent %s", parent)
}

func (s *GormLedgerStore) FindVoucherByGUID(ctx context.Context, guid string) (*Voucher, error) {
	var voucher Voucher
	err := s.conn().WithContext(ctx).Where("tally_guid = ?", guid).Take(&voucher).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &voucher, nil
}

func (s *GormLedgerStore) UpsertVoucher(ctx context.Context, voucher *Voucher) error {
	return s.conn().WithContext(ctx).Omit("Entries").Save(voucher).Error
}

// ReplaceVoucherEntries deletes every existing entry of the voucher and
// inserts the given set in one transaction. Replace-not-merge keeps the
// mirror exact when Tally silently drops an entry.
func (s *GormLedgerStore) ReplaceVoucherEntries(ctx context.Context, voucherId int, entries []VoucherEntry) error {
	return s.conn().WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("voucher_id = ?", voucherId).Delete(&VoucherEntry{}).Error; err != nil {
			return err
		}
		for i := range entries {
			entries[i].ID = 0
			entries[i].VoucherId = voucherId
		}
		if len(entries) == 0 {
			return nil
		}
		return tx.Create(&entries).Error
	})
}

func (s *GormLedgerStore) QueryVouchers(ctx context.Context, filter VoucherFilter) ([]Voucher, error) {
	dbCtx := s.conn().WithContext(ctx)
	if !filter.FromDate.IsZero() {
		dbCtx = dbCtx.Where("voucher_date >= ?", filter.FromDate)
	}
	if !filter.ToDate.IsZero() {
		dbCtx = dbCtx.Where("voucher_date <= ?", filter.ToDate)
	}
	var vouchers []Voucher
	if err := dbCtx.Preload("Entries").Order("voucher_date ASC, id ASC").Find(&vouchers).Error; err != nil {
		return nil, err
	}
	return vouchers, nil
}

func (s *GormLedgerStore) QueryEntries(ctx context.Context, filter EntryFilter) ([]EntryRow, error) {
	dbCtx := s.conn().WithContext(ctx).
		Table("voucher_entries").
		Select("voucher_entries.account_id, voucher_entries.amount, voucher_entries.is_debit, vouchers.voucher_date AS date").
		Joins("JOIN vouchers ON vouchers.id = voucher_entries.voucher_id")
	if filter.AccountId > 0 {
		dbCtx = dbCtx.Where("voucher_entries.account_id = ?", filter.AccountId)
	}
	if !filter.FromDate.IsZero() {
		dbCtx = dbCtx.Where("vouchers.voucher_date >= ?", filter.FromDate)
	}
	if !filter.ToDate.IsZero() {
		dbCtx = dbCtx.Where("vouchers.voucher_date <= ?", filter.ToDate)
	}
	var rows []EntryRow
	if err := dbCtx.Scan(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *GormLedgerStore) FindLedgerGroup(ctx context.Context, name string) (*LedgerGroup, error) {
	var group LedgerGroup
	err := s.conn().WithContext(ctx).Where("name = ?", name).Take(&group).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &group, nil
}

func (s *GormLedgerStore) UpsertLedgerGroup(ctx context.Context, group *LedgerGroup) error {
	existing, err := s.FindLedgerGroup(ctx, group.Name)
	if err != nil {
		return err
	}
	if existing != nil {
		group.ID = existing.ID
	}
	return s.conn().WithContext(ctx).Save(group).Error
}

func (s *GormLedgerStore) InsertSyncStatus(ctx context.Context, status *SyncStatus) error {
	return s.conn().WithContext(ctx).Create(status).Error
}

func (s *GormLedgerStore) UpdateSyncStatus(ctx context.Context, id uint, fields map[string]interface{}) error {
	return s.conn().WithContext(ctx).Model(&SyncStatus{}).Where("id = ?", id).Updates(fields).Error
}

func (s *GormLedgerStore) InsertSyncError(ctx context.Context, syncErr *SyncError) error {
	return s.conn().WithContext(ctx).Create(syncErr).Error
}

func (s *GormLedgerStore) SyncHistory(ctx context.Context, limit int) ([]SyncStatus, error) {
	if limit <= 0 {
		limit = 50
	}
	var history []SyncStatus
	if err := s.conn().WithContext(ctx).Order("id DESC").Limit(limit).Find(&history).Error; err != nil {
		return nil, err
	}
	return history, nil
}

func (s *GormLedgerStore) SyncErrors(ctx context.Context, statusId uint) ([]SyncError, error) {
	var syncErrors []SyncError
	if err := s.conn().WithContext(ctx).Where("sync_status_id = ?", statusId).Order("id ASC").Find(&syncErrors).Error; err != nil {
		return nil, err
	}
	return syncErrors, nil
}

// AcquireSyncLock serializes same-type jobs across instances using MySQL
// advisory locks. GET_LOCK is connection-scoped, so lock and release run on
// a dedicated connection held open for the lifetime of the job.
func (s *GormLedgerStore) AcquireSyncLock(ctx context.Context, syncType SyncType) (func(), error) {
	lockName := fmt.Sprintf("tally_sync:%s", syncType)

	sqlDB, err := s.conn().DB()
	if err != nil {
		return nil, err
	}
	conn, err := sqlDB.Conn(ctx)
	if err != nil {
		return nil, err
	}

	var ok int
	row := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", lockName)
	if err := row.Scan(&ok); err != nil {
		_ = conn.Close()
		return nil, err
	}
	if ok != 1 {
		_ = conn.Close()
		return nil, ErrSyncAlreadyRunning
	}

	release := func() {
		var _ok int
		_ = conn.QueryRowContext(context.Background(), "SELECT RELEASE_LOCK(?)", lockName).Scan(&_ok)
		_ = conn.Close()
	}
	return release, nil
}
