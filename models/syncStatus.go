package models

import "time"

// SyncStatus is the audit row for one sync job. Created in_progress at job
// start, updated exactly once at job end (completed or failed), never
// deleted by the engine.
type SyncStatus struct {
	ID               uint       `gorm:"primary_key" json:"id"`
	SyncType         SyncType   `gorm:"index;size:20;not null" json:"sync_type"`
	Status           string     `gorm:"size:20;not null" json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	FinishedAt       *time.Time `json:"finished_at"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsFailed    int        `json:"records_failed"`
	ErrorMessage     string     `gorm:"type:text" json:"error_message"`
	DetailJSON       []byte     `gorm:"type:json" json:"detail"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// SyncError records one failed record within a sync job, keyed by the
// external GUID when the record carried one.
type SyncError struct {
	ID           uint      `gorm:"primary_key" json:"id"`
	SyncStatusId uint      `gorm:"index;not null" json:"sync_status_id"`
	EntityType   string    `gorm:"size:50" json:"entity_type"`
	ExternalId   string    `gorm:"size:128" json:"external_id"`
	Message      string    `gorm:"type:text" json:"message"`
	PayloadJSON  []byte    `gorm:"type:json" json:"payload"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
}
