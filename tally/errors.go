package tally

import (
	"errors"
	"fmt"

	"bitbucket.org/synergymed/hims_backend/models"
)

// ErrSyncAlreadyRunning is surfaced when a sync job of the same type holds
// the per-type lock. Re-exported so callers don't import the store for it.
var ErrSyncAlreadyRunning = models.ErrSyncAlreadyRunning

// TransportError covers non-2xx HTTP responses and network failures. Fatal
// to the current operation; never retried at this layer.
type TransportError struct {
	Status int
	Err    error
}

func (e *TransportError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("tally transport error: http status %d", e.Status)
	}
	return fmt.Sprintf("tally transport error: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ProtocolError covers malformed or unexpectedly shaped XML from the server.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return "tally protocol error: " + e.Reason
}

// RecordSyncError is the failure of a single record inside a sync loop. It
// is counted and stored, and never aborts the batch.
type RecordSyncError struct {
	EntityType string
	GUID       string
	Err        error
}

func (e *RecordSyncError) Error() string {
	return fmt.Sprintf("sync %s %s: %v", e.EntityType, e.GUID, e.Err)
}

func (e *RecordSyncError) Unwrap() error { return e.Err }

// JobFatalError is any failure before or between per-record iterations. It
// aborts the job after the sync status has been marked failed.
type JobFatalError struct {
	SyncType models.SyncType
	Err      error
}

func (e *JobFatalError) Error() string {
	return fmt.Sprintf("%s sync failed: %v", e.SyncType, e.Err)
}

func (e *JobFatalError) Unwrap() error { return e.Err }

func asRecordError(entityType, guid string, err error) *RecordSyncError {
	var rse *RecordSyncError
	if errors.As(err, &rse) {
		return rse
	}
	return &RecordSyncError{EntityType: entityType, GUID: guid, Err: err}
}
