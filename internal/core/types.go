package core

import (
	"context"
	"time"
)

// RawRow is one parsed CSV record keyed by header name.
// It stays loosely typed until Validate turns it into a TestRecord.
type RawRow map[string]string

// Canonical field names used by RawRow after header normalization.
const (
	FieldID          = "id"
	FieldName        = "name"
	FieldCategory    = "category"
	FieldSubCategory = "subCategory"
	FieldCPTCode     = "cptCode"
	FieldLOINCCode   = "loincCode"
	FieldSNOMEDCode  = "snomedCode"
	FieldDescription = "description"
	FieldNotes       = "notes"
)

// CanonicalFields lists every field a TestRecord carries, in export order.
var CanonicalFields = []string{
	FieldID, FieldName, FieldCategory, FieldSubCategory,
	FieldCPTCode, FieldLOINCCode, FieldSNOMEDCode,
	FieldDescription, FieldNotes,
}

// TestRecord is a validated catalog entry.
// Optional fields are nil when the source value was empty.
type TestRecord struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Category    string  `json:"category"`
	SubCategory string  `json:"subCategory"`
	CPTCode     *string `json:"cptCode,omitempty"`
	LOINCCode   *string `json:"loincCode,omitempty"`
	SNOMEDCode  *string `json:"snomedCode,omitempty"`
	Description *string `json:"description,omitempty"`
	Notes       *string `json:"notes,omitempty"`
}

// Value returns the string form of a field by canonical name.
// Nil optional fields read as "".
func (r TestRecord) Value(field string) string {
	switch field {
	case FieldID:
		return r.ID
	case FieldName:
		return r.Name
	case FieldCategory:
		return r.Category
	case FieldSubCategory:
		return r.SubCategory
	case FieldCPTCode:
		return Deref(r.CPTCode)
	case FieldLOINCCode:
		return Deref(r.LOINCCode)
	case FieldSNOMEDCode:
		return Deref(r.SNOMEDCode)
	case FieldDescription:
		return Deref(r.Description)
	case FieldNotes:
		return Deref(r.Notes)
	}
	return ""
}

// IsImaging reports whether the record belongs to the imaging category.
func (r TestRecord) IsImaging() bool {
	return IsImagingCategory(r.Category)
}

// Deref returns the pointed-to string or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Ptr returns a pointer to s.
func Ptr[T any](v T) *T {
	return &v
}

// optional returns nil for blank input, otherwise a pointer to the trimmed value.
func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// DuplicatePolicy selects what happens to a row that collides with an existing record.
type DuplicatePolicy string

const (
	PolicySkip   DuplicatePolicy = "skip"
	PolicyUpdate DuplicatePolicy = "update"
)

// ParseDuplicatePolicy maps user input to a policy. Empty input selects PolicySkip.
func ParseDuplicatePolicy(s string) (DuplicatePolicy, bool) {
	switch DuplicatePolicy(s) {
	case "", PolicySkip:
		return PolicySkip, true
	case PolicyUpdate:
		return PolicyUpdate, true
	}
	return "", false
}

// Operation is the action the importer took for a row.
type Operation string

const (
	OpInsert Operation = "insert"
	OpUpdate Operation = "update"
	OpSkip   Operation = "skip"
	OpError  Operation = "error"
)

// EntryStatus is the outcome recorded for a row.
type EntryStatus string

const (
	StatusSuccess         EntryStatus = "success"
	StatusFailed          EntryStatus = "failed"
	StatusDuplicate       EntryStatus = "duplicate"
	StatusValidationError EntryStatus = "validation_error"
)

// DuplicateReason names the index a duplicate was found in.
type DuplicateReason string

const (
	ReasonIDExists      DuplicateReason = "id_exists"
	ReasonCPTCodeExists DuplicateReason = "cpt_code_exists"
)

// SessionStatus tracks an import session through its lifecycle.
type SessionStatus string

const (
	SessionRunning   SessionStatus = "running"
	SessionCompleted SessionStatus = "completed"
	SessionPartial   SessionStatus = "partial"
	SessionFailed    SessionStatus = "failed"
)

// DeriveStatus computes the final session status from its counts.
func DeriveStatus(successCount, errorCount int) SessionStatus {
	switch {
	case successCount == 0:
		return SessionFailed
	case errorCount == 0:
		return SessionCompleted
	default:
		return SessionPartial
	}
}

// ImportSession summarizes one run of the importer over one file.
type ImportSession struct {
	ID               string          `json:"id"`
	Filename         string          `json:"filename"`
	FileSize         int64           `json:"fileSize"`
	TotalTests       int             `json:"totalTests"`
	SuccessCount     int             `json:"successCount"`
	ErrorCount       int             `json:"errorCount"`
	DuplicateCount   int             `json:"duplicateCount"`
	ValidationErrors []string        `json:"validationErrors"`
	Status           SessionStatus   `json:"status"`
	Policy           DuplicatePolicy `json:"duplicatePolicy"`
	StartedAt        time.Time       `json:"startedAt"`
	CompletedAt      *time.Time      `json:"completedAt,omitempty"`
	Notes            string          `json:"notes,omitempty"`
}

// ImportAuditLogEntry records the decision made for a single input row.
// Entries are append-only.
type ImportAuditLogEntry struct {
	ID               string            `json:"id"`
	SessionID        string            `json:"sessionId"`
	Sequence         int               `json:"sequence"`
	TestID           *string           `json:"testId"`
	OriginalTestID   *string           `json:"originalTestId"`
	Operation        Operation         `json:"operation"`
	Status           EntryStatus       `json:"status"`
	ErrorMessage     *string           `json:"errorMessage"`
	ValidationErrors FieldErrors       `json:"validationErrors"`
	OriginalData     RawRow            `json:"originalData"`
	ProcessedData    *TestRecord       `json:"processedData"`
	DuplicateReason  *DuplicateReason  `json:"duplicateReason"`
	DuplicateReasons []DuplicateReason `json:"duplicateReasons,omitempty"`
	ProcessingTimeMs float64           `json:"processingTime"`
	Timestamp        time.Time         `json:"timestamp"`
}

// ImportSessionResult is the complete outcome of an import: the final
// session summary plus every audit entry in input order.
type ImportSessionResult struct {
	Session ImportSession         `json:"session"`
	Entries []ImportAuditLogEntry `json:"entries"`
	DryRun  bool                  `json:"dryRun,omitempty"`
}

// TestStore is the persistence collaborator for catalog records.
type TestStore interface {
	// Snapshot returns every existing record.
	Snapshot(ctx context.Context) ([]TestRecord, error)
	// Insert adds a new record. Implementations return ErrDuplicateID on id collision.
	Insert(ctx context.Context, rec TestRecord) error
	// Update replaces the record with the same id. Returns ErrRecordNotFound if absent.
	Update(ctx context.Context, rec TestRecord) error
}

// AuditSink persists sessions and their audit entries.
type AuditSink interface {
	CreateSession(ctx context.Context, session ImportSession) error
	AppendEntry(ctx context.Context, entry ImportAuditLogEntry) error
	FinalizeSession(ctx context.Context, session ImportSession) error
}

// SessionReader reads back what an AuditSink persisted.
type SessionReader interface {
	ListSessions(ctx context.Context, limit int) ([]ImportSession, error)
	GetSession(ctx context.Context, id string) (ImportSession, error)
	ListEntries(ctx context.Context, sessionID string) ([]ImportAuditLogEntry, error)
}

// Observer receives import events, typically for metrics.
type Observer interface {
	RowProcessed(op Operation, status EntryStatus, elapsed time.Duration)
	SessionFinished(status SessionStatus, rows int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) RowProcessed(Operation, EntryStatus, time.Duration) {}
func (nopObserver) SessionFinished(SessionStatus, int, time.Duration) {}
