package core

// service_import.go drives one import session: parse, then for each row
// validate, classify against the duplicate index, apply the chosen operation
// to the store, and append exactly one audit entry.
//
// Rows are processed strictly in input order. The context is checked before
// every row; once it is done, no further rows are attempted and the session is
// finalized as failed with the entries collected so far. Finalization always
// runs on a context detached from cancellation.

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/JonMunkholm/testcatalog/internal/logging"
)

// ImportRequest describes one file to import.
type ImportRequest struct {
	Filename string
	Text     string
	FileSize int64 // defaults to len(Text)
	Policy   DuplicatePolicy
	Notes    string
}

// Import runs a session that writes to the store and the audit sink.
//
// The returned result is non-nil whenever a session was created, including
// when err reports an aborted session (empty file, snapshot failure,
// cancellation). Row-level failures never produce an error.
func (s *Service) Import(ctx context.Context, req ImportRequest) (*ImportSessionResult, error) {
	return s.run(ctx, req, false)
}

// Preview classifies every row exactly as Import would but writes nothing to
// the store or the audit sink.
func (s *Service) Preview(ctx context.Context, req ImportRequest) (*ImportSessionResult, error) {
	return s.run(ctx, req, true)
}

func (s *Service) run(ctx context.Context, req ImportRequest, dryRun bool) (*ImportSessionResult, error) {
	policy := req.Policy
	if policy == "" {
		policy = s.defaultPolicy
	}
	if _, ok := ParseDuplicatePolicy(string(policy)); !ok {
		return nil, fmt.Errorf("unknown duplicate policy %q", policy)
	}

	if s.limiter != nil {
		if err := s.limiter.Acquire(ctx); err != nil {
			return nil, err
		}
		defer s.limiter.Release()
	}

	if s.sessionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.sessionTimeout)
		defer cancel()
	}

	size := req.FileSize
	if size == 0 {
		size = int64(len(req.Text))
	}

	r := &importRun{
		svc:    s,
		policy: policy,
		dryRun: dryRun,
		sink:   s.sink,
		start:  time.Now(),
		session: ImportSession{
			ID:               s.newID(),
			Filename:         req.Filename,
			FileSize:         size,
			ValidationErrors: []string{},
			Status:           SessionRunning,
			Policy:           policy,
			StartedAt:        s.now(),
			Notes:            req.Notes,
		},
	}
	if dryRun {
		r.sink = discardSink{}
	}
	r.log = logging.WithFields(ctx, "session_id", r.session.ID, "file", req.Filename, "dry_run", dryRun)

	if err := r.sink.CreateSession(ctx, r.session); err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	r.log.Info("import started", "policy", policy, "bytes", size)

	runErr := r.execute(ctx, req.Text)
	finalizeErr := r.finalize(context.WithoutCancel(ctx), runErr)

	result := &ImportSessionResult{Session: r.session, Entries: r.entries, DryRun: dryRun}
	if runErr != nil {
		return result, runErr
	}
	return result, finalizeErr
}

type importRun struct {
	svc     *Service
	policy  DuplicatePolicy
	dryRun  bool
	sink    AuditSink
	log     *slog.Logger
	start   time.Time
	session ImportSession
	entries []ImportAuditLogEntry
}

func (r *importRun) execute(ctx context.Context, text string) error {
	table := ParseTable(text)
	if table.Header == nil || len(table.Rows) == 0 {
		return ErrEmptyFile
	}
	r.session.TotalTests = len(table.Rows)

	existing, err := r.svc.store.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("snapshot store: %w", err)
	}
	index := NewDuplicateIndex(existing)

	if unknown := UnknownColumns(table.Header); len(unknown) > 0 {
		r.log.Debug("ignoring unknown columns", "columns", unknown)
	}

	for i, raw := range table.Rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		entry := r.processRow(ctx, i+1, table.Header, raw, index)
		r.record(ctx, entry)
	}
	return nil
}

func (r *importRun) processRow(ctx context.Context, seq int, header []string, raw RawRow, index *DuplicateIndex) ImportAuditLogEntry {
	started := time.Now()
	row := NormalizeRow(header, raw)

	entry := ImportAuditLogEntry{
		ID:             r.svc.newID(),
		SessionID:      r.session.ID,
		Sequence:       seq,
		OriginalTestID: optional(strings.TrimSpace(row[FieldID])),
		OriginalData:   raw,
	}

	rec, verrs := r.svc.validator.Validate(row)
	if verrs != nil {
		entry.Operation = OpError
		entry.Status = StatusValidationError
		entry.ValidationErrors = verrs
	} else {
		r.decide(ctx, &entry, rec, index)
	}

	entry.Timestamp = r.svc.now()
	entry.ProcessingTimeMs = float64(time.Since(started).Microseconds()) / 1000
	return entry
}

// decide classifies rec and applies the resulting operation.
func (r *importRun) decide(ctx context.Context, entry *ImportAuditLogEntry, rec TestRecord, index *DuplicateIndex) {
	check := index.Check(rec)

	switch {
	case check.Unique():
		entry.Operation = OpInsert
	case r.policy == PolicyUpdate:
		entry.Operation = OpUpdate
		entry.DuplicateReason = check.Reason()
		entry.DuplicateReasons = check.Reasons()
		if check.ByID && check.ByCPT && check.CPTOwnerID != rec.ID {
			entry.ProcessedData = &rec
			entry.Operation = OpError
			entry.Status = StatusFailed
			entry.ErrorMessage = Ptr(fmt.Sprintf("CPT code %s already belongs to test %s", Deref(rec.CPTCode), check.CPTOwnerID))
			return
		}
		if !check.ByID {
			rec.ID = check.CPTOwnerID
		}
	default:
		entry.Operation = OpSkip
		entry.Status = StatusDuplicate
		entry.DuplicateReason = check.Reason()
		entry.DuplicateReasons = check.Reasons()
		entry.ProcessedData = &rec
		if check.ByID {
			entry.TestID = Ptr(rec.ID)
		} else {
			entry.TestID = Ptr(check.CPTOwnerID)
		}
		return
	}

	entry.ProcessedData = &rec
	if err := r.apply(ctx, entry.Operation, rec); err != nil {
		r.log.Warn("store write failed", "row", entry.Sequence, "operation", entry.Operation, "error", err)
		entry.Operation = OpError
		entry.Status = StatusFailed
		entry.ErrorMessage = Ptr(err.Error())
		return
	}

	index.Add(rec)
	entry.Status = StatusSuccess
	entry.TestID = Ptr(rec.ID)
}

func (r *importRun) apply(ctx context.Context, op Operation, rec TestRecord) error {
	if r.dryRun {
		return nil
	}
	switch op {
	case OpInsert:
		return r.svc.store.Insert(ctx, rec)
	case OpUpdate:
		return r.svc.store.Update(ctx, rec)
	}
	return fmt.Errorf("unsupported operation %q", op)
}

// record appends entry to the result and the sink and updates the counts.
// A sink failure is logged; the entry stays in the returned result.
func (r *importRun) record(ctx context.Context, entry ImportAuditLogEntry) {
	switch entry.Status {
	case StatusSuccess:
		r.session.SuccessCount++
	case StatusDuplicate:
		r.session.DuplicateCount++
	case StatusValidationError:
		r.session.ErrorCount++
		r.session.ValidationErrors = append(r.session.ValidationErrors,
			fmt.Sprintf("Row %d: %s", entry.Sequence, entry.ValidationErrors.Error()))
	case StatusFailed:
		r.session.ErrorCount++
	}

	r.entries = append(r.entries, entry)
	if err := r.sink.AppendEntry(context.WithoutCancel(ctx), entry); err != nil {
		r.log.Error("append audit entry failed", "row", entry.Sequence, "error", err)
	}
	r.svc.observer.RowProcessed(entry.Operation, entry.Status, time.Duration(entry.ProcessingTimeMs*float64(time.Millisecond)))
}

// finalize computes the final status and persists the summary once.
func (r *importRun) finalize(ctx context.Context, runErr error) error {
	completed := r.svc.now()
	r.session.CompletedAt = &completed

	if runErr != nil {
		r.session.Status = SessionFailed
		r.addNote(abortNote(runErr, len(r.entries), r.session.TotalTests))
	} else {
		r.session.Status = DeriveStatus(r.session.SuccessCount, r.session.ErrorCount)
	}

	elapsed := time.Since(r.start)
	r.svc.observer.SessionFinished(r.session.Status, len(r.entries), elapsed)

	r.log.Info("import finished",
		"status", r.session.Status,
		"total", r.session.TotalTests,
		"success", r.session.SuccessCount,
		"errors", r.session.ErrorCount,
		"duplicates", r.session.DuplicateCount,
		"duration_ms", elapsed.Milliseconds(),
	)

	if err := r.sink.FinalizeSession(ctx, r.session); err != nil {
		r.log.Error("finalize session failed", "error", err)
		return fmt.Errorf("finalize session: %w", err)
	}
	return nil
}

func (r *importRun) addNote(note string) {
	if r.session.Notes == "" {
		r.session.Notes = note
		return
	}
	r.session.Notes += "; " + note
}

func abortNote(err error, processed, total int) string {
	switch {
	case errors.Is(err, ErrEmptyFile):
		return "file contains no data rows"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return fmt.Sprintf("aborted after %d of %d rows: %v", processed, total, err)
	default:
		return fmt.Sprintf("aborted: %v", err)
	}
}
