// Package sqlite persists catalog records and import audit data in a SQLite
// file using the pure Go modernc driver.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/store"
)

//go:embed schema.sql
var schema string

// timeLayout is fixed width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements core.TestStore, core.AuditSink and core.SessionReader.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path and applies the schema.
func Open(ctx context.Context, path string) (*Store, error) {
	if path == "" {
		path = "testcatalog.db"
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create dirs: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// A single connection keeps pragmas in effect and serializes writers.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

const recordCols = `id, name, category, sub_category, cpt_code, loinc_code, snomed_code, description, notes`

func (s *Store) Snapshot(ctx context.Context) ([]core.TestRecord, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+recordCols+` FROM test_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []core.TestRecord{}
	for rows.Next() {
		var r core.TestRecord
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.SubCategory,
			&r.CPTCode, &r.LOINCCode, &r.SNOMEDCode, &r.Description, &r.Notes); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, rec core.TestRecord) error {
	now := s.now().UTC().Format(timeLayout)
	_, err := s.db.ExecContext(ctx, `INSERT INTO test_records (`+recordCols+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Name, rec.Category, rec.SubCategory,
		rec.CPTCode, rec.LOINCCode, rec.SNOMEDCode, rec.Description, rec.Notes, now, now)
	if isKeyViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateID, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec core.TestRecord) error {
	res, err := s.db.ExecContext(ctx, `UPDATE test_records SET
		name = ?, category = ?, sub_category = ?, cpt_code = ?, loinc_code = ?,
		snomed_code = ?, description = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		rec.Name, rec.Category, rec.SubCategory, rec.CPTCode, rec.LOINCCode,
		rec.SNOMEDCode, rec.Description, rec.Notes, s.now().UTC().Format(timeLayout), rec.ID)
	if err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, rec.ID)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess core.ImportSession) error {
	verrs, err := store.EncodeStrings(sess.ValidationErrors)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO import_sessions
		(id, filename, file_size, total_tests, success_count, error_count, duplicate_count,
		 validation_errors, status, duplicate_policy, started_at, completed_at, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sess.ID, sess.Filename, sess.FileSize, sess.TotalTests, sess.SuccessCount, sess.ErrorCount,
		sess.DuplicateCount, string(verrs), string(sess.Status), string(sess.Policy),
		sess.StartedAt.UTC().Format(timeLayout), formatTime(sess.CompletedAt), sess.Notes)
	if err != nil {
		return fmt.Errorf("create session %s: %w", sess.ID, err)
	}
	return nil
}

func (s *Store) AppendEntry(ctx context.Context, e core.ImportAuditLogEntry) error {
	docs, err := store.EncodeEntry(e)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO import_audit_log
		(id, session_id, sequence, test_id, original_test_id, operation, status, error_message,
		 validation_errors, original_data, processed_data, duplicate_reason, duplicate_reasons,
		 processing_time_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.SessionID, e.Sequence, e.TestID, e.OriginalTestID, string(e.Operation), string(e.Status),
		e.ErrorMessage, text(docs.ValidationErrors), text(docs.OriginalData), text(docs.ProcessedData),
		store.ReasonString(e.DuplicateReason), text(docs.DuplicateReasons),
		e.ProcessingTimeMs, e.Timestamp.UTC().Format(timeLayout))
	if err != nil {
		return fmt.Errorf("append entry %d to session %s: %w", e.Sequence, e.SessionID, err)
	}
	return nil
}

func (s *Store) FinalizeSession(ctx context.Context, sess core.ImportSession) error {
	verrs, err := store.EncodeStrings(sess.ValidationErrors)
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, `UPDATE import_sessions SET
		total_tests = ?, success_count = ?, error_count = ?, duplicate_count = ?,
		validation_errors = ?, status = ?, completed_at = ?, notes = ?
		WHERE id = ? AND completed_at IS NULL`,
		sess.TotalTests, sess.SuccessCount, sess.ErrorCount, sess.DuplicateCount,
		string(verrs), string(sess.Status), formatTime(sess.CompletedAt), sess.Notes, sess.ID)
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", sess.ID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finalize session %s: %w", sess.ID, core.ErrSessionNotFound)
	}
	return nil
}

const sessionCols = `id, filename, file_size, total_tests, success_count, error_count, duplicate_count,
	validation_errors, status, duplicate_policy, started_at, completed_at, notes`

func (s *Store) ListSessions(ctx context.Context, limit int) ([]core.ImportSession, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+sessionCols+` FROM import_sessions
		ORDER BY started_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []core.ImportSession{}
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	return out, rows.Err()
}

func (s *Store) GetSession(ctx context.Context, id string) (core.ImportSession, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sessionCols+` FROM import_sessions WHERE id = ?`, id)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return core.ImportSession{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess, err
}

func (s *Store) ListEntries(ctx context.Context, sessionID string) ([]core.ImportAuditLogEntry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id, session_id, sequence, test_id, original_test_id,
		operation, status, error_message, validation_errors, original_data, processed_data,
		duplicate_reason, duplicate_reasons, processing_time_ms, created_at
		FROM import_audit_log WHERE session_id = ? ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer func() { _ = rows.Close() }()

	out := []core.ImportAuditLogEntry{}
	for rows.Next() {
		var (
			e         core.ImportAuditLogEntry
			op, st    string
			reason    *string
			created   string
			verrs     sql.NullString
			original  sql.NullString
			processed sql.NullString
			reasons   sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Sequence, &e.TestID, &e.OriginalTestID,
			&op, &st, &e.ErrorMessage, &verrs, &original, &processed,
			&reason, &reasons, &e.ProcessingTimeMs, &created); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		e.Operation = core.Operation(op)
		e.Status = core.EntryStatus(st)
		e.DuplicateReason = store.ReasonPtr(reason)
		if e.Timestamp, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("parse entry timestamp: %w", err)
		}
		docs := store.EntryDocs{
			ValidationErrors: []byte(verrs.String),
			OriginalData:     []byte(original.String),
			ProcessedData:    []byte(processed.String),
			DuplicateReasons: []byte(reasons.String),
		}
		if err := store.DecodeEntry(docs, &e); err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (core.ImportSession, error) {
	var (
		sess      core.ImportSession
		verrs     string
		status    string
		policy    string
		started   string
		completed sql.NullString
	)
	if err := row.Scan(&sess.ID, &sess.Filename, &sess.FileSize, &sess.TotalTests,
		&sess.SuccessCount, &sess.ErrorCount, &sess.DuplicateCount, &verrs,
		&status, &policy, &started, &completed, &sess.Notes); err != nil {
		return sess, err
	}
	sess.Status = core.SessionStatus(status)
	sess.Policy = core.DuplicatePolicy(policy)

	var err error
	if sess.ValidationErrors, err = store.DecodeStrings([]byte(verrs)); err != nil {
		return sess, fmt.Errorf("decode session errors: %w", err)
	}
	if sess.StartedAt, err = time.Parse(timeLayout, started); err != nil {
		return sess, fmt.Errorf("parse started_at: %w", err)
	}
	if completed.Valid {
		t, err := time.Parse(timeLayout, completed.String)
		if err != nil {
			return sess, fmt.Errorf("parse completed_at: %w", err)
		}
		sess.CompletedAt = &t
	}
	return sess, nil
}

func formatTime(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(timeLayout)
	return &s
}

func text(b []byte) *string {
	if b == nil {
		return nil
	}
	s := string(b)
	return &s
}

func isKeyViolation(err error) bool {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT:
		return true
	}
	return false
}
