// Package postgres persists catalog records and import audit data in
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/store"
)

//go:embed schema.sql
var Schema string

const uniqueViolation = "23505"

// querier is satisfied by *pgxpool.Pool, *pgxpool.Conn and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PoolConfig controls connection pool sizing.
type PoolConfig struct {
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
	MaxConnIdleTime time.Duration
}

// NewPool creates and pings a pool for databaseURL.
func NewPool(ctx context.Context, databaseURL string, pc PoolConfig) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	if pc.MaxConns > 0 {
		cfg.MaxConns = pc.MaxConns
	}
	if pc.MinConns > 0 {
		cfg.MinConns = pc.MinConns
	}
	if pc.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = pc.MaxConnLifetime
	}
	if pc.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = pc.MaxConnIdleTime
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return pool, nil
}

// Store implements core.TestStore, core.AuditSink and core.SessionReader.
type Store struct {
	db querier
}

// New wraps db. Call Migrate once before use on a fresh database.
func New(db querier) *Store {
	return &Store{db: db}
}

// Migrate applies the schema. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

const recordCols = `id, name, category, sub_category, cpt_code, loinc_code, snomed_code, description, notes`

func (s *Store) Snapshot(ctx context.Context) ([]core.TestRecord, error) {
	rows, err := s.db.Query(ctx, `SELECT `+recordCols+` FROM test_records ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("select records: %w", err)
	}
	defer rows.Close()

	out := []core.TestRecord{}
	for rows.Next() {
		var (
			r                  core.TestRecord
			cpt, loinc, snomed pgtype.Text
			description, notes pgtype.Text
		)
		if err := rows.Scan(&r.ID, &r.Name, &r.Category, &r.SubCategory,
			&cpt, &loinc, &snomed, &description, &notes); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.CPTCode = fromPgText(cpt)
		r.LOINCCode = fromPgText(loinc)
		r.SNOMEDCode = fromPgText(snomed)
		r.Description = fromPgText(description)
		r.Notes = fromPgText(notes)
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Insert(ctx context.Context, rec core.TestRecord) error {
	_, err := s.db.Exec(ctx, `INSERT INTO test_records (`+recordCols+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.ID, rec.Name, rec.Category, rec.SubCategory,
		toPgText(rec.CPTCode), toPgText(rec.LOINCCode), toPgText(rec.SNOMEDCode),
		toPgText(rec.Description), toPgText(rec.Notes))
	if isUniqueViolation(err) {
		return fmt.Errorf("%w: %s", core.ErrDuplicateID, rec.ID)
	}
	if err != nil {
		return fmt.Errorf("insert record %s: %w", rec.ID, err)
	}
	return nil
}

func (s *Store) Update(ctx context.Context, rec core.TestRecord) error {
	tag, err := s.db.Exec(ctx, `UPDATE test_records SET
		name = $2, category = $3, sub_category = $4, cpt_code = $5, loinc_code = $6,
		snomed_code = $7, description = $8, notes = $9, updated_at = NOW()
		WHERE id = $1`,
		rec.ID, rec.Name, rec.Category, rec.SubCategory,
		toPgText(rec.CPTCode), toPgText(rec.LOINCCode), toPgText(rec.SNOMEDCode),
		toPgText(rec.Description), toPgText(rec.Notes))
	if err != nil {
		return fmt.Errorf("update record %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", core.ErrRecordNotFound, rec.ID)
	}
	return nil
}

func (s *Store) CreateSession(ctx context.Context, sess core.ImportSession) error {
	verrs, err := store.EncodeStrings(sess.ValidationErrors)
	if err != nil {
		return err
	}
	_, err = s.db.Exec(ctx, `INSERT INTO import_sessions
		(id, filename, file_size, total_tests, success_count, error_count, duplicate_count,
		 validation_errors, status, duplicate_policy, started_at, completed_at, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sess.ID, sess.Filename, sess.FileSize, sess.TotalTests, sess.SuccessCount, sess.ErrorCount,
		sess.DuplicateCount, verrs, string(sess.Status), string(sess.Policy),
		sess.StartedAt, toPgTimestamptz(sess.CompletedAt), sess.Notes)
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
	_, err = s.db.Exec(ctx, `INSERT INTO import_audit_log
		(id, session_id, sequence, test_id, original_test_id, operation, status, error_message,
		 validation_errors, original_data, processed_data, duplicate_reason, duplicate_reasons,
		 processing_time_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		e.ID, e.SessionID, e.Sequence, toPgText(e.TestID), toPgText(e.OriginalTestID),
		string(e.Operation), string(e.Status), toPgText(e.ErrorMessage),
		docs.ValidationErrors, docs.OriginalData, docs.ProcessedData,
		toPgText(store.ReasonString(e.DuplicateReason)), docs.DuplicateReasons,
		e.ProcessingTimeMs, e.Timestamp)
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
	tag, err := s.db.Exec(ctx, `UPDATE import_sessions SET
		total_tests = $2, success_count = $3, error_count = $4, duplicate_count = $5,
		validation_errors = $6, status = $7, completed_at = $8, notes = $9
		WHERE id = $1 AND completed_at IS NULL`,
		sess.ID, sess.TotalTests, sess.SuccessCount, sess.ErrorCount, sess.DuplicateCount,
		verrs, string(sess.Status), toPgTimestamptz(sess.CompletedAt), sess.Notes)
	if err != nil {
		return fmt.Errorf("finalize session %s: %w", sess.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finalize session %s: %w", sess.ID, core.ErrSessionNotFound)
	}
	return nil
}

const sessionCols = `id, filename, file_size, total_tests, success_count, error_count, duplicate_count,
	validation_errors, status, duplicate_policy, started_at, completed_at, notes`

func (s *Store) ListSessions(ctx context.Context, limit int) ([]core.ImportSession, error) {
	query := `SELECT ` + sessionCols + ` FROM import_sessions ORDER BY started_at DESC, id DESC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select sessions: %w", err)
	}
	defer rows.Close()

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
	sess, err := scanSession(s.db.QueryRow(ctx, `SELECT `+sessionCols+` FROM import_sessions WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return core.ImportSession{}, fmt.Errorf("%w: %s", core.ErrSessionNotFound, id)
	}
	return sess, err
}

func (s *Store) ListEntries(ctx context.Context, sessionID string) ([]core.ImportAuditLogEntry, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.db.Query(ctx, `SELECT id, session_id, sequence, test_id, original_test_id,
		operation, status, error_message, validation_errors, original_data, processed_data,
		duplicate_reason, duplicate_reasons, processing_time_ms, created_at
		FROM import_audit_log WHERE session_id = $1 ORDER BY sequence`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("select entries: %w", err)
	}
	defer rows.Close()

	out := []core.ImportAuditLogEntry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func scanSession(row pgx.Row) (core.ImportSession, error) {
	var (
		sess      core.ImportSession
		verrs     []byte
		status    string
		policy    string
		completed pgtype.Timestamptz
	)
	if err := row.Scan(&sess.ID, &sess.Filename, &sess.FileSize, &sess.TotalTests,
		&sess.SuccessCount, &sess.ErrorCount, &sess.DuplicateCount, &verrs,
		&status, &policy, &sess.StartedAt, &completed, &sess.Notes); err != nil {
		return sess, err
	}
	sess.Status = core.SessionStatus(status)
	sess.Policy = core.DuplicatePolicy(policy)
	sess.CompletedAt = fromPgTimestamptz(completed)

	var err error
	if sess.ValidationErrors, err = store.DecodeStrings(verrs); err != nil {
		return sess, fmt.Errorf("decode session errors: %w", err)
	}
	return sess, nil
}

func scanEntry(row pgx.Row) (core.ImportAuditLogEntry, error) {
	var (
		e                  core.ImportAuditLogEntry
		op, status         string
		testID, originalID pgtype.Text
		errMsg, reason     pgtype.Text
		docs               store.EntryDocs
	)
	if err := row.Scan(&e.ID, &e.SessionID, &e.Sequence, &testID, &originalID,
		&op, &status, &errMsg, &docs.ValidationErrors, &docs.OriginalData, &docs.ProcessedData,
		&reason, &docs.DuplicateReasons, &e.ProcessingTimeMs, &e.Timestamp); err != nil {
		return e, fmt.Errorf("scan entry: %w", err)
	}
	e.Operation = core.Operation(op)
	e.Status = core.EntryStatus(status)
	e.TestID = fromPgText(testID)
	e.OriginalTestID = fromPgText(originalID)
	e.ErrorMessage = fromPgText(errMsg)
	e.DuplicateReason = store.ReasonPtr(fromPgText(reason))
	if err := store.DecodeEntry(docs, &e); err != nil {
		return e, err
	}
	return e, nil
}

// Helper functions for type conversion

func toPgText(s *string) pgtype.Text {
	if s == nil {
		return pgtype.Text{Valid: false}
	}
	return pgtype.Text{String: *s, Valid: true}
}

func fromPgText(t pgtype.Text) *string {
	if !t.Valid {
		return nil
	}
	s := t.String
	return &s
}

func toPgTimestamptz(t *time.Time) pgtype.Timestamptz {
	if t == nil {
		return pgtype.Timestamptz{Valid: false}
	}
	return pgtype.Timestamptz{Time: *t, Valid: true}
}

func fromPgTimestamptz(t pgtype.Timestamptz) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
