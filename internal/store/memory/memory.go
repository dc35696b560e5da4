// Package memory holds catalog records and import audit data in process memory.
// It backs the server when STORE_DRIVER=memory and serves as a reference
// implementation of the store contracts.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// Store implements core.TestStore, core.AuditSink and core.SessionReader.
type Store struct {
	mu       sync.RWMutex
	records  map[string]core.TestRecord
	sessions map[string]core.ImportSession
	order    []string
	entries  map[string][]core.ImportAuditLogEntry
}

// New returns a store seeded with records.
func New(records ...core.TestRecord) *Store {
	s := &Store{
		records:  make(map[string]core.TestRecord, len(records)),
		sessions: make(map[string]core.ImportSession),
		entries:  make(map[string][]core.ImportAuditLogEntry),
	}
	for _, rec := range records {
		s.records[rec.ID] = rec
	}
	return s
}

// Snapshot returns all records sorted by id.
func (s *Store) Snapshot(ctx context.Context) ([]core.TestRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.TestRecord, 0, len(s.records))
	for _, rec := range s.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Insert adds rec, failing with core.ErrDuplicateID if the id exists.
func (s *Store) Insert(ctx context.Context, rec core.TestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; exists {
		return fmt.Errorf("insert %s: %w", rec.ID, core.ErrDuplicateID)
	}
	s.records[rec.ID] = rec
	return nil
}

// Update replaces the record with rec.ID.
func (s *Store) Update(ctx context.Context, rec core.TestRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.records[rec.ID]; !exists {
		return fmt.Errorf("update %s: %w", rec.ID, core.ErrRecordNotFound)
	}
	s.records[rec.ID] = rec
	return nil
}

// CreateSession stores the provisional session.
func (s *Store) CreateSession(_ context.Context, session core.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[session.ID]; exists {
		return fmt.Errorf("session %s already exists", session.ID)
	}
	s.sessions[session.ID] = session
	s.order = append(s.order, session.ID)
	return nil
}

// AppendEntry adds an entry to its session's audit trail.
func (s *Store) AppendEntry(_ context.Context, entry core.ImportAuditLogEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.sessions[entry.SessionID]; !exists {
		return fmt.Errorf("append entry: %w", core.ErrSessionNotFound)
	}
	s.entries[entry.SessionID] = append(s.entries[entry.SessionID], entry)
	return nil
}

// FinalizeSession records the final summary. A session finalizes once.
func (s *Store) FinalizeSession(_ context.Context, session core.ImportSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev, exists := s.sessions[session.ID]
	if !exists {
		return fmt.Errorf("finalize: %w", core.ErrSessionNotFound)
	}
	if prev.CompletedAt != nil {
		return fmt.Errorf("session %s already finalized", session.ID)
	}
	s.sessions[session.ID] = session
	return nil
}

// ListSessions returns sessions newest first. limit <= 0 returns all.
func (s *Store) ListSessions(_ context.Context, limit int) ([]core.ImportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]core.ImportSession, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		out = append(out, s.sessions[s.order[i]])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// GetSession returns one session.
func (s *Store) GetSession(_ context.Context, id string) (core.ImportSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[id]
	if !ok {
		return core.ImportSession{}, core.ErrSessionNotFound
	}
	return session, nil
}

// ListEntries returns a copy of a session's audit entries in input order.
func (s *Store) ListEntries(_ context.Context, sessionID string) ([]core.ImportAuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.sessions[sessionID]; !ok {
		return nil, core.ErrSessionNotFound
	}
	entries := s.entries[sessionID]
	out := make([]core.ImportAuditLogEntry, len(entries))
	copy(out, entries)
	return out, nil
}
