package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Service runs import sessions against a TestStore and records them in an
// AuditSink. It holds no per-session state and is safe for concurrent use.
type Service struct {
	store TestStore
	sink  AuditSink

	validator      *Validator
	limiter        *ImportLimiter
	observer       Observer
	defaultPolicy  DuplicatePolicy
	sessionTimeout time.Duration

	now   func() time.Time
	newID func() string
}

// Option configures a Service.
type Option func(*Service)

// WithLimiter bounds concurrent sessions.
func WithLimiter(l *ImportLimiter) Option {
	return func(s *Service) { s.limiter = l }
}

// WithObserver receives row and session events.
func WithObserver(o Observer) Option {
	return func(s *Service) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithIDPrefix sets the prefix of generated test ids.
func WithIDPrefix(prefix string) Option {
	return func(s *Service) { s.validator = NewValidator(prefix) }
}

// WithDefaultPolicy sets the duplicate policy used when a request names none.
func WithDefaultPolicy(p DuplicatePolicy) Option {
	return func(s *Service) { s.defaultPolicy = p }
}

// WithSessionTimeout caps the duration of a single session.
func WithSessionTimeout(d time.Duration) Option {
	return func(s *Service) { s.sessionTimeout = d }
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithIDGenerator replaces uuid generation for session and entry ids.
func WithIDGenerator(gen func() string) Option {
	return func(s *Service) { s.newID = gen }
}

// NewService creates a Service. sink may be nil when sessions need not be
// persisted; results are still returned to the caller.
func NewService(store TestStore, sink AuditSink, opts ...Option) *Service {
	s := &Service{
		store:         store,
		sink:          sink,
		validator:     defaultValidator,
		observer:      nopObserver{},
		defaultPolicy: PolicySkip,
		now:           time.Now,
		newID:         uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.sink == nil {
		s.sink = discardSink{}
	}
	return s
}

// Limiter returns the configured limiter, or nil.
func (s *Service) Limiter() *ImportLimiter {
	return s.limiter
}

// RecordFilter narrows a record listing. Empty fields match everything.
type RecordFilter struct {
	Category    string
	SubCategory string
	IDs         []string
	Search      string
}

func (f RecordFilter) match(rec TestRecord) bool {
	if f.Category != "" && !strings.EqualFold(rec.Category, f.Category) {
		return false
	}
	if f.SubCategory != "" && !strings.EqualFold(rec.SubCategory, f.SubCategory) {
		return false
	}
	if len(f.IDs) > 0 {
		found := false
		for _, id := range f.IDs {
			if id == rec.ID {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(rec.Name), q) &&
			!strings.Contains(strings.ToLower(rec.ID), q) &&
			!strings.Contains(Deref(rec.CPTCode), f.Search) {
			return false
		}
	}
	return true
}

// Records returns store records matching filter, sorted by id.
func (s *Service) Records(ctx context.Context, filter RecordFilter) ([]TestRecord, error) {
	all, err := s.store.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot store: %w", err)
	}

	out := make([]TestRecord, 0, len(all))
	for _, rec := range all {
		if filter.match(rec) {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Sessions lists persisted sessions when the sink can be read back.
func (s *Service) Sessions(ctx context.Context, limit int) ([]ImportSession, error) {
	r, err := s.reader()
	if err != nil {
		return nil, err
	}
	return r.ListSessions(ctx, limit)
}

// Session returns one persisted session.
func (s *Service) Session(ctx context.Context, id string) (ImportSession, error) {
	r, err := s.reader()
	if err != nil {
		return ImportSession{}, err
	}
	return r.GetSession(ctx, id)
}

// SessionEntries returns the audit entries of a session in input order.
func (s *Service) SessionEntries(ctx context.Context, id string) ([]ImportAuditLogEntry, error) {
	r, err := s.reader()
	if err != nil {
		return nil, err
	}
	if _, err := r.GetSession(ctx, id); err != nil {
		return nil, err
	}
	return r.ListEntries(ctx, id)
}

func (s *Service) reader() (SessionReader, error) {
	r, ok := s.sink.(SessionReader)
	if !ok {
		return nil, fmt.Errorf("audit sink %T cannot list sessions", s.sink)
	}
	return r, nil
}

type discardSink struct{}

func (discardSink) CreateSession(context.Context, ImportSession) error { return nil }
func (discardSink) AppendEntry(context.Context, ImportAuditLogEntry) error { return nil }
func (discardSink) FinalizeSession(context.Context, ImportSession) error { return nil }
