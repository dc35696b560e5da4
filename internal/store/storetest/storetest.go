// Package storetest checks a store against the catalog and audit contracts.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// Store is the full surface a backend provides.
type Store interface {
	core.TestStore
	core.AuditSink
	core.SessionReader
}

// Run exercises a fresh store returned by open.
func Run(t *testing.T, open func(t *testing.T) Store) {
	t.Run("Records", func(t *testing.T) { testRecords(t, open(t)) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open(t)) })
	t.Run("ImportRoundTrip", func(t *testing.T) { testImportRoundTrip(t, open(t)) })
}

func lab(id, cpt string) core.TestRecord {
	return core.TestRecord{
		ID:          id,
		Name:        "Test " + id,
		Category:    "Laboratory Tests",
		SubCategory: "Hematology",
		CPTCode:     core.Ptr(cpt),
	}
}

func testRecords(t *testing.T, s Store) {
	ctx := context.Background()

	got, err := s.Snapshot(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("Snapshot() on empty store = %v, %v", got, err)
	}

	b := lab("B", "85025")
	b.Notes = core.Ptr("fasting")
	for _, rec := range []core.TestRecord{b, lab("A", "85027")} {
		if err := s.Insert(ctx, rec); err != nil {
			t.Fatalf("Insert(%s) error = %v", rec.ID, err)
		}
	}
	if err := s.Insert(ctx, lab("A", "99999")); !errors.Is(err, core.ErrDuplicateID) {
		t.Errorf("Insert() duplicate error = %v, want ErrDuplicateID", err)
	}

	updated := lab("A", "85028")
	updated.Description = core.Ptr("updated")
	if err := s.Update(ctx, updated); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if err := s.Update(ctx, lab("Z", "11111")); !errors.Is(err, core.ErrRecordNotFound) {
		t.Errorf("Update() missing error = %v, want ErrRecordNotFound", err)
	}

	got, err = s.Snapshot(ctx)
	if err != nil {
		t.Fatalf("Snapshot() error = %v", err)
	}
	if len(got) != 2 || got[0].ID != "A" || got[1].ID != "B" {
		t.Fatalf("Snapshot() = %+v, want A, B", got)
	}
	if core.Deref(got[0].CPTCode) != "85028" || core.Deref(got[0].Description) != "updated" {
		t.Errorf("updated record = %+v", got[0])
	}
	if got[0].Notes != nil || core.Deref(got[1].Notes) != "fasting" {
		t.Errorf("optional fields not preserved: %+v", got)
	}
}

func testSessions(t *testing.T, s Store) {
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []string{"s1", "s2", "s3"} {
		sess := core.ImportSession{
			ID:               id,
			Filename:         id + ".csv",
			Status:           core.SessionRunning,
			Policy:           core.PolicySkip,
			StartedAt:        base.Add(time.Duration(i) * time.Minute),
			ValidationErrors: []string{},
		}
		if err := s.CreateSession(ctx, sess); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", id, err)
		}
	}

	list, err := s.ListSessions(ctx, 2)
	if err != nil {
		t.Fatalf("ListSessions() error = %v", err)
	}
	if len(list) != 2 || list[0].ID != "s3" || list[1].ID != "s2" {
		t.Errorf("ListSessions(2) = %+v, want s3, s2", list)
	}
	if all, _ := s.ListSessions(ctx, 0); len(all) != 3 {
		t.Errorf("ListSessions(0) = %d sessions, want 3", len(all))
	}

	if _, err := s.GetSession(ctx, "missing"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("GetSession() missing error = %v, want ErrSessionNotFound", err)
	}
	if _, err := s.ListEntries(ctx, "missing"); !errors.Is(err, core.ErrSessionNotFound) {
		t.Errorf("ListEntries() missing error = %v, want ErrSessionNotFound", err)
	}
	if err := s.AppendEntry(ctx, core.ImportAuditLogEntry{ID: "e", SessionID: "missing", Timestamp: base}); err == nil {
		t.Error("AppendEntry() for unknown session should fail")
	}

	done := base.Add(time.Hour)
	final := core.ImportSession{
		ID: "s1", Filename: "s1.csv", Status: core.SessionPartial, Policy: core.PolicySkip,
		StartedAt: base, CompletedAt: &done, TotalTests: 2, SuccessCount: 1, ErrorCount: 1,
		ValidationErrors: []string{"Row 2: name: Name is required"},
	}
	if err := s.FinalizeSession(ctx, final); err != nil {
		t.Fatalf("FinalizeSession() error = %v", err)
	}
	if err := s.FinalizeSession(ctx, final); err == nil {
		t.Error("second FinalizeSession() should fail")
	}

	got, err := s.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.Status != core.SessionPartial || got.CompletedAt == nil || !got.CompletedAt.Equal(done) {
		t.Errorf("finalized session = %+v", got)
	}
	if len(got.ValidationErrors) != 1 || got.SuccessCount != 1 || got.TotalTests != 2 {
		t.Errorf("finalized counts = %+v", got)
	}
}

func testImportRoundTrip(t *testing.T, s Store) {
	ctx := context.Background()
	if err := s.Insert(ctx, lab("TTES-LAB-HEM-85027", "85027")); err != nil {
		t.Fatalf("seed Insert() error = %v", err)
	}

	svc := core.NewService(s, s)
	text := "name,category,subCategory,cptCode\n" +
		"CBC,Laboratory Tests,Hematology,85027\n" +
		"Platelets,Laboratory Tests,Hematology,85049\n" +
		"Missing,,Hematology,\n"

	res, err := svc.Import(ctx, core.ImportRequest{Filename: "batch.csv", Text: text, FileSize: int64(len(text))})
	if err != nil {
		t.Fatalf("Import() error = %v", err)
	}

	stored, err := s.GetSession(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if stored.Status != core.SessionPartial || stored.SuccessCount != 1 || stored.ErrorCount != 1 || stored.DuplicateCount != 1 {
		t.Errorf("stored session = %+v", stored)
	}

	entries, err := s.ListEntries(ctx, res.Session.ID)
	if err != nil {
		t.Fatalf("ListEntries() error = %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries = %d, want 3", len(entries))
	}
	for i, e := range entries {
		if e.Sequence != i+1 {
			t.Errorf("entry %d sequence = %d", i, e.Sequence)
		}
		if e.Status != res.Entries[i].Status || e.Operation != res.Entries[i].Operation {
			t.Errorf("entry %d = %s/%s, want %s/%s", i, e.Operation, e.Status, res.Entries[i].Operation, res.Entries[i].Status)
		}
		if e.OriginalData["name"] != res.Entries[i].OriginalData["name"] {
			t.Errorf("entry %d original data = %v", i, e.OriginalData)
		}
	}

	dup := entries[0]
	if dup.DuplicateReason == nil || *dup.DuplicateReason != core.ReasonIDExists {
		t.Errorf("duplicate reason = %v", dup.DuplicateReason)
	}
	if len(dup.DuplicateReasons) != 2 || dup.DuplicateReasons[1] != core.ReasonCPTCodeExists {
		t.Errorf("duplicate reasons = %v", dup.DuplicateReasons)
	}
	if entries[1].ProcessedData == nil || entries[1].ProcessedData.Name != "Platelets" {
		t.Errorf("processed data = %+v", entries[1].ProcessedData)
	}
	if entries[2].ValidationErrors["category"] == "" {
		t.Errorf("validation errors = %v", entries[2].ValidationErrors)
	}

	snap, _ := s.Snapshot(ctx)
	if len(snap) != 2 {
		t.Errorf("Snapshot() after import = %d records, want 2", len(snap))
	}
}
