package core

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestMapError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		wantCode string
	}{
		{"nil error returns empty", nil, ""},
		{"wrapped duplicate id sentinel", fmt.Errorf("insert X: %w", ErrDuplicateID), "DB001"},
		{"postgres duplicate key text", errors.New("ERROR: duplicate key value violates unique constraint"), "DB001"},
		{"unique constraint", errors.New("UNIQUE constraint failed: tests.cpt_code"), "DB002"},
		{"connection refused", errors.New("dial tcp: connection refused"), "DB004"},
		{"sqlite busy", errors.New("database is locked (5) (SQLITE_BUSY)"), "DB007"},
		{"empty file sentinel", ErrEmptyFile, "FILE005"},
		{"file too large", fmt.Errorf("%w: exceeds 10 bytes", ErrFileTooLarge), "FILE001"},
		{"busy limiter", ErrTooManyImports, "IMP002"},
		{"session not found", ErrSessionNotFound, "IMP003"},
		{"cancelled", context.Canceled, "IMP004"},
		{"deadline", context.DeadlineExceeded, "IMP005"},
		{"cpt message", errors.New("cptCode: CPT code must be 5 digits"), "VAL001"},
		{"unknown export format", fmt.Errorf("%w %q", ErrUnknownFormat, "xml"), "EXP001"},
		{"unmatched falls back", errors.New("something odd"), "ERR000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := MapError(tt.err).Code; got != tt.wantCode {
				t.Errorf("MapError(%v).Code = %q, want %q", tt.err, got, tt.wantCode)
			}
		})
	}
}

func TestFormatUserError(t *testing.T) {
	got := FormatUserError(ErrEmptyFile)
	want := "The uploaded file is empty (Code: FILE005). Upload a CSV file with a header row and data rows"
	if got != want {
		t.Errorf("FormatUserError() = %q, want %q", got, want)
	}
	if FormatUserError(nil) != "" {
		t.Error("FormatUserError(nil) should be empty")
	}
}

func TestIsUserFacing(t *testing.T) {
	if IsUserFacing(nil) {
		t.Error("nil should not be user facing")
	}
	if !IsUserFacing(ErrTooManyImports) {
		t.Error("ErrTooManyImports should be user facing")
	}
	if IsUserFacing(errors.New("segfault")) {
		t.Error("unknown errors should not be user facing")
	}
}
