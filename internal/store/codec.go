// Package store holds the column encoding shared by the SQL backends.
// Structured audit fields are stored as JSON documents.
package store

import (
	"encoding/json"
	"fmt"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// EntryDocs are the JSON-encoded columns of an audit entry.
type EntryDocs struct {
	ValidationErrors []byte
	OriginalData     []byte
	ProcessedData    []byte
	DuplicateReasons []byte
}

// EncodeEntry marshals the structured fields of e. Absent values encode
// as nil so the column stores NULL.
func EncodeEntry(e core.ImportAuditLogEntry) (EntryDocs, error) {
	var docs EntryDocs
	var err error
	if len(e.ValidationErrors) > 0 {
		if docs.ValidationErrors, err = json.Marshal(e.ValidationErrors); err != nil {
			return docs, fmt.Errorf("encode validation errors: %w", err)
		}
	}
	if e.OriginalData != nil {
		if docs.OriginalData, err = json.Marshal(e.OriginalData); err != nil {
			return docs, fmt.Errorf("encode original data: %w", err)
		}
	}
	if e.ProcessedData != nil {
		if docs.ProcessedData, err = json.Marshal(e.ProcessedData); err != nil {
			return docs, fmt.Errorf("encode processed data: %w", err)
		}
	}
	if len(e.DuplicateReasons) > 0 {
		if docs.DuplicateReasons, err = json.Marshal(e.DuplicateReasons); err != nil {
			return docs, fmt.Errorf("encode duplicate reasons: %w", err)
		}
	}
	return docs, nil
}

// DecodeEntry fills the structured fields of e from docs.
func DecodeEntry(docs EntryDocs, e *core.ImportAuditLogEntry) error {
	if len(docs.ValidationErrors) > 0 {
		if err := json.Unmarshal(docs.ValidationErrors, &e.ValidationErrors); err != nil {
			return fmt.Errorf("decode validation errors: %w", err)
		}
	}
	if len(docs.OriginalData) > 0 {
		if err := json.Unmarshal(docs.OriginalData, &e.OriginalData); err != nil {
			return fmt.Errorf("decode original data: %w", err)
		}
	}
	if len(docs.ProcessedData) > 0 {
		var rec core.TestRecord
		if err := json.Unmarshal(docs.ProcessedData, &rec); err != nil {
			return fmt.Errorf("decode processed data: %w", err)
		}
		e.ProcessedData = &rec
	}
	if len(docs.DuplicateReasons) > 0 {
		if err := json.Unmarshal(docs.DuplicateReasons, &e.DuplicateReasons); err != nil {
			return fmt.Errorf("decode duplicate reasons: %w", err)
		}
	}
	return nil
}

// EncodeStrings marshals a session's row-level error summaries.
func EncodeStrings(s []string) ([]byte, error) {
	if s == nil {
		s = []string{}
	}
	return json.Marshal(s)
}

// DecodeStrings is the inverse of EncodeStrings. Empty input yields an
// empty, non-nil slice.
func DecodeStrings(b []byte) ([]string, error) {
	out := []string{}
	if len(b) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ReasonPtr converts a nullable column value to a duplicate reason.
func ReasonPtr(s *string) *core.DuplicateReason {
	if s == nil {
		return nil
	}
	r := core.DuplicateReason(*s)
	return &r
}

// ReasonString is the inverse of ReasonPtr.
func ReasonString(r *core.DuplicateReason) *string {
	if r == nil {
		return nil
	}
	s := string(*r)
	return &s
}
