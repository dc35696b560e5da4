package core

// error_messages.go maps technical errors to coded user messages.
//
// Codes are grouped by area:
//
//	DB001-DB099     store errors (duplicate ids, constraints, connectivity)
//	VAL001-VAL099   row validation
//	FILE001-FILE099 input file problems
//	IMP001-IMP099   import session handling
//	EXP001-EXP099   export requests
//	REQ001          malformed request parameters
//	RATE001         request throttling
//	ERR000          fallback
//
// Sentinel errors are matched with errors.Is before any text pattern. Text
// patterns match case-insensitively with strings.Contains and the first match
// wins, so specific patterns precede general ones.

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrEmptyFile       = errors.New("empty file: no header row or data rows")
	ErrFileTooLarge    = errors.New("file too large")
	ErrTooManyImports  = errors.New("too many concurrent imports, please try again later")
	ErrSessionNotFound = errors.New("import session not found")
	ErrRecordNotFound  = errors.New("test record not found")
	ErrDuplicateID     = errors.New("duplicate key: test id already exists")
	ErrUnknownFormat   = errors.New("unknown export format")
)

// UserMessage provides user-friendly error information with actionable guidance.
type UserMessage struct {
	Message string `json:"message"`
	Action  string `json:"action"`
	Code    string `json:"code"`
}

type sentinelMessage struct {
	err error
	msg UserMessage
}

var sentinelMessages = []sentinelMessage{
	{ErrDuplicateID, UserMessage{"A test with this ID already exists", "Review the audit log for the conflicting row", "DB001"}},
	{ErrRecordNotFound, UserMessage{"The test record does not exist", "Refresh the catalog and try again", "DB008"}},
	{ErrFileTooLarge, UserMessage{"File exceeds maximum size limit", "Split the file into smaller chunks", "FILE001"}},
	{ErrEmptyFile, UserMessage{"The uploaded file is empty", "Upload a CSV file with a header row and data rows", "FILE005"}},
	{ErrTooManyImports, UserMessage{"Too many imports in progress", "Please wait a moment and try again", "IMP002"}},
	{ErrSessionNotFound, UserMessage{"Import session not found", "Check the session id and try again", "IMP003"}},
	{ErrUnknownFormat, UserMessage{"Unknown export format", "Choose standard, legacy, consolidated, json or fhir", "EXP001"}},
}

type errorPattern struct {
	pattern string
	msg     UserMessage
}

var errorPatterns = []errorPattern{
	// Store constraint errors
	{"duplicate key", UserMessage{"A test with this ID already exists", "Review the audit log for the conflicting row", "DB001"}},
	{"unique constraint", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"violates unique", UserMessage{"This value must be unique but already exists", "Check for duplicate entries in your CSV", "DB002"}},
	{"check constraint", UserMessage{"A value failed a store constraint", "Verify category and code columns", "DB003"}},

	// Connectivity
	{"connection refused", UserMessage{"Unable to connect to database", "Please try again in a few moments", "DB004"}},
	{"connection reset", UserMessage{"Database connection was interrupted", "Please try again", "DB005"}},
	{"database is locked", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},
	{"deadlock", UserMessage{"Database was busy with conflicting operations", "Please try again", "DB007"}},

	// Cancellation before generic timeout
	{"context canceled", UserMessage{"Request was cancelled", "Please try again", "IMP004"}},
	{"context deadline exceeded", UserMessage{"Request timed out", "Try importing a smaller file", "IMP005"}},
	{"timeout", UserMessage{"Operation timed out", "Try importing a smaller file or try again later", "DB006"}},

	// Validation
	{"cpt code must be", UserMessage{"Invalid CPT code", "CPT codes are exactly 5 digits", "VAL001"}},
	{"loinc code must be", UserMessage{"Invalid LOINC code", "Use the 12345-6 format", "VAL002"}},
	{"is required", UserMessage{"Required field is empty", "Ensure name, category and subcategory have values", "VAL003"}},
	{"is not recognized", UserMessage{"Unknown category", "Use one of the catalog categories", "VAL004"}},
	{"is not valid for category", UserMessage{"Subcategory does not belong to category", "Check the category and subcategory pairing", "VAL005"}},
	{"snomed code must be", UserMessage{"Invalid SNOMED code", "SNOMED codes are numeric", "VAL006"}},

	// Files
	{"invalid csv", UserMessage{"File is not a valid CSV", "Ensure file is comma-separated with a header row", "FILE002"}},
	{"encoding error", UserMessage{"File contains invalid characters", "Save file as UTF-8 encoding", "FILE003"}},
	{"no file provided", UserMessage{"No file was selected", "Please select a CSV file to import", "FILE004"}},

	// Import requests
	{"unknown duplicate policy", UserMessage{"Unknown duplicate policy", "Use skip or update", "IMP006"}},

	// Exports
	{"invalid export request", UserMessage{"Export request parameters are invalid", "Check the format and flags", "EXP002"}},
	{"publish export", UserMessage{"Export could not be written to storage", "Check the export destination configuration", "EXP003"}},

	{"invalid request", UserMessage{"Request parameters are invalid", "Check the query parameters and try again", "REQ001"}},
	{"rate limit", UserMessage{"Too many requests", "Please wait a moment before trying again", "RATE001"}},
}

var defaultMessage = UserMessage{
	Message: "An unexpected error occurred",
	Action:  "Please try again or contact support",
	Code:    "ERR000",
}

// MapError converts a technical error to a user-friendly message.
// Returns the zero UserMessage for a nil error and ERR000 when nothing matches.
func MapError(err error) UserMessage {
	if err == nil {
		return UserMessage{}
	}

	for _, sm := range sentinelMessages {
		if errors.Is(err, sm.err) {
			return sm.msg
		}
	}

	errStr := strings.ToLower(err.Error())
	for _, ep := range errorPatterns {
		if strings.Contains(errStr, ep.pattern) {
			return ep.msg
		}
	}

	return defaultMessage
}

// FormatUserError renders "Message (Code: XXX). Action".
func FormatUserError(err error) string {
	msg := MapError(err)
	if msg.Message == "" {
		return ""
	}
	return fmt.Sprintf("%s (Code: %s). %s", msg.Message, msg.Code, msg.Action)
}

// IsUserFacing reports whether err maps to a specific code rather than ERR000.
func IsUserFacing(err error) bool {
	if err == nil {
		return false
	}
	return MapError(err).Code != defaultMessage.Code
}
