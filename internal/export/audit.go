package export

import (
	"strconv"
	"strings"
	"time"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

var auditHeader = []string{
	"Sequence", "Timestamp", "Operation", "Status", "Test ID", "Original Test ID",
	"Duplicate Reason", "Error", "Validation Errors", "Processing Time (ms)",
}

// AuditCSV renders a session's audit entries, one row per entry in
// sequence order as given.
func AuditCSV(entries []core.ImportAuditLogEntry) string {
	t := newTable(auditHeader...)
	for _, e := range entries {
		reason := ""
		if e.DuplicateReason != nil {
			reason = string(*e.DuplicateReason)
		}
		var verrs []string
		for _, field := range e.ValidationErrors.Fields() {
			verrs = append(verrs, field+": "+e.ValidationErrors[field])
		}
		t.row(
			strconv.Itoa(e.Sequence),
			e.Timestamp.UTC().Format(time.RFC3339),
			string(e.Operation),
			string(e.Status),
			core.Deref(e.TestID),
			core.Deref(e.OriginalTestID),
			reason,
			core.Deref(e.ErrorMessage),
			strings.Join(verrs, "; "),
			strconv.FormatFloat(e.ProcessingTimeMs, 'f', 3, 64),
		)
	}
	return t.String()
}
