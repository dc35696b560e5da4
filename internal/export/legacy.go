package export

import "github.com/JonMunkholm/testcatalog/internal/core"

// Legacy renders the pre-split layout: the Standard columns without the
// baseCptCode and cptSuffix pair. Older consumers read it byte-for-byte.
func Legacy(records []core.TestRecord) string {
	t := newTable(core.CanonicalFields...)
	for _, rec := range records {
		fields := make([]string, len(core.CanonicalFields))
		for i, f := range core.CanonicalFields {
			fields[i] = rec.Value(f)
		}
		t.row(fields...)
	}
	return t.String()
}
