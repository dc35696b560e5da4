package export

import (
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// StandardOptions controls the Standard CSV layout.
type StandardOptions struct {
	// SplitCPT adds baseCptCode and cptSuffix columns after cptCode.
	SplitCPT bool
}

var standardHeader = []string{
	core.FieldID, core.FieldName, core.FieldCategory, core.FieldSubCategory, core.FieldCPTCode,
}

var standardTail = []string{
	core.FieldLOINCCode, core.FieldSNOMEDCode, core.FieldDescription, core.FieldNotes,
}

// Standard renders one row per record using canonical field names as the
// header, so the output re-imports without column mapping.
func Standard(records []core.TestRecord, opts StandardOptions) string {
	header := append([]string{}, standardHeader...)
	if opts.SplitCPT {
		header = append(header, "baseCptCode", "cptSuffix")
	}
	header = append(header, standardTail...)

	t := newTable(header...)
	for _, rec := range records {
		fields := make([]string, 0, len(header))
		for _, f := range standardHeader {
			fields = append(fields, rec.Value(f))
		}
		if opts.SplitCPT {
			base, suffix := SplitCPT(core.Deref(rec.CPTCode))
			fields = append(fields, base, core.Deref(suffix))
		}
		for _, f := range standardTail {
			fields = append(fields, rec.Value(f))
		}
		t.row(fields...)
	}
	return t.String()
}

// SplitCPT separates a CPT code into its base and variation suffix at the
// first '-' or '.'. A code without a separator has a nil suffix.
func SplitCPT(code string) (base string, suffix *string) {
	code = strings.TrimSpace(code)
	i := strings.IndexAny(code, "-.")
	if i < 0 {
		return code, nil
	}
	s := code[i+1:]
	return code[:i], &s
}
