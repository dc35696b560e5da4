package core

import "strings"

// headerSynonyms maps squashed header spellings to canonical field names.
// Keys are lowercase with spaces, underscores and hyphens removed.
var headerSynonyms = map[string]string{
	"id":     FieldID,
	"testid": FieldID,

	"name":     FieldName,
	"testname": FieldName,

	"category":     FieldCategory,
	"testcategory": FieldCategory,

	"subcategory":     FieldSubCategory,
	"testsubcategory": FieldSubCategory,

	"cpt":     FieldCPTCode,
	"cptcode": FieldCPTCode,

	"loinc":     FieldLOINCCode,
	"loinccode": FieldLOINCCode,

	"snomed":       FieldSNOMEDCode,
	"snomedcode":   FieldSNOMEDCode,
	"snomedct":     FieldSNOMEDCode,
	"snomedctcode": FieldSNOMEDCode,

	"description":     FieldDescription,
	"testdescription": FieldDescription,

	"notes": FieldNotes,
	"note":  FieldNotes,
}

// CanonicalField resolves a header to its canonical field name.
// The second result is false for headers that map to no known field.
func CanonicalField(header string) (string, bool) {
	field, ok := headerSynonyms[squash(header)]
	return field, ok
}

// NormalizeRow rekeys a parsed row by canonical field name. Unknown columns
// are dropped. When several headers map to the same field, the first
// non-empty value in header order wins.
func NormalizeRow(header []string, row RawRow) RawRow {
	out := make(RawRow, len(CanonicalFields))
	for _, h := range header {
		field, ok := CanonicalField(h)
		if !ok {
			continue
		}
		if out[field] == "" {
			out[field] = row[h]
		}
	}
	return out
}

// UnknownColumns returns header entries that map to no known field.
func UnknownColumns(header []string) []string {
	var unknown []string
	for _, h := range header {
		if _, ok := CanonicalField(h); !ok && h != "" {
			unknown = append(unknown, h)
		}
	}
	return unknown
}

func squash(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
