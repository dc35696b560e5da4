package export

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// NoSuffix stands in for a nil suffix in consolidated output.
const NoSuffix = "none"

// CptVariation is one record within a CPT family.
type CptVariation struct {
	Suffix *string         `json:"suffix"`
	Record core.TestRecord `json:"record"`
}

// CptFamily groups records that share a base CPT code.
type CptFamily struct {
	BaseCPT    string         `json:"baseCptCode"`
	Variations []CptVariation `json:"variations"`
}

// Size returns the number of records in the family.
func (f CptFamily) Size() int { return len(f.Variations) }

// Suffixes returns each variation suffix, with nil rendered as NoSuffix.
func (f CptFamily) Suffixes() []string {
	return f.column(func(v CptVariation) string {
		if v.Suffix == nil {
			return NoSuffix
		}
		return *v.Suffix
	})
}

func (f CptFamily) column(get func(CptVariation) string) []string {
	out := make([]string, len(f.Variations))
	for i, v := range f.Variations {
		out[i] = get(v)
	}
	return out
}

func (f CptFamily) field(name string) []string {
	return f.column(func(v CptVariation) string { return v.Record.Value(name) })
}

// Families groups records by base CPT code. Records without a CPT code are
// excluded. Families are ordered by base code; within a family the nil
// suffix sorts first, then suffixes lexicographically.
func Families(records []core.TestRecord) []CptFamily {
	index := make(map[string]int)
	var families []CptFamily

	for _, rec := range records {
		code := core.Deref(rec.CPTCode)
		if strings.TrimSpace(code) == "" {
			continue
		}
		base, suffix := SplitCPT(code)
		i, ok := index[base]
		if !ok {
			i = len(families)
			index[base] = i
			families = append(families, CptFamily{BaseCPT: base})
		}
		families[i].Variations = append(families[i].Variations, CptVariation{Suffix: suffix, Record: rec})
	}

	for i := range families {
		slices.SortStableFunc(families[i].Variations, compareVariation)
	}
	slices.SortFunc(families, func(a, b CptFamily) int { return cmp.Compare(a.BaseCPT, b.BaseCPT) })
	return families
}

func compareVariation(a, b CptVariation) int {
	switch {
	case a.Suffix == nil && b.Suffix == nil:
		return 0
	case a.Suffix == nil:
		return -1
	case b.Suffix == nil:
		return 1
	}
	return cmp.Compare(*a.Suffix, *b.Suffix)
}

var consolidatedHeader = []string{
	"baseCptCode", "familySize", "suffixes", "testNames", "testIds",
	"categories", "subCategories", "loincCodes", "snomedCodes", "descriptions",
}

// Consolidated renders one row per CPT family. Categories and subcategories
// are deduplicated in first-seen order; other columns keep one value per
// variation.
func Consolidated(records []core.TestRecord) string {
	t := newTable(consolidatedHeader...)
	for _, f := range Families(records) {
		t.row(
			f.BaseCPT,
			strconv.Itoa(f.Size()),
			joinPipe(f.Suffixes()),
			joinPipe(f.field(core.FieldName)),
			joinPipe(f.field(core.FieldID)),
			joinPipe(dedupe(f.field(core.FieldCategory))),
			joinPipe(dedupe(f.field(core.FieldSubCategory))),
			joinPipe(nonEmpty(f.field(core.FieldLOINCCode))),
			joinPipe(nonEmpty(f.field(core.FieldSNOMEDCode))),
			joinPipe(nonEmpty(f.field(core.FieldDescription))),
		)
	}
	return t.String()
}

func joinPipe(vals []string) string {
	return strings.Join(vals, "|")
}

func dedupe(vals []string) []string {
	seen := make(map[string]bool, len(vals))
	out := vals[:0:0]
	for _, v := range vals {
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

func nonEmpty(vals []string) []string {
	return slices.DeleteFunc(vals, func(v string) bool { return v == "" })
}
