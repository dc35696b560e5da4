package core

// validation.go checks a normalized RawRow against the catalog schema.
//
// Every rule runs on every row; the validator collects all violations rather
// than stopping at the first. On success it returns a TestRecord with
// canonical category spelling, trimmed values and nil optional fields. Rows
// without an id receive one built from the category tags and procedure code.

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
)

// DefaultIDPrefix is the leading segment of generated test ids.
const DefaultIDPrefix = "TTES"

var (
	cptPattern    = regexp.MustCompile(`^\d{5}$`)
	loincPattern  = regexp.MustCompile(`^\d+-\d+$`)
	snomedPattern = regexp.MustCompile(`^\d+$`)
)

// FieldErrors maps a field name to its validation message.
type FieldErrors map[string]string

func (e FieldErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, field := range e.Fields() {
		parts = append(parts, fmt.Sprintf("%s: %s", field, e[field]))
	}
	return strings.Join(parts, "; ")
}

// Fields returns the failing field names in canonical field order.
func (e FieldErrors) Fields() []string {
	fields := make([]string, 0, len(e))
	for _, f := range CanonicalFields {
		if _, ok := e[f]; ok {
			fields = append(fields, f)
		}
	}
	return fields
}

// Validator validates rows and assigns ids.
type Validator struct {
	prefix string
}

// NewValidator returns a validator that generates ids with the given prefix.
// An empty prefix selects DefaultIDPrefix.
func NewValidator(prefix string) *Validator {
	if prefix == "" {
		prefix = DefaultIDPrefix
	}
	return &Validator{prefix: strings.ToUpper(prefix)}
}

var defaultValidator = NewValidator(DefaultIDPrefix)

// Validate checks row with the default id prefix.
func Validate(row RawRow) (TestRecord, FieldErrors) {
	return defaultValidator.Validate(row)
}

// Validate checks row and returns either a normalized record or the full
// set of field errors. It has no side effects.
func (v *Validator) Validate(row RawRow) (TestRecord, FieldErrors) {
	errs := FieldErrors{}
	get := func(field string) string {
		return strings.TrimSpace(row[field])
	}

	name := get(FieldName)
	if name == "" {
		errs[FieldName] = "Name is required"
	}

	var (
		cat    Category
		catOK  bool
		sub    Subcategory
		subOK  bool
		catRaw = get(FieldCategory)
		subRaw = get(FieldSubCategory)
	)

	if catRaw == "" {
		errs[FieldCategory] = "Category is required"
	} else if cat, catOK = LookupCategory(catRaw); !catOK {
		errs[FieldCategory] = fmt.Sprintf("Category %q is not recognized", catRaw)
	}

	switch {
	case subRaw == "":
		errs[FieldSubCategory] = "Subcategory is required"
	case catOK:
		if sub, subOK = cat.Subcategory(subRaw); !subOK {
			errs[FieldSubCategory] = fmt.Sprintf("Subcategory %q is not valid for category %q", subRaw, cat.Name)
		}
	}

	cpt := get(FieldCPTCode)
	if cpt != "" && !cptPattern.MatchString(cpt) {
		errs[FieldCPTCode] = "CPT code must be 5 digits"
	}

	loinc := get(FieldLOINCCode)
	if loinc != "" && !loincPattern.MatchString(loinc) {
		errs[FieldLOINCCode] = "LOINC code must be in format 12345-6"
	}

	snomed := get(FieldSNOMEDCode)
	if snomed != "" && !snomedPattern.MatchString(snomed) {
		errs[FieldSNOMEDCode] = "SNOMED code must be numeric"
	}

	if len(errs) > 0 {
		return TestRecord{}, errs
	}

	id := get(FieldID)
	if id == "" {
		id = v.GenerateID(cat.Tag, sub.Tag, cpt, name)
	}

	return TestRecord{
		ID:          id,
		Name:        name,
		Category:    cat.Name,
		SubCategory: sub.Name,
		CPTCode:     optional(cpt),
		LOINCCode:   optional(loinc),
		SNOMEDCode:  optional(snomed),
		Description: optional(get(FieldDescription)),
		Notes:       optional(get(FieldNotes)),
	}, nil
}

// GenerateID builds PREFIX-CAT-SUB-CODE. CODE is the CPT code when present,
// otherwise a stable 8-character hash of the lowercased test name.
func (v *Validator) GenerateID(catTag, subTag, cpt, name string) string {
	code := cpt
	if code == "" {
		h := uuid.NewSHA1(uuid.NameSpaceOID, []byte("test-name:"+strings.ToLower(name)))
		code = strings.ToUpper(strings.ReplaceAll(h.String(), "-", "")[:8])
	}
	return strings.Join([]string{v.prefix, catTag, subTag, code}, "-")
}
