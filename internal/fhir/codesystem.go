package fhir

import (
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// ServiceRequestCoding returns the record's procedure codings in order:
// CPT, then LOINC, then SNOMED. Absent codes are omitted.
func ServiceRequestCoding(rec core.TestRecord) []Coding {
	var codings []Coding
	if cpt := core.Deref(rec.CPTCode); cpt != "" {
		codings = append(codings, Coding{System: SystemCPT, Code: cpt, Display: rec.Name})
	}
	if loinc := core.Deref(rec.LOINCCode); loinc != "" {
		codings = append(codings, Coding{System: SystemLOINC, Code: loinc, Display: rec.Name})
	}
	if snomed := core.Deref(rec.SNOMEDCode); snomed != "" {
		codings = append(codings, Coding{System: SystemSNOMED, Code: snomed, Display: rec.Name})
	}
	return codings
}

// CategoryCoding returns the v2-0074 diagnostic service section for a record.
func CategoryCoding(rec core.TestRecord) Coding {
	if rec.IsImaging() {
		return Coding{System: SystemCategory, Code: "RAD", Display: "Radiology"}
	}
	return Coding{System: SystemCategory, Code: "LAB", Display: "Laboratory"}
}

var modalities = map[string]Coding{
	"magnetic resonance imaging":   {SystemDICOM, "MR", "Magnetic Resonance"},
	"computed tomography":          {SystemDICOM, "CT", "Computed Tomography"},
	"ultrasound":                   {SystemDICOM, "US", "Ultrasound"},
	"x-ray":                        {SystemDICOM, "DX", "Digital Radiography"},
	"mammography":                  {SystemDICOM, "MG", "Mammography"},
	"nuclear medicine":             {SystemDICOM, "NM", "Nuclear Medicine"},
	"positron emission tomography": {SystemDICOM, "PT", "Positron emission tomography"},
	"fluoroscopy":                  {SystemDICOM, "RF", "Radio Fluoroscopy"},
	"interventional radiology":     {SystemDICOM, "XA", "X-Ray Angiography"},
	"bone densitometry":            {SystemDICOM, "BMD", "Bone Mineral Densitometry"},
}

var otherModality = Coding{System: SystemDICOM, Code: "OT", Display: "Other"}

// Modality maps an imaging subcategory to its DICOM modality.
// Unmapped subcategories yield OT.
func Modality(subCategory string) Coding {
	if c, ok := modalities[strings.ToLower(strings.TrimSpace(subCategory))]; ok {
		return c
	}
	return otherModality
}

type bodySiteRule struct {
	keywords []string
	site     Coding
}

// bodySiteRules is checked in order; the first rule with a keyword contained
// in the lowercased test name wins. Specific regions precede the broader ones
// they overlap (cervical spine before neck and spine).
var bodySiteRules = []bodySiteRule{
	{[]string{"chest", "thoracic", "thorax"}, Coding{SystemSNOMED, "51185008", "Thoracic structure"}},
	{[]string{"abdomen", "abdominal"}, Coding{SystemSNOMED, "818983003", "Abdomen"}},
	{[]string{"pelvis", "pelvic"}, Coding{SystemSNOMED, "12921003", "Pelvis"}},
	{[]string{"lumbar"}, Coding{SystemSNOMED, "122496007", "Lumbar spine structure"}},
	{[]string{"cervical spine", "c-spine"}, Coding{SystemSNOMED, "122494005", "Cervical spine structure"}},
	{[]string{"brain", "head"}, Coding{SystemSNOMED, "12738006", "Brain structure"}},
	{[]string{"knee"}, Coding{SystemSNOMED, "72696002", "Knee region structure"}},
	{[]string{"shoulder"}, Coding{SystemSNOMED, "16982005", "Shoulder region structure"}},
	{[]string{"hip"}, Coding{SystemSNOMED, "29836001", "Hip region structure"}},
	{[]string{"breast"}, Coding{SystemSNOMED, "76752008", "Breast structure"}},
	{[]string{"heart", "cardiac"}, Coding{SystemSNOMED, "80891009", "Heart structure"}},
	{[]string{"neck"}, Coding{SystemSNOMED, "45048000", "Neck structure"}},
	{[]string{"spine", "spinal"}, Coding{SystemSNOMED, "421060004", "Spinal structure"}},
	{[]string{"hand"}, Coding{SystemSNOMED, "85562004", "Hand structure"}},
	{[]string{"foot"}, Coding{SystemSNOMED, "56459004", "Foot structure"}},
	{[]string{"ankle"}, Coding{SystemSNOMED, "70258002", "Ankle joint structure"}},
	{[]string{"wrist"}, Coding{SystemSNOMED, "74670003", "Wrist joint structure"}},
	{[]string{"elbow"}, Coding{SystemSNOMED, "127949000", "Elbow region structure"}},
}

// BodySite infers a SNOMED body site from a test name. The match is a
// keyword heuristic; ok is false when no keyword appears.
func BodySite(testName string) (Coding, bool) {
	name := strings.ToLower(testName)
	for _, rule := range bodySiteRules {
		for _, kw := range rule.keywords {
			if strings.Contains(name, kw) {
				return rule.site, true
			}
		}
	}
	return Coding{}, false
}
