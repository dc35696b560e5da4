package core

import (
	"strings"
	"testing"
)

// ============================================================================
// Validate Tests
// ============================================================================

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		row  RawRow
		want FieldErrors
	}{
		{
			name: "five digit cpt required",
			row:  RawRow{"name": "CBC", "category": "Laboratory Tests", "subCategory": "Hematology", "cptCode": "8502"},
			want: FieldErrors{"cptCode": "CPT code must be 5 digits"},
		},
		{
			name: "all required missing collected together",
			row:  RawRow{},
			want: FieldErrors{
				"name":        "Name is required",
				"category":    "Category is required",
				"subCategory": "Subcategory is required",
			},
		},
		{
			name: "blank name counts as missing",
			row:  RawRow{"name": "   ", "category": "Cardiology", "subCategory": "Echocardiography"},
			want: FieldErrors{"name": "Name is required"},
		},
		{
			name: "subcategory from another category",
			row:  RawRow{"name": "CBC", "category": "Laboratory Tests", "subCategory": "Ultrasound"},
			want: FieldErrors{"subCategory": `Subcategory "Ultrasound" is not valid for category "Laboratory Tests"`},
		},
		{
			name: "unknown category skips subcategory membership",
			row:  RawRow{"name": "CBC", "category": "Astrology", "subCategory": "Hematology"},
			want: FieldErrors{"category": `Category "Astrology" is not recognized`},
		},
		{
			name: "bad loinc and snomed",
			row: RawRow{
				"name": "Glucose", "category": "Laboratory Tests", "subCategory": "Clinical Chemistry",
				"loincCode": "2345", "snomedCode": "abc",
			},
			want: FieldErrors{
				"loincCode":  "LOINC code must be in format 12345-6",
				"snomedCode": "SNOMED code must be numeric",
			},
		},
		{
			name: "cpt with letters and six digits",
			row:  RawRow{"name": "X", "category": "Pathology", "subCategory": "Cytology", "cptCode": "88A42"},
			want: FieldErrors{"cptCode": "CPT code must be 5 digits"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errs := Validate(tt.row)
			if len(errs) != len(tt.want) {
				t.Fatalf("Validate() errors = %v, want %v", errs, tt.want)
			}
			for field, msg := range tt.want {
				if errs[field] != msg {
					t.Errorf("errors[%s] = %q, want %q", field, errs[field], msg)
				}
			}
		})
	}
}

func TestValidate_Normalizes(t *testing.T) {
	rec, errs := Validate(RawRow{
		"name":        " CBC ",
		"category":    "laboratory tests",
		"subCategory": "HEMATOLOGY",
		"cptCode":     "85027",
		"loincCode":   "",
		"snomedCode":  "26604007",
		"description": "Complete blood count",
		"notes":       "  ",
	})
	if errs != nil {
		t.Fatalf("Validate() unexpected errors: %v", errs)
	}

	if rec.Name != "CBC" {
		t.Errorf("Name = %q, want %q", rec.Name, "CBC")
	}
	if rec.Category != "Laboratory Tests" || rec.SubCategory != "Hematology" {
		t.Errorf("category pair = %q/%q, want canonical spelling", rec.Category, rec.SubCategory)
	}
	if rec.ID != "TTES-LAB-HEM-85027" {
		t.Errorf("ID = %q, want %q", rec.ID, "TTES-LAB-HEM-85027")
	}
	if rec.LOINCCode != nil {
		t.Errorf("LOINCCode = %v, want nil", *rec.LOINCCode)
	}
	if rec.Notes != nil {
		t.Errorf("Notes = %q, want nil", *rec.Notes)
	}
	if Deref(rec.SNOMEDCode) != "26604007" {
		t.Errorf("SNOMEDCode = %q", Deref(rec.SNOMEDCode))
	}
}

func TestValidate_KeepsExplicitID(t *testing.T) {
	rec, errs := Validate(RawRow{
		"id": "  CUSTOM-1 ", "name": "CBC", "category": "Laboratory Tests", "subCategory": "Hematology",
	})
	if errs != nil {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if rec.ID != "CUSTOM-1" {
		t.Errorf("ID = %q, want %q", rec.ID, "CUSTOM-1")
	}
}

func TestGenerateID_WithoutCPT(t *testing.T) {
	v := NewValidator("acme")
	a := v.GenerateID("IMG", "MRI", "", "MRI Brain")
	b := v.GenerateID("IMG", "MRI", "", "mri brain")
	c := v.GenerateID("IMG", "MRI", "", "MRI Knee")

	if a != b {
		t.Errorf("ids differ by name case: %q vs %q", a, b)
	}
	if a == c {
		t.Errorf("different names produced the same id %q", a)
	}
	if !strings.HasPrefix(a, "ACME-IMG-MRI-") || len(a) != len("ACME-IMG-MRI-")+8 {
		t.Errorf("id %q does not have the expected shape", a)
	}
}

func TestFieldErrors_Error(t *testing.T) {
	errs := FieldErrors{
		"cptCode": "CPT code must be 5 digits",
		"name":    "Name is required",
	}
	want := "name: Name is required; cptCode: CPT code must be 5 digits"
	if got := errs.Error(); got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}
