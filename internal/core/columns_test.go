package core

import (
	"reflect"
	"testing"
)

func TestCanonicalField(t *testing.T) {
	tests := []struct {
		header string
		want   string
		ok     bool
	}{
		{"cptCode", FieldCPTCode, true},
		{"cpt_code", FieldCPTCode, true},
		{"CPT Code", FieldCPTCode, true},
		{"cptcode", FieldCPTCode, true},
		{"Test ID", FieldID, true},
		{"test_name", FieldName, true},
		{"Sub-Category", FieldSubCategory, true},
		{"SNOMED CT", FieldSNOMEDCode, true},
		{"LOINC", FieldLOINCCode, true},
		{"price", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			got, ok := CanonicalField(tt.header)
			if got != tt.want || ok != tt.ok {
				t.Errorf("CanonicalField(%q) = %q, %v; want %q, %v", tt.header, got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestNormalizeRow(t *testing.T) {
	header := []string{"Test Name", "CPT_Code", "cpt", "Price"}
	row := RawRow{"Test Name": "CBC", "CPT_Code": "", "cpt": "85027", "Price": "10"}

	got := NormalizeRow(header, row)
	want := RawRow{FieldName: "CBC", FieldCPTCode: "85027"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeRow() = %v, want %v", got, want)
	}

	if unknown := UnknownColumns(header); !reflect.DeepEqual(unknown, []string{"Price"}) {
		t.Errorf("UnknownColumns() = %v", unknown)
	}
}

func TestCategoryRegistry(t *testing.T) {
	cat, ok := LookupCategory("  imaging studies ")
	if !ok {
		t.Fatal("imaging category not registered")
	}
	if cat.Tag != "IMG" {
		t.Errorf("Tag = %q, want IMG", cat.Tag)
	}
	sub, ok := cat.Subcategory("magnetic resonance imaging")
	if !ok || sub.Tag != "MRI" || sub.Name != "Magnetic Resonance Imaging" {
		t.Errorf("Subcategory lookup = %+v, %v", sub, ok)
	}

	names := CategoryNames()
	for i := 1; i < len(names); i++ {
		if names[i-1] > names[i] {
			t.Fatalf("CategoryNames not sorted: %v", names)
		}
	}
	if !IsImagingCategory("IMAGING STUDIES") || IsImagingCategory("Cardiology") {
		t.Error("IsImagingCategory misclassified")
	}
}

func TestRegisterCategory_DuplicatePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("expected panic for duplicate category")
		}
	}()
	RegisterCategory(Category{Name: "Cardiology", Tag: "ZZZ"})
}
