package core

import (
	"context"
	"fmt"
	"strings"
	"testing"
)

// benchCSV builds a lab catalog file with n distinct rows.
func benchCSV(n int) string {
	var b strings.Builder
	b.WriteString("Test Name,Category,Sub Category,CPT Code,LOINC Code,Description\n")
	for i := 0; i < n; i++ {
		fmt.Fprintf(&b, "Panel %d,Laboratory Tests,Clinical Chemistry,%05d,%d-1,\"Panel %d, fasting\"\n", i, 80000+i, 1000+i, i)
	}
	return b.String()
}

// ============================================================================
// Parser Benchmarks
// ============================================================================

func BenchmarkParse(b *testing.B) {
	text := benchCSV(1000)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Parse(text)
	}
}

func BenchmarkRows(b *testing.B) {
	text := benchCSV(1000)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		for range Rows(text) {
		}
	}
}

// ============================================================================
// Validation Benchmarks
// ============================================================================

func BenchmarkValidate(b *testing.B) {
	row := RawRow{
		FieldName:        "Comprehensive Metabolic Panel",
		FieldCategory:    "laboratory tests",
		FieldSubCategory: "clinical chemistry",
		FieldCPTCode:     "80053",
		FieldLOINCCode:   "24323-8",
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Validate(row)
	}
}

func BenchmarkValidate_GeneratedID(b *testing.B) {
	row := RawRow{FieldName: "Custom Panel", FieldCategory: "Laboratory Tests", FieldSubCategory: "Immunology"}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		Validate(row)
	}
}

// ============================================================================
// Duplicate Detection Benchmarks
// ============================================================================

func BenchmarkDuplicateIndex_Check(b *testing.B) {
	existing := make([]TestRecord, 10000)
	for i := range existing {
		existing[i] = TestRecord{ID: fmt.Sprintf("TTES-LAB-CHM-%05d", i), CPTCode: Ptr(fmt.Sprintf("%05d", i))}
	}
	ix := NewDuplicateIndex(existing)
	probe := TestRecord{ID: "TTES-LAB-CHM-99999", CPTCode: Ptr("99999")}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ix.Check(probe)
	}
}

// ============================================================================
// Import Benchmarks
// ============================================================================

func BenchmarkImport(b *testing.B) {
	text := benchCSV(500)
	b.SetBytes(int64(len(text)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		store := newFakeStore()
		svc := NewService(store, store)
		if _, err := svc.Import(context.Background(), ImportRequest{Filename: "bench.csv", Text: text}); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkPreview(b *testing.B) {
	text := benchCSV(500)
	store := newFakeStore()
	svc := NewService(store, store)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := svc.Preview(context.Background(), ImportRequest{Filename: "bench.csv", Text: text}); err != nil {
			b.Fatal(err)
		}
	}
}
