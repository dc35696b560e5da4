package fhir

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

func mri() core.TestRecord {
	return core.TestRecord{
		ID:          "TTES-IMG-MRI-70551",
		Name:        "MRI Brain without contrast",
		Category:    "Imaging Studies",
		SubCategory: "Magnetic Resonance Imaging",
		CPTCode:     core.Ptr("70551"),
		SNOMEDCode:  core.Ptr("241601008"),
	}
}

func cbc() core.TestRecord {
	return core.TestRecord{
		ID:          "TTES-LAB-HEM-85027",
		Name:        "CBC",
		Category:    "Laboratory Tests",
		SubCategory: "Hematology",
		CPTCode:     core.Ptr("85027"),
		LOINCCode:   core.Ptr("58410-2"),
		Description: core.Ptr("Complete blood count"),
	}
}

// ============================================================================
// Code-System Mapper Tests
// ============================================================================

func TestServiceRequestCoding_Order(t *testing.T) {
	rec := cbc()
	rec.SNOMEDCode = core.Ptr("26604007")

	got := ServiceRequestCoding(rec)
	wantSystems := []string{SystemCPT, SystemLOINC, SystemSNOMED}
	if len(got) != len(wantSystems) {
		t.Fatalf("codings = %d, want %d", len(got), len(wantSystems))
	}
	for i, sys := range wantSystems {
		if got[i].System != sys {
			t.Errorf("coding[%d].System = %q, want %q", i, got[i].System, sys)
		}
	}
}

func TestServiceRequestCoding_MissingCodes(t *testing.T) {
	rec := core.TestRecord{ID: "X", Name: "Custom panel", Category: "Laboratory Tests", SubCategory: "Immunology"}
	if got := ServiceRequestCoding(rec); len(got) != 0 {
		t.Errorf("codings = %v, want none", got)
	}

	rec.LOINCCode = core.Ptr("1234-5")
	got := ServiceRequestCoding(rec)
	if len(got) != 1 || got[0].System != SystemLOINC {
		t.Errorf("codings = %v, want LOINC only", got)
	}
}

func TestModality(t *testing.T) {
	tests := []struct {
		sub  string
		want string
	}{
		{"Magnetic Resonance Imaging", "MR"},
		{"computed tomography", "CT"},
		{"Ultrasound", "US"},
		{"X-Ray", "DX"},
		{"Bone Densitometry", "BMD"},
		{"Thermography", "OT"},
		{"", "OT"},
	}
	for _, tt := range tests {
		if got := Modality(tt.sub); got.Code != tt.want || got.System != SystemDICOM {
			t.Errorf("Modality(%q) = %+v, want code %s", tt.sub, got, tt.want)
		}
	}
}

func TestBodySite(t *testing.T) {
	tests := []struct {
		name   string
		want   string
		wantOK bool
	}{
		{"CT Chest with contrast", "51185008", true},
		{"Chest and Abdomen CT", "51185008", true},
		{"MRI Lumbar Spine", "122496007", true},
		{"X-Ray C-Spine", "122494005", true},
		{"MRI Cervical Spine", "122494005", true},
		{"Thoracic Spine X-Ray", "51185008", true},
		{"MRI Brain", "12738006", true},
		{"Echocardiogram cardiac", "80891009", true},
		{"Whole body PET", "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := BodySite(tt.name)
			if ok != tt.wantOK || got.Code != tt.want {
				t.Errorf("BodySite(%q) = %q, %v; want %q, %v", tt.name, got.Code, ok, tt.want, tt.wantOK)
			}
		})
	}
}

// ============================================================================
// Bundle Tests
// ============================================================================

func decodeEntries(t *testing.T, b *Bundle) []map[string]any {
	t.Helper()
	out := make([]map[string]any, len(b.Entry))
	for i, e := range b.Entry {
		if err := json.Unmarshal(e.Resource, &out[i]); err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
	}
	return out
}

func TestBuildBundle_DualResource(t *testing.T) {
	b, err := BuildBundle([]core.TestRecord{mri(), cbc()}, BundleOptions{DualResource: true})
	if err != nil {
		t.Fatalf("BuildBundle() error = %v", err)
	}
	if b.Type != "collection" || b.ResourceType != "Bundle" {
		t.Errorf("bundle header = %s/%s", b.ResourceType, b.Type)
	}
	if len(b.Entry) != 3 {
		t.Fatalf("entries = %d, want 3", len(b.Entry))
	}

	entries := decodeEntries(t, b)
	types := []string{}
	ids := map[string]map[string]any{}
	for _, e := range entries {
		typ := e["resourceType"].(string)
		types = append(types, typ)
		ids[typ+"/"+e["id"].(string)] = e
	}
	if strings.Join(types, ",") != "ServiceRequest,ImagingStudy,ServiceRequest" {
		t.Errorf("entry order = %v", types)
	}

	study := ids["ImagingStudy/TTES-IMG-MRI-70551-study"]
	if study == nil {
		t.Fatal("paired ImagingStudy missing")
	}
	basedOn := study["basedOn"].([]any)[0].(map[string]any)["reference"].(string)
	if _, ok := ids[basedOn]; !ok {
		t.Errorf("basedOn %q does not resolve within bundle", basedOn)
	}
	if study["status"] != "available" {
		t.Errorf("study status = %v", study["status"])
	}

	sr := ids["ServiceRequest/TTES-IMG-MRI-70551"]
	if sr["status"] != "completed" {
		t.Errorf("imaging ServiceRequest status = %v, want completed", sr["status"])
	}
	info := sr["supportingInfo"].([]any)[0].(map[string]any)["reference"].(string)
	if _, ok := ids[info]; !ok {
		t.Errorf("supportingInfo %q does not resolve within bundle", info)
	}

	lab := ids["ServiceRequest/TTES-LAB-HEM-85027"]
	if lab["status"] != "active" || lab["intent"] != "original-order" {
		t.Errorf("lab ServiceRequest = %v/%v", lab["status"], lab["intent"])
	}
	if _, ok := lab["supportingInfo"]; ok {
		t.Error("lab ServiceRequest should not carry supportingInfo")
	}
	cat := lab["category"].([]any)[0].(map[string]any)["coding"].([]any)[0].(map[string]any)["code"]
	if cat != "LAB" {
		t.Errorf("lab category = %v", cat)
	}
}

func TestBuildBundle_Legacy(t *testing.T) {
	b, err := BuildBundle([]core.TestRecord{mri(), cbc()}, BundleOptions{})
	if err != nil {
		t.Fatalf("BuildBundle() error = %v", err)
	}
	if len(b.Entry) != 2 {
		t.Fatalf("entries = %d, want 2", len(b.Entry))
	}
	wantStatus := map[string]string{
		"TTES-IMG-MRI-70551": "completed",
		"TTES-LAB-HEM-85027": "active",
	}
	for _, e := range decodeEntries(t, b) {
		if e["resourceType"] != "ServiceRequest" {
			t.Errorf("legacy bundle contains %v", e["resourceType"])
		}
		id := e["id"].(string)
		if e["status"] != wantStatus[id] {
			t.Errorf("legacy status of %s = %v, want %s", id, e["status"], wantStatus[id])
		}
		if _, ok := e["supportingInfo"]; ok {
			t.Error("legacy ServiceRequest should not reference a study")
		}
	}
}

func TestImagingStudy_Fields(t *testing.T) {
	study := NewImagingStudy(mri())
	if study.Modality[0].Code != "MR" {
		t.Errorf("modality = %s", study.Modality[0].Code)
	}
	if study.Series[0].BodySite == nil || study.Series[0].BodySite.Code != "12738006" {
		t.Errorf("body site = %+v", study.Series[0].BodySite)
	}
	if len(study.ProcedureCode) != 1 || study.ProcedureCode[0].Coding[0].Code != "70551" {
		t.Errorf("procedure code = %+v", study.ProcedureCode)
	}
	if !strings.HasPrefix(study.Series[0].UID, "urn:oid:2.25.") {
		t.Errorf("series uid = %s", study.Series[0].UID)
	}
	if again := NewImagingStudy(mri()); again.Series[0].UID != study.Series[0].UID {
		t.Error("series uid is not stable")
	}
}

func TestBuildBundle_Empty(t *testing.T) {
	b, err := BuildBundle(nil, BundleOptions{DualResource: true})
	if err != nil {
		t.Fatalf("BuildBundle() error = %v", err)
	}
	data, err := Marshal(b, false)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	want := `{"resourceType":"Bundle","type":"collection","total":0,"entry":[]}`
	if string(data) != want {
		t.Errorf("Marshal() = %s, want %s", data, want)
	}
}

func TestMarshal_Pretty(t *testing.T) {
	b, _ := BuildBundle([]core.TestRecord{cbc()}, BundleOptions{BaseURL: "https://catalog.example"})
	data, err := Marshal(b, true)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !bytes.Contains(data, []byte("\n  \"resourceType\": \"Bundle\"")) {
		t.Errorf("pretty output not indented with two spaces:\n%s", data)
	}
	if !bytes.Contains(data, []byte(`"fullUrl": "https://catalog.example/ServiceRequest/TTES-LAB-HEM-85027"`)) {
		t.Errorf("fullUrl missing:\n%s", data)
	}
}

func TestWriteNDJSON(t *testing.T) {
	var buf bytes.Buffer
	n, err := WriteNDJSON(&buf, []core.TestRecord{mri(), cbc()}, true)
	if err != nil {
		t.Fatalf("WriteNDJSON() error = %v", err)
	}
	if n != 3 {
		t.Errorf("count = %d, want 3", n)
	}
	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Errorf("lines = %d, want 3", len(lines))
	}
	for _, line := range lines {
		if !json.Valid([]byte(line)) {
			t.Errorf("invalid JSON line: %s", line)
		}
	}
}
