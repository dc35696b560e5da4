package fhir

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

// Bundle represents a FHIR Bundle resource.
type Bundle struct {
	ResourceType string        `json:"resourceType"`
	ID           string        `json:"id,omitempty"`
	Type         string        `json:"type"`
	Timestamp    *time.Time    `json:"timestamp,omitempty"`
	Total        *int          `json:"total,omitempty"`
	Entry        []BundleEntry `json:"entry"`
}

// BundleEntry holds one serialized resource.
type BundleEntry struct {
	FullURL  string          `json:"fullUrl,omitempty"`
	Resource json.RawMessage `json:"resource"`
}

// BundleOptions controls bundle generation.
type BundleOptions struct {
	// DualResource pairs each imaging ServiceRequest with an ImagingStudy.
	// When false the legacy ServiceRequest-only bundle is produced.
	DualResource bool

	// ID and Timestamp are copied to the bundle when set.
	ID        string
	Timestamp *time.Time

	// BaseURL, when set, fills entry fullUrl as <BaseURL>/<type>/<id>.
	BaseURL string
}

// subject is the display-only subject used for catalog templates, which
// are not tied to a patient.
var subject = Reference{Display: "Test catalog template"}

// StudyID returns the ImagingStudy id paired with a record id.
func StudyID(recordID string) string {
	return recordID + "-study"
}

// NewServiceRequest builds the ServiceRequest for rec. Imaging records are
// completed and others active. linkStudy adds the forward reference to the
// paired ImagingStudy used in dual-resource bundles.
func NewServiceRequest(rec core.TestRecord, linkStudy bool) ServiceRequest {
	sr := ServiceRequest{
		ResourceType: "ServiceRequest",
		ID:           rec.ID,
		Identifier:   []Identifier{{System: SystemTestID, Value: rec.ID}},
		Status:       "active",
		Intent:       "original-order",
		Category:     []CodeableConcept{{Coding: []Coding{CategoryCoding(rec)}}},
		Code:         CodeableConcept{Coding: ServiceRequestCoding(rec), Text: rec.Name},
		Subject:      subject,
	}

	if rec.IsImaging() {
		sr.Status = "completed"
	}
	if linkStudy && rec.IsImaging() {
		sr.SupportingInfo = []Reference{{
			Reference: "ImagingStudy/" + StudyID(rec.ID),
			Type:      "ImagingStudy",
		}}
	}

	if desc := core.Deref(rec.Description); desc != "" {
		sr.Note = append(sr.Note, Annotation{Text: desc})
	}
	if notes := core.Deref(rec.Notes); notes != "" {
		sr.Note = append(sr.Note, Annotation{Text: notes})
	}
	return sr
}

// NewImagingStudy builds the ImagingStudy paired with an imaging record.
func NewImagingStudy(rec core.TestRecord) ImagingStudy {
	modality := Modality(rec.SubCategory)

	series := ImagingSeries{
		UID:         seriesUID(rec.ID),
		Modality:    modality,
		Description: rec.Name,
	}
	if site, ok := BodySite(rec.Name); ok {
		series.BodySite = &site
	}

	var procedure []CodeableConcept
	if codings := ServiceRequestCoding(rec); len(codings) > 0 {
		procedure = []CodeableConcept{{Coding: codings, Text: rec.Name}}
	}

	return ImagingStudy{
		ResourceType:   "ImagingStudy",
		ID:             StudyID(rec.ID),
		Status:         "available",
		Modality:       []Coding{modality},
		Subject:        subject,
		BasedOn:        []Reference{{Reference: "ServiceRequest/" + rec.ID, Type: "ServiceRequest"}},
		ProcedureCode:  procedure,
		NumberOfSeries: 1,
		Description:    rec.Name,
		Series:         []ImagingSeries{series},
	}
}

// seriesUID derives a stable DICOM UID under the 2.25 UUID arc.
func seriesUID(recordID string) string {
	u := uuid.NewSHA1(uuid.NameSpaceOID, []byte("imaging-series:"+recordID))
	return "urn:oid:2.25." + new(big.Int).SetBytes(u[:]).String()
}

// Resources returns the resources for records in bundle order.
func Resources(records []core.TestRecord, dual bool) []any {
	out := make([]any, 0, len(records))
	for _, rec := range records {
		out = append(out, NewServiceRequest(rec, dual))
		if dual && rec.IsImaging() {
			out = append(out, NewImagingStudy(rec))
		}
	}
	return out
}

// BuildBundle returns a collection Bundle for records. An empty record set
// yields a bundle with an empty entry list.
func BuildBundle(records []core.TestRecord, opts BundleOptions) (*Bundle, error) {
	resources := Resources(records, opts.DualResource)
	entries := make([]BundleEntry, 0, len(resources))

	for _, res := range resources {
		raw, err := json.Marshal(res)
		if err != nil {
			return nil, fmt.Errorf("marshal resource: %w", err)
		}
		entry := BundleEntry{Resource: raw}
		if opts.BaseURL != "" {
			typ, id := resourceKey(res)
			entry.FullURL = fmt.Sprintf("%s/%s/%s", opts.BaseURL, typ, id)
		}
		entries = append(entries, entry)
	}

	total := len(entries)
	return &Bundle{
		ResourceType: "Bundle",
		ID:           opts.ID,
		Type:         "collection",
		Timestamp:    opts.Timestamp,
		Total:        &total,
		Entry:        entries,
	}, nil
}

func resourceKey(res any) (string, string) {
	switch r := res.(type) {
	case ServiceRequest:
		return r.ResourceType, r.ID
	case ImagingStudy:
		return r.ResourceType, r.ID
	}
	return "", ""
}

// Marshal serializes b compactly or with two-space indentation.
func Marshal(b *Bundle, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(b, "", "  ")
	}
	return json.Marshal(b)
}
