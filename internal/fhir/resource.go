// Package fhir converts catalog records into FHIR R4 resources.
//
// Every record becomes a ServiceRequest. In dual-resource mode, imaging
// records also produce an ImagingStudy linked to it: the study carries
// basedOn ServiceRequest/<id>, and the request carries supportingInfo
// ImagingStudy/<id>-study.
package fhir

// Code system URIs.
const (
	SystemCPT      = "http://www.ama-assn.org/go/cpt"
	SystemLOINC    = "http://loinc.org"
	SystemSNOMED   = "http://snomed.info/sct"
	SystemDICOM    = "http://dicom.nema.org/resources/ontology/DCM"
	SystemCategory = "http://terminology.hl7.org/CodeSystem/v2-0074"
	SystemTestID   = "urn:testcatalog:test-id"
)

// Coding is a FHIR Coding datatype.
type Coding struct {
	System  string `json:"system,omitempty"`
	Code    string `json:"code"`
	Display string `json:"display,omitempty"`
}

// CodeableConcept is a FHIR CodeableConcept datatype.
type CodeableConcept struct {
	Coding []Coding `json:"coding,omitempty"`
	Text   string   `json:"text,omitempty"`
}

// Reference is a FHIR Reference datatype.
type Reference struct {
	Reference string `json:"reference,omitempty"`
	Type      string `json:"type,omitempty"`
	Display   string `json:"display,omitempty"`
}

// Identifier is a FHIR Identifier datatype.
type Identifier struct {
	System string `json:"system,omitempty"`
	Value  string `json:"value"`
}

// Annotation is a FHIR Annotation datatype.
type Annotation struct {
	Text string `json:"text"`
}

// ServiceRequest is the order resource emitted for every record.
type ServiceRequest struct {
	ResourceType   string            `json:"resourceType"`
	ID             string            `json:"id"`
	Identifier     []Identifier      `json:"identifier,omitempty"`
	Status         string            `json:"status"`
	Intent         string            `json:"intent"`
	Category       []CodeableConcept `json:"category"`
	Code           CodeableConcept   `json:"code"`
	Subject        Reference         `json:"subject"`
	SupportingInfo []Reference       `json:"supportingInfo,omitempty"`
	Note           []Annotation      `json:"note,omitempty"`
}

// ImagingStudy is the acquisition resource paired with imaging requests.
type ImagingStudy struct {
	ResourceType   string            `json:"resourceType"`
	ID             string            `json:"id"`
	Status         string            `json:"status"`
	Modality       []Coding          `json:"modality"`
	Subject        Reference         `json:"subject"`
	BasedOn        []Reference       `json:"basedOn"`
	ProcedureCode  []CodeableConcept `json:"procedureCode,omitempty"`
	NumberOfSeries int               `json:"numberOfSeries"`
	Description    string            `json:"description,omitempty"`
	Series         []ImagingSeries   `json:"series"`
}

// ImagingSeries is one series within an ImagingStudy.
type ImagingSeries struct {
	UID         string  `json:"uid"`
	Modality    Coding  `json:"modality"`
	BodySite    *Coding `json:"bodySite,omitempty"`
	Description string  `json:"description,omitempty"`
}
