// Package core provides the import and catalog logic for medical test records.
//
// This package has no transport dependencies. The HTTP API, the CLI and the
// tests all drive it through [Service].
//
// # Import Pipeline
//
// One call to [Service.Import] is one session over one file:
//
//  1. [ReadInput] strips a UTF-8 BOM, sanitizes invalid bytes and enforces the size limit
//  2. [Rows] splits the text into records, tolerating short rows and blank lines
//  3. [NormalizeRow] maps header synonyms (cpt_code, Test Name, ...) to canonical fields
//  4. [Validator.Validate] checks every field and fills in a generated id when absent
//  5. [DuplicateIndex.Check] classifies the record against the store snapshot and the
//     rows already accepted in this batch
//  6. the chosen operation is applied to the [TestStore] and exactly one
//     [ImportAuditLogEntry] is appended to the [AuditSink]
//
// [Service.Preview] runs the same pipeline without writing to either collaborator.
//
// # Categories
//
// The category registry holds the allowed category and subcategory names with
// the 3-letter tags used in generated ids:
//
//	TTES-LAB-HEM-85027   Laboratory Tests / Hematology / CPT 85027
//	TTES-IMG-MRI-70551   Imaging Studies / Magnetic Resonance Imaging / CPT 70551
//
// Records in [ImagingCategory] are the ones that pair with an ImagingStudy in
// dual-resource FHIR exports.
//
// # Error Handling
//
// Row problems never fail a session; they become entries with status
// validation_error or failed. Session-level problems are returned as errors
// alongside the partial result. [MapError] turns any error into a coded
// [UserMessage] for display.
package core
