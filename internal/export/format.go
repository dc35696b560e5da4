package export

import (
	"bytes"
	"fmt"
	"slices"
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/fhir"
)

// Format names accepted by Generate.
const (
	FormatStandard         = "standard"
	FormatLegacy           = "legacy"
	FormatConsolidated     = "consolidated"
	FormatJSON             = "json"
	FormatConsolidatedJSON = "consolidated-json"
	FormatFHIR             = "fhir"
	FormatFHIRNDJSON       = "fhir-ndjson"
)

const (
	contentTypeCSV    = "text/csv; charset=utf-8"
	contentTypeJSON   = "application/json"
	contentTypeFHIR   = "application/fhir+json"
	contentTypeNDJSON = "application/fhir+ndjson"
)

// Options carries per-format switches. Formats ignore options that do not
// apply to them.
type Options struct {
	SplitCPT     bool
	DualResource bool
	Pretty       bool
	Bundle       fhir.BundleOptions
}

// Output is a serialized export.
type Output struct {
	Format      string
	Body        []byte
	ContentType string
	Ext         string
	Count       int
}

type generator func(records []core.TestRecord, opts Options) ([]byte, error)

type formatDef struct {
	generate    generator
	contentType string
	ext         string
}

var formats = map[string]formatDef{
	FormatStandard: {
		generate: func(r []core.TestRecord, o Options) ([]byte, error) {
			return []byte(Standard(r, StandardOptions{SplitCPT: o.SplitCPT})), nil
		},
		contentType: contentTypeCSV,
		ext:         "csv",
	},
	FormatLegacy: {
		generate: func(r []core.TestRecord, _ Options) ([]byte, error) {
			return []byte(Legacy(r)), nil
		},
		contentType: contentTypeCSV,
		ext:         "csv",
	},
	FormatConsolidated: {
		generate: func(r []core.TestRecord, _ Options) ([]byte, error) {
			return []byte(Consolidated(r)), nil
		},
		contentType: contentTypeCSV,
		ext:         "csv",
	},
	FormatJSON: {
		generate: func(r []core.TestRecord, o Options) ([]byte, error) {
			return JSON(r, o.Pretty)
		},
		contentType: contentTypeJSON,
		ext:         "json",
	},
	FormatConsolidatedJSON: {
		generate: func(r []core.TestRecord, o Options) ([]byte, error) {
			return FamiliesJSON(r, o.Pretty)
		},
		contentType: contentTypeJSON,
		ext:         "json",
	},
	FormatFHIR: {
		generate: func(r []core.TestRecord, o Options) ([]byte, error) {
			bopts := o.Bundle
			bopts.DualResource = o.DualResource
			b, err := fhir.BuildBundle(r, bopts)
			if err != nil {
				return nil, err
			}
			return fhir.Marshal(b, o.Pretty)
		},
		contentType: contentTypeFHIR,
		ext:         "json",
	},
	FormatFHIRNDJSON: {
		generate: func(r []core.TestRecord, o Options) ([]byte, error) {
			var buf bytes.Buffer
			if _, err := fhir.WriteNDJSON(&buf, r, o.DualResource); err != nil {
				return nil, err
			}
			return buf.Bytes(), nil
		},
		contentType: contentTypeNDJSON,
		ext:         "ndjson",
	},
}

// Formats returns the supported format names, sorted.
func Formats() []string {
	names := make([]string, 0, len(formats))
	for name := range formats {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// IsFormat reports whether name is a supported format.
func IsFormat(name string) bool {
	_, ok := formats[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

// Generate serializes records in the named format. An empty record set is
// valid and yields a well-formed empty document.
func Generate(format string, records []core.TestRecord, opts Options) (Output, error) {
	name := strings.ToLower(strings.TrimSpace(format))
	def, ok := formats[name]
	if !ok {
		return Output{}, fmt.Errorf("%w: %q", core.ErrUnknownFormat, format)
	}

	body, err := def.generate(records, opts)
	if err != nil {
		return Output{}, fmt.Errorf("generate %s export: %w", name, err)
	}

	return Output{
		Format:      name,
		Body:        body,
		ContentType: def.contentType,
		Ext:         def.ext,
		Count:       len(records),
	}, nil
}
