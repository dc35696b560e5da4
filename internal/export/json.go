package export

import (
	"encoding/json"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

type familyJSON struct {
	BaseCPT    string          `json:"baseCptCode"`
	FamilySize int             `json:"familySize"`
	Variations []variationJSON `json:"variations"`
}

type variationJSON struct {
	Suffix string          `json:"suffix"`
	Record core.TestRecord `json:"record"`
}

// JSON renders records as a JSON array. A nil slice encodes as [].
func JSON(records []core.TestRecord, pretty bool) ([]byte, error) {
	if records == nil {
		records = []core.TestRecord{}
	}
	return marshal(records, pretty)
}

// FamiliesJSON renders CPT families with their variations.
func FamiliesJSON(records []core.TestRecord, pretty bool) ([]byte, error) {
	families := Families(records)
	out := make([]familyJSON, len(families))
	for i, f := range families {
		vars := make([]variationJSON, len(f.Variations))
		suffixes := f.Suffixes()
		for j, v := range f.Variations {
			vars[j] = variationJSON{Suffix: suffixes[j], Record: v.Record}
		}
		out[i] = familyJSON{BaseCPT: f.BaseCPT, FamilySize: f.Size(), Variations: vars}
	}
	return marshal(out, pretty)
}

func marshal(v any, pretty bool) ([]byte, error) {
	if pretty {
		return json.MarshalIndent(v, "", "  ")
	}
	return json.Marshal(v)
}
