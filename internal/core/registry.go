package core

import (
	"fmt"
	"sort"
	"strings"
	"sync"
)

// ImagingCategory is the category whose records produce a paired ImagingStudy.
const ImagingCategory = "Imaging Studies"

// Subcategory is a member of a Category with its 3-letter id tag.
type Subcategory struct {
	Name string `json:"name"`
	Tag  string `json:"tag"`
}

// Category is a top-level test grouping with its allowed subcategories.
type Category struct {
	Name          string        `json:"name"`
	Tag           string        `json:"tag"`
	Subcategories []Subcategory `json:"subcategories"`
}

// Subcategory looks up a member subcategory case-insensitively.
func (c Category) Subcategory(name string) (Subcategory, bool) {
	name = strings.TrimSpace(name)
	for _, sub := range c.Subcategories {
		if strings.EqualFold(sub.Name, name) {
			return sub, true
		}
	}
	return Subcategory{}, false
}

// SubcategoryNames returns the allowed subcategory names in registration order.
func (c Category) SubcategoryNames() []string {
	names := make([]string, len(c.Subcategories))
	for i, sub := range c.Subcategories {
		names[i] = sub.Name
	}
	return names
}

var (
	categories   = make(map[string]Category)
	categoriesMu sync.RWMutex
)

// RegisterCategory adds a category to the registry.
// Panics if a category with the same name or tag is already registered.
func RegisterCategory(cat Category) {
	categoriesMu.Lock()
	defer categoriesMu.Unlock()

	key := strings.ToLower(cat.Name)
	if _, exists := categories[key]; exists {
		panic(fmt.Sprintf("category already registered: %s", cat.Name))
	}
	for _, existing := range categories {
		if existing.Tag == cat.Tag {
			panic(fmt.Sprintf("category tag already registered: %s", cat.Tag))
		}
	}

	categories[key] = cat
}

// LookupCategory returns a category by name, ignoring case and surrounding space.
func LookupCategory(name string) (Category, bool) {
	categoriesMu.RLock()
	defer categoriesMu.RUnlock()

	cat, ok := categories[strings.ToLower(strings.TrimSpace(name))]
	return cat, ok
}

// Categories returns all registered categories sorted by name.
func Categories() []Category {
	categoriesMu.RLock()
	defer categoriesMu.RUnlock()

	result := make([]Category, 0, len(categories))
	for _, cat := range categories {
		result = append(result, cat)
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].Name < result[j].Name
	})

	return result
}

// CategoryNames returns the registered category names sorted alphabetically.
func CategoryNames() []string {
	cats := Categories()
	names := make([]string, len(cats))
	for i, c := range cats {
		names[i] = c.Name
	}
	return names
}

// IsImagingCategory reports whether name refers to the imaging category.
func IsImagingCategory(name string) bool {
	return strings.EqualFold(strings.TrimSpace(name), ImagingCategory)
}

func init() {
	for _, cat := range defaultCategories {
		RegisterCategory(cat)
	}
}

var defaultCategories = []Category{
	{Name: "Laboratory Tests", Tag: "LAB", Subcategories: []Subcategory{
		{"Hematology", "HEM"},
		{"Clinical Chemistry", "CHM"},
		{"Microbiology", "MIC"},
		{"Immunology", "IMM"},
		{"Urinalysis", "URN"},
		{"Molecular Diagnostics", "MOL"},
		{"Toxicology", "TOX"},
		{"Endocrinology", "END"},
		{"Coagulation", "COA"},
	}},
	{Name: ImagingCategory, Tag: "IMG", Subcategories: []Subcategory{
		{"X-Ray", "XRY"},
		{"Computed Tomography", "CTS"},
		{"Magnetic Resonance Imaging", "MRI"},
		{"Ultrasound", "USD"},
		{"Mammography", "MAM"},
		{"Nuclear Medicine", "NUC"},
		{"Positron Emission Tomography", "PET"},
		{"Fluoroscopy", "FLU"},
		{"Interventional Radiology", "IVR"},
		{"Bone Densitometry", "BMD"},
	}},
	{Name: "Cardiology", Tag: "CAR", Subcategories: []Subcategory{
		{"Electrocardiography", "ECG"},
		{"Echocardiography", "ECH"},
		{"Stress Testing", "STR"},
		{"Cardiac Monitoring", "MON"},
	}},
	{Name: "Neurology", Tag: "NEU", Subcategories: []Subcategory{
		{"Electroencephalography", "EEG"},
		{"Electromyography", "EMG"},
		{"Nerve Conduction Studies", "NCS"},
		{"Sleep Studies", "SLP"},
	}},
	{Name: "Pulmonary Function", Tag: "PUL", Subcategories: []Subcategory{
		{"Spirometry", "SPI"},
		{"Lung Volumes", "LVO"},
		{"Diffusion Capacity", "DLC"},
	}},
	{Name: "Pathology", Tag: "PAT", Subcategories: []Subcategory{
		{"Cytology", "CYT"},
		{"Histopathology", "HIS"},
		{"Frozen Section", "FRZ"},
	}},
	{Name: "Genetic Testing", Tag: "GEN", Subcategories: []Subcategory{
		{"Carrier Screening", "CRS"},
		{"Pharmacogenomics", "PGX"},
		{"Hereditary Cancer", "HRC"},
	}},
}
