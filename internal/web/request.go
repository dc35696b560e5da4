package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/export"
)

var errBadRequest = errors.New("invalid request")

// multipartOverhead is allowed on top of the file size limit for form
// boundaries and the other form fields.
const multipartOverhead = 1 << 20

// ExportQuery selects records and shapes an export.
type ExportQuery struct {
	Format      string   `json:"format" validate:"required,exportformat"`
	Category    string   `json:"category" validate:"omitempty,category"`
	SubCategory string   `json:"subCategory"`
	IDs         []string `json:"ids" validate:"omitempty,max=10000,dive,required"`
	Search      string   `json:"search" validate:"max=200"`

	DualResource *bool `json:"dualResource"`
	Pretty       *bool `json:"pretty"`
	SplitCPT     bool  `json:"splitCpt"`
}

func (q ExportQuery) filter() core.RecordFilter {
	return core.RecordFilter{
		Category:    q.Category,
		SubCategory: q.SubCategory,
		IDs:         q.IDs,
		Search:      q.Search,
	}
}

// RequestValidator parses and validates request parameters.
type RequestValidator struct {
	validate *validator.Validate
}

// NewRequestValidator registers the catalog-specific tags.
func NewRequestValidator() *RequestValidator {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("exportformat", func(fl validator.FieldLevel) bool {
		return export.IsFormat(fl.Field().String())
	})
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		_, ok := core.LookupCategory(fl.Field().String())
		return ok
	})
	return &RequestValidator{validate: v}
}

// ParseExportQuery reads an ExportQuery from URL parameters.
func (rv *RequestValidator) ParseExportQuery(r *http.Request) (ExportQuery, error) {
	q := r.URL.Query()
	req := ExportQuery{
		Format:      strings.ToLower(strings.TrimSpace(q.Get("format"))),
		Category:    strings.TrimSpace(q.Get("category")),
		SubCategory: strings.TrimSpace(q.Get("subCategory")),
		Search:      strings.TrimSpace(q.Get("search")),
		IDs:         splitList(q.Get("ids")),
	}
	if req.Format == "" {
		req.Format = export.FormatStandard
	}

	var err error
	if req.DualResource, err = optionalBool(q.Get("dual"), "dual"); err != nil {
		return ExportQuery{}, err
	}
	if req.Pretty, err = optionalBool(q.Get("pretty"), "pretty"); err != nil {
		return ExportQuery{}, err
	}
	if split, err := optionalBool(q.Get("split"), "split"); err != nil {
		return ExportQuery{}, err
	} else if split != nil {
		req.SplitCPT = *split
	}

	return req, rv.check(req)
}

// ParseExportBody decodes an ExportQuery from a JSON body.
func (rv *RequestValidator) ParseExportBody(w http.ResponseWriter, r *http.Request) (ExportQuery, error) {
	var req ExportQuery
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, multipartOverhead))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		return ExportQuery{}, fmt.Errorf("%w: decode body: %v", errBadRequest, err)
	}
	req.Format = strings.ToLower(strings.TrimSpace(req.Format))
	if req.Format == "" {
		req.Format = export.FormatStandard
	}
	return req, rv.check(req)
}

func (rv *RequestValidator) check(req ExportQuery) error {
	if err := rv.validate.Struct(req); err != nil {
		return fmt.Errorf("invalid export request: %w", err)
	}
	return nil
}

// ParsePolicy reads the duplicate policy from the query or form. An empty
// value leaves the service default in place.
func (rv *RequestValidator) ParsePolicy(r *http.Request) (core.DuplicatePolicy, error) {
	raw := strings.ToLower(strings.TrimSpace(r.FormValue("policy")))
	if raw == "" {
		return "", nil
	}
	p, ok := core.ParseDuplicatePolicy(raw)
	if !ok {
		return "", fmt.Errorf("%w: unknown duplicate policy %q", errBadRequest, raw)
	}
	return p, nil
}

// ParseLimit reads a positive limit parameter; zero means no limit.
func (rv *RequestValidator) ParseLimit(r *http.Request, defaultVal int) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", errBadRequest)
	}
	return n, nil
}

// Upload is a CSV body read from a request.
type Upload struct {
	Filename string
	Input    core.Input
}

// ReadUpload accepts either a multipart form with a "file" part or a raw
// CSV body. Raw bodies take their name from the filename parameter.
func (rv *RequestValidator) ReadUpload(w http.ResponseWriter, r *http.Request, maxSize int64) (Upload, error) {
	limit := maxSize
	if limit > 0 {
		limit += multipartOverhead
		r.Body = http.MaxBytesReader(w, r.Body, limit)
	}

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		if err := r.ParseMultipartForm(32 << 20); err != nil {
			var maxBytes *http.MaxBytesError
			if errors.As(err, &maxBytes) {
				return Upload{}, fmt.Errorf("%w: exceeds %d bytes", core.ErrFileTooLarge, maxSize)
			}
			return Upload{}, fmt.Errorf("%w: invalid csv form: %v", errBadRequest, err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return Upload{}, fmt.Errorf("%w: no file provided", errBadRequest)
		}
		defer file.Close()

		in, err := core.ReadInput(file, maxSize)
		if err != nil {
			return Upload{}, err
		}
		return Upload{Filename: header.Filename, Input: in}, nil
	}

	in, err := core.ReadInput(r.Body, maxSize)
	if err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return Upload{}, fmt.Errorf("%w: exceeds %d bytes", core.ErrFileTooLarge, maxSize)
		}
		return Upload{}, err
	}
	name := strings.TrimSpace(r.URL.Query().Get("filename"))
	if name == "" {
		name = "upload.csv"
	}
	return Upload{Filename: name, Input: in}, nil
}

func optionalBool(raw, name string) (*bool, error) {
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid boolean value for %q", errBadRequest, name)
	}
	return &v, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
