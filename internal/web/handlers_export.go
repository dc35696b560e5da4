package web

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/export"
)

// exportOptions resolves per-request flags against the configured defaults.
func (s *Server) exportOptions(q ExportQuery) export.Options {
	opts := export.Options{
		SplitCPT:     q.SplitCPT,
		DualResource: s.cfg.Export.DualResource,
		Pretty:       s.cfg.Export.Pretty,
	}
	opts.Bundle.BaseURL = strings.TrimRight(s.cfg.Export.FHIRBaseURL, "/")
	if q.DualResource != nil {
		opts.DualResource = *q.DualResource
	}
	if q.Pretty != nil {
		opts.Pretty = *q.Pretty
	}
	return opts
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	q, err := s.validator.ParseExportQuery(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	records, err := s.service.Records(r.Context(), q.filter())
	if err != nil {
		respondError(w, r, err)
		return
	}

	out, err := export.Generate(q.Format, records, s.exportOptions(q))
	if err != nil {
		respondError(w, r, err)
		return
	}
	if s.metrics != nil {
		s.metrics.ExportGenerated(out.Format, out.Count)
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="catalog-%s.%s"`, out.Format, out.Ext))
	w.Header().Set("X-Record-Count", strconv.Itoa(out.Count))
	_, _ = w.Write(out.Body)
}

func (s *Server) handleListFormats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{"formats": export.Formats()})
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		respondError(w, r, errPublishDisabled)
		return
	}
	q, err := s.validator.ParseExportBody(w, r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	records, err := s.service.Records(r.Context(), q.filter())
	if err != nil {
		respondError(w, r, err)
		return
	}

	pub, err := s.publisher.Publish(r.Context(), q.Format, records, s.exportOptions(q))
	if s.metrics != nil {
		s.metrics.ExportPublished(string(s.publisher.Driver()), err)
		if err == nil {
			s.metrics.ExportGenerated(pub.Format, pub.Count)
		}
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSONStatus(w, http.StatusCreated, pub)
}

func (s *Server) handleListExports(w http.ResponseWriter, r *http.Request) {
	if s.publisher == nil {
		respondError(w, r, errPublishDisabled)
		return
	}
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format != "" && !export.IsFormat(format) {
		respondError(w, r, fmt.Errorf("%w: %q", core.ErrUnknownFormat, format))
		return
	}
	objects, err := s.publisher.List(r.Context(), format)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"exports": objects, "count": len(objects)})
}
