package web

import (
	"net/http"
	"strings"

	"github.com/JonMunkholm/testcatalog/internal/core"
)

type categoryView struct {
	core.Category
	Imaging bool `json:"imaging"`
}

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	cats := core.Categories()
	out := make([]categoryView, 0, len(cats))
	for _, c := range cats {
		out = append(out, categoryView{Category: c, Imaging: core.IsImagingCategory(c.Name)})
	}
	writeJSON(w, out)
}

func (s *Server) handleListTests(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	records, err := s.service.Records(r.Context(), core.RecordFilter{
		Category:    strings.TrimSpace(q.Get("category")),
		SubCategory: strings.TrimSpace(q.Get("subCategory")),
		IDs:         splitList(q.Get("ids")),
		Search:      strings.TrimSpace(q.Get("search")),
	})
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"tests": records, "count": len(records)})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			respondErrorStatus(w, r, err, http.StatusServiceUnavailable)
			return
		}
	}
	resp := map[string]any{"status": "ok"}
	if l := s.service.Limiter(); l != nil {
		resp["imports"] = l.Status()
	}
	writeJSON(w, resp)
}
