package web

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/testcatalog/internal/export"
)

const defaultSessionLimit = 50

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	limit, err := s.validator.ParseLimit(r, defaultSessionLimit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	sessions, err := s.service.Sessions(r.Context(), limit)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, map[string]any{"sessions": sessions, "count": len(sessions)})
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	session, err := s.service.Session(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeJSON(w, session)
}

// handleSessionAudit returns a session's audit entries as JSON, or as a CSV
// download with format=csv.
func (s *Server) handleSessionAudit(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	entries, err := s.service.SessionEntries(r.Context(), id)
	if err != nil {
		respondError(w, r, err)
		return
	}

	switch strings.ToLower(r.URL.Query().Get("format")) {
	case "", "json":
		writeJSON(w, map[string]any{"sessionId": id, "entries": entries, "count": len(entries)})
	case "csv":
		w.Header().Set("Content-Type", "text/csv; charset=utf-8")
		w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="audit_%s.csv"`, id))
		_, _ = w.Write([]byte(export.AuditCSV(entries)))
	default:
		respondError(w, r, fmt.Errorf("%w: audit format must be json or csv", errBadRequest))
	}
}
