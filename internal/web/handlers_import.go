package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/testcatalog/internal/core"
	"github.com/JonMunkholm/testcatalog/internal/logging"
)

// importResponse is the session result plus the user message of an aborted
// session, so clients still learn the session id.
type importResponse struct {
	*core.ImportSessionResult
	Error *core.UserMessage `json:"error,omitempty"`
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, s.service.Import)
}

func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	s.runImport(w, r, s.service.Preview)
}

type importFunc func(ctx context.Context, req core.ImportRequest) (*core.ImportSessionResult, error)

func (s *Server) runImport(w http.ResponseWriter, r *http.Request, run importFunc) {
	upload, err := s.validator.ReadUpload(w, r, s.cfg.Import.MaxFileSize)
	if err != nil {
		respondError(w, r, err)
		return
	}
	policy, err := s.validator.ParsePolicy(r)
	if err != nil {
		respondError(w, r, err)
		return
	}

	res, err := run(r.Context(), core.ImportRequest{
		Filename: upload.Filename,
		Text:     upload.Input.Text,
		FileSize: upload.Input.Size,
		Policy:   policy,
		Notes:    r.FormValue("notes"),
	})
	if err != nil {
		if res == nil {
			respondError(w, r, err)
			return
		}
		msg := core.MapError(err)
		logging.WithFields(r.Context(), "session_id", res.Session.ID, "file", upload.Filename).
			Warn("import session aborted", "error", err, "code", msg.Code)
		writeJSONStatus(w, statusFor(err), importResponse{ImportSessionResult: res, Error: &msg})
		return
	}

	status := http.StatusOK
	if !res.DryRun {
		status = http.StatusCreated
	}
	writeJSONStatus(w, status, importResponse{ImportSessionResult: res})
}
