package httpapi

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/larriantoniy/tg_session_web/internal/domain"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *server) handleIndex(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	_, _ = w.Write(s.page)
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	filename := mux.Vars(r)["filename"]

	f, modTime, err := s.deps.Store.Open(filename)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.log.Error("open credential file", "filename", filename, "error", err)
		}
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "File not found"})
		return
	}
	defer f.Close()

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	w.Header().Set("Cache-Control", "no-store")
	http.ServeContent(w, r, filename, modTime, f)
}

func (s *server) handleRestart(w http.ResponseWriter, r *http.Request) {
	s.log.Warn("restart requested", "remote", r.RemoteAddr)
	s.deps.Restarter.Restart()
	writeJSON(w, http.StatusOK, map[string]string{"status": "restarting"})
}

func (s *server) handleSessions(w http.ResponseWriter, r *http.Request) {
	refs, err := s.deps.Index.Recent(r.Context(), recentLimit)
	if err != nil {
		s.log.Error("list credentials", "error", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to list sessions"})
		return
	}
	if refs == nil {
		refs = []domain.CredentialRef{}
	}
	writeJSON(w, http.StatusOK, refs)
}

func (s *server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.deps.Active != nil {
		active = s.deps.Active()
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "active": active})
}
