package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (s *Server) handleListAccess(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	entries, err := s.service.ListAccess(r.Context(), fileID, callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, entries)
}

// handleGrantAccess gives {username} read access. changed is false when
// the user already had access.
func (s *Server) handleGrantAccess(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	changed, err := s.service.GrantAccess(r.Context(), fileID, callerID(r), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"changed": changed})
}

// handleRevokeAccess answers 304 Not Modified when {username} held no grant.
func (s *Server) handleRevokeAccess(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	changed, err := s.service.RevokeAccess(r.Context(), fileID, callerID(r), chi.URLParam(r, "username"))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !changed {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"changed": true})
}
