package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/JonMunkholm/csvshare/internal/core"
	"github.com/JonMunkholm/csvshare/internal/web/middleware"
)

// callerID returns the authenticated user's id. Routes reaching it are
// behind BearerAuth, so a missing user is a wiring bug.
func callerID(r *http.Request) uuid.UUID {
	user, ok := middleware.UserFromContext(r.Context())
	if !ok {
		panic("web: handler reached without BearerAuth")
	}
	return user.ID
}

// fileIDParam parses the {fileID} route parameter.
func fileIDParam(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(chi.URLParam(r, "fileID"))
	if err != nil {
		// A malformed id names no file.
		return uuid.Nil, core.ErrFileNotFound
	}
	return id, nil
}
