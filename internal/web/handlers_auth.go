package web

import (
	"encoding/json"
	"fmt"
	"mime"
	"net/http"

	"github.com/JonMunkholm/csvshare/internal/core"
)

// maxCredentialsBody bounds register and login request bodies.
const maxCredentialsBody = 64 << 10

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// decodeCredentials reads username and password from a JSON body or from
// an OAuth2-style form (application/x-www-form-urlencoded or multipart).
func decodeCredentials(w http.ResponseWriter, r *http.Request) (credentials, error) {
	r.Body = http.MaxBytesReader(w, r.Body, maxCredentialsBody)

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		var c credentials
		if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
			return credentials{}, fmt.Errorf("%w: malformed JSON body: %v", core.ErrInvalidInput, err)
		}
		return c, nil
	}

	if err := r.ParseMultipartForm(maxCredentialsBody); err != nil && err != http.ErrNotMultipart {
		return credentials{}, fmt.Errorf("%w: malformed form body: %v", core.ErrInvalidInput, err)
	}
	return credentials{Username: r.PostFormValue("username"), Password: r.PostFormValue("password")}, nil
}

// handleRegister creates an account and returns its first token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	tok, err := s.service.Register(r.Context(), c.Username, c.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tok)
}

// handleToken exchanges a username and password for a token.
func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	c, err := decodeCredentials(w, r)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if c.Username == "" || c.Password == "" {
		s.fail(w, r, core.ErrInvalidCredentials)
		return
	}

	tok, err := s.service.Login(r.Context(), c.Username, c.Password)
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, tok)
}

// handleDeleteAccount removes the caller's account and owned files.
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	if _, err := s.service.DeleteAccount(r.Context(), callerID(r)); err != nil {
		s.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
