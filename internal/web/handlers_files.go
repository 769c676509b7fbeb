package web

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"path"
	"strings"
	"time"

	"github.com/JonMunkholm/csvshare/internal/core"
	"github.com/JonMunkholm/csvshare/internal/logging"
)

// csvContentTypes are the part content types accepted without a .csv name.
var csvContentTypes = map[string]bool{
	"text/csv":        true,
	"application/csv": true,
}

// handleUpload streams the multipart "file" part straight into the service.
// The body is never buffered to memory or disk.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	s.extendUploadDeadlines(w, r)
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.Upload.MaxFileSize+multipartOverhead)

	part, err := filePart(r)
	if err != nil {
		s.fail(w, r, uploadError(err))
		return
	}
	defer part.Close()

	if !isCSVPart(part) {
		s.fail(w, r, core.ErrNotCSV)
		return
	}

	id, err := s.service.UploadFile(r.Context(), callerID(r), path.Base(part.FileName()), part, -1)
	if err != nil {
		s.fail(w, r, uploadError(err))
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]any{"id": id})
}

// extendUploadDeadlines replaces the server-wide SERVER_READ_TIMEOUT and
// SERVER_WRITE_TIMEOUT on this connection with UPLOAD_TIMEOUT, so a slow
// body is bounded by the upload budget alone.
func (s *Server) extendUploadDeadlines(w http.ResponseWriter, r *http.Request) {
	timeout := s.cfg.Upload.Timeout
	if timeout <= 0 {
		timeout = core.DefaultUploadTimeout
	}
	deadline := time.Now().Add(timeout)

	rc := http.NewResponseController(w)
	if err := rc.SetReadDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.FromContext(r.Context()).Warn("set upload read deadline", "error", err)
	}
	if err := rc.SetWriteDeadline(deadline); err != nil && !errors.Is(err, http.ErrNotSupported) {
		logging.FromContext(r.Context()).Warn("set upload write deadline", "error", err)
	}
}

// filePart advances the multipart reader to the "file" part.
func filePart(r *http.Request) (*multipart.Part, error) {
	mr, err := r.MultipartReader()
	if err != nil {
		return nil, core.ErrNoFile
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, core.ErrNoFile
		}
		if err != nil {
			return nil, err
		}
		if part.FormName() == "file" && part.FileName() != "" {
			return part, nil
		}
		part.Close()
	}
}

func isCSVPart(part *multipart.Part) bool {
	mediaType, _, _ := mime.ParseMediaType(part.Header.Get("Content-Type"))
	if csvContentTypes[mediaType] {
		return true
	}
	return strings.EqualFold(path.Ext(part.FileName()), ".csv")
}

// uploadError maps a body that hit the MaxBytesReader to ErrFileTooLarge.
func uploadError(err error) error {
	var mbe *http.MaxBytesError
	if errors.As(err, &mbe) {
		return core.ErrFileTooLarge
	}
	return err
}

// handleListFiles lists files the caller owns or was granted.
func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	files, err := s.service.ListFiles(r.Context(), callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, files)
}

// handleGetFile returns a file as a column-major table. Each query
// parameter names a column and carries "filter[,asc|desc]".
func (s *Server) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	params, err := core.ParseQueryParams(r.URL.RawQuery)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	t, err := s.service.GetFileTable(r.Context(), fileID, callerID(r), core.NewTableQuery(params))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, t)
}

func (s *Server) handleDeleteFile(w http.ResponseWriter, r *http.Request) {
	fileID, err := fileIDParam(r)
	if err != nil {
		s.fail(w, r, err)
		return
	}

	deleted, err := s.service.DeleteFile(r.Context(), fileID, callerID(r))
	if err != nil {
		s.fail(w, r, err)
		return
	}
	if !deleted {
		s.fail(w, r, core.ErrFileNotFound)
		return
	}
	writeJSON(w, r, http.StatusOK, map[string]bool{"deleted": true})
}
