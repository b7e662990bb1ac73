package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/teemow/attachsort/internal/drive"
	"github.com/teemow/attachsort/internal/gmail"
	"github.com/teemow/attachsort/internal/google"
	"github.com/teemow/attachsort/internal/logging"
	"github.com/teemow/attachsort/internal/pipeline"
)

// defaultMaxUploadBytes matches the largest attachment Gmail delivers
const defaultMaxUploadBytes = gmail.MaxAttachmentSize

type fetchResponse struct {
	Message    string            `json:"message"`
	Uploaded   int               `json:"uploaded"`
	Duplicate  int               `json:"duplicate"`
	Failed     int               `json:"failed"`
	Incomplete bool              `json:"incomplete,omitempty"`
	Results    []pipeline.Result `json:"results"`
}

type uploadResponse struct {
	FileID string `json:"fileId"`
}

// authorizedClient returns an HTTP client for the session token of r. The
// returned save func writes a refreshed token back to the session.
func (s *Server) authorizedClient(r *http.Request) (client *http.Client, save func(), ok bool) {
	id, token := s.sessions.Token(r)
	if !usableToken(token) {
		return nil, nil, false
	}

	ts := s.config.OAuth.TokenSource(r.Context(), token)
	save = func() {
		if fresh, err := ts.Token(); err == nil && fresh.AccessToken != token.AccessToken {
			s.sessions.SetToken(id, fresh)
		}
	}
	return google.NewHTTPClient(r.Context(), ts), save, true
}

func (s *Server) handleFetchAttachments(w http.ResponseWriter, r *http.Request) {
	client, save, ok := s.authorizedClient(r)
	if !ok {
		writeError(w, http.StatusForbidden, pipeline.ErrUnauthenticated.Error())
		return
	}
	defer save()

	q := r.URL.Query()
	dr, err := pipeline.ParseDateRange(q.Get("startDate"), q.Get("endDate"))
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	runner, err := s.config.Pipeline.ForClient(r.Context(), client)
	if err != nil {
		s.logger.Error("failed to prepare pipeline", logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	report, err := runner.Run(r.Context(), dr)
	if err != nil {
		s.logger.Error("pipeline run failed", logging.Err(err))
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, fetchResponse{
		Message:    report.Message(),
		Uploaded:   report.Counts.Uploaded,
		Duplicate:  report.Counts.Duplicate,
		Failed:     report.Counts.Failed,
		Incomplete: report.Incomplete,
		Results:    report.Results,
	})
}

// handleUpload stores one multipart file in Drive as-is
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	client, save, ok := s.authorizedClient(r)
	if !ok {
		writeError(w, http.StatusForbidden, pipeline.ErrUnauthenticated.Error())
		return
	}
	defer save()

	r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadBytes+1<<20)
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
			return
		}
		writeError(w, http.StatusBadRequest, "multipart field \"file\" is required")
		return
	}
	defer file.Close()

	if header.Size > s.config.MaxUploadBytes {
		writeError(w, http.StatusRequestEntityTooLarge, "file is too large")
		return
	}

	storage, err := s.config.Pipeline.Storage(r.Context(), client)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	name := gmail.SanitizeFilename(header.Filename)
	info, err := storage.UploadFile(r.Context(), name, file, &drive.UploadOptions{
		MimeType: header.Header.Get("Content-Type"),
	})
	if err != nil {
		s.logger.Error("upload failed", logging.Filename(name), logging.Err(err))
		writeError(w, http.StatusInternalServerError, "failed to upload file")
		return
	}

	s.logger.Info("file uploaded", logging.Filename(name), slog.String("file_id", info.ID))
	writeJSON(w, http.StatusOK, uploadResponse{FileID: info.ID})
}
