package rest

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/weavesync/internal/common"
)

// maxBodyBytes bounds request bodies; a full batch of maximum size
// payloads still fits.
const maxBodyBytes = 32 << 20

func unauthorized(w http.ResponseWriter) {
	w.Header().Set("WWW-Authenticate", `Basic realm="Weave"`)
	http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
}

func weaveError(w http.ResponseWriter, status int, code string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(code))
}

// errorResponse maps a service error to a status and Weave error code.
func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError

	switch {
	case errors.Is(err, common.ErrMalformedInput):
		weaveError(w, http.StatusBadRequest, common.WeaveMalformedJSON)
	case errors.Is(err, common.ErrInvalidRecord):
		weaveError(w, http.StatusBadRequest, common.WeaveInvalidWBO)
	case errors.Is(err, common.ErrInvalidCollection):
		weaveError(w, http.StatusBadRequest, common.WeaveInvalidCollection)
	case errors.Is(err, common.ErrInvalidWrite), errors.Is(err, common.ErrAlreadyExists):
		weaveError(w, http.StatusBadRequest, common.WeaveInvalidWrite)
	case errors.Is(err, common.ErrMissingPassword):
		weaveError(w, http.StatusBadRequest, common.WeaveMissingPassword)
	case errors.Is(err, common.ErrWeakPassword):
		weaveError(w, http.StatusBadRequest, common.WeaveWeakPassword)
	case errors.Is(err, common.ErrInvalidUser):
		weaveError(w, http.StatusBadRequest, common.WeaveInvalidUser)
	case errors.Is(err, common.ErrorNotFound):
		weaveError(w, http.StatusNotFound, common.WeaveInvalidWBO)
	case errors.Is(err, common.ErrorUnauthorized):
		unauthorized(w)
	case errors.Is(err, common.ErrPreconditionFailed), errors.Is(err, common.ErrConfirmationRequired):
		http.Error(w, http.StatusText(http.StatusPreconditionFailed), http.StatusPreconditionFailed)
	case errors.As(err, &tooLarge):
		http.Error(w, http.StatusText(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge)
	default:
		s.logger.Error(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
			"request_id", requestIDFromContext(r.Context()),
		)
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, r *http.Request, status int, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(b)
}

// timestampResponse answers a write with its server timestamp, in the body
// and in X-Weave-Timestamp.
func (s *Server) timestampResponse(w http.ResponseWriter, r *http.Request, ts float64) {
	w.Header().Set(common.HeaderTimestamp, formatTimestamp(ts))
	s.jsonResponse(w, r, http.StatusOK, ts)
}

func textResponse(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}

func formatTimestamp(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 2, 64)
}

func handleNotImplemented(w http.ResponseWriter, r *http.Request) {
	http.Error(w, http.StatusText(http.StatusNotImplemented), http.StatusNotImplemented)
}
