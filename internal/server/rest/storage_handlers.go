package rest

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/server/codec"
	"github.com/dmitrijs2005/weavesync/internal/server/query"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
	"github.com/gorilla/mux"
)

func (s *Server) handleInfoCollections(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	info, err := s.storage.InfoCollections(r.Context(), h)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set(common.HeaderRecords, strconv.Itoa(len(info)))
	s.jsonResponse(w, r, http.StatusOK, info)
}

func (s *Server) handleCollectionCounts(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	counts, err := s.storage.CollectionCounts(r.Context(), h)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set(common.HeaderRecords, strconv.Itoa(len(counts)))
	s.jsonResponse(w, r, http.StatusOK, counts)
}

func (s *Server) handleCollectionUsage(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	usage, err := s.storage.CollectionUsage(r.Context(), h)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set(common.HeaderRecords, strconv.Itoa(len(usage)))
	s.jsonResponse(w, r, http.StatusOK, usage)
}

func (s *Server) handleQuota(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	used, limit, err := s.storage.Quota(r.Context(), h)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, r, http.StatusOK, []any{used, limit})
}

func (s *Server) handleDeleteAll(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	confirmed := r.Header.Get(common.HeaderConfirmDelete) == "1"
	ts, err := s.storage.DeleteAll(r.Context(), h, confirmed)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.timestampResponse(w, r, ts)
}

func (s *Server) handleGetCollection(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	spec, err := query.Parse(r.URL.Query())
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	l, err := s.storage.GetCollection(r.Context(), h, mux.Vars(r)["collection"], spec)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	enc := codec.Negotiate(r.Header.Get("Accept"))
	var body []byte
	if l.Full {
		body, err = codec.Encode(enc.Format, l.Records)
	} else {
		body, err = codec.Encode(enc.Format, l.IDs)
	}
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	w.Header().Set("Content-Type", enc.ContentType)
	w.Header().Set(common.HeaderRecords, strconv.Itoa(l.Len()))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (s *Server) handlePostCollection(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	since, err := ifUnmodifiedSince(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	batch, err := parseBatch(body)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	res, err := s.storage.PostCollection(r.Context(), h, mux.Vars(r)["collection"], batch, since)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set(common.HeaderTimestamp, formatTimestamp(res.Modified))
	s.jsonResponse(w, r, http.StatusOK, res)
}

func (s *Server) handleDeleteCollection(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	spec, err := query.Parse(r.URL.Query())
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	since, err := ifUnmodifiedSince(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	ts, err := s.storage.DeleteCollection(r.Context(), h, mux.Vars(r)["collection"], spec, since)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.timestampResponse(w, r, ts)
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	vars := mux.Vars(r)

	wbo, err := s.storage.GetItem(r.Context(), h, vars["collection"], vars["id"])
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	w.Header().Set(common.HeaderRecords, "1")
	s.jsonResponse(w, r, http.StatusOK, wbo)
}

func (s *Server) handlePutItem(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	vars := mux.Vars(r)

	since, err := ifUnmodifiedSince(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	body, err := readBody(w, r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	ts, err := s.storage.PutItem(r.Context(), h, vars["collection"], vars["id"], body, since)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.timestampResponse(w, r, ts)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	h := mustHandle(r)
	vars := mux.Vars(r)

	since, err := ifUnmodifiedSince(r)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}

	ts, err := s.storage.DeleteItem(r.Context(), h, vars["collection"], vars["id"], since)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.timestampResponse(w, r, ts)
}

// --- helpers below ---

// mustHandle reads the handle put in place by authenticate; a route
// without it is a wiring bug.
func mustHandle(r *http.Request) store.Handle {
	h, ok := handleFromContext(r.Context())
	if !ok {
		panic("rest: storage route without authentication")
	}
	return h
}

func ifUnmodifiedSince(r *http.Request) (*float64, error) {
	raw := strings.TrimSpace(r.Header.Get(common.HeaderIfUnmodifiedSince))
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %s=%q", common.ErrMalformedInput, common.HeaderIfUnmodifiedSince, raw)
	}
	return &v, nil
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return body, nil
}

// parseBatch accepts a single object or an array of objects.
func parseBatch(body []byte) ([]json.RawMessage, error) {
	if !json.Valid(body) {
		return nil, fmt.Errorf("%w: invalid json", common.ErrMalformedInput)
	}

	trimmed := bytes.TrimSpace(body)
	switch trimmed[0] {
	case '{':
		return []json.RawMessage{trimmed}, nil
	case '[':
		var batch []json.RawMessage
		if err := json.Unmarshal(trimmed, &batch); err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedInput, err)
		}
		return batch, nil
	default:
		return nil, fmt.Errorf("%w: expected an object or an array", common.ErrInvalidRecord)
	}
}
