package rest

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/cryptox"
	"github.com/dmitrijs2005/weavesync/internal/server/metrics"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

type ctxKey string

const (
	storeHandleKey ctxKey = "storeHandle"
	requestIDKey   ctxKey = "requestID"
	scriptNameKey  ctxKey = "scriptName"
)

func handleFromContext(ctx context.Context) (store.Handle, bool) {
	h, ok := ctx.Value(storeHandleKey).(store.Handle)
	return h, ok
}

func requestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// statusRecorder remembers the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
	size   int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.size += n
	return n, err
}

func (s *Server) requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(common.HeaderRequestID)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(common.HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		s.logger.Info(r.Context(), "request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"size", rec.size,
			"duration", time.Since(start),
			"request_id", requestIDFromContext(r.Context()),
		)
	})
}

// backoff tells clients there is no need to slow down.
func (s *Server) backoff(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(common.HeaderBackoff, "0")
		next.ServeHTTP(w, r)
	})
}

// stripPrefix removes the mount point of a reverse proxy from the path. The
// X-Script-Name header overrides the configured prefix.
func (s *Server) stripPrefix(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := r.Header.Get(common.HeaderScriptName)
		if prefix == "" {
			prefix = s.prefix
		}
		prefix = strings.TrimSuffix(prefix, "/")
		if prefix == "" || (r.URL.Path != prefix && !strings.HasPrefix(r.URL.Path, prefix+"/")) {
			next.ServeHTTP(w, r)
			return
		}

		r2 := r.WithContext(context.WithValue(r.Context(), scriptNameKey, prefix))
		u := *r.URL
		u.Path = strings.TrimPrefix(r.URL.Path, prefix)
		if u.Path == "" {
			u.Path = "/"
		}
		u.RawPath = ""
		r2.URL = &u
		next.ServeHTTP(w, r2)
	})
}

// instrument records per-route metrics; it runs after routing so the
// route template is known.
func (s *Server) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)
		if rec.status == 0 {
			rec.status = http.StatusOK
		}
		metrics.ObserveRequest(route, r.Method, rec.status, time.Since(start))
	})
}

// authenticate checks Basic credentials against the uid of the path and
// puts the caller's store handle into the request context. Clients may
// send either the encoded uid or the raw account name.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		uid := mux.Vars(r)["uid"]
		user, password, ok := r.BasicAuth()
		if !ok || (user != uid && cryptox.EncodeUsername(user) != uid) {
			unauthorized(w)
			return
		}

		h, err := s.auth.Resolve(uid, password)
		if err != nil {
			if !errors.Is(err, common.ErrorUnauthorized) {
				s.logger.Error(r.Context(), "resolve store", "uid", uid, "error", err)
				http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
				return
			}
			unauthorized(w)
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), storeHandleKey, h)))
	})
}
