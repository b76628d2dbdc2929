// Package rest exposes the storage and user services over the Weave 1.1
// HTTP protocol.
package rest

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/metrics"
	"github.com/dmitrijs2005/weavesync/internal/server/services"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
	"github.com/gorilla/mux"
)

// Path patterns shared by the routes.
const (
	versionPattern = `{version:[0-9]+(?:\.[0-9]+)?}`
	uidPattern     = `{uid:[a-zA-Z0-9._-]+}`
	namePattern    = `[a-zA-Z0-9._-]+`
)

// Authenticator resolves Basic credentials to the caller's store.
type Authenticator interface {
	Resolve(uid, password string) (store.Handle, error)
}

type Server struct {
	address         string
	prefix          string
	shutdownTimeout time.Duration
	auth            Authenticator
	storage         *services.StorageService
	users           *services.UserService
	logger          logging.Logger
	handler         http.Handler
}

func NewServer(addr, prefix string, shutdownTimeout time.Duration, l logging.Logger, auth Authenticator, st *services.StorageService, us *services.UserService) *Server {
	s := &Server{
		address:         addr,
		prefix:          prefix,
		shutdownTimeout: shutdownTimeout,
		auth:            auth,
		storage:         st,
		users:           us,
		logger:          l.With("module", "rest_server"),
	}
	s.handler = s.routes()
	return s
}

// Handler returns the complete HTTP handler, middleware included.
func (s *Server) Handler() http.Handler {
	return s.handler
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()
	router.Use(s.instrument)

	router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	// user registry
	user := router.PathPrefix("/user/" + versionPattern + "/" + uidPattern).Subrouter()
	user.HandleFunc("", s.handleUserTaken).Methods(http.MethodGet, http.MethodHead)
	user.HandleFunc("", s.handleRegister).Methods(http.MethodPut)
	user.Handle("", s.authenticate(http.HandlerFunc(s.handleDeleteUser))).Methods(http.MethodDelete)
	user.Handle("/password", s.authenticate(http.HandlerFunc(s.handleChangePassword))).Methods(http.MethodPost)
	user.HandleFunc("/node/weave", s.handleNode).Methods(http.MethodGet)
	user.HandleFunc("/password_reset", handleNotImplemented)
	user.HandleFunc("/email", handleNotImplemented)

	// storage
	api := router.PathPrefix("/" + versionPattern + "/" + uidPattern).Subrouter()
	api.Use(s.authenticate)
	api.HandleFunc("/info/collections", s.handleInfoCollections).Methods(http.MethodGet)
	api.HandleFunc("/info/collection_counts", s.handleCollectionCounts).Methods(http.MethodGet)
	api.HandleFunc("/info/collection_usage", s.handleCollectionUsage).Methods(http.MethodGet)
	api.HandleFunc("/info/quota", s.handleQuota).Methods(http.MethodGet)
	api.HandleFunc("/storage", s.handleDeleteAll).Methods(http.MethodDelete)

	collection := "/storage/{collection:" + namePattern + "}"
	api.HandleFunc(collection, s.handleGetCollection).Methods(http.MethodGet)
	api.HandleFunc(collection, s.handlePostCollection).Methods(http.MethodPost, http.MethodPut)
	api.HandleFunc(collection, s.handleDeleteCollection).Methods(http.MethodDelete)

	item := collection + "/{id:" + namePattern + "}"
	api.HandleFunc(item, s.handleGetItem).Methods(http.MethodGet)
	api.HandleFunc(item, s.handlePutItem).Methods(http.MethodPut)
	api.HandleFunc(item, s.handleDeleteItem).Methods(http.MethodDelete)

	return s.requestID(s.accessLog(s.backoff(s.stripPrefix(router))))
}

// Run serves until ctx is cancelled, then drains in-flight requests for
// at most the shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.address,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan error, 1)
	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		done <- srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", s.address)

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return <-done
}
