// Package server wires the storage server together: configuration, user
// stores, services and the HTTP endpoint. It handles signals and graceful
// shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/cryptox"
	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/config"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/weavesync/internal/server/rest"
	"github.com/dmitrijs2005/weavesync/internal/server/services"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
)

type App struct {
	config *config.Config
	logger logging.Logger
	stores *store.Manager
	server *rest.Server
}

func NewApp(c *config.Config) (*App, error) {
	logger := logging.NewJSONLogger(os.Stdout, slog.LevelInfo)

	rm := repomanager.NewSQLiteRepositoryManager()
	stores, err := store.NewManager(c.DataDir, rm, logger.With("module", "store"))
	if err != nil {
		return nil, fmt.Errorf("data dir init error: %w", err)
	}

	st := services.NewStorageService(stores, rm, services.SystemClock(), c, logger.With("module", "storage"))
	us := services.NewUserService(stores, c, logger.With("module", "users"))
	srv := rest.NewServer(c.EndpointAddr, c.Prefix, c.ShutdownTimeout, logger, stores, st, us)

	return &App{config: c, logger: logger, stores: stores, server: srv}, nil
}

// PasswordPrompt asks the operator for a password.
type PasswordPrompt func() (string, error)

// Register creates a store from "user:password" credentials. Without a
// password part, prompt is asked for one. The user name is encoded the way
// Sync clients send it.
func (app *App) Register(ctx context.Context, creds string, prompt PasswordPrompt) (string, error) {
	user, password, ok := strings.Cut(creds, ":")
	if !ok {
		if prompt == nil {
			return "", errors.New("provide credentials as user:password")
		}
		var err error
		if password, err = prompt(); err != nil {
			return "", fmt.Errorf("read password: %w", err)
		}
	}
	if user == "" {
		return "", errors.New("empty user name")
	}

	if password == "" {
		return "", common.ErrMissingPassword
	}

	// Operator registration works even when the HTTP registry is closed.
	uid := cryptox.EncodeUsername(user)
	if _, err := app.stores.Create(ctx, uid, password); err != nil {
		return "", err
	}
	app.logger.Info(ctx, "user registered", "uid", uid)
	return uid, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	if err := app.server.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run serves until a termination signal arrives or ctx is cancelled, then
// closes every open store.
func (app *App) Run(ctx context.Context) {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...", "data_dir", app.stores.Dir())

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		app.startHTTPServer(ctx, cancelFunc)
	}()

	wg.Wait()

	if err := app.Close(); err != nil {
		app.logger.Error(ctx, "close stores", "error", err)
	}
	app.logger.Info(ctx, "App stopped")
}

// Close releases the open stores.
func (app *App) Close() error {
	return app.stores.Close()
}
