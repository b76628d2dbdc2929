// Package store manages the per-user SQLite files of the data directory:
// resolving credentials to a store, creating, opening, renaming and removing
// stores.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/cryptox"
	"github.com/dmitrijs2005/weavesync/internal/filex"
	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/repomanager"
	_ "modernc.org/sqlite"
)

// Handle identifies one user's store. It is what authentication hands to
// the storage operations; holding a Handle means the credentials matched.
type Handle struct {
	UID  string
	Path string
}

// sidecars are the files SQLite keeps next to a store in WAL mode.
var sidecars = []string{"-wal", "-shm"}

var storeFile = regexp.MustCompile(`\.[0-9a-f]{16}$`)

// Manager owns the data directory. Open stores are cached per path and
// migrated once when first opened.
type Manager struct {
	dir    string
	repos  repomanager.RepositoryManager
	logger logging.Logger

	mu  sync.Mutex
	dbs map[string]*sql.DB
}

// NewManager creates the data directory if needed.
func NewManager(dir string, repos repomanager.RepositoryManager, logger logging.Logger) (*Manager, error) {
	abs, err := filex.EnsureDir(dir)
	if err != nil {
		return nil, err
	}
	return &Manager{
		dir:    abs,
		repos:  repos,
		logger: logger,
		dbs:    make(map[string]*sql.DB),
	}, nil
}

// Dir returns the absolute data directory.
func (m *Manager) Dir() string { return m.dir }

// HandleFor builds the handle for (uid, password) without checking that the
// store exists.
func (m *Manager) HandleFor(uid, password string) Handle {
	return Handle{UID: uid, Path: filepath.Join(m.dir, cryptox.StoreName(uid, password))}
}

// Resolve returns the handle of an existing store, or
// common.ErrorUnauthorized when there is none for these credentials.
func (m *Manager) Resolve(uid, password string) (Handle, error) {
	if !cryptox.ValidUsername(uid) {
		return Handle{}, common.ErrorUnauthorized
	}
	h := m.HandleFor(uid, password)
	ok, err := filex.Exists(h.Path)
	if err != nil {
		return Handle{}, fmt.Errorf("stat store: %w", err)
	}
	if !ok {
		return Handle{}, common.ErrorUnauthorized
	}
	return h, nil
}

// UserExists reports whether any store belongs to uid, whatever its
// password.
func (m *Manager) UserExists(uid string) (bool, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return false, fmt.Errorf("read data dir: %w", err)
	}
	for _, e := range entries {
		name := e.Name()
		if e.Type().IsRegular() && storeFile.MatchString(name) && cryptox.StoreOwner(name) == uid {
			return true, nil
		}
	}
	return false, nil
}

// Create makes a new, migrated store for uid.
func (m *Manager) Create(ctx context.Context, uid, password string) (Handle, error) {
	if !cryptox.ValidUsername(uid) {
		return Handle{}, common.ErrInvalidUser
	}
	exists, err := m.UserExists(uid)
	if err != nil {
		return Handle{}, err
	}
	if exists {
		return Handle{}, common.ErrAlreadyExists
	}

	h := m.HandleFor(uid, password)
	if _, err := m.open(ctx, h, true); err != nil {
		_ = m.Remove(h)
		return Handle{}, err
	}
	m.logger.Info(ctx, "store created", "uid", uid)
	return h, nil
}

// Open returns the database of h, opening and migrating it on first use.
// The returned *sql.DB is shared and must not be closed by the caller. A
// store removed or renamed since h was resolved yields
// common.ErrorUnauthorized; Open never creates a store.
func (m *Manager) Open(ctx context.Context, h Handle) (*sql.DB, error) {
	return m.open(ctx, h, false)
}

func (m *Manager) open(ctx context.Context, h Handle, create bool) (*sql.DB, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if db, ok := m.dbs[h.Path]; ok {
		return db, nil
	}

	if !create {
		exists, err := filex.Exists(h.Path)
		if err != nil {
			return nil, fmt.Errorf("stat store: %w", err)
		}
		if !exists {
			return nil, fmt.Errorf("%w: store is gone", common.ErrorUnauthorized)
		}
	}

	db, err := sql.Open("sqlite", dsn(h.Path))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := m.repos.RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}

	m.dbs[h.Path] = db
	return db, nil
}

// Remove closes and deletes the store of h. Removing a missing store is not
// an error.
func (m *Manager) Remove(h Handle) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked(h.Path)

	for _, suffix := range append([]string{""}, sidecars...) {
		if err := os.Remove(h.Path + suffix); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove store: %w", err)
		}
	}
	return nil
}

// Rename moves the store of h to the name derived from newPassword.
func (m *Manager) Rename(h Handle, newPassword string) (Handle, error) {
	next := m.HandleFor(h.UID, newPassword)
	if next.Path == h.Path {
		return h, nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.closeLocked(h.Path)

	if err := os.Rename(h.Path, next.Path); err != nil {
		return Handle{}, fmt.Errorf("rename store: %w", err)
	}
	for _, suffix := range sidecars {
		err := os.Rename(h.Path+suffix, next.Path+suffix)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return Handle{}, fmt.Errorf("rename store: %w", err)
		}
	}
	return next, nil
}

// Close closes every cached store.
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	for path, db := range m.dbs {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s: %w", filepath.Base(path), err))
		}
		delete(m.dbs, path)
	}
	return errors.Join(errs...)
}

func (m *Manager) closeLocked(path string) {
	db, ok := m.dbs[path]
	if !ok {
		return
	}
	if err := db.Close(); err != nil {
		m.logger.Warn(context.Background(), "close store", "store", filepath.Base(path), "error", err)
	}
	delete(m.dbs, path)
}

// dsn enables WAL, waits on locks instead of failing, and starts every
// transaction with BEGIN IMMEDIATE so a precondition check and the write
// that follows it hold the write lock together.
func dsn(path string) string {
	return "file:" + path +
		"?_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)" +
		"&_txlock=immediate"
}
