package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/cryptox"
	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/config"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
)

// MinPasswordLength is the shortest password a password change accepts.
const MinPasswordLength = 4

// StoreRegistry is the part of the store manager the user registry needs.
type StoreRegistry interface {
	UserExists(uid string) (bool, error)
	Create(ctx context.Context, uid, password string) (store.Handle, error)
	Remove(h store.Handle) error
	Rename(h store.Handle, newPassword string) (store.Handle, error)
}

// UserService manages accounts. An account is nothing but its store file,
// so registering creates a store and deleting removes it.
type UserService struct {
	stores             StoreRegistry
	enableRegistration bool
	logger             logging.Logger
}

func NewUserService(stores StoreRegistry, cfg *config.Config, logger logging.Logger) *UserService {
	return &UserService{
		stores:             stores,
		enableRegistration: cfg.EnableRegistration,
		logger:             logger,
	}
}

// Taken reports whether uid cannot be registered: it is in use, or
// registration is closed.
func (s *UserService) Taken(ctx context.Context, uid string) (bool, error) {
	if !s.enableRegistration {
		return true, nil
	}
	return s.stores.UserExists(uid)
}

// Register creates the account uid. It fails with common.ErrInvalidWrite
// when registration is closed and common.ErrAlreadyExists when uid is in
// use.
func (s *UserService) Register(ctx context.Context, uid, password string) (store.Handle, error) {
	if !s.enableRegistration {
		return store.Handle{}, fmt.Errorf("%w: registration disabled", common.ErrInvalidWrite)
	}
	if password == "" {
		return store.Handle{}, common.ErrMissingPassword
	}
	if !cryptox.ValidUsername(uid) {
		return store.Handle{}, common.ErrInvalidUser
	}

	h, err := s.stores.Create(ctx, uid, password)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return store.Handle{}, err
		}
		return store.Handle{}, fmt.Errorf("error creating store: %w", err)
	}
	s.logger.Info(ctx, "user registered", "uid", uid)
	return h, nil
}

// Delete removes the account behind h with all its data.
func (s *UserService) Delete(ctx context.Context, h store.Handle) error {
	if err := s.stores.Remove(h); err != nil {
		return fmt.Errorf("error removing store: %w", err)
	}
	s.logger.Info(ctx, "user deleted", "uid", h.UID)
	return nil
}

// ChangePassword moves the store to the name derived from newPassword.
func (s *UserService) ChangePassword(ctx context.Context, h store.Handle, newPassword string) (store.Handle, error) {
	exists, err := s.stores.UserExists(h.UID)
	if err != nil {
		return store.Handle{}, err
	}
	if !exists {
		return store.Handle{}, common.ErrorNotFound
	}

	switch {
	case newPassword == "":
		return store.Handle{}, common.ErrMissingPassword
	case len(newPassword) < MinPasswordLength:
		return store.Handle{}, common.ErrWeakPassword
	}

	next, err := s.stores.Rename(h, newPassword)
	if err != nil {
		return store.Handle{}, fmt.Errorf("error renaming store: %w", err)
	}
	s.logger.Info(ctx, "password changed", "uid", h.UID)
	return next, nil
}
