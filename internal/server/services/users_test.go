package services

import (
	"context"
	"errors"
	"testing"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/config"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newUserService(t *testing.T, enable bool) (*UserService, *store.Manager) {
	t.Helper()
	m, err := store.NewManager(t.TempDir(), repomanager.NewSQLiteRepositoryManager(), logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return NewUserService(m, &config.Config{EnableRegistration: enable}, logging.Nop()), m
}

func TestRegister(t *testing.T) {
	svc, m := newUserService(t, true)
	ctx := context.Background()

	taken, err := svc.Taken(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, taken)

	h, err := svc.Register(ctx, "alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, "alice", h.UID)

	got, err := m.Resolve("alice", "secret")
	require.NoError(t, err)
	assert.Equal(t, h, got)

	taken, err = svc.Taken(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, taken)

	_, err = svc.Register(ctx, "alice", "other")
	assert.ErrorIs(t, err, common.ErrAlreadyExists)
}

func TestRegister_Rejections(t *testing.T) {
	svc, _ := newUserService(t, true)
	ctx := context.Background()

	_, err := svc.Register(ctx, "alice", "")
	assert.ErrorIs(t, err, common.ErrMissingPassword)

	_, err = svc.Register(ctx, "no/slash", "pw")
	assert.ErrorIs(t, err, common.ErrInvalidUser)
}

func TestRegister_Disabled(t *testing.T) {
	svc, _ := newUserService(t, false)
	ctx := context.Background()

	taken, err := svc.Taken(ctx, "anyone")
	require.NoError(t, err)
	assert.True(t, taken)

	_, err = svc.Register(ctx, "alice", "pw")
	assert.ErrorIs(t, err, common.ErrInvalidWrite)
}

func TestDeleteUser(t *testing.T) {
	svc, m := newUserService(t, true)
	ctx := context.Background()

	h, err := svc.Register(ctx, "alice", "pw")
	require.NoError(t, err)
	require.NoError(t, svc.Delete(ctx, h))

	_, err = m.Resolve("alice", "pw")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestChangePassword(t *testing.T) {
	svc, m := newUserService(t, true)
	ctx := context.Background()

	h, err := svc.Register(ctx, "alice", "old-pw")
	require.NoError(t, err)

	_, err = svc.ChangePassword(ctx, h, "")
	assert.ErrorIs(t, err, common.ErrMissingPassword)

	_, err = svc.ChangePassword(ctx, h, "abc")
	assert.ErrorIs(t, err, common.ErrWeakPassword)

	next, err := svc.ChangePassword(ctx, h, "new-pw")
	require.NoError(t, err)

	got, err := m.Resolve("alice", "new-pw")
	require.NoError(t, err)
	assert.Equal(t, next, got)

	_, err = m.Resolve("alice", "old-pw")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}

func TestChangePassword_UnknownUser(t *testing.T) {
	svc, m := newUserService(t, true)

	_, err := svc.ChangePassword(context.Background(), m.HandleFor("ghost", "pw"), "new-pw")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

type failingRegistry struct {
	StoreRegistry
	err error
}

func (r failingRegistry) Create(context.Context, string, string) (store.Handle, error) {
	return store.Handle{}, r.err
}

func TestRegister_StoreError(t *testing.T) {
	want := errors.New("disk full")
	svc := NewUserService(failingRegistry{err: want}, &config.Config{EnableRegistration: true}, logging.Nop())

	_, err := svc.Register(context.Background(), "alice", "pw")
	assert.ErrorIs(t, err, want)
}
