package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/config"
	"github.com/dmitrijs2005/weavesync/internal/server/query"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- helpers ---

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

type storageFixture struct {
	svc    *StorageService
	stores *store.Manager
	clock  *fakeClock
	h      store.Handle
}

func newStorageFixture(t *testing.T, quotaKB int64) *storageFixture {
	t.Helper()
	rm := repomanager.NewSQLiteRepositoryManager()
	m, err := store.NewManager(t.TempDir(), rm, logging.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })

	h, err := m.Create(context.Background(), "alice", "pw")
	require.NoError(t, err)

	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}
	cfg := &config.Config{QuotaKB: quotaKB}
	return &storageFixture{
		svc:    NewStorageService(m, rm, clock, cfg, logging.Nop()),
		stores: m,
		clock:  clock,
		h:      h,
	}
}

func parseSpec(t *testing.T, raw string) *query.Spec {
	t.Helper()
	v, err := url.ParseQuery(raw)
	require.NoError(t, err)
	s, err := query.Parse(v)
	require.NoError(t, err)
	return s
}

func batch(t *testing.T, raw string) []json.RawMessage {
	t.Helper()
	var out []json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(raw), &out))
	return out
}

func (f *storageFixture) put(t *testing.T, collection, id, body string) float64 {
	t.Helper()
	ts, err := f.svc.PutItem(context.Background(), f.h, collection, id, []byte(body), nil)
	require.NoError(t, err)
	return ts
}

func (f *storageFixture) ids(t *testing.T, collection, raw string) []string {
	t.Helper()
	l, err := f.svc.GetCollection(context.Background(), f.h, collection, parseSpec(t, raw))
	require.NoError(t, err)
	return l.IDs
}

func ptr(v float64) *float64 { return &v }

// --- tests ---

func TestPutItem_RoundTrip(t *testing.T) {
	f := newStorageFixture(t, 0)

	ts := f.put(t, "bookmarks", "1", `{"payload":"p"}`)
	assert.Equal(t, 1_700_000_000.0, ts)

	w, err := f.svc.GetItem(context.Background(), f.h, "bookmarks", "1")
	require.NoError(t, err)
	assert.Equal(t, "1", w.ID)
	assert.Equal(t, "p", *w.Payload)
	assert.Equal(t, int64(1), w.PayloadSize)
	assert.Equal(t, ts, w.Modified)
}

func TestPutItem_PathIDWins(t *testing.T) {
	f := newStorageFixture(t, 0)

	f.put(t, "c", "path", `{"id":"body","payload":"x"}`)

	_, err := f.svc.GetItem(context.Background(), f.h, "c", "body")
	assert.ErrorIs(t, err, common.ErrorNotFound)
	_, err = f.svc.GetItem(context.Background(), f.h, "c", "path")
	assert.NoError(t, err)
}

func TestPutItem_Idempotent(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	f.put(t, "c", "a", `{"payload":"first"}`)
	f.clock.Advance(3 * time.Second)
	second := f.put(t, "c", "a", `{"payload":"second!"}`)

	counts, err := f.svc.CollectionCounts(ctx, f.h)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts["c"])

	w, err := f.svc.GetItem(ctx, f.h, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, "second!", *w.Payload)
	assert.Equal(t, int64(7), w.PayloadSize)
	assert.Equal(t, second, w.Modified)
}

func TestPutItem_Merge(t *testing.T) {
	f := newStorageFixture(t, 0)

	f.put(t, "c", "a", `{"payload":"x"}`)
	f.put(t, "c", "a", `{"sortindex":5}`)

	w, err := f.svc.GetItem(context.Background(), f.h, "c", "a")
	require.NoError(t, err)
	assert.Equal(t, "x", *w.Payload)
	assert.Equal(t, int64(5), *w.SortIndex)
}

func TestPutItem_BadInput(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	_, err := f.svc.PutItem(ctx, f.h, "c", "a", []byte(`{not json`), nil)
	assert.ErrorIs(t, err, common.ErrMalformedInput)

	_, err = f.svc.PutItem(ctx, f.h, "c", "a", []byte(`[1,2]`), nil)
	assert.ErrorIs(t, err, common.ErrInvalidRecord)

	_, err = f.svc.PutItem(ctx, f.h, "c", "a", []byte(`{"sortindex":"abc"}`), nil)
	assert.ErrorIs(t, err, common.ErrInvalidRecord)

	_, err = f.svc.PutItem(ctx, f.h, "bad/name", "a", []byte(`{}`), nil)
	assert.ErrorIs(t, err, common.ErrInvalidCollection)
}

func TestGetCollection_FilterSortPage(t *testing.T) {
	f := newStorageFixture(t, 0)

	for i, id := range []string{"a", "b", "c", "d", "e"} {
		body, _ := json.Marshal(map[string]any{"sortindex": i * 10})
		f.put(t, "c", id, string(body))
		f.clock.Advance(time.Second)
	}

	assert.ElementsMatch(t, []string{"c", "d", "e"}, f.ids(t, "c", "index_above=10"))
	assert.Equal(t, []string{"e", "d", "c", "b", "a"}, f.ids(t, "c", "sort=newest"))
	assert.Equal(t, []string{"a", "b"}, f.ids(t, "c", "sort=oldest&limit=2"))
	assert.Equal(t, []string{"e", "d"}, f.ids(t, "c", "sort=index&limit=2"))
	assert.Len(t, f.ids(t, "c", "limit=0"), 5)

	l, err := f.svc.GetCollection(context.Background(), f.h, "c", parseSpec(t, "full=1&sort=newest"))
	require.NoError(t, err)
	require.Equal(t, 5, l.Len())
	for i := 1; i < len(l.Records); i++ {
		assert.GreaterOrEqual(t, l.Records[i-1].Modified, l.Records[i].Modified)
	}
}

func TestGetCollection_Missing(t *testing.T) {
	f := newStorageFixture(t, 0)

	l, err := f.svc.GetCollection(context.Background(), f.h, "nothing", parseSpec(t, ""))
	require.NoError(t, err)
	assert.Zero(t, l.Len())

	counts, err := f.svc.CollectionCounts(context.Background(), f.h)
	require.NoError(t, err)
	assert.Empty(t, counts, "reads must not create collections")
}

func TestTTLExpiry(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	f.put(t, "c", "short", `{"payload":"x","ttl":1}`)
	f.put(t, "c", "keep", `{"payload":"y"}`)

	assert.ElementsMatch(t, []string{"short", "keep"}, f.ids(t, "c", ""))

	f.clock.Advance(2 * time.Second)

	assert.Equal(t, []string{"keep"}, f.ids(t, "c", ""))
	_, err := f.svc.GetItem(ctx, f.h, "c", "short")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestTTLExpiry_InfoEndpoints(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	f.put(t, "c", "short", `{"payload":"xxxx","ttl":1}`)
	f.clock.Advance(5 * time.Second)

	counts, err := f.svc.CollectionCounts(ctx, f.h)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"c": 0}, counts)

	info, err := f.svc.InfoCollections(ctx, f.h)
	require.NoError(t, err)
	assert.Empty(t, info)
}

func TestPrecondition(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	last := f.put(t, "c", "a", `{"payload":"x"}`)
	f.clock.Advance(time.Second)

	_, err := f.svc.PutItem(ctx, f.h, "c", "b", []byte(`{}`), ptr(last-1))
	assert.ErrorIs(t, err, common.ErrPreconditionFailed)
	_, err = f.svc.GetItem(ctx, f.h, "c", "b")
	assert.ErrorIs(t, err, common.ErrorNotFound, "rejected write must not persist")

	_, err = f.svc.PostCollection(ctx, f.h, "c", batch(t, `[{"id":"z"}]`), ptr(last-1))
	assert.ErrorIs(t, err, common.ErrPreconditionFailed)

	_, err = f.svc.DeleteItem(ctx, f.h, "c", "a", ptr(last-1))
	assert.ErrorIs(t, err, common.ErrPreconditionFailed)

	_, err = f.svc.DeleteCollection(ctx, f.h, "c", parseSpec(t, ""), ptr(last-1))
	assert.ErrorIs(t, err, common.ErrPreconditionFailed)

	_, err = f.svc.PutItem(ctx, f.h, "c", "b", []byte(`{}`), ptr(last))
	assert.NoError(t, err)

	// a collection with no records has nothing to conflict with
	_, err = f.svc.PutItem(ctx, f.h, "fresh", "a", []byte(`{}`), ptr(0))
	assert.NoError(t, err)
}

func TestPostCollection_PartialFailure(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	res, err := f.svc.PostCollection(ctx, f.h, "c",
		batch(t, `[{"id":"a","payload":"x"},{"payload":"y"},{"id":"b","sortindex":"nope"}]`), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a"}, res.Success)
	require.Len(t, res.Failed, 2)
	assert.JSONEq(t, `{"payload":"y"}`, string(res.Failed[0].(json.RawMessage)))
	assert.Equal(t, "b", res.Failed[1])
	assert.Equal(t, 1_700_000_000.0, res.Modified)

	encoded, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"modified":1700000000,"success":["a"],"failed":[{"payload":"y"},"b"]}`, string(encoded))

	assert.Equal(t, []string{"a"}, f.ids(t, "c", ""))
}

func TestPostCollection_EmptyResultLists(t *testing.T) {
	f := newStorageFixture(t, 0)

	res, err := f.svc.PostCollection(context.Background(), f.h, "c", nil, nil)
	require.NoError(t, err)

	encoded, err := json.Marshal(res)
	require.NoError(t, err)
	assert.JSONEq(t, `{"modified":1700000000,"success":[],"failed":[]}`, string(encoded))
}

func TestDeleteCollection(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		f.put(t, "col", id, `{}`)
		f.clock.Advance(time.Second)
	}

	_, err := f.svc.DeleteCollection(ctx, f.h, "col", parseSpec(t, "ids=a,b"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"c"}, f.ids(t, "col", ""))

	_, err = f.svc.DeleteCollection(ctx, f.h, "col", parseSpec(t, ""), nil)
	require.NoError(t, err)
	assert.Empty(t, f.ids(t, "col", ""))

	counts, err := f.svc.CollectionCounts(ctx, f.h)
	require.NoError(t, err)
	assert.NotContains(t, counts, "col")
}

func TestDeleteItem(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	f.put(t, "c", "a", `{}`)
	_, err := f.svc.DeleteItem(ctx, f.h, "c", "a", nil)
	require.NoError(t, err)

	_, err = f.svc.DeleteItem(ctx, f.h, "c", "a", nil)
	require.NoError(t, err, "deleting twice is fine")

	_, err = f.svc.GetItem(ctx, f.h, "c", "a")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestInfo(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	f.put(t, "tabs", "a", `{"payload":"0123456789"}`)
	f.clock.Advance(1500 * time.Millisecond)
	last := f.put(t, "tabs", "b", `{"payload":"0123456789"}`)

	info, err := f.svc.InfoCollections(ctx, f.h)
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"tabs": last}, info)

	usage, err := f.svc.CollectionUsage(ctx, f.h)
	require.NoError(t, err)
	assert.InDelta(t, 20.0/1024, usage["tabs"], 1e-9)

	used, limit, err := f.svc.Quota(ctx, f.h)
	require.NoError(t, err)
	assert.InDelta(t, 20.0/1024, used, 1e-9)
	assert.Nil(t, limit)
}

func TestQuota_Limit(t *testing.T) {
	f := newStorageFixture(t, 5000)

	_, limit, err := f.svc.Quota(context.Background(), f.h)
	require.NoError(t, err)
	require.NotNil(t, limit)
	assert.Equal(t, 5000.0, *limit)
}

func TestDeleteAll(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()

	f.put(t, "a", "1", `{}`)
	f.put(t, "b", "1", `{}`)

	_, err := f.svc.DeleteAll(ctx, f.h, false)
	assert.ErrorIs(t, err, common.ErrConfirmationRequired)

	ts, err := f.svc.DeleteAll(ctx, f.h, true)
	require.NoError(t, err)
	assert.Equal(t, 1_700_000_000.0, ts)

	counts, err := f.svc.CollectionCounts(ctx, f.h)
	require.NoError(t, err)
	assert.Empty(t, counts)
}

type failingOpener struct{ err error }

func (o failingOpener) Open(context.Context, store.Handle) (*sql.DB, error) { return nil, o.err }

func TestOpenError_Propagates(t *testing.T) {
	want := errors.New("disk gone")
	svc := NewStorageService(failingOpener{err: want}, repomanager.NewSQLiteRepositoryManager(),
		SystemClock(), &config.Config{}, logging.Nop())
	ctx := context.Background()
	h := store.Handle{UID: "alice"}

	_, err := svc.InfoCollections(ctx, h)
	assert.ErrorIs(t, err, want)
	_, err = svc.GetItem(ctx, h, "c", "a")
	assert.ErrorIs(t, err, want)
	_, err = svc.PutItem(ctx, h, "c", "a", []byte(`{}`), nil)
	assert.ErrorIs(t, err, want)
}

func TestRemovedStore_NotRecreated(t *testing.T) {
	f := newStorageFixture(t, 0)
	ctx := context.Background()
	f.put(t, "bookmarks", "a", `{"payload":"x"}`)

	require.NoError(t, f.stores.Remove(f.h))

	_, err := f.svc.GetCollection(ctx, f.h, "bookmarks", parseSpec(t, ""))
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
	_, err = f.svc.PutItem(ctx, f.h, "bookmarks", "b", []byte(`{}`), nil)
	assert.ErrorIs(t, err, common.ErrorUnauthorized)

	_, err = f.stores.Resolve("alice", "pw")
	assert.ErrorIs(t, err, common.ErrorUnauthorized)
}
