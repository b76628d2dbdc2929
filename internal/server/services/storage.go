// Package services contains the server-side business logic. This file
// implements StorageService, the collection store operations of one user:
// info queries, collection and item reads, batch and single writes, deletes.
package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/dbx"
	"github.com/dmitrijs2005/weavesync/internal/logging"
	"github.com/dmitrijs2005/weavesync/internal/server/config"
	"github.com/dmitrijs2005/weavesync/internal/server/metrics"
	"github.com/dmitrijs2005/weavesync/internal/server/models"
	"github.com/dmitrijs2005/weavesync/internal/server/query"
	"github.com/dmitrijs2005/weavesync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/weavesync/internal/server/store"
	"github.com/dmitrijs2005/weavesync/internal/timex"
)

// StoreOpener gives access to the database behind a store handle.
type StoreOpener interface {
	Open(ctx context.Context, h store.Handle) (*sql.DB, error)
}

// Listing is the result of a collection read: bare ids, or full records
// when Full is set.
type Listing struct {
	Full    bool
	IDs     []string
	Records []*models.WBO
}

// Len is the number of returned entries.
func (l *Listing) Len() int {
	if l.Full {
		return len(l.Records)
	}
	return len(l.IDs)
}

// BatchResult reports a batch write. Failed holds ids for records that
// had one, and the raw record otherwise.
type BatchResult struct {
	Modified float64  `json:"modified"`
	Success  []string `json:"success"`
	Failed   []any    `json:"failed"`
}

type StorageService struct {
	stores      StoreOpener
	repomanager repomanager.RepositoryManager
	clock       Clock
	quotaKB     int64
	logger      logging.Logger
}

func NewStorageService(stores StoreOpener, m repomanager.RepositoryManager, clock Clock, cfg *config.Config, logger logging.Logger) *StorageService {
	return &StorageService{
		stores:      stores,
		repomanager: m,
		clock:       clock,
		quotaKB:     cfg.QuotaKB,
		logger:      logger,
	}
}

// InfoCollections maps every non-empty collection to its last
// modification time.
func (s *StorageService) InfoCollections(ctx context.Context, h store.Handle) (map[string]float64, error) {
	db, err := s.openSwept(ctx, h)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Collections(db).LastModified(ctx)
}

// CollectionCounts maps every collection to its number of records.
func (s *StorageService) CollectionCounts(ctx context.Context, h store.Handle) (map[string]int64, error) {
	db, err := s.openSwept(ctx, h)
	if err != nil {
		return nil, err
	}
	return s.repomanager.Collections(db).Counts(ctx)
}

// CollectionUsage maps every collection to its payload volume in KB.
func (s *StorageService) CollectionUsage(ctx context.Context, h store.Handle) (map[string]float64, error) {
	db, err := s.openSwept(ctx, h)
	if err != nil {
		return nil, err
	}
	usage, err := s.repomanager.Collections(db).Usage(ctx)
	if err != nil {
		return nil, err
	}
	result := make(map[string]float64, len(usage))
	for name, bytes := range usage {
		result[name] = float64(bytes) / 1024
	}
	return result, nil
}

// Quota returns the used KB and the configured limit, nil when unlimited.
func (s *StorageService) Quota(ctx context.Context, h store.Handle) (float64, *float64, error) {
	db, err := s.openSwept(ctx, h)
	if err != nil {
		return 0, nil, err
	}
	total, err := s.repomanager.Collections(db).TotalUsage(ctx)
	if err != nil {
		return 0, nil, err
	}
	var limit *float64
	if s.quotaKB > 0 {
		l := float64(s.quotaKB)
		limit = &l
	}
	return float64(total) / 1024, limit, nil
}

// DeleteAll drops every collection of the store. It refuses to run
// without an explicit confirmation.
func (s *StorageService) DeleteAll(ctx context.Context, h store.Handle, confirmed bool) (float64, error) {
	if !confirmed {
		return 0, common.ErrConfirmationRequired
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return 0, err
	}
	now := s.now()
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		return s.repomanager.Collections(tx).DropAll(ctx)
	})
	if err != nil {
		return 0, fmt.Errorf("error dropping collections: %w", err)
	}
	s.logger.Info(ctx, "store wiped", "uid", h.UID)
	return now, nil
}

// GetCollection reads the records of a collection selected by spec. A
// missing collection reads as empty.
func (s *StorageService) GetCollection(ctx context.Context, h store.Handle, collection string, spec *query.Spec) (*Listing, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return nil, err
	}
	if err := s.expire(ctx, db, collection, s.now()); err != nil {
		return nil, err
	}

	l := &Listing{Full: spec.Full}
	exists, err := s.repomanager.Collections(db).Exists(ctx, collection)
	if err != nil {
		return nil, err
	}
	if !exists {
		return l, nil
	}

	repo := s.repomanager.WBOs(db)
	if spec.Full {
		l.Records, err = repo.Select(ctx, collection, spec)
	} else {
		l.IDs, err = repo.SelectIDs(ctx, collection, spec)
	}
	if err != nil {
		return nil, err
	}
	return l, nil
}

// PostCollection stores a batch of records. Records fail individually;
// the batch as a whole fails only on a precondition or storage error.
func (s *StorageService) PostCollection(ctx context.Context, h store.Handle, collection string, batch []json.RawMessage, ifUnmodifiedSince *float64) (*BatchResult, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return nil, err
	}

	now := s.now()
	res, err := dbx.InTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) (*BatchResult, error) {
		if err := s.prepareWrite(ctx, tx, collection, now, ifUnmodifiedSince); err != nil {
			return nil, err
		}

		res := &BatchResult{Modified: now, Success: []string{}, Failed: []any{}}

		repo := s.repomanager.WBOs(tx)
		for _, raw := range batch {
			w, err := models.ParseWBO(raw)
			if err == nil {
				w.Modified = now
				err = repo.Upsert(ctx, collection, w)
			}
			if err != nil {
				s.logger.Debug(ctx, "record rejected", "collection", collection, "error", err)
				if id, ok := models.ParseID(raw); ok {
					res.Failed = append(res.Failed, id)
				} else {
					res.Failed = append(res.Failed, raw)
				}
				continue
			}
			res.Success = append(res.Success, w.ID)
		}
		return res, nil
	})
	if err != nil {
		return nil, err
	}

	metrics.AddWritten(len(res.Success))
	metrics.AddFailed(len(res.Failed))
	return res, nil
}

// DeleteCollection deletes the records selected by spec, or drops the
// whole collection when spec selects everything.
func (s *StorageService) DeleteCollection(ctx context.Context, h store.Handle, collection string, spec *query.Spec, ifUnmodifiedSince *float64) (float64, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return 0, err
	}

	now := s.now()
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.expire(ctx, tx, collection, now); err != nil {
			return err
		}
		if err := s.checkUnmodified(ctx, tx, collection, ifUnmodifiedSince); err != nil {
			return err
		}
		if !spec.HasFilter() {
			return s.repomanager.Collections(tx).Drop(ctx, collection)
		}
		_, err := s.repomanager.WBOs(tx).DeleteMatching(ctx, collection, spec)
		return err
	})
	if err != nil {
		return 0, err
	}
	return now, nil
}

// GetItem returns common.ErrorNotFound for a missing or expired record.
func (s *StorageService) GetItem(ctx context.Context, h store.Handle, collection, id string) (*models.WBO, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return nil, err
	}
	if err := s.expire(ctx, db, collection, s.now()); err != nil {
		return nil, err
	}
	return s.repomanager.WBOs(db).Get(ctx, collection, id)
}

// PutItem stores one record under id. An id in the body is replaced by
// the one from the path.
func (s *StorageService) PutItem(ctx context.Context, h store.Handle, collection, id string, body []byte, ifUnmodifiedSince *float64) (float64, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	w, err := parseItem(body, id)
	if err != nil {
		return 0, err
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return 0, err
	}

	now := s.now()
	w.Modified = now
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.prepareWrite(ctx, tx, collection, now, ifUnmodifiedSince); err != nil {
			return err
		}
		return s.repomanager.WBOs(tx).Upsert(ctx, collection, w)
	})
	if err != nil {
		return 0, err
	}

	metrics.AddWritten(1)
	return now, nil
}

// DeleteItem removes one record; deleting a missing record succeeds.
func (s *StorageService) DeleteItem(ctx context.Context, h store.Handle, collection, id string, ifUnmodifiedSince *float64) (float64, error) {
	if err := validateCollection(collection); err != nil {
		return 0, err
	}
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return 0, err
	}

	now := s.now()
	err = dbx.WithTx(ctx, db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.expire(ctx, tx, collection, now); err != nil {
			return err
		}
		if err := s.checkUnmodified(ctx, tx, collection, ifUnmodifiedSince); err != nil {
			return err
		}
		_, err := s.repomanager.WBOs(tx).Delete(ctx, collection, id)
		return err
	})
	if err != nil {
		return 0, err
	}
	return now, nil
}

// --- helpers below ---

func (s *StorageService) now() float64 {
	return timex.Timestamp(s.clock.Now())
}

func (s *StorageService) openSwept(ctx context.Context, h store.Handle) (*sql.DB, error) {
	db, err := s.stores.Open(ctx, h)
	if err != nil {
		return nil, err
	}
	n, err := s.repomanager.WBOs(db).ExpireAll(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("error expiring records: %w", err)
	}
	metrics.AddExpired(n)
	return db, nil
}

func (s *StorageService) expire(ctx context.Context, db dbx.DBTX, collection string, now float64) error {
	n, err := s.repomanager.WBOs(db).Expire(ctx, collection, now)
	if err != nil {
		return fmt.Errorf("error expiring records: %w", err)
	}
	metrics.AddExpired(n)
	return nil
}

// prepareWrite sweeps, checks the precondition and registers the
// collection, in that order, on the write transaction.
func (s *StorageService) prepareWrite(ctx context.Context, tx dbx.DBTX, collection string, now float64, ifUnmodifiedSince *float64) error {
	if err := s.expire(ctx, tx, collection, now); err != nil {
		return err
	}
	if err := s.checkUnmodified(ctx, tx, collection, ifUnmodifiedSince); err != nil {
		return err
	}
	return s.repomanager.Collections(tx).Ensure(ctx, collection, now)
}

func (s *StorageService) checkUnmodified(ctx context.Context, tx dbx.DBTX, collection string, since *float64) error {
	if since == nil {
		return nil
	}
	last, err := s.repomanager.WBOs(tx).MaxModified(ctx, collection)
	if err != nil {
		return err
	}
	if last != nil && *since < *last {
		return common.ErrPreconditionFailed
	}
	return nil
}

func validateCollection(name string) error {
	if !models.ValidCollectionName(name) {
		return fmt.Errorf("%w: %q", common.ErrInvalidCollection, name)
	}
	return nil
}

func parseItem(body []byte, id string) (*models.WBO, error) {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(body, &obj); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return nil, fmt.Errorf("%w: not an object", common.ErrInvalidRecord)
		}
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedInput, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: not an object", common.ErrInvalidRecord)
	}

	rawID, err := json.Marshal(id)
	if err != nil {
		return nil, err
	}
	obj["id"] = rawID

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, err
	}
	return models.ParseWBO(raw)
}
