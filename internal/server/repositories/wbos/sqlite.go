package wbos

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/weavesync/internal/common"
	"github.com/dmitrijs2005/weavesync/internal/dbx"
	"github.com/dmitrijs2005/weavesync/internal/server/models"
	"github.com/dmitrijs2005/weavesync/internal/server/query"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Expire deletes the records of collection whose ttl has run out at now.
func (r *SQLiteRepository) Expire(ctx context.Context, collection string, now float64) (int64, error) {
	q := `DELETE FROM wbo WHERE collection = ? AND ttl IS NOT NULL AND (? - modified) > ttl`
	return r.exec(ctx, q, collection, now)
}

// ExpireAll is Expire over every collection of the store.
func (r *SQLiteRepository) ExpireAll(ctx context.Context, now float64) (int64, error) {
	q := `DELETE FROM wbo WHERE ttl IS NOT NULL AND (? - modified) > ttl`
	return r.exec(ctx, q, now)
}

func (r *SQLiteRepository) Select(ctx context.Context, collection string, spec *query.Spec) ([]*models.WBO, error) {
	q, args := spec.Select(collection, models.FullFields.Columns())

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var result []*models.WBO
	for rows.Next() {
		w, err := scanWBO(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) SelectIDs(ctx context.Context, collection string, spec *query.Spec) ([]string, error) {
	q, args := spec.Select(collection, "id")

	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("error scanning row: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return ids, nil
}

// Get returns common.ErrorNotFound when the record does not exist.
func (r *SQLiteRepository) Get(ctx context.Context, collection, id string) (*models.WBO, error) {
	q := `SELECT ` + models.FullFields.Columns() + ` FROM wbo WHERE collection = ? AND id = ?`

	w, err := scanWBO(r.db.QueryRowContext(ctx, q, collection, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Upsert inserts w or merges it into the stored record: nil fields keep the
// stored value, modified is always replaced.
func (r *SQLiteRepository) Upsert(ctx context.Context, collection string, w *models.WBO) error {
	q := `
		INSERT INTO wbo (collection, id, modified, sortindex, payload, payload_size, parentid, predecessorid, ttl)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (collection, id) DO UPDATE SET
			modified      = excluded.modified,
			sortindex     = COALESCE(excluded.sortindex, wbo.sortindex),
			payload       = COALESCE(excluded.payload, wbo.payload),
			payload_size  = CASE WHEN excluded.payload IS NULL THEN wbo.payload_size ELSE excluded.payload_size END,
			parentid      = COALESCE(excluded.parentid, wbo.parentid),
			predecessorid = COALESCE(excluded.predecessorid, wbo.predecessorid),
			ttl           = COALESCE(excluded.ttl, wbo.ttl)`

	_, err := r.db.ExecContext(ctx, q,
		collection, w.ID, w.Modified,
		w.SortIndex, w.Payload, w.PayloadSize,
		w.ParentID, w.PredecessorID, w.TTL,
	)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidWrite, err)
	}
	return nil
}

func (r *SQLiteRepository) Delete(ctx context.Context, collection, id string) (int64, error) {
	return r.exec(ctx, `DELETE FROM wbo WHERE collection = ? AND id = ?`, collection, id)
}

func (r *SQLiteRepository) DeleteMatching(ctx context.Context, collection string, spec *query.Spec) (int64, error) {
	q, args := spec.Delete(collection)
	return r.exec(ctx, q, args...)
}

// MaxModified returns nil for an empty or missing collection.
func (r *SQLiteRepository) MaxModified(ctx context.Context, collection string) (*float64, error) {
	var v sql.NullFloat64
	err := r.db.QueryRowContext(ctx, `SELECT MAX(modified) FROM wbo WHERE collection = ?`, collection).Scan(&v)
	if err != nil {
		return nil, fmt.Errorf("error performing sql request: %w", err)
	}
	if !v.Valid {
		return nil, nil
	}
	return &v.Float64, nil
}

func (r *SQLiteRepository) exec(ctx context.Context, q string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanWBO(s scanner) (*models.WBO, error) {
	var (
		w             models.WBO
		sortIndex     sql.NullInt64
		payload       sql.NullString
		parentID      sql.NullString
		predecessorID sql.NullString
		ttl           sql.NullInt64
	)
	err := s.Scan(&w.ID, &w.Modified, &sortIndex, &payload, &parentID, &predecessorID, &ttl)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("error scanning row: %w", err)
	}

	if sortIndex.Valid {
		w.SortIndex = &sortIndex.Int64
	}
	if payload.Valid {
		w.Payload = &payload.String
		w.PayloadSize = int64(len(payload.String))
	}
	if parentID.Valid {
		w.ParentID = &parentID.String
	}
	if predecessorID.Valid {
		w.PredecessorID = &predecessorID.String
	}
	if ttl.Valid {
		w.TTL = &ttl.Int64
	}
	return &w, nil
}
