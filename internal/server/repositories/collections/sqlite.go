package collections

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/weavesync/internal/dbx"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// Ensure registers the collection; it is a no-op when it already exists.
func (r *SQLiteRepository) Ensure(ctx context.Context, name string, now float64) error {
	_, err := r.db.ExecContext(ctx, `INSERT OR IGNORE INTO collections (name, created) VALUES (?, ?)`, name, now)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Exists(ctx context.Context, name string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM collections WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("error performing sql request: %w", err)
	}
	return true, nil
}

// Drop removes the collection and every record in it. Run it inside a
// transaction so both statements apply together.
func (r *SQLiteRepository) Drop(ctx context.Context, name string) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM wbo WHERE collection = ?`, name); err != nil {
		return fmt.Errorf("error deleting records: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM collections WHERE name = ?`, name); err != nil {
		return fmt.Errorf("error deleting collection: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) DropAll(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM wbo`); err != nil {
		return fmt.Errorf("error deleting records: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM collections`); err != nil {
		return fmt.Errorf("error deleting collections: %w", err)
	}
	return nil
}

// LastModified maps each non-empty collection to its newest record time.
func (r *SQLiteRepository) LastModified(ctx context.Context) (map[string]float64, error) {
	result := map[string]float64{}
	err := r.scanPairs(ctx, `SELECT collection, MAX(modified) FROM wbo GROUP BY collection`,
		func(rows *sql.Rows) error {
			var (
				name string
				v    float64
			)
			if err := rows.Scan(&name, &v); err != nil {
				return err
			}
			result[name] = v
			return nil
		})
	return result, err
}

// Counts maps every collection, empty ones included, to its record count.
func (r *SQLiteRepository) Counts(ctx context.Context) (map[string]int64, error) {
	return r.int64Pairs(ctx, `
		SELECT c.name, COUNT(w.id)
		FROM collections c LEFT JOIN wbo w ON w.collection = c.name
		GROUP BY c.name`)
}

// Usage maps every collection to the sum of its payload sizes in bytes.
func (r *SQLiteRepository) Usage(ctx context.Context) (map[string]int64, error) {
	return r.int64Pairs(ctx, `
		SELECT c.name, COALESCE(SUM(w.payload_size), 0)
		FROM collections c LEFT JOIN wbo w ON w.collection = c.name
		GROUP BY c.name`)
}

// TotalUsage is the payload byte total over the whole store.
func (r *SQLiteRepository) TotalUsage(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COALESCE(SUM(payload_size), 0) FROM wbo`).Scan(&total); err != nil {
		return 0, fmt.Errorf("error performing sql request: %w", err)
	}
	return total, nil
}

func (r *SQLiteRepository) int64Pairs(ctx context.Context, q string) (map[string]int64, error) {
	result := map[string]int64{}
	err := r.scanPairs(ctx, q, func(rows *sql.Rows) error {
		var (
			name string
			v    int64
		)
		if err := rows.Scan(&name, &v); err != nil {
			return err
		}
		result[name] = v
		return nil
	})
	return result, err
}

func (r *SQLiteRepository) scanPairs(ctx context.Context, q string, scan func(*sql.Rows) error) error {
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return fmt.Errorf("error performing sql request: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		if err := scan(rows); err != nil {
			return fmt.Errorf("error scanning row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating rows: %w", err)
	}
	return nil
}
