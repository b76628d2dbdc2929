package wbos

import (
	"context"

	"github.com/dmitrijs2005/weavesync/internal/server/models"
	"github.com/dmitrijs2005/weavesync/internal/server/query"
)

type Repository interface {
	Expire(ctx context.Context, collection string, now float64) (int64, error)
	ExpireAll(ctx context.Context, now float64) (int64, error)
	Select(ctx context.Context, collection string, spec *query.Spec) ([]*models.WBO, error)
	SelectIDs(ctx context.Context, collection string, spec *query.Spec) ([]string, error)
	Get(ctx context.Context, collection, id string) (*models.WBO, error)
	Upsert(ctx context.Context, collection string, w *models.WBO) error
	Delete(ctx context.Context, collection, id string) (int64, error)
	DeleteMatching(ctx context.Context, collection string, spec *query.Spec) (int64, error)
	MaxModified(ctx context.Context, collection string) (*float64, error)
}
