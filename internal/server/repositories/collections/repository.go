package collections

import "context"

type Repository interface {
	Ensure(ctx context.Context, name string, now float64) error
	Exists(ctx context.Context, name string) (bool, error)
	Drop(ctx context.Context, name string) error
	DropAll(ctx context.Context) error
	LastModified(ctx context.Context) (map[string]float64, error)
	Counts(ctx context.Context) (map[string]int64, error)
	Usage(ctx context.Context) (map[string]int64, error)
	TotalUsage(ctx context.Context) (int64, error)
}
