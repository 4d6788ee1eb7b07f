package bootstrap

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// Seeder loads reference data once the schema is current.
type Seeder interface {
	Seed(ctx context.Context, db *sqlx.DB) error
}

// SeederFunc adapts a bare function to the Seeder interface.
type SeederFunc func(ctx context.Context, db *sqlx.DB) error

// Seed executes the underlying function.
func (f SeederFunc) Seed(ctx context.Context, db *sqlx.DB) error {
	return f(ctx, db)
}

// Modules groups optional bootstrapping hooks.
type Modules struct {
	Seeders []Seeder
}

func (m Modules) seed(ctx context.Context, db *sqlx.DB) error {
	for i, s := range m.Seeders {
		if s == nil {
			continue
		}
		if err := s.Seed(ctx, db); err != nil {
			return fmt.Errorf("seeder %d: %w", i, err)
		}
	}
	return nil
}
