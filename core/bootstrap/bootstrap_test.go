package bootstrap

import (
	"context"
	"errors"
	"testing"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/ocipanel/core/config"
	coredatabase "github.com/m3rciful/ocipanel/core/database"
	"github.com/m3rciful/ocipanel/migrations"
)

func TestRunMigratesAndSeeds(t *testing.T) {
	seeded := 0
	res, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: ":memory:"},
		Migrations: migrations.FS,
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Modules: Modules{Seeders: []Seeder{SeederFunc(func(ctx context.Context, db *sqlx.DB) error {
			seeded++
			_, err := db.ExecContext(ctx, `INSERT INTO allow_list (tg_user_id, identity) VALUES (1, 'seed')`)
			return err
		})}},
	})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	defer res.DB.Close()
	if seeded != 1 {
		t.Fatalf("seeded = %d", seeded)
	}
	var n int
	if err := res.DB.Get(&n, `SELECT COUNT(*) FROM allow_list`); err != nil {
		t.Fatalf("count: %v", err)
	}
	if n != 1 {
		t.Fatalf("allowed users = %d", n)
	}
}

func TestRunStopsOnSeederError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Run(context.Background(), Options{
		Config:     &coreconfig.Config{},
		Database:   coredatabase.Config{Driver: coredatabase.DriverSQLite, Path: ":memory:"},
		Migrations: migrations.FS,
		LoggerInit: func(*coreconfig.Config) error { return nil },
		Modules: Modules{Seeders: []Seeder{SeederFunc(func(context.Context, *sqlx.DB) error {
			return boom
		})}},
	})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}
