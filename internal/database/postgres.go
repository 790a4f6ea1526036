package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"go-bulkops/internal/config"

	_ "github.com/lib/pq"
	"go.uber.org/fx"
)

// PostgresDB wraps the Postgres connection pool. DB is nil when the Postgres store is not configured.
type PostgresDB struct {
	DB *sql.DB
}

func (p *PostgresDB) Enabled() bool {
	return p != nil && p.DB != nil
}

// NewPostgres opens the Postgres pool when STORE_DRIVER=postgres.
func NewPostgres(lc fx.Lifecycle, cfg *config.Config) (*PostgresDB, error) {
	if cfg.StoreDriver != config.StoreDriverPostgres {
		return &PostgresDB{}, nil
	}

	pg, err := ConnectPostgres(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Closing Postgres pool...")
			return pg.DB.Close()
		},
	})

	return pg, nil
}

// ConnectPostgres opens and pings a pool. Callers own the returned handle.
func ConnectPostgres(cfg *config.Config) (*PostgresDB, error) {
	if cfg.PostgresDSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN is required when STORE_DRIVER=postgres")
	}

	db, err := sql.Open("postgres", cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres: %w", err)
	}
	db.SetMaxOpenConns(cfg.WorkerCount + 8)
	db.SetConnMaxIdleTime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}

	log.Println("Connected to Postgres!")
	return &PostgresDB{DB: db}, nil
}
