package bulk_operation

import (
	"context"
	"fmt"

	"go-bulkops/internal/config"
	"go-bulkops/internal/database"
)

// SelectStore returns the Store for STORE_DRIVER over already opened connections.
func SelectStore(cfg *config.Config, mongodb *database.MongodbDB, pg *database.PostgresDB) (Store, error) {
	switch cfg.StoreDriver {
	case "", config.StoreDriverMemory:
		return NewMemoryStore(), nil
	case config.StoreDriverMongo:
		if !mongodb.Enabled() {
			return nil, fmt.Errorf("mongo store selected but no connection is open")
		}
		return NewMongoStore(mongodb), nil
	case config.StoreDriverPostgres:
		if !pg.Enabled() {
			return nil, fmt.Errorf("postgres store selected but no connection is open")
		}
		return NewPostgresStore(pg.DB), nil
	}
	return nil, fmt.Errorf("unknown STORE_DRIVER %q", cfg.StoreDriver)
}

// PrepareStore creates indexes or tables the store needs.
func PrepareStore(ctx context.Context, s Store) error {
	switch st := s.(type) {
	case *MongoStore:
		return st.EnsureIndexes(ctx)
	case *PostgresStore:
		return st.Migrate(ctx)
	}
	return nil
}
