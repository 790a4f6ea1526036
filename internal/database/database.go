package database

import (
	"context"
	"log"
	"time"

	"go-bulkops/internal/config"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/fx"
)

// MongodbDB wraps the selected Mongo database. DB is nil when the Mongo store is not configured.
type MongodbDB struct {
	DB *mongo.Database
}

// Enabled reports whether a Mongo connection is available.
func (m *MongodbDB) Enabled() bool {
	return m != nil && m.DB != nil
}

// NewDatabase creates a new MongoDB database connection with lifecycle management.
// Only connects when STORE_DRIVER=mongo; other drivers get a disabled handle.
func NewDatabase(lc fx.Lifecycle, cfg *config.Config) (*MongodbDB, error) {
	if cfg.StoreDriver != config.StoreDriverMongo {
		return &MongodbDB{}, nil
	}

	db, client, err := ConnectMongo(cfg)
	if err != nil {
		return nil, err
	}

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Println("Disconnecting from MongoDB...")
			return client.Disconnect(ctx)
		},
	})

	return db, nil
}

// ConnectMongo dials and pings Mongo. Callers own the returned client.
func ConnectMongo(cfg *config.Config) (*MongodbDB, *mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, err
	}

	// Ping the database to verify connection
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, err
	}

	log.Println("Connected to MongoDB!")

	return &MongodbDB{DB: client.Database(cfg.DBName)}, client, nil
}
