package config

import (
	"log"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Store drivers accepted by STORE_DRIVER.
const (
	StoreDriverMemory   = "memory"
	StoreDriverMongo    = "mongo"
	StoreDriverPostgres = "postgres"
)

type Config struct {
	Port        string `env:"PORT" envDefault:"8080"`
	JWTSecret   string `env:"JWT_SECRET" envDefault:"secret"`
	SkipAuth    bool   `env:"SKIP_AUTH" envDefault:"false"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	AppId       string `env:"APP_ID" envDefault:"go-bulkops"`
	LogFile     string `env:"LOG_FILE"` // Rotating JSON log file, disabled when empty

	StoreDriver string `env:"STORE_DRIVER" envDefault:"memory"`
	MongoURI    string `env:"MONGO_URI" envDefault:"mongodb://localhost:27017"`
	DBName      string `env:"DB_NAME" envDefault:"go-bulkops"`
	PostgresDSN string `env:"POSTGRES_DSN"`

	// Worker pool
	WorkerCount        int           `env:"WORKER_COUNT" envDefault:"4"`
	WorkerPollInterval time.Duration `env:"WORKER_POLL_INTERVAL" envDefault:"1s"`
	ItemTimeout        time.Duration `env:"ITEM_TIMEOUT" envDefault:"30s"`
	ItemStopGrace      time.Duration `env:"ITEM_STOP_GRACE" envDefault:"30s"`
	RetryBaseDelay     time.Duration `env:"RETRY_BASE_DELAY" envDefault:"2s"`
	RetryMaxDelay      time.Duration `env:"RETRY_MAX_DELAY" envDefault:"5m"`
	SelectionLimit     int           `env:"SELECTION_LIMIT" envDefault:"10000"`

	// Retention
	RetentionSchedule string        `env:"RETENTION_SCHEDULE" envDefault:"0 3 * * *"`
	RetentionMaxAge   time.Duration `env:"RETENTION_MAX_AGE" envDefault:"720h"`

	RedisAddr    string `env:"REDIS_ADDR"`
	RedisChannel string `env:"REDIS_CHANNEL" envDefault:"bulk-operations"`

	ExportDir string `env:"EXPORT_DIR" envDefault:"./exports"`

	CORSOrigins string `env:"CORS_ORIGINS" envDefault:"http://localhost:3000, http://localhost:8000"`
}

// LoadConfig loads configuration from environment variables
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found")
	} else {
		log.Println("Loaded .env file successfully")
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}
