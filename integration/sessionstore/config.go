package sessionstore

import (
	"time"

	"github.com/dmitrymomot/sessions/integration/database/mongo"
	"github.com/dmitrymomot/sessions/integration/database/pg"
	"github.com/dmitrymomot/sessions/integration/database/redis"
)

// Backend names accepted by Config.Backend.
const (
	BackendMemory     = "memory"
	BackendFilesystem = "filesystem"
	BackendRedis      = "redis"
	BackendBolt       = "bolt"
	BackendPostgres   = "postgres"
	BackendMongo      = "mongo"
)

// Config selects a session backend and carries its connection parameters.
type Config struct {
	Backend               string        `env:"SESSION_BACKEND" envDefault:"memory"`
	Metrics               bool          `env:"SESSION_METRICS" envDefault:"false"`
	MemoryCleanupInterval time.Duration `env:"SESSION_MEMORY_CLEANUP_INTERVAL" envDefault:"5m"`
	FSDir                 string        `env:"SESSION_FS_DIR" envDefault:"./sessions"`
	BoltPath              string        `env:"SESSION_BOLT_PATH" envDefault:"./sessions.db"`
	KeyPrefix             string        `env:"SESSION_KEY_PREFIX" envDefault:"session:"`
	MongoCollection       string        `env:"SESSION_MONGO_COLLECTION" envDefault:"sessions"`

	Redis    redis.Config
	Postgres pg.Config
	Mongo    mongo.Config
}
