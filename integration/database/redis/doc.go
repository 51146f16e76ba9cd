// Package redis provides Redis client initialization and health checking.
//
// Connect parses a redis:// or rediss:// URL, creates a go-redis client and
// verifies it with PING, retrying with exponential backoff:
//
//	var cfg redis.Config
//	config.MustLoad(&cfg)
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer client.Close()
//
// Healthcheck returns a check suitable for readiness endpoints.
//
// # Configuration
//
//	REDIS_URL              connection URL (default: redis://localhost:6379/0)
//	REDIS_RETRY_ATTEMPTS   connection attempts (default: 3)
//	REDIS_RETRY_INTERVAL   base backoff interval (default: 5s)
//	REDIS_CONNECT_TIMEOUT  overall connect deadline (default: 30s)
//	REDIS_SCAN_BATCH_SIZE  SCAN COUNT hint used by bulk deletes (default: 1000)
//
// # Error Handling
//
//   - ErrFailedToParseRedisConnString: the connection URL is malformed
//   - ErrRedisNotReady: Redis did not answer PING in time
//   - ErrEmptyConnectionURL: no connection URL was provided
//   - ErrHealthcheckFailed: the health check ping failed
package redis
