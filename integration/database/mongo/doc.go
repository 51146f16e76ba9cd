// Package mongo provides MongoDB client initialization and health checking.
//
// New and NewWithDatabase retry connection and ping with exponential backoff
// so brief network interruptions and Atlas cold starts don't fail startup.
//
//	var cfg mongo.Config
//	config.MustLoad(&cfg)
//
//	db, err := mongo.NewWithDatabase(ctx, cfg, "")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Client().Disconnect(ctx)
//
// # Configuration
//
//	MONGODB_URL                 connection URL
//	MONGODB_DATABASE            database name (default: sessions)
//	MONGODB_CONNECT_TIMEOUT     (default: 10s)
//	MONGODB_MAX_POOL_SIZE       (default: 100)
//	MONGODB_MIN_POOL_SIZE       (default: 1)
//	MONGODB_MAX_CONN_IDLE_TIME  (default: 300s)
//	MONGODB_RETRY_WRITES        (default: true)
//	MONGODB_RETRY_READS         (default: true)
//	MONGODB_RETRY_ATTEMPTS      (default: 3)
//	MONGODB_RETRY_INTERVAL      (default: 5s)
//
// # Error Handling
//
//	ErrEmptyConnectionURL     - no connection URL was provided
//	ErrFailedToConnectToMongo - all retry attempts are exhausted
//	ErrHealthcheckFailed      - the health check ping failed
package mongo
