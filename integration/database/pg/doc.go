// Package pg provides PostgreSQL connection management with migrations and
// health checking, built on pgx and goose.
//
//   - Connect: creates a pgxpool.Pool and verifies it, retrying with backoff
//   - Migrate: applies goose migrations from an fs.FS or a directory
//   - Healthcheck: returns a ping check for readiness endpoints
//   - WithTx / TxFromContext: carry a pgx.Tx through context so repositories
//     join the caller's transaction
//
// Usage:
//
//	var cfg pg.Config
//	config.MustLoad(&cfg)
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer pool.Close()
//
//	if err := pg.Migrate(ctx, pool, nil, cfg, logger); err != nil {
//		log.Fatal(err)
//	}
//
// Migrate converts the pool to *sql.DB with pgx/stdlib because goose works
// on database/sql.
//
// # Transactions
//
//	tx, err := pool.Begin(ctx)
//	if err != nil {
//		return err
//	}
//	defer tx.Rollback(ctx)
//
//	ctx = pg.WithTx(ctx, tx)
//	// repositories reading pg.TxFromContext(ctx) now use tx
//
//	return tx.Commit(ctx)
package pg
