// Package config loads typed settings from environment variables.
//
// A .env file in the working directory is read once, on first use, with
// godotenv; variables already set in the environment win. Struct fields are
// filled by caarlos0/env using their env and envDefault tags.
//
// Loading the session store settings at startup:
//
//	import (
//		"github.com/dmitrymomot/sessions/core/config"
//		"github.com/dmitrymomot/sessions/core/session"
//		"github.com/dmitrymomot/sessions/integration/sessionstore"
//	)
//
//	func main() {
//		var storeCfg sessionstore.Config // SESSION_BACKEND, REDIS_URL, PG_CONN_URL, ...
//		config.MustLoad(&storeCfg)
//
//		var sessCfg session.Config // SESSION_MAX_AGE, SESSION_COOKIE_NAME
//		if err := config.Load(&sessCfg); err != nil {
//			log.Fatal(err)
//		}
//
//		storage, err := sessionstore.Open(ctx, storeCfg, slog.Default())
//		if err != nil {
//			log.Fatal(err)
//		}
//		store, err := session.NewStoreFromConfig(sessCfg, storage)
//		// ...
//	}
//
// Parse failures wrap ErrParsingConfig. MustLoad panics instead.
//
// # Caching
//
// Each struct type is parsed once per process. Later calls with the same type
// copy the cached value and ignore environment changes; distinct types are
// cached independently.
package config
