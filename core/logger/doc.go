// Package logger provides structured logging utilities built on Go's standard slog package.
//
// New builds a *slog.Logger from options:
//
//	log := logger.New(
//		logger.WithProduction("sessions"),
//		logger.WithOutput(os.Stderr),
//	)
//
//	log.Info("session saved",
//		logger.Component("session"),
//		logger.SessionID(id),
//	)
//
// Attribute helpers are nil safe: logger.Error(nil) and logger.SessionID("")
// return an empty slog.Attr, which slog drops. SessionID logs only a short
// prefix of the id.
package logger
