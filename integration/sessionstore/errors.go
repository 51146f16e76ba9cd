package sessionstore

import "errors"

// ErrUnknownBackend is returned by Open for an unsupported Config.Backend.
var ErrUnknownBackend = errors.New("unknown session backend")
