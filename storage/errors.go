package storage

import "errors"

// Sentinel errors shared by the storage adapters. The engine surfaces these
// through its own error type; adapters wrap them with backend detail.
var (
	// ErrBackendUnsupported indicates the selected adapter type is declared
	// but has no implementation yet.
	ErrBackendUnsupported = errors.New("storage backend not supported")

	// ErrBackendUnavailable indicates the adapter could not acquire its
	// driver, directory, or database connection.
	ErrBackendUnavailable = errors.New("storage backend unavailable")
)
