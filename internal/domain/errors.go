package domain

import "errors"

// Error kinds shared by the engine and every storage adapter. Callers match them with
// errors.Is; adapters wrap the underlying cause next to the kind.
var (
	// ErrNotFound means a referenced bank, contract or transaction does not exist.
	ErrNotFound = errors.New("not found")

	// ErrStorage means a read or write against the backing store failed.
	ErrStorage = errors.New("storage failure")

	// ErrInvariant means the data contradicts an engine invariant; the current run aborts.
	ErrInvariant = errors.New("invariant violation")
)
