package pipeline

import "time"

// Defaults for a contract scan run.
// These can be overridden through Config or the RUN_TIMEOUT environment variable.
const (
	// DefaultRunTimeout bounds one scan of one bank.
	DefaultRunTimeout = 2 * time.Minute

	// MessageNothingToScan is reported when the bank has no unlinked transactions.
	MessageNothingToScan = "No transactions without contract found!"
)
