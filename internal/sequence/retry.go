package sequence

// RetryPolicy bounds the single retry-on-BodyError the engine offers
// (spec.md §7: "engine may optionally retry once if marked retriable in
// working interpretation"), grounded on the teacher's RetryPolicy/
// RetryExecutor shape (internal/application/executor/retry.go) but capped at
// the single attempt the spec allows rather than the teacher's full
// exponential-backoff policy.
type RetryPolicy struct {
	// MaxAttempts is 0 (no retry) or 1 (the spec's single bounded retry).
	MaxAttempts int
}

// NoRetry disables the engine's bounded retry.
func NoRetry() RetryPolicy { return RetryPolicy{MaxAttempts: 0} }

// SingleRetry enables the one bounded retry-on-retriable-BodyError spec.md §7
// allows.
func SingleRetry() RetryPolicy { return RetryPolicy{MaxAttempts: 1} }
