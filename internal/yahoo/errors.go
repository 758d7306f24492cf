package yahoo

import "fmt"

// AuthError reports a failed session negotiation: the provider refused to
// issue a cookie or a usable crumb. Without a session no fetch is possible,
// so the caller treats this as fatal for the batch unless it retries the
// negotiation itself.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("yahoo auth: %s: %v", e.Reason, e.Err)
	}
	return "yahoo auth: " + e.Reason
}

func (e *AuthError) Unwrap() error { return e.Err }

// RetryableError is a transient fetch-side condition: rate limiting, an
// unexpected status, or a response missing the expected result wrapper.
// Status is zero when the failure happened before a response arrived.
type RetryableError struct {
	Status int
	Reason string
	Err    error
}

func (e *RetryableError) Error() string {
	msg := "yahoo fetch: " + e.Reason
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *RetryableError) Unwrap() error { return e.Err }

// AuthShaped reports whether the failure looks like an expired or rejected
// session. The orchestrator reacts by re-negotiating instead of burning
// retry attempts against a dead credential.
func (e *RetryableError) AuthShaped() bool {
	return e.Status == 401 || e.Status == 403
}

// FetchError is the terminal per-symbol failure produced when the retry
// budget is exhausted. It is scoped to one symbol; the batch continues.
type FetchError struct {
	Symbol   string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s failed after %d attempts: %v", e.Symbol, e.Attempts, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }
