package verify

import "errors"

// Sentinel errors shared across the job system.
var (
	// ErrNotFound signals that the requested record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrMalformedLine is returned when a line holds no case-number pattern.
	ErrMalformedLine = errors.New("malformed input line")

	// ErrNoValidItems is returned at submission when no line parsed.
	ErrNoValidItems = errors.New("no valid items in submission")

	// ErrMissingCredentials is returned when no usable portal credential is
	// configured for a submission or a batch.
	ErrMissingCredentials = errors.New("portal credentials missing")

	// ErrLoginFailed aborts a whole batch: every item would fail identically.
	ErrLoginFailed = errors.New("portal login failed")

	// ErrAccessLimit signals the portal's access-request limit; the session
	// must be torn down and rebuilt before resuming.
	ErrAccessLimit = errors.New("portal access-request limit reached")

	// ErrStoreBusy refuses destructive maintenance while batches are active.
	ErrStoreBusy = errors.New("store has active batches")
)
