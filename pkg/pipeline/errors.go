package pipeline

import "errors"

var (
	// ErrInvalidInput means the user-supplied topic is unusable. Fatal, no
	// retry, nothing downstream runs.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUpstreamUnavailable means the model or search service could not be
	// reached even after retries.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrPersistenceFailure means the final report could not be saved. The
	// report itself is still present on the returned state.
	ErrPersistenceFailure = errors.New("persistence failure")
)
