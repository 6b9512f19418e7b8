package gatework

import "errors"

// Sentinel errors returned by the gateway packages. The api package maps
// these to HTTP status codes at the Gate boundary (see errors table in
// SPEC_FULL.md §8).
var (
	// ErrNoRoute means no worker has ever registered the requested
	// (method, path) pair. Maps to 404.
	ErrNoRoute = errors.New("gatework: no route registered for method/path")

	// ErrNoCandidate means routes exist but the selection strategy found
	// no eligible worker_version (e.g. an empty candidate set after
	// version-pin filtering). Maps to 503.
	ErrNoCandidate = errors.New("gatework: no candidate worker available")

	// ErrDispatchTimeout means the dispatcher's wait deadline elapsed
	// before the job reached a terminal state. Maps to 504.
	ErrDispatchTimeout = errors.New("gatework: dispatch timed out waiting for worker")

	// ErrStoreUnavailable means the shared store could not be reached.
	// Maps to 502. The Gate's /health handler returns it when a store ping
	// fails; the store backends report their own wrapped errors rather
	// than this sentinel, and those map to 500.
	ErrStoreUnavailable = errors.New("gatework: store unavailable")

	// ErrBadRequest means the inbound request was malformed in a way the
	// Gate can detect before dispatch. Maps to 400.
	ErrBadRequest = errors.New("gatework: bad request")

	// ErrJobNotFound means a job lookup or delete targeted an unknown
	// request_id.
	ErrJobNotFound = errors.New("gatework: job not found")

	// ErrJobAlreadyExists means CreateJob was called with a request_id
	// that already has a job recorded.
	ErrJobAlreadyExists = errors.New("gatework: job already exists")

	// ErrInvalidStateTransition means a compare-and-swap state change was
	// attempted from a state that did not match the expected prior state.
	ErrInvalidStateTransition = errors.New("gatework: invalid job state transition")

	// ErrRouteLocked means a route registration write could not acquire
	// its short-lived distributed lock.
	ErrRouteLocked = errors.New("gatework: route registration is locked")
)
