package session

import "errors"

var (
	// ErrConflict means a session id is already present in the registry.
	// Always retried internally, never surfaced to callers.
	ErrConflict = errors.New("session id already exists")

	// ErrNotFound covers both an absent record and an authorization
	// denial; callers cannot distinguish the two.
	ErrNotFound = errors.New("session not found")

	// ErrStaleState means a concurrent transition committed first.
	// Stop paths treat it as idempotent success.
	ErrStaleState = errors.New("session state changed concurrently")

	ErrInvalidArgument = errors.New("invalid argument")

	// ErrLimitExceeded means the caller hit the per-user concurrent
	// session cap or the start rate limit.
	ErrLimitExceeded = errors.New("session limit exceeded")

	ErrProvisioningFailure = errors.New("failed to provision session")
)
