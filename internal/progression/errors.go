package progression

import "errors"

var (
	// ErrValidation indicates bad caller input: a non-positive amount or an unknown id.
	ErrValidation = errors.New("validation failed")
	// ErrNotFound indicates a missing profile or catalog entry.
	ErrNotFound = errors.New("not found")
	// ErrProfileExists indicates CreateProfile found an existing document.
	ErrProfileExists = errors.New("profile already exists")
	// ErrChallengeNotActive indicates the challenge has no open window right now.
	ErrChallengeNotActive = errors.New("challenge is not active")
	// ErrChallengeAlreadyCompleted indicates the current window was already completed.
	ErrChallengeAlreadyCompleted = errors.New("challenge already completed")
	// ErrStoreUnavailable indicates a transient persistence failure; callers may retry.
	ErrStoreUnavailable = errors.New("progress store unavailable")
)
