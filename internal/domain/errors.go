package domain

import "errors"

var (
	// ErrInvalidSession is returned when a session token is unknown or expired.
	ErrInvalidSession = errors.New("invalid or expired session")
	// ErrQuizNotFound indicates the quiz is absent from the catalog or inactive.
	ErrQuizNotFound = errors.New("quiz not found")
	// ErrAttemptNotFound indicates a referenced attempt does not exist.
	ErrAttemptNotFound = errors.New("attempt not found")
	// ErrAttemptNotActive is returned when a mutation targets a terminal attempt.
	ErrAttemptNotActive = errors.New("attempt is not active")
	// ErrAlreadySubmitted is returned on a duplicate submit; the stored score is untouched.
	ErrAlreadySubmitted = errors.New("attempt already submitted")
	// ErrAttemptNotCompleted is returned when results are requested before submission.
	ErrAttemptNotCompleted = errors.New("attempt not completed")
	// ErrConfiguration indicates the catalog violates its own invariants
	// (e.g. a multiple-choice question with zero correct options).
	ErrConfiguration = errors.New("quiz configuration invalid")
)
