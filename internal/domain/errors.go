package domain

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid transition")
	ErrAlreadyVerified   = errors.New("already verified")
	ErrConflict          = errors.New("conflict")
	ErrValidation        = errors.New("validation error")

	// ErrDuplicateIdentifier is resolved inside the cash bag ledger by
	// generating a fresh identifier and never reaches a caller.
	ErrDuplicateIdentifier = errors.New("duplicate identifier")
)
