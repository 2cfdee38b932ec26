package errors

import "errors"

// Remote repository errors.
var (
	ErrAuthFailed      = errors.New("authentication failed")
	ErrNotFound        = errors.New("not found")
	ErrEmptyRepository = errors.New("repository has no commits")
)

// Controller errors.
var (
	ErrBusy    = errors.New("another sync operation is in progress")
	ErrNoDiffs = errors.New("no reconciliation result cached, run reconcile first")
)

// Settings errors.
var (
	ErrNoProfile       = errors.New("no sync profile configured")
	ErrWrongPassphrase = errors.New("wrong passphrase")
)
