package ledger

import "errors"

var (
	ErrAlreadyRegistered = errors.New("identity already registered")
	ErrInvalidGrant      = errors.New("grant must be a positive number of days")
	ErrStoreUnavailable  = errors.New("store unavailable")
)
