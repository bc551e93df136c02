package store

import "errors"

var (
	ErrNotFound     = errors.New("not found")
	ErrNoSuchCode   = errors.New("no such code")
	ErrCodeExists   = errors.New("code already exists")
	ErrLimitReached = errors.New("code usage limit reached")
	ErrUnknownOrder = errors.New("unknown order")
	ErrOrderExists  = errors.New("order already exists")
)
