package model

import "errors"

var (
	ErrNoEmailColumn    = errors.New("recipient table has no Email column")
	ErrUnknownMode      = errors.New("unknown send mode")
	ErrNotAuthenticated = errors.New("not signed in to Gmail")
)
