package api

import "errors"

var (
	// ErrBadRequest indicates a malformed request body or parameter.
	ErrBadRequest = errors.New("api: bad request")
)
