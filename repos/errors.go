package repos

import "errors"

var (
	ErrUnavailable = errors.New("store-unavailable")
	ErrClosed      = errors.New("store-closed")
)
