package handlers

import "errors"

var (
	ErrInvalidFields = errors.New("invalid-fields")
	ErrLoginRequired = errors.New("login-required")
)
