package service

import "errors"

var (
	// auth gate
	ErrMissingCredential = errors.New("missing credential")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnknownPrincipal  = errors.New("unknown principal")

	// account
	ErrEmailTaken      = errors.New("email already registered")
	ErrBadLogin        = errors.New("invalid email or password")
	ErrTooManyAttempts = errors.New("too many login attempts")

	// messaging
	ErrInvalidPayload    = errors.New("invalid payload")
	ErrRecipientNotFound = errors.New("recipient not found")
	ErrPersistence       = errors.New("persistence failure")
	ErrMessageNotFound   = errors.New("message not found")
	ErrForbidden         = errors.New("forbidden")
)
