package models

import "errors"

var (
	ErrSessionNotFound      = errors.New("session not found")
	ErrProductNotFound      = errors.New("product not found")
	ErrInvalidInput         = errors.New("invalid input")
	ErrForbidden            = errors.New("forbidden")
	ErrAssistantUnavailable = errors.New("assistant unavailable")
)

// GenericFailureMessage is the text shown to users when a request fails for a reason
// they cannot act on.
const GenericFailureMessage = "Sorry, something went wrong. Please try again."
