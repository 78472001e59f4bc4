package alerting

import "errors"

var (
	// ErrMalformedPayload rejects a single record; the batch continues.
	ErrMalformedPayload = errors.New("malformed payload")
	// ErrUnknownChannel is a warning: the channel is dropped and processing continues.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrNoApplicableProfile is a configuration error fatal to the unit of work.
	ErrNoApplicableProfile = errors.New("no applicable risk profile")
	// ErrInvalidTransition rejects a lifecycle mutation and leaves the alert untouched.
	ErrInvalidTransition = errors.New("invalid alert transition")
)
