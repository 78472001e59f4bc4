package service

import "errors"

// Domain errors returned by the services. Handlers map them to status codes
// with errors.Is; alerting.ErrInvalidTransition and alerting.ErrNoApplicableProfile
// pass through unchanged.
var (
	ErrUnknownEquipment  = errors.New("unknown equipment")
	ErrEquipmentNotFound = errors.New("equipment not found")
	ErrAlertNotFound     = errors.New("alert not found")
	ErrInvalidInput      = errors.New("invalid input")
)
