package trip

import "errors"

var (
	ErrNotFound           = errors.New("trip not found")
	ErrInvalidTransition  = errors.New("invalid state transition")
	ErrUnauthorized       = errors.New("trip is not assigned to this driver")
	ErrValidation         = errors.New("validation failed")
	ErrConflict           = errors.New("trip state conflict")
	ErrDriverUnavailable  = errors.New("driver is no longer available")
	ErrNoAvailableDrivers = errors.New("no available drivers")
)
