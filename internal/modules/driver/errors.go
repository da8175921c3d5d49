package driver

import "errors"

var (
	ErrNotFound        = errors.New("driver not found")
	ErrInvalidStatus   = errors.New("invalid driver status")
	ErrDriverBusy      = errors.New("driver is on a trip")
	ErrInvalidLocation = errors.New("invalid location")
)
