package service

import "errors"

var (
	ErrIdentityConflict    = errors.New("credential resolves to more than one employee")
	ErrStoreUnavailable    = errors.New("store unavailable")
	ErrInvalidCheckRequest = errors.New("employeeId and deviceId are required")
)
