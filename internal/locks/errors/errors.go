package errors

import "errors"

var (
	ErrAlreadyReserved = errors.New("resource is already reserved for this date")
)
