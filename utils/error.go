package utils

import (
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

// Error kinds for the tracking operations. Callers (HTTP layer) map these
// to response codes with errors.Is; messages stay human-readable.
var (
	ErrorValidation      = errors.New("validation error")
	ErrorCapacityLimit   = errors.New("capacity exceeded")
	ErrorVersionConflict = errors.New("version conflict")
)

func ValidationError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorValidation, fmt.Sprintf(format, args...))
}

func CapacityError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorCapacityLimit, fmt.Sprintf(format, args...))
}

func NotFoundError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrorRecordNotFound, fmt.Sprintf(format, args...))
}

func ErrorPanic(err error) {
	if err != nil {
		panic(err)
	}
}
