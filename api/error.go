package api

import (
	"errors"
	"fmt"
)

//ErrorType classifies failures crossing package boundaries
type ErrorType int

//ErrorTypes
const (
	//ErrorTypeTransport is a failed dial, request, or read
	ErrorTypeTransport ErrorType = iota
	//ErrorTypeStatus is a non-2xx response
	ErrorTypeStatus
	//ErrorTypePayload is a body that could not be decoded or is missing fields
	ErrorTypePayload
	//ErrorTypeEmpty is a successful response carrying no usable result
	ErrorTypeEmpty
)

func (t ErrorType) String() string {
	switch t {
	case ErrorTypeTransport:
		return "Transport Error"
	case ErrorTypeStatus:
		return "Status Error"
	case ErrorTypePayload:
		return "Payload Error"
	case ErrorTypeEmpty:
		return "Empty Result"
	}
	return "Error"
}

//Error wraps errors returned by backend calls
type Error struct {
	Description string
	Type        ErrorType
	Status      int
	Err         error
}

func (e *Error) Error() string {
	if e.Type == ErrorTypeStatus {
		return fmt.Sprintf("%s: %s (status %d): %v", e.Type, e.Description, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Type, e.Description, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

//IsType reports whether err wraps an *Error of the given type
func IsType(err error, t ErrorType) bool {
	var e *Error
	return errors.As(err, &e) && e.Type == t
}
