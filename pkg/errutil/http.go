package errutil

import (
	"errors"
	"net/http"
)

// HTTPCode converts the CoreStatus to its closest HTTP status equivalent.
// NotFound intentionally
// maps to 500: this engine never gives lookup failures 404 discipline,
// treating a missing id the same as any other internal failure.
func (s CoreStatus) HTTPCode() int {
	switch s {
	case StatusBadRequest, StatusValidationFailed, StatusConflict:
		return http.StatusBadRequest
	case StatusNotFound:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// HTTPStatus extracts the HTTP status code for err, defaulting to 500 for
// anything not constructed through this package.
func HTTPStatus(err error) int {
	var base BaseError
	if errors.As(err, &base) {
		return base.Code.HTTPCode()
	}
	return http.StatusInternalServerError
}
