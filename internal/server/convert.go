package server

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/alfredjeanlab/threads/internal/model"
)

// httpStatus maps a service error to its HTTP status code.
func httpStatus(err error) int {
	switch {
	case model.IsValidation(err):
		return http.StatusBadRequest
	case model.IsNotFound(err):
		return http.StatusNotFound
	case model.IsConflict(err):
		return http.StatusConflict
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}

// grpcError maps a service error to a gRPC status error.
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	var code codes.Code
	switch {
	case model.IsValidation(err):
		code = codes.InvalidArgument
	case model.IsNotFound(err):
		code = codes.NotFound
	case model.IsConflict(err):
		code = codes.Aborted
	case model.IsConsistency(err):
		code = codes.Internal
	case model.IsStorage(err):
		code = codes.Unavailable
	case errors.Is(err, context.DeadlineExceeded):
		code = codes.DeadlineExceeded
	case errors.Is(err, context.Canceled):
		code = codes.Canceled
	default:
		code = codes.Internal
	}
	return status.Error(code, err.Error())
}

// inputError builds a single-field validation error.
func inputError(field, message string) error {
	return &model.ValidationError{Errors: []model.FieldError{{Field: field, Message: message}}}
}
