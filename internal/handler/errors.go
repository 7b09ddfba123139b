package handler

import (
	"context"
	"errors"
	"net/http"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/SyedDaiam9101/cropdoc/internal/model"
)

// errorKind classifies err for status mapping and the failure metric.
func errorKind(err error) string {
	switch {
	case errors.Is(err, model.ErrDecode):
		return "decode"
	case errors.Is(err, model.ErrShape):
		return "shape"
	case errors.Is(err, model.ErrInsufficientInput):
		return "insufficient_input"
	case errors.Is(err, model.ErrTimeout):
		return "timeout"
	case errors.Is(err, model.ErrBusy):
		return "busy"
	case errors.Is(err, model.ErrModelLoad):
		return "model_load"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "deadline"
	case errors.Is(err, model.ErrInference):
		return "inference"
	default:
		return "internal"
	}
}

// grpcError maps classification errors to gRPC status errors
func grpcError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch errorKind(err) {
	case "decode", "shape", "insufficient_input":
		return status.Errorf(codes.InvalidArgument, "invalid input: %v", err)
	case "timeout", "deadline":
		return status.Errorf(codes.DeadlineExceeded, "classification timed out: %v", err)
	case "busy":
		return status.Errorf(codes.Unavailable, "service busy: %v", err)
	case "model_load":
		return status.Errorf(codes.FailedPrecondition, "model unavailable: %v", err)
	case "canceled":
		return status.Errorf(codes.Canceled, "request canceled: %v", err)
	case "inference":
		return status.Errorf(codes.Internal, "inference execution failed: %v", err)
	default:
		return status.Errorf(codes.Internal, "internal error: %v", err)
	}
}

// httpStatus maps classification errors to HTTP status codes
func httpStatus(err error) int {
	switch errorKind(err) {
	case "decode", "shape", "insufficient_input":
		return http.StatusBadRequest
	case "timeout", "deadline":
		return http.StatusGatewayTimeout
	case "busy", "model_load":
		return http.StatusServiceUnavailable
	case "canceled":
		// nginx's "client closed request"
		return 499
	default:
		return http.StatusInternalServerError
	}
}

// invalidArgumentError creates an InvalidArgument gRPC error
func invalidArgumentError(format string, args ...interface{}) error {
	return status.Errorf(codes.InvalidArgument, format, args...)
}

// failedPreconditionError creates a FailedPrecondition gRPC error
func failedPreconditionError(format string, args ...interface{}) error {
	return status.Errorf(codes.FailedPrecondition, format, args...)
}
