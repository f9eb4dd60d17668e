// Package faults defines the closed error taxonomy shared by the dispatch
// engine and its API surfaces. Components tag failures with one of the
// sentinel markers; transports map the marker to a wire kind.
package faults

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrAuthRequired = errors.New("authorization required")
	ErrHandlerFault = errors.New("handler fault")
	ErrTimeout      = errors.New("timeout")
	ErrCancelled    = errors.New("cancelled")
	ErrNotFound     = errors.New("not found")
)

// Kind is the wire representation of a failure class.
type Kind string

const (
	KindInvalidInput Kind = "invalid_input"
	KindAuthRequired Kind = "auth_required"
	KindHandlerFault Kind = "handler_fault"
	KindTimeout      Kind = "timeout"
	KindCancelled    Kind = "cancelled"
	KindNotFound     Kind = "not_found"
	KindInternal     Kind = "internal"
)

// Wrap builds an error message that includes component context while tagging
// it with the provided marker for later classification. The marker should be
// one of the exported sentinel errors above.
func Wrap(marker error, component, operation, message string, err error) error {
	detail := buildDetail(component, operation, message)
	if marker == nil {
		marker = ErrHandlerFault
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// KindOf classifies an error into its wire kind. Context errors are folded
// into the taxonomy so callers can pass raw ctx.Err() values.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return KindInvalidInput
	case errors.Is(err, ErrAuthRequired):
		return KindAuthRequired
	case errors.Is(err, ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrCancelled), errors.Is(err, context.Canceled):
		return KindCancelled
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrHandlerFault):
		return KindHandlerFault
	default:
		return KindInternal
	}
}

// HTTPStatus maps an error to the HTTP status code its kind should surface as.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindInvalidInput:
		return http.StatusBadRequest
	case KindAuthRequired:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindTimeout:
		return http.StatusGatewayTimeout
	case KindCancelled:
		return 499 // client closed request
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(component, operation, message string) string {
	parts := make([]string, 0, 3)
	if component = strings.TrimSpace(component); component != "" {
		parts = append(parts, component)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "dispatch failure"
	}
	return strings.Join(parts, ": ")
}
