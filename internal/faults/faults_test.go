package faults_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"magpie/internal/faults"
)

func TestKindOf(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want faults.Kind
	}{
		{"nil", nil, ""},
		{"invalid input", faults.ErrInvalidInput, faults.KindInvalidInput},
		{"auth required", faults.ErrAuthRequired, faults.KindAuthRequired},
		{"timeout", faults.ErrTimeout, faults.KindTimeout},
		{"deadline exceeded", context.DeadlineExceeded, faults.KindTimeout},
		{"cancelled", faults.ErrCancelled, faults.KindCancelled},
		{"context canceled", context.Canceled, faults.KindCancelled},
		{"not found", faults.ErrNotFound, faults.KindNotFound},
		{"handler fault", faults.ErrHandlerFault, faults.KindHandlerFault},
		{"unknown", errors.New("boom"), faults.KindInternal},
		{"wrapped", fmt.Errorf("outer: %w", faults.ErrNotFound), faults.KindNotFound},
	}
	for _, tc := range cases {
		if got := faults.KindOf(tc.err); got != tc.want {
			t.Errorf("%s: expected %q, got %q", tc.name, tc.want, got)
		}
	}
}

func TestKindOfTimeoutWinsOverCancellation(t *testing.T) {
	// A watchdog-cancelled context carries both markers; timeout is the
	// classification callers see.
	err := fmt.Errorf("%w: %w", faults.ErrTimeout, context.Canceled)
	if got := faults.KindOf(err); got != faults.KindTimeout {
		t.Fatalf("expected timeout, got %q", got)
	}
}

func TestWrap(t *testing.T) {
	err := faults.Wrap(faults.ErrNotFound, "ledger", "delete", "entry missing", nil)
	if !errors.Is(err, faults.ErrNotFound) {
		t.Fatalf("expected marker to survive wrapping: %v", err)
	}
	want := "not found: ledger: delete: entry missing"
	if err.Error() != want {
		t.Errorf("message: expected %q, got %q", want, err.Error())
	}

	cause := errors.New("disk gone")
	err = faults.Wrap(faults.ErrHandlerFault, "handler", "", "", cause)
	if !errors.Is(err, cause) {
		t.Errorf("expected cause to survive wrapping: %v", err)
	}

	err = faults.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, faults.ErrHandlerFault) {
		t.Errorf("nil marker must default to handler fault: %v", err)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{faults.ErrInvalidInput, http.StatusBadRequest},
		{faults.ErrAuthRequired, http.StatusUnauthorized},
		{faults.ErrNotFound, http.StatusNotFound},
		{faults.ErrTimeout, http.StatusGatewayTimeout},
		{faults.ErrCancelled, 499},
		{faults.ErrHandlerFault, http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := faults.HTTPStatus(tc.err); got != tc.want {
			t.Errorf("%v: expected %d, got %d", tc.err, tc.want, got)
		}
	}
}
