package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_cart/storefront/internal/remote"
)

type ErrorKind string

const (
	KindAuthenticationMissing ErrorKind = "authentication_missing"
	KindInvalidInput          ErrorKind = "invalid_input"
	KindRemoteRejected        ErrorKind = "remote_rejected"
	KindNetworkFailure        ErrorKind = "network_failure"
	KindIndeterminateMutation ErrorKind = "indeterminate_mutation"
)

var (
	ErrAuthenticationMissing = errors.New("user not authenticated")
	ErrInvalidInput          = errors.New("invalid input")
	ErrRemoteRejected        = errors.New("cart service rejected the request")
	ErrNetworkFailure        = errors.New("cart service request failed")
	ErrIndeterminateMutation = errors.New("change sent but the cart could not be refreshed")

	ErrCartMismatch      = errors.New("cart id does not match the current cart")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("cart is empty")
)

func (k ErrorKind) sentinel() error {
	switch k {
	case KindAuthenticationMissing:
		return ErrAuthenticationMissing
	case KindInvalidInput:
		return ErrInvalidInput
	case KindRemoteRejected:
		return ErrRemoteRejected
	case KindIndeterminateMutation:
		return ErrIndeterminateMutation
	default:
		return ErrNetworkFailure
	}
}

// OpError is the error every failed store operation returns. It matches
// the sentinel of its kind with errors.Is, as well as the underlying cause.
type OpError struct {
	Op      string
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *OpError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind.sentinel()}
	}
	return []error{e.Kind.sentinel(), e.Err}
}

// ErrorInfo is the failure recorded in the store for the UI to render.
type ErrorInfo struct {
	Op      string    `json:"op"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	At      time.Time `json:"at"`
}

// KindOf returns the kind of err, or "" when err did not come from the store.
func KindOf(err error) ErrorKind {
	var opErr *OpError
	if errors.As(err, &opErr) {
		return opErr.Kind
	}
	return ""
}

func invalid(op string, cause error, message string) *OpError {
	return &OpError{Op: op, Kind: KindInvalidInput, Message: message, Err: cause}
}

func rejected(op, message string) *OpError {
	if message == "" {
		message = ErrRemoteRejected.Error()
	}
	return &OpError{Op: op, Kind: KindRemoteRejected, Message: message}
}

// transportFailure classifies an error returned by the remote service.
func transportFailure(op string, err error) *OpError {
	switch {
	case errors.Is(err, remote.ErrInvalidCartID), errors.Is(err, remote.ErrInvalidOrderID):
		return &OpError{Op: op, Kind: KindInvalidInput, Message: err.Error(), Err: err}
	case errors.Is(err, context.DeadlineExceeded):
		return &OpError{Op: op, Kind: KindNetworkFailure, Message: "request timed out", Err: err}
	case errors.Is(err, context.Canceled):
		return &OpError{Op: op, Kind: KindNetworkFailure, Message: "request cancelled", Err: err}
	default:
		return &OpError{Op: op, Kind: KindNetworkFailure, Message: ErrNetworkFailure.Error(), Err: err}
	}
}

// indeterminate wraps the failed refetch that followed an accepted mutation.
func indeterminate(op string, refetchErr error) *OpError {
	return &OpError{
		Op:      op,
		Kind:    KindIndeterminateMutation,
		Message: fmt.Sprintf("%s: %v", ErrIndeterminateMutation, refetchErr),
		Err:     refetchErr,
	}
}
