package client

import (
	"errors"
	"fmt"

	"akwaba.app/internal/kyc"
)

var (
	// ErrSubmissionBlocked means the consent gate refused; nothing was sent.
	ErrSubmissionBlocked = errors.New("kyc client: submission blocked by consent gate")
	// ErrInFlight means a submission is already running for this workflow.
	ErrInFlight = errors.New("kyc client: submission already in flight")
)

// ValidationError reports a submission the server refused on policy grounds.
type ValidationError struct {
	StatusCode int
	Message    string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("kyc client: validation failed (%d): %s", e.StatusCode, e.Message)
}

// Is lets callers match with errors.Is(err, kyc.ErrPolicyViolation).
func (e *ValidationError) Is(target error) bool {
	return target == kyc.ErrPolicyViolation
}

// ConflictError reports that the case was not in a submittable state. Status is
// the server's view of the case.
type ConflictError struct {
	Status  kyc.Status
	Message string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("kyc client: conflict, case is %s: %s", e.Status, e.Message)
}

func (e *ConflictError) Is(target error) bool {
	switch target {
	case kyc.ErrAlreadyPending:
		return e.Status == kyc.StatusPending
	case kyc.ErrAlreadyVerified:
		return e.Status == kyc.StatusVerified
	}
	return false
}

// TransportError covers network failures, unexpected statuses and bodies that
// could not be decoded. It is never a success.
type TransportError struct {
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("kyc client: transport (%d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("kyc client: transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }
