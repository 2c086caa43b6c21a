package kyc

import "errors"

var (
	ErrInvalidRole     = errors.New("kyc: unknown role")
	ErrInvalidStatus   = errors.New("kyc: unknown status")
	ErrInvalidOutcome  = errors.New("kyc: outcome must be VERIFIED or REJECTED")
	ErrPolicyViolation = errors.New("kyc: submission violates role policy")
	ErrAlreadyPending  = errors.New("kyc: a case is already pending review")
	ErrAlreadyVerified = errors.New("kyc: case is already verified")
	ErrNotPending      = errors.New("kyc: case is not pending review")
	ErrReasonRequired  = errors.New("kyc: rejection reason is required")
	ErrNotFound        = errors.New("kyc: case not found")
)

// IsConflict reports whether err means the case is not in a state that accepts the request.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyPending) ||
		errors.Is(err, ErrAlreadyVerified) ||
		errors.Is(err, ErrNotPending)
}
