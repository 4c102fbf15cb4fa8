package rsm

import "github.com/wang-russell/rsm/internal/rsmerrors"

// Error is the structured error type returned by every core call
//.
type Error = rsmerrors.Error

// Code enumerates the error kinds returned across the core.
type Code = rsmerrors.Code

const (
	ErrNotInitialized = rsmerrors.NotInitialized
	ErrAlreadyExist   = rsmerrors.AlreadyExist
	ErrNotFound       = rsmerrors.NotFound
	ErrOutOfMem       = rsmerrors.OutOfMem
	ErrNoPermission   = rsmerrors.NoPermission
	ErrInvalidState   = rsmerrors.InvalidState
	ErrInvalidParam   = rsmerrors.InvalidParam
	ErrOSCallFailed   = rsmerrors.OSCallFailed
	ErrTimeout        = rsmerrors.Timeout
)

// IsCode reports whether err is a structured Error with the given Code.
func IsCode(err error, code Code) bool {
	return rsmerrors.IsCode(err, code)
}
