// Package rsmerrors implements the structured error type shared across
// every RSM component, carrying the failed operation, the component
// and instance involved, and a classified error kind.
package rsmerrors

import (
	"errors"
	"fmt"
	"syscall"
)

// Code is the error-kind enum returned across the core.
type Code string

const (
	NotInitialized Code = "NOT_INITIALIZED"
	AlreadyExist   Code = "ALREADY_EXIST"
	NotFound       Code = "NOT_FOUND"
	OutOfMem       Code = "OUT_OF_MEM"
	NoPermission   Code = "NO_PERMISSION"
	InvalidState   Code = "INVALID_STATE"
	InvalidParam   Code = "INVALID_PARAM"
	OSCallFailed   Code = "OS_CALL_FAILED"
	Timeout        Code = "TIME_OUT"
)

// Error is the structured error returned by every core call.
type Error struct {
	Op     string // operation that failed, e.g. "register_component"
	Cid    uint32 // component class id (0 if not applicable)
	InstID int    // instance id (0 if not applicable)
	Code   Code
	Errno  syscall.Errno // kernel errno, 0 if not applicable
	Msg    string
	Inner  error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Cid != 0 {
		parts = append(parts, fmt.Sprintf("cid=%d", e.Cid))
	}
	if e.InstID != 0 {
		parts = append(parts, fmt.Sprintf("inst=%d", e.InstID))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("rsm: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("rsm: %s", msg)
}

func (e *Error) Unwrap() error { return e.Inner }

func (e *Error) Is(target error) bool {
	if target == nil {
		return false
	}
	if te, ok := target.(*Error); ok {
		return e.Code == te.Code
	}
	return false
}

// New creates a bare structured error.
func New(op string, code Code, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewComponentError creates an error scoped to a component class id.
func NewComponentError(op string, cid uint32, code Code, msg string) *Error {
	return &Error{Op: op, Cid: cid, Code: code, Msg: msg}
}

// NewTaskError creates an error scoped to a specific task instance.
func NewTaskError(op string, cid uint32, instID int, code Code, msg string) *Error {
	return &Error{Op: op, Cid: cid, InstID: instID, Code: code, Msg: msg}
}

// NewOSError wraps a syscall errno with Code OSCallFailed; use Wrap to
// classify an errno into a more specific Code.
func NewOSError(op string, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: OSCallFailed, Errno: errno, Msg: errno.Error()}
}

// Wrap wraps an arbitrary error with RSM context, preserving Code when
// inner is already a structured Error or a syscall.Errno.
func Wrap(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if e, ok := inner.(*Error); ok {
		return &Error{Op: op, Cid: e.Cid, InstID: e.InstID, Code: e.Code, Errno: e.Errno, Msg: e.Msg, Inner: e.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: OSCallFailed, Msg: inner.Error(), Inner: inner}
}

func mapErrnoToCode(errno syscall.Errno) Code {
	switch errno {
	case syscall.ENOENT:
		return NotFound
	case syscall.EEXIST:
		return AlreadyExist
	case syscall.EINVAL, syscall.E2BIG:
		return InvalidParam
	case syscall.ENOSYS, syscall.EOPNOTSUPP:
		return InvalidState
	case syscall.EPERM, syscall.EACCES:
		return NoPermission
	case syscall.ENOMEM, syscall.ENOSPC:
		return OutOfMem
	case syscall.ETIMEDOUT:
		return Timeout
	default:
		return OSCallFailed
	}
}

// IsCode reports whether err is a structured Error with the given Code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
