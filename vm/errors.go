package vm

import (
	"errors"
	"fmt"
)

// ErrorCode represents different types of frame manager errors
type ErrorCode int

const (
	// Generic errors
	ErrCodeUnknown ErrorCode = iota
	ErrCodeInternal

	// Frame table errors
	ErrCodeFrameNotFound
	ErrCodeDuplicateFrame
	ErrCodeBookkeeping
	ErrCodeInvalidFlags

	// Eviction errors
	ErrCodeNoVictim
	ErrCodeContextNotFound
	ErrCodePoolExhausted

	// Swap errors
	ErrCodeSwapFull
	ErrCodeSwapWriteFailed
	ErrCodeSwapReadFailed
	ErrCodeInvalidSlot
	ErrCodeCorruptSlot
)

var errorCodeNames = map[ErrorCode]string{
	ErrCodeUnknown:         "unknown",
	ErrCodeInternal:        "internal",
	ErrCodeFrameNotFound:   "frame_not_found",
	ErrCodeDuplicateFrame:  "duplicate_frame",
	ErrCodeBookkeeping:     "bookkeeping",
	ErrCodeInvalidFlags:    "invalid_flags",
	ErrCodeNoVictim:        "no_victim",
	ErrCodeContextNotFound: "context_not_found",
	ErrCodePoolExhausted:   "pool_exhausted",
	ErrCodeSwapFull:        "swap_full",
	ErrCodeSwapWriteFailed: "swap_write_failed",
	ErrCodeSwapReadFailed:  "swap_read_failed",
	ErrCodeInvalidSlot:     "invalid_slot",
	ErrCodeCorruptSlot:     "corrupt_slot",
}

func (c ErrorCode) String() string {
	if name, ok := errorCodeNames[c]; ok {
		return name
	}
	return fmt.Sprintf("code(%d)", int(c))
}

// VMError represents a frame manager error with context
type VMError struct {
	Code    ErrorCode
	Message string
	Op      string // Operation that failed
	Err     error  // Underlying error (if any)
}

// Error implements the error interface
func (e *VMError) Error() string {
	if e.Op != "" {
		if e.Err != nil {
			return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
		}
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *VMError) Unwrap() error {
	return e.Err
}

// Is matches errors by code
func (e *VMError) Is(target error) bool {
	if t, ok := target.(*VMError); ok {
		return e.Code == t.Code
	}
	return false
}

// NewVMError creates a new frame manager error
func NewVMError(code ErrorCode, op, message string, err error) *VMError {
	return &VMError{
		Code:    code,
		Message: message,
		Op:      op,
		Err:     err,
	}
}

// Helper functions for common errors

func ErrFrameNotFound(op string, frame Frame) *VMError {
	return NewVMError(
		ErrCodeFrameNotFound,
		op,
		fmt.Sprintf("frame %d not registered", frame),
		nil,
	)
}

func ErrDuplicateFrame(op string, frame Frame) *VMError {
	return NewVMError(
		ErrCodeDuplicateFrame,
		op,
		fmt.Sprintf("frame %d already registered", frame),
		nil,
	)
}

func ErrBookkeeping(op string, what string) *VMError {
	return NewVMError(
		ErrCodeBookkeeping,
		op,
		fmt.Sprintf("failed to record %s", what),
		nil,
	)
}

func ErrInvalidFlags(op string, flags AllocFlags) *VMError {
	return NewVMError(
		ErrCodeInvalidFlags,
		op,
		fmt.Sprintf("allocation flags %#x do not select the user pool", uint8(flags)),
		nil,
	)
}

func ErrNoVictim(op string) *VMError {
	return NewVMError(
		ErrCodeNoVictim,
		op,
		"no frame to evict",
		nil,
	)
}

func ErrContextNotFound(op string, id ContextID) *VMError {
	return NewVMError(
		ErrCodeContextNotFound,
		op,
		fmt.Sprintf("context %d not found", id),
		nil,
	)
}

func ErrSwapFull(op string) *VMError {
	return NewVMError(
		ErrCodeSwapFull,
		op,
		"no free swap slot",
		nil,
	)
}

func ErrSwapWrite(op string, slot SwapSlot, err error) *VMError {
	return NewVMError(
		ErrCodeSwapWriteFailed,
		op,
		fmt.Sprintf("failed to write swap slot %d", slot),
		err,
	)
}

func ErrSwapRead(op string, slot SwapSlot, err error) *VMError {
	return NewVMError(
		ErrCodeSwapReadFailed,
		op,
		fmt.Sprintf("failed to read swap slot %d", slot),
		err,
	)
}

func ErrInvalidSlot(op string, slot SwapSlot) *VMError {
	return NewVMError(
		ErrCodeInvalidSlot,
		op,
		fmt.Sprintf("swap slot %d is not in use", slot),
		nil,
	)
}

func ErrCorruptSlot(op string, slot SwapSlot, err error) *VMError {
	return NewVMError(
		ErrCodeCorruptSlot,
		op,
		fmt.Sprintf("swap slot %d is corrupted", slot),
		err,
	)
}

// IsErrorCode checks if an error, or any error it wraps, has a specific code
func IsErrorCode(err error, code ErrorCode) bool {
	var vmErr *VMError
	if errors.As(err, &vmErr) {
		return vmErr.Code == code
	}
	return false
}

// GetErrorCode returns the error code from an error, or ErrCodeUnknown
func GetErrorCode(err error) ErrorCode {
	var vmErr *VMError
	if errors.As(err, &vmErr) {
		return vmErr.Code
	}
	return ErrCodeUnknown
}
