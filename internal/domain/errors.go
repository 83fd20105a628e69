package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrModuleNotFound is returned for ids the catalog does not define.
	ErrModuleNotFound = errors.New("module not found")
	// ErrModuleLocked is returned when a learner acts on a module that is not unlocked yet.
	ErrModuleLocked = errors.New("module is locked")
	// ErrInvalidInput covers out-of-range question indexes, bad ids and similar caller mistakes.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCatalog indicates a module definition violates step ordering or id rules.
	ErrInvalidCatalog = errors.New("invalid module catalog")
	// ErrQuotaExceeded is the distinguishable storage-capacity failure.
	ErrQuotaExceeded = errors.New("storage quota exceeded")
	// ErrInvalidJSON means a payload or file is not valid JSON.
	ErrInvalidJSON = errors.New("invalid JSON")
	// ErrInvalidWrapper means the backup envelope is missing required fields.
	ErrInvalidWrapper = errors.New("invalid backup wrapper")
	// ErrUnsupportedVersion means the backup version is not the one this build reads.
	ErrUnsupportedVersion = errors.New("unsupported version")
	// ErrTimestampOutOfRange flags a corrupted or forged backup timestamp.
	ErrTimestampOutOfRange = errors.New("backup timestamp out of range")
	// ErrNoUsableProgress means neither half of a backup validated.
	ErrNoUsableProgress = errors.New("no usable progress found")
	// ErrPayloadTooLarge is matched by CapacityError.
	ErrPayloadTooLarge = errors.New("backup payload too large")
	// ErrUnsupportedFile means an import file failed its envelope checks.
	ErrUnsupportedFile = errors.New("unsupported import file")
)

// CapacityError reports a payload that does not fit the transport budget.
type CapacityError struct {
	Length int
	Limit  int
}

// Overage is the number of bytes that have to go.
func (e *CapacityError) Overage() int {
	return e.Length - e.Limit
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("backup payload is %d bytes, %d over the %d byte limit", e.Length, e.Overage(), e.Limit)
}

func (e *CapacityError) Is(target error) bool {
	return target == ErrPayloadTooLarge
}

// DecodeError is returned by backup decoding before any state is touched.
type DecodeError struct {
	Reason error
	Detail string
}

func (e *DecodeError) Error() string {
	if e.Detail == "" {
		return e.Reason.Error()
	}
	return fmt.Sprintf("%s: %s", e.Reason, e.Detail)
}

func (e *DecodeError) Unwrap() error {
	return e.Reason
}
