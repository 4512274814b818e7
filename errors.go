package betula

import (
	"errors"
	"fmt"
)

// Error represents a betula error with an error code
type Error struct {
	Code    ErrorCode
	Message string
	Err     error // wrapped error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("betula: %s: %v", e.Message, e.Err)
	}
	return fmt.Sprintf("betula: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// ErrorCode identifies the failure class of an Error
type ErrorCode int

const (
	// Success indicates the operation completed successfully
	Success ErrorCode = iota

	// ErrCorruptPage indicates a page buffer that cannot be decoded
	ErrCorruptPage

	// ErrPageFull indicates an insert into a page with no empty slot
	ErrPageFull

	// ErrCategoryMismatch indicates an entry whose children belong to a
	// different page category or table than the page accepts
	ErrCategoryMismatch

	// ErrDisjointChain indicates an entry whose children do not chain onto
	// the page's existing child sequence, or a key that would break the
	// sorted order of the page
	ErrDisjointChain

	// ErrNoSuchEntry indicates a delete or update of an entry the page does
	// not hold
	ErrNoSuchEntry

	// ErrInvalidSlot indicates a slot move with an unusable source or
	// destination slot
	ErrInvalidSlot

	// ErrBadKeySize indicates a key whose length does not match the key spec
	ErrBadKeySize

	// ErrPageNotFound indicates a read of a page number the file has never
	// allocated
	ErrPageNotFound

	// ErrCacheFull indicates a buffer pool where every resident page is
	// dirty and nothing can be evicted
	ErrCacheFull

	// ErrReadOnly indicates a mutating operation on a read-only file
	ErrReadOnly

	// ErrClosed indicates use of a file or pool after Close
	ErrClosed

	// ErrInvalidPageSize indicates file options with an out-of-range or
	// non-power-of-two page size
	ErrInvalidPageSize

	// ErrProblem indicates an unexpected internal error
	ErrProblem
)

// Error descriptions
var errorMessages = map[ErrorCode]string{
	Success:             "success",
	ErrCorruptPage:      "corrupt page",
	ErrPageFull:         "page has no empty slot",
	ErrCategoryMismatch: "entry does not match page category",
	ErrDisjointChain:    "entry does not chain onto the page",
	ErrNoSuchEntry:      "entry not found on page",
	ErrInvalidSlot:      "invalid slot for move",
	ErrBadKeySize:       "key length does not match key spec",
	ErrPageNotFound:     "page not allocated in file",
	ErrCacheFull:        "buffer pool full of dirty pages",
	ErrReadOnly:         "file is read-only",
	ErrClosed:           "use after close",
	ErrInvalidPageSize:  "invalid page size",
	ErrProblem:          "unexpected internal error",
}

// NewError creates a new Error with the given code
func NewError(code ErrorCode) *Error {
	msg, ok := errorMessages[code]
	if !ok {
		msg = fmt.Sprintf("unknown error code %d", code)
	}
	return &Error{Code: code, Message: msg}
}

// NewErrorf creates a new Error with the given code and extra detail
func NewErrorf(code ErrorCode, format string, args ...any) *Error {
	e := NewError(code)
	e.Message = e.Message + ": " + fmt.Sprintf(format, args...)
	return e
}

// WrapError creates a new Error wrapping another error
func WrapError(code ErrorCode, err error) *Error {
	e := NewError(code)
	e.Err = err
	return e
}

// Code returns the error code from an error, or ErrProblem if not a betula error
func Code(err error) ErrorCode {
	if err == nil {
		return Success
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ErrProblem
}

func is(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// IsCorruptPage returns true if the error is ErrCorruptPage
func IsCorruptPage(err error) bool { return is(err, ErrCorruptPage) }

// IsPageFull returns true if the error is ErrPageFull
func IsPageFull(err error) bool { return is(err, ErrPageFull) }

// IsCategoryMismatch returns true if the error is ErrCategoryMismatch
func IsCategoryMismatch(err error) bool { return is(err, ErrCategoryMismatch) }

// IsDisjointChain returns true if the error is ErrDisjointChain
func IsDisjointChain(err error) bool { return is(err, ErrDisjointChain) }

// IsNoSuchEntry returns true if the error is ErrNoSuchEntry
func IsNoSuchEntry(err error) bool { return is(err, ErrNoSuchEntry) }

// IsInvalidSlot returns true if the error is ErrInvalidSlot
func IsInvalidSlot(err error) bool { return is(err, ErrInvalidSlot) }

// IsPageNotFound returns true if the error is ErrPageNotFound
func IsPageNotFound(err error) bool { return is(err, ErrPageNotFound) }

// IsCacheFull returns true if the error is ErrCacheFull
func IsCacheFull(err error) bool { return is(err, ErrCacheFull) }
