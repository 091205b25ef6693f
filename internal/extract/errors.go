package extract

import (
	"errors"
	"fmt"
)

var (
	// ErrUnparseable means the bytes are not a supported document format or
	// the document could not be opened.
	ErrUnparseable = errors.New("unparseable")

	// ErrInsufficientContent means extraction succeeded but produced too
	// little text to be worth indexing.
	ErrInsufficientContent = errors.New("insufficient content")
)

// Error is returned for every extraction failure. Reason is one of
// ErrUnparseable or ErrInsufficientContent.
type Error struct {
	Reason error
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction failed: %v: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction failed: %v", e.Reason)
}

func (e *Error) Unwrap() []error {
	if e.Err != nil {
		return []error{e.Reason, e.Err}
	}
	return []error{e.Reason}
}
