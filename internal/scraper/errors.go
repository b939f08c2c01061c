package scraper

import (
	"errors"
	"fmt"
)

var (
	// ErrUnavailable means the product page has no name or current price,
	// which is how the catalog renders out-of-stock items.
	ErrUnavailable   = errors.New("product unavailable")
	ErrEmptyLocality = errors.New("locality name is empty")
)

// LocalityStepError reports the locality transition that could not be completed.
type LocalityStepError struct {
	State LocalityState
	Err   error
}

func (e *LocalityStepError) Error() string {
	return fmt.Sprintf("locality selection failed entering %s: %v", e.State, e.Err)
}

func (e *LocalityStepError) Unwrap() error {
	return e.Err
}
