package models

import (
	"errors"
	"fmt"
)

var (
	ErrAuthenticationFailed = errors.New("authentication failed")
	ErrAppPasswordRequired  = fmt.Errorf("%w: use an app password, not the account password", ErrAuthenticationFailed)
	ErrAuthenticationLost   = errors.New("authentication lost")
	ErrFetchFailed          = errors.New("fetch failed")
	ErrMutationFailed       = errors.New("mutation failed")
	ErrInvalidArgument      = errors.New("invalid argument")
)

// FetchError aborts an enumeration. Page is the 1-based page that failed.
type FetchError struct {
	Page int
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch failed on page %d: %v", e.Page, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

func (e *FetchError) Is(target error) bool {
	return target == ErrFetchFailed
}
