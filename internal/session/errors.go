package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRefreshToken means the store held no refresh credential; no exchange was attempted.
	ErrNoRefreshToken = errors.New("no refresh token")
	// ErrRefreshRejected means the backend refused the exchange and the stored pair was cleared.
	ErrRefreshRejected = errors.New("refresh failed")
	// ErrRefreshUnreachable means no response was obtained; the stored pair is kept.
	ErrRefreshUnreachable = errors.New("refresh endpoint unreachable")
	// ErrRefreshMalformed means a success reply could not be decoded; the stored pair is kept.
	ErrRefreshMalformed = errors.New("malformed refresh response")
)

// RefreshError is returned by Coordinator.Refresh. Only ErrNoRefreshToken and
// ErrRefreshRejected end the session; every other cause leaves the stored
// pair in place and may succeed on a later attempt.
type RefreshError struct {
	Status int // backend status code, 0 when no response was obtained
	Err    error
}

func (e *RefreshError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("session refresh: %v (status %d)", e.Err, e.Status)
	}
	return "session refresh: " + e.Err.Error()
}

func (e *RefreshError) Unwrap() error {
	return e.Err
}

// Terminal reports whether the session is over and the operator must log in again.
func (e *RefreshError) Terminal() bool {
	return errors.Is(e.Err, ErrRefreshRejected) || errors.Is(e.Err, ErrNoRefreshToken)
}
