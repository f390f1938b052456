package coordinator

import "fmt"

// AuthFailedError is returned by the first refresh when the device rejected
// the credentials.  The host has been asked to re-authenticate.
type AuthFailedError struct {
	Err error
}

func (e *AuthFailedError) Error() string {
	return fmt.Sprintf("authentication failed: %s", e.Err)
}

func (e *AuthFailedError) Unwrap() error { return e.Err }

// NotReadyError is returned by the first refresh for any other failure.  The
// host should retry later.
type NotReadyError struct {
	Err error
}

func (e *NotReadyError) Error() string {
	return fmt.Sprintf("device not ready: %s", e.Err)
}

func (e *NotReadyError) Unwrap() error { return e.Err }

// UpdateFailedError is returned when a steady-state poll fails
type UpdateFailedError struct {
	Err error
}

func (e *UpdateFailedError) Error() string {
	return fmt.Sprintf("error communicating with device: %s", e.Err)
}

func (e *UpdateFailedError) Unwrap() error { return e.Err }
