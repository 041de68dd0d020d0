package api

import "errors"

// Error taxonomy for the REST collaborator. Callers branch with errors.Is.
var (
	// ErrInvalidToken means the share token is unknown or expired server-side.
	ErrInvalidToken = errors.New("share token invalid")

	// ErrPasswordRequired means the share is password-protected and the
	// supplied password was missing or wrong.
	ErrPasswordRequired = errors.New("share password required")

	// ErrEventUnavailable means the event was deleted or deactivated.
	ErrEventUnavailable = errors.New("event unavailable")

	// ErrUnauthorized means the server rejected the access credential.
	// The caller must re-resolve before retrying.
	ErrUnauthorized = errors.New("credential rejected")

	// ErrCredentialExpired is returned locally, before any network call,
	// when a privileged operation is attempted with an expired credential.
	ErrCredentialExpired = errors.New("share credential expired")
)
