package models

import (
	"errors"
	"fmt"
)

// ErrMissingTenant is returned when no platform token can be resolved for a team
var ErrMissingTenant = errors.New("missing tenant")

// ErrNotFound is returned when a message lookup finds nothing
var ErrNotFound = errors.New("not found")

// ErrNoImage is returned when the provider answers successfully without an image
var ErrNoImage = errors.New("no image produced")

// ParseError reports a malformed inbound body
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse request: %v", e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// AuthError reports a verification token mismatch
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "invalid verification token: " + e.Reason
}

// UpstreamError is a non-success answer from the generation provider or the platform API.
// Message carries the provider's own message when it could be decoded.
type UpstreamError struct {
	Service string
	Status  int
	Message string
}

func (e *UpstreamError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Service, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Service, e.Message)
}

// TransportError is a network-level failure reaching an external service
type TransportError struct {
	Service string
	Err     error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s: %v", e.Service, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsNotFound reports whether err is a message lookup miss
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// UserMessage converts err into plain text that is safe to show in chat.
// Only the provider's own message is passed through.
func UserMessage(err error) string {
	var upstream *UpstreamError
	var transport *TransportError
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMissingTenant):
		return "This workspace is not connected yet. Please reinstall the app or ask an admin to configure it."
	case errors.Is(err, ErrNoImage):
		return "No image was generated. Please try again with a different prompt."
	case errors.Is(err, ErrNotFound):
		return "I couldn't find that message. It may have been deleted."
	case errors.As(err, &upstream) && upstream.Message != "":
		return fmt.Sprintf("The %s service reported an error: %s", upstream.Service, upstream.Message)
	case errors.As(err, &transport):
		return fmt.Sprintf("I couldn't reach the %s service. Please try again later.", transport.Service)
	default:
		return "An error occurred while generating the image. Please try again later."
	}
}
