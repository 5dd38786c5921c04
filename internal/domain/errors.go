package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrStoreUnavailable wraps store failures that are not timeouts.
	ErrStoreUnavailable = errors.New("record store unavailable")
	// ErrNotConnected is returned when the user has no active connection for the provider.
	ErrNotConnected = errors.New("no active device connection")
)

// ValidationError reports malformed input. Provider is empty for request-level fields.
type ValidationError struct {
	Field    string
	Provider ProviderType
	Reason   string
}

func (e *ValidationError) Error() string {
	if e.Provider != "" {
		return fmt.Sprintf("invalid %s for %s: %s", e.Field, e.Provider, e.Reason)
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// UnsupportedProviderError is returned when no adapter is registered for a provider.
type UnsupportedProviderError struct {
	Provider ProviderType
}

func (e *UnsupportedProviderError) Error() string {
	return fmt.Sprintf("unsupported provider type: %s", e.Provider)
}

// StoreTimeoutError is returned when a store operation exceeds its deadline.
type StoreTimeoutError struct {
	Op string
}

func (e *StoreTimeoutError) Error() string {
	return fmt.Sprintf("record store %s timed out", e.Op)
}

// IsValidation reports whether err is a client-side input error.
func IsValidation(err error) bool {
	var ve *ValidationError
	var ue *UnsupportedProviderError
	return errors.As(err, &ve) || errors.As(err, &ue)
}
