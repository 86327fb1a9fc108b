package interfaces

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidConfig marks configuration that failed validation before any
	// backend was constructed.
	ErrInvalidConfig = errors.New("invalid generator configuration")

	// ErrGeneratorNotInitialized is returned by Generate when the owning
	// factory has not been initialized or has already been shut down.
	ErrGeneratorNotInitialized = errors.New("key generator is not initialized")

	// ErrAlreadyInitialized is returned by a second Initialize call.
	ErrAlreadyInitialized = errors.New("key generator already initialized")

	// ErrGeneratorShutdown is returned by Initialize after Shutdown.
	ErrGeneratorShutdown = errors.New("key generator has been shut down")
)

// InitializationError reports a backend that could not be brought up at
// startup: missing driver, wrong credential, absent slot, unwritable
// directory.
type InitializationError struct {
	Backend string
	Cause   error
}

func (e *InitializationError) Error() string {
	return fmt.Sprintf("failed to initialize %s generator: %v", e.Backend, e.Cause)
}

func (e *InitializationError) Unwrap() error {
	return e.Cause
}

// GenerationError reports a failed generation call against an initialized
// backend.
type GenerationError struct {
	Backend string
	Cause   error
}

func (e *GenerationError) Error() string {
	return fmt.Sprintf("%s generator failed to generate account: %v", e.Backend, e.Cause)
}

func (e *GenerationError) Unwrap() error {
	return e.Cause
}

// StartupError reports a failure to bring up the service around an already
// initialized generator (ledger, listener).
type StartupError struct {
	Stage string
	Cause error
}

func (e *StartupError) Error() string {
	return fmt.Sprintf("failed to start %s: %v", e.Stage, e.Cause)
}

func (e *StartupError) Unwrap() error {
	return e.Cause
}
