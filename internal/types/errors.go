package types

import (
	"errors"
	"fmt"
)

// ErrElementsNotFound signals that the expected elements are missing from a
// page, which almost always means the site markup changed.
var ErrElementsNotFound = errors.New("elements not found - page structure may have changed")

// ConfigurationError indicates an invalid or unsupported configuration value.
type ConfigurationError struct {
	Err error
}

func (e ConfigurationError) Error() string {
	return fmt.Errorf("configuration: %w", e.Err).Error()
}

func (e ConfigurationError) Unwrap() error {
	return e.Err
}

// DriverInitializationError indicates that no browser session could be
// started or that the session kept dying.
type DriverInitializationError struct {
	Err error
}

func (e DriverInitializationError) Error() string {
	return fmt.Errorf("driver initialization: %w", e.Err).Error()
}

func (e DriverInitializationError) Unwrap() error {
	return e.Err
}

// ExtractionError indicates a page level failure: missing elements,
// navigation or script timeouts.
type ExtractionError struct {
	Err error
}

func (e ExtractionError) Error() string {
	return fmt.Errorf("extraction: %w", e.Err).Error()
}

func (e ExtractionError) Unwrap() error {
	return e.Err
}

// ErrorKind returns a short label for err, suitable for metrics.
func ErrorKind(err error) string {
	if err == nil {
		return "unknown"
	}
	var cfgErr ConfigurationError
	if errors.As(err, &cfgErr) {
		return "configuration"
	}
	var drvErr DriverInitializationError
	if errors.As(err, &drvErr) {
		return "driver_initialization"
	}
	var extErr ExtractionError
	if errors.As(err, &extErr) {
		return "extraction"
	}
	return "other"
}

// IsFatal reports whether err must abort the whole run.
func IsFatal(err error) bool {
	switch ErrorKind(err) {
	case "configuration", "driver_initialization":
		return true
	}
	return false
}
