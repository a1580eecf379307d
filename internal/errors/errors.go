package errors

import (
	"errors"
	"fmt"
	"strings"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
)

// Composition errors are raised synchronously while a workload is being
// composed. They are never retried: composition is deterministic, so the same
// input fails the same way until the configuration is fixed.

// ErrUnknownVolume indicates that a mount references a volume that no feature declared.
var ErrUnknownVolume = errors.New("unknown volume")

// ErrDuplicateVolumeName indicates that two features declared the same volume name.
var ErrDuplicateVolumeName = errors.New("duplicate volume name")

// ErrInvalidKeystoreEntry indicates a malformed keystore entry (for example an empty secret name).
var ErrInvalidKeystoreEntry = errors.New("invalid keystore entry")

// ErrUnsupportedVersion indicates that the version gate has no matching discovery vocabulary.
var ErrUnsupportedVersion = errors.New("unsupported version")

// ErrDependencyCycle indicates that recorded dependency edges cannot be ordered.
var ErrDependencyCycle = errors.New("dependency cycle")

// Permanent errors indicate configuration issues that require user intervention.

// ErrPermanentConfig indicates a permanent configuration error that requires user intervention.
// This includes invalid configuration values, missing required fields, or incompatible settings.
var ErrPermanentConfig = errors.New("permanent configuration error")

// Transient errors indicate temporary conditions that should be retried.

// ErrTransientKubernetesAPI indicates a transient Kubernetes API error that should be retried.
// This includes rate limiting, temporary server errors, and network issues.
var ErrTransientKubernetesAPI = errors.New("transient Kubernetes API error")

// CompositionError carries the feature and volume that a composition failure
// was raised for, so the caller can locate the misconfiguration.
type CompositionError struct {
	// Feature is the feature that was being composed (for example "keystore").
	Feature string
	// Volume is the volume name involved, if any.
	Volume string
	// Err is one of the composition sentinel errors, possibly wrapped.
	Err error
}

func (e *CompositionError) Error() string {
	var b strings.Builder
	b.WriteString("compose")
	if e.Feature != "" {
		b.WriteString(" feature ")
		b.WriteString(e.Feature)
	}
	if e.Volume != "" {
		fmt.Fprintf(&b, " volume %q", e.Volume)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *CompositionError) Unwrap() error {
	return e.Err
}

// NewCompositionError wraps err with feature and volume context.
func NewCompositionError(feature, volume string, err error) error {
	if err == nil {
		return nil
	}
	return &CompositionError{Feature: feature, Volume: volume, Err: err}
}

// IsComposition checks if an error was raised by workload composition.
func IsComposition(err error) bool {
	if err == nil {
		return false
	}
	var ce *CompositionError
	if errors.As(err, &ce) {
		return true
	}
	return errors.Is(err, ErrUnknownVolume) ||
		errors.Is(err, ErrDuplicateVolumeName) ||
		errors.Is(err, ErrInvalidKeystoreEntry) ||
		errors.Is(err, ErrUnsupportedVersion) ||
		errors.Is(err, ErrDependencyCycle)
}

// Reason returns a short, stable label for err, suitable for metrics.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrUnknownVolume):
		return "UnknownVolume"
	case errors.Is(err, ErrDuplicateVolumeName):
		return "DuplicateVolumeName"
	case errors.Is(err, ErrInvalidKeystoreEntry):
		return "InvalidKeystoreEntry"
	case errors.Is(err, ErrUnsupportedVersion):
		return "UnsupportedVersion"
	case errors.Is(err, ErrDependencyCycle):
		return "DependencyCycle"
	case errors.Is(err, ErrPermanentConfig):
		return "InvalidConfig"
	case IsTransientKubernetesAPI(err):
		return "TransientKubernetesAPI"
	default:
		return "Unknown"
	}
}

// IsTransientKubernetesAPI checks if an error is a transient Kubernetes API error.
func IsTransientKubernetesAPI(err error) bool {
	if err == nil {
		return false
	}

	// Check for our sentinel error
	if errors.Is(err, ErrTransientKubernetesAPI) {
		return true
	}

	if apierrors.IsServerTimeout(err) ||
		apierrors.IsTimeout(err) ||
		apierrors.IsTooManyRequests(err) ||
		apierrors.IsServiceUnavailable(err) ||
		apierrors.IsInternalError(err) {
		return true
	}

	errStr := strings.ToLower(err.Error())

	// Check for Kubernetes API transient error patterns
	transientPatterns := []string{
		"rate limit",
		"too many requests",
		"server error",
		"service unavailable",
		"internal server error",
		"context deadline exceeded",
		"timeout",
		"connection refused",
		"connection reset",
	}

	for _, pattern := range transientPatterns {
		if strings.Contains(errStr, pattern) {
			return true
		}
	}

	return false
}

// WrapTransientKubernetesAPI wraps an error as a transient Kubernetes API error.
func WrapTransientKubernetesAPI(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrTransientKubernetesAPI) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrTransientKubernetesAPI, err)
}

// WrapPermanentConfig wraps an error as a permanent configuration error.
func WrapPermanentConfig(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, ErrPermanentConfig) {
		return err
	}

	return fmt.Errorf("%w: %w", ErrPermanentConfig, err)
}

// IsPermanent checks if an error is permanent (requires user intervention).
// Composition errors are always permanent.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}

	return errors.Is(err, ErrPermanentConfig) || IsComposition(err)
}
