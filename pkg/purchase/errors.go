package purchase

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrVerificationFailed is returned when the platform did not vouch for a transaction
	ErrVerificationFailed = errors.New("verification failed")

	// ErrCatalogFailure is returned when the product catalog could not be resolved
	ErrCatalogFailure = errors.New("catalog failure")

	// ErrPlatformFailure is returned for any other platform call error
	ErrPlatformFailure = errors.New("platform failure")

	// ErrNoSuchProduct is returned when an identifier is absent from the catalog
	ErrNoSuchProduct = errors.New("no such product")

	// ErrUnknownProducts is returned when the platform dropped requested identifiers
	ErrUnknownProducts = errors.New("unknown product identifiers")

	// ErrPlatformRequired is returned when the manager is created without a platform
	ErrPlatformRequired = errors.New("platform is required")

	// ErrAlreadyInitialized is returned by a second call to Initialize
	ErrAlreadyInitialized = errors.New("manager already initialized")

	// ErrClosed is returned when the manager has been closed
	ErrClosed = errors.New("manager closed")
)

// VerificationError reports an untrusted transaction payload
type VerificationError struct {
	Reason string
}

func (e *VerificationError) Error() string {
	if e.Reason == "" {
		return ErrVerificationFailed.Error()
	}
	return fmt.Sprintf("%s: %s", ErrVerificationFailed, e.Reason)
}

// Is matches ErrVerificationFailed
func (e *VerificationError) Is(target error) bool {
	return target == ErrVerificationFailed
}

// CatalogError reports a failed catalog resolve
type CatalogError struct {
	Cause error
}

func (e *CatalogError) Error() string {
	return fmt.Sprintf("%s: %v", ErrCatalogFailure, e.Cause)
}

// Is matches ErrCatalogFailure
func (e *CatalogError) Is(target error) bool {
	return target == ErrCatalogFailure
}

func (e *CatalogError) Unwrap() error {
	return e.Cause
}

// PlatformError reports a failed platform call
type PlatformError struct {
	Op    string
	Cause error
}

func (e *PlatformError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPlatformFailure, e.Op, e.Cause)
}

// Is matches ErrPlatformFailure
func (e *PlatformError) Is(target error) bool {
	return target == ErrPlatformFailure
}

func (e *PlatformError) Unwrap() error {
	return e.Cause
}

func unknownProductsError(missing []string) error {
	return fmt.Errorf("%w: %s", ErrUnknownProducts, strings.Join(missing, ", "))
}
