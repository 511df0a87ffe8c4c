// Package businessflow contains the core business logic for presence reconciliation
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Unknown-entity errors (404-class for the API, debug-and-drop for bus events)
	ErrUnknownTenant       = errors.New("unknown tenant")
	ErrUnknownUser         = errors.New("unknown user")
	ErrUnknownSession      = errors.New("unknown session")
	ErrUnknownRefreshToken = errors.New("unknown refresh token")
	ErrUnknownLine         = errors.New("unknown line")
	ErrUnknownEndpoint     = errors.New("unknown endpoint")
	ErrUnknownChannel      = errors.New("unknown channel")

	// Lifecycle errors
	ErrNotInitialized = errors.New("presence not initialized")

	// Tenancy errors
	ErrMasterTenantRequired = errors.New("master tenant required")

	// Line ownership
	ErrLineAlreadyOwned = errors.New("line multi-users not supported")

	// Teams federation
	ErrSynchronizerExists  = errors.New("teams presence synchronizer already exists")
	ErrNoSynchronizer      = errors.New("no active teams presence synchronizer")
	ErrInvalidPresenceData = errors.New("invalid presence data")
)

type BusinessError struct {
	Code    string
	Message string
	Err     error
}

func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *BusinessError) Unwrap() error {
	return e.Err
}

func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

func IsUnknownTenant(err error) bool {
	return errors.Is(err, ErrUnknownTenant)
}

func IsUnknownUser(err error) bool {
	return errors.Is(err, ErrUnknownUser)
}

func IsUnknownSession(err error) bool {
	return errors.Is(err, ErrUnknownSession)
}

func IsUnknownRefreshToken(err error) bool {
	return errors.Is(err, ErrUnknownRefreshToken)
}

func IsUnknownLine(err error) bool {
	return errors.Is(err, ErrUnknownLine)
}

func IsUnknownEndpoint(err error) bool {
	return errors.Is(err, ErrUnknownEndpoint)
}

func IsUnknownChannel(err error) bool {
	return errors.Is(err, ErrUnknownChannel)
}

// IsUnknownEntity reports whether err is any unknown-entity error. Bus
// handlers use this to decide between debug-and-drop and a real failure.
func IsUnknownEntity(err error) bool {
	return IsUnknownTenant(err) ||
		IsUnknownUser(err) ||
		IsUnknownSession(err) ||
		IsUnknownRefreshToken(err) ||
		IsUnknownLine(err) ||
		IsUnknownEndpoint(err) ||
		IsUnknownChannel(err)
}

func IsNotInitialized(err error) bool {
	return errors.Is(err, ErrNotInitialized)
}

func IsMasterTenantRequired(err error) bool {
	return errors.Is(err, ErrMasterTenantRequired)
}

func IsLineAlreadyOwned(err error) bool {
	return errors.Is(err, ErrLineAlreadyOwned)
}

func IsSynchronizerExists(err error) bool {
	return errors.Is(err, ErrSynchronizerExists)
}

func IsNoSynchronizer(err error) bool {
	return errors.Is(err, ErrNoSynchronizer)
}

func IsInvalidPresenceData(err error) bool {
	return errors.Is(err, ErrInvalidPresenceData)
}
