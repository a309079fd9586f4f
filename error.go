// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vitals

import (
	"errors"
	"fmt"
)

// Error taxonomy for the submission and decryption protocol. Every failure
// surfaced by this module wraps exactly one of these sentinels so callers
// can decide between retry and abort with errors.Is.
var (
	// ErrValidation indicates bad input shape or range, caught before any
	// network call is made.
	ErrValidation = errors.New("validation failed")

	// ErrProviderUnavailable indicates the encryption provider is missing
	// or uninitialized. The caller must re-establish it.
	ErrProviderUnavailable = errors.New("encryption provider unavailable")

	// ErrSignerUnavailable indicates no wallet is available to sign.
	ErrSignerUnavailable = errors.New("signer unavailable")

	// ErrSubmissionFailed indicates the ledger rejected a record write.
	// No state was changed; retrying requires a fresh encryption because
	// proofs are single-use per transaction attempt.
	ErrSubmissionFailed = errors.New("record submission failed")

	// ErrIndexOutOfRange indicates a read past the owner's record count.
	ErrIndexOutOfRange = errors.New("record index out of range")

	// ErrAuthorizationDeclined indicates the owner rejected the signing
	// prompt. Terminal for the attempt.
	ErrAuthorizationDeclined = errors.New("authorization declined")

	// ErrAuthorizationExpired indicates the grant's validity window has
	// passed. The caller must build and sign a fresh grant.
	ErrAuthorizationExpired = errors.New("authorization expired")

	// ErrUnauthorized indicates the grant does not cover the requested
	// handles or the signature does not match the grant.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrDecryptionUnavailable indicates a transient failure reaching the
	// decryption gateway. Safe to retry with the same still-valid grant.
	ErrDecryptionUnavailable = errors.New("decryption gateway unavailable")
)

// Error codes used on the wire by the decryption gateway.
const (
	CodeUnauthorized         int32 = 1
	CodeAuthorizationExpired int32 = 2
	CodeValidation           int32 = 3
	CodeUnavailable          int32 = 4
)

// Error is a protocol error carrying a gateway error code.
type Error struct {
	Code    int32
	Message string
}

// Error implements the error interface
func (e *Error) Error() string {
	return fmt.Sprintf("vitals error %d: %s", e.Code, e.Message)
}

// Unwrap maps the gateway code onto the error taxonomy so errors.Is works
// across the service boundary.
func (e *Error) Unwrap() error {
	switch e.Code {
	case CodeUnauthorized:
		return ErrUnauthorized
	case CodeAuthorizationExpired:
		return ErrAuthorizationExpired
	case CodeValidation:
		return ErrValidation
	case CodeUnavailable:
		return ErrDecryptionUnavailable
	default:
		return nil
	}
}
