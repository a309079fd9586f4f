// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package grant implements the authorization half of the decryption
// protocol: ephemeral session keypairs, structured time-bounded grants, and
// the typed-data message the owner signs to approve them. A grant is a
// capability value carrying (scope, expiry, credential); expiry is checked
// at every call site, never assumed.
package grant

import (
	"fmt"
	"time"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/vitals"
)

// DefaultDuration is the validity window used when the caller does not
// choose one: long enough to avoid repeated signing prompts, short enough
// to bound exposure if the signature or private key later leaks.
const DefaultDuration = 10 * 24 * time.Hour

// Grant scopes decryption access to a contract set within a validity
// window, bound to one session public key.
type Grant struct {
	PublicKey [KeyLen]byte
	Contracts []common.Address
	StartTime time.Time
	Duration  time.Duration
}

// Verify checks the grant's shape.
func (g *Grant) Verify() error {
	if len(g.Contracts) == 0 {
		return fmt.Errorf("%w: grant has no contracts", vitals.ErrValidation)
	}
	if g.Duration <= 0 {
		return fmt.Errorf("%w: grant duration must be positive", vitals.ErrValidation)
	}
	if g.StartTime.IsZero() {
		return fmt.Errorf("%w: grant start time is zero", vitals.ErrValidation)
	}
	return nil
}

// Covers reports whether the contract is in the grant's scope.
func (g *Grant) Covers(contract common.Address) bool {
	for _, c := range g.Contracts {
		if c == contract {
			return true
		}
	}
	return false
}

// ExpiresAt returns the end of the validity window.
func (g *Grant) ExpiresAt() time.Time {
	return g.StartTime.Add(g.Duration)
}

// ValidAt reports whether t falls within [start, start+duration).
func (g *Grant) ValidAt(t time.Time) bool {
	return !t.Before(g.StartTime) && t.Before(g.ExpiresAt())
}

// SignedGrant bundles a grant with the owner's signature over its typed
// message and the session keypair it authorizes. This is the complete
// credential presented to the decryption gateway.
type SignedGrant struct {
	Grant     Grant
	Signature []byte
	Keypair   *Keypair
	Owner     common.Address
}

// CheckCurrent fails with ErrAuthorizationExpired if t is outside the
// grant's validity window. Callers run this before every gateway call.
func (sg *SignedGrant) CheckCurrent(t time.Time) error {
	if sg.Grant.ValidAt(t) {
		return nil
	}
	return fmt.Errorf(
		"%w: grant window [%s, %s) does not cover %s",
		vitals.ErrAuthorizationExpired,
		sg.Grant.StartTime.UTC().Format(time.RFC3339),
		sg.Grant.ExpiresAt().UTC().Format(time.RFC3339),
		t.UTC().Format(time.RFC3339),
	)
}

// Close discards the session's private key material.
func (sg *SignedGrant) Close() {
	if sg.Keypair != nil {
		sg.Keypair.Zero()
	}
}
