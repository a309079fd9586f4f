// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grant

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/signer/core/apitypes"
	"github.com/luxfi/log"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/wallet"
)

// Authorizer builds decryption authorizations and obtains the owner's
// signature over them. Each Authorize call is one session: a fresh keypair,
// a fresh grant, one signing prompt.
type Authorizer struct {
	log     log.Logger
	chainID *big.Int
	wallet  wallet.Wallet

	// now is swapped in tests to pin the validity window.
	now func() time.Time
}

// NewAuthorizer returns an authorizer signing with w on the given chain.
func NewAuthorizer(logger log.Logger, chainID *big.Int, w wallet.Wallet) *Authorizer {
	return &Authorizer{
		log:     logger,
		chainID: chainID,
		wallet:  w,
		now:     time.Now,
	}
}

// WithClock overrides the wall clock. Test hook.
func (a *Authorizer) WithClock(now func() time.Time) *Authorizer {
	a.now = now
	return a
}

// Build generates a fresh session keypair and the grant and unsigned typed
// message covering the given contracts for the given duration. A
// non-positive duration selects DefaultDuration. The keypair is never
// reused across sessions; every Build starts from new key material.
func (a *Authorizer) Build(
	contracts []common.Address,
	duration time.Duration,
) (*Keypair, *Grant, *apitypes.TypedData, error) {
	if duration <= 0 {
		duration = DefaultDuration
	}

	keypair, err := GenerateKeypair()
	if err != nil {
		return nil, nil, nil, err
	}

	g := &Grant{
		PublicKey: keypair.PublicKey(),
		Contracts: contracts,
		StartTime: a.now().Truncate(time.Second),
		Duration:  duration,
	}
	if err := g.Verify(); err != nil {
		keypair.Zero()
		return nil, nil, nil, err
	}

	a.log.Debug(
		"built decryption authorization",
		log.Stringer("sessionID", keypair.SessionID()),
		log.Int("numContracts", len(contracts)),
		log.Time("startTime", g.StartTime),
		log.Duration("duration", duration),
	)

	return keypair, g, TypedData(g, a.chainID), nil
}

// Authorize builds a session and obtains the owner's signature over it. On
// rejection the session's key material is discarded and
// vitals.ErrAuthorizationDeclined is returned; the caller decides whether
// to prompt again.
func (a *Authorizer) Authorize(
	ctx context.Context,
	contracts []common.Address,
	duration time.Duration,
) (*SignedGrant, error) {
	if a.wallet == nil {
		return nil, fmt.Errorf("%w: no wallet configured", vitals.ErrSignerUnavailable)
	}

	keypair, g, typedData, err := a.Build(contracts, duration)
	if err != nil {
		return nil, err
	}

	signature, err := a.wallet.SignTypedData(ctx, typedData)
	if err != nil {
		keypair.Zero()
		if errors.Is(err, vitals.ErrAuthorizationDeclined) {
			a.log.Info(
				"owner declined decryption authorization",
				log.Stringer("sessionID", keypair.SessionID()),
			)
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s", vitals.ErrSignerUnavailable, err)
	}

	a.log.Info(
		"decryption authorization signed",
		log.Stringer("sessionID", keypair.SessionID()),
		log.Stringer("owner", a.wallet.Address()),
		log.Time("expiresAt", g.ExpiresAt()),
	)

	return &SignedGrant{
		Grant:     *g,
		Signature: signature,
		Keypair:   keypair,
		Owner:     a.wallet.Address(),
	}, nil
}
