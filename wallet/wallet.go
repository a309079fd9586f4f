// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package wallet abstracts the owner's signing capability: address
// discovery, typed-data signing for decryption authorizations, and
// transaction signing for ledger writes. The protocol packages take the
// interface so they can be exercised without a live wallet.
package wallet

import (
	"context"
	"math/big"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/signer/core/apitypes"
)

// Wallet is the owner's signing capability.
type Wallet interface {
	// Address returns the owner address.
	Address() common.Address

	// SignTypedData signs an EIP-712 typed-data payload. Implementations
	// backed by an interactive wallet prompt the owner with the structured
	// message and return vitals.ErrAuthorizationDeclined on rejection.
	SignTypedData(ctx context.Context, data *apitypes.TypedData) ([]byte, error)

	// SignTx signs a transaction for the given chain.
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}
