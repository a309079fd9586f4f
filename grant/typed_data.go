// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grant

import (
	"math/big"
	"time"

	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/common/math"
	"github.com/luxfi/geth/signer/core/apitypes"
)

// PrimaryType is the EIP-712 primary type of the authorization message.
// The decryption gateway verifies the owner's signature against exactly
// this structure.
const PrimaryType = "UserDecryptRequestVerification"

// Typed-data domain constants shared with the gateway.
const (
	domainName    = "Decryption"
	domainVersion = "1"
)

// TypedData builds the EIP-712 message for a grant. The wallet presents
// this structure to the owner, so the full authorization scope -- session
// public key, contract set, and validity window -- is human-auditable
// before approval.
func TypedData(g *Grant, chainID *big.Int) *apitypes.TypedData {
	contracts := make([]interface{}, len(g.Contracts))
	for i, c := range g.Contracts {
		contracts[i] = c.Hex()
	}

	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			PrimaryType: []apitypes.Type{
				{Name: "publicKey", Type: "bytes"},
				{Name: "contractAddresses", Type: "address[]"},
				{Name: "startTimestamp", Type: "uint256"},
				{Name: "durationSeconds", Type: "uint256"},
			},
		},
		PrimaryType: PrimaryType,
		Domain: apitypes.TypedDataDomain{
			Name:    domainName,
			Version: domainVersion,
			ChainId: (*math.HexOrDecimal256)(new(big.Int).Set(chainID)),
		},
		Message: apitypes.TypedDataMessage{
			"publicKey":         hexutil.Encode(g.PublicKey[:]),
			"contractAddresses": contracts,
			"startTimestamp":    math.NewHexOrDecimal256(g.StartTime.Unix()),
			"durationSeconds":   math.NewHexOrDecimal256(int64(g.Duration / time.Second)),
		},
	}
}

// Hash returns the EIP-712 digest the owner signs.
func Hash(g *Grant, chainID *big.Int) ([]byte, error) {
	digest, _, err := apitypes.TypedDataAndHash(*TypedData(g, chainID))
	return digest, err
}
