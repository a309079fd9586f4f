// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"
	"strings"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/signer/core/apitypes"

	"github.com/luxfi/vitals"
)

var _ Wallet = (*LocalWallet)(nil)

// LocalWallet signs with an in-process secp256k1 key. It never prompts, so
// it never declines an authorization.
type LocalWallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// NewLocalWallet wraps an existing private key.
func NewLocalWallet(key *ecdsa.PrivateKey) *LocalWallet {
	return &LocalWallet{
		key:     key,
		address: common.PubkeyToAddress(key.PublicKey),
	}
}

// GenerateLocalWallet creates a wallet with a fresh random key.
func GenerateLocalWallet() (*LocalWallet, error) {
	key, err := crypto.GenerateKey()
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate key: %s", vitals.ErrSignerUnavailable, err)
	}
	return NewLocalWallet(key), nil
}

// LocalWalletFromHex parses a hex-encoded private key, optionally
// 0x-prefixed.
func LocalWalletFromHex(hexKey string) (*LocalWallet, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(hexKey), "0x"))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid private key: %s", vitals.ErrSignerUnavailable, err)
	}
	return NewLocalWallet(key), nil
}

// LocalWalletFromFile reads a hex-encoded private key from a file.
func LocalWalletFromFile(path string) (*LocalWallet, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read key file: %s", vitals.ErrSignerUnavailable, err)
	}
	return LocalWalletFromHex(string(b))
}

// Address implements Wallet.
func (w *LocalWallet) Address() common.Address {
	return w.address
}

// SignTypedData implements Wallet. The returned signature is in the 65-byte
// [R || S || V] form with V in {27, 28}, matching what the decryption
// gateway verifies.
func (w *LocalWallet) SignTypedData(_ context.Context, data *apitypes.TypedData) ([]byte, error) {
	hash, _, err := apitypes.TypedDataAndHash(*data)
	if err != nil {
		return nil, fmt.Errorf("failed to hash typed data: %w", err)
	}
	sig, err := crypto.Sign(hash, w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign typed data: %w", err)
	}
	sig[64] += 27
	return sig, nil
}

// SignTx implements Wallet.
func (w *LocalWallet) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), w.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}
