// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package wallet

import (
	"context"
	"math/big"
	"os"
	"path/filepath"
	"testing"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/geth/common/math"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/signer/core/apitypes"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vitals"
)

func testTypedData() *apitypes.TypedData {
	return &apitypes.TypedData{
		Types: apitypes.Types{
			"EIP712Domain": []apitypes.Type{
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
			},
			"Message": []apitypes.Type{
				{Name: "value", Type: "uint256"},
			},
		},
		PrimaryType: "Message",
		Domain: apitypes.TypedDataDomain{
			Name:    "Test",
			Version: "1",
			ChainId: math.NewHexOrDecimal256(1337),
		},
		Message: apitypes.TypedDataMessage{
			"value": math.NewHexOrDecimal256(42),
		},
	}
}

func TestSignTypedDataRecoversAddress(t *testing.T) {
	w, err := GenerateLocalWallet()
	require.NoError(t, err)

	data := testTypedData()
	sig, err := w.SignTypedData(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, sig, 65)
	require.Contains(t, []byte{27, 28}, sig[64])

	hash, _, err := apitypes.TypedDataAndHash(*data)
	require.NoError(t, err)

	recoverable := make([]byte, 65)
	copy(recoverable, sig)
	recoverable[64] -= 27
	pub, err := crypto.SigToPub(hash, recoverable)
	require.NoError(t, err)
	require.Equal(t, w.Address(), common.PubkeyToAddress(*pub))
}

func TestSignTxRecoversSender(t *testing.T) {
	w, err := GenerateLocalWallet()
	require.NoError(t, err)

	chainID := big.NewInt(1337)
	to := common.HexToAddress("0x1111111111111111111111111111111111111111")
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     7,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
	})

	signed, err := w.SignTx(context.Background(), tx, chainID)
	require.NoError(t, err)

	sender, err := types.Sender(types.LatestSignerForChainID(chainID), signed)
	require.NoError(t, err)
	require.Equal(t, w.Address(), sender)
}

func TestLocalWalletFromHex(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := common.PubkeyToAddress(key.PublicKey)
	keyHex := hexutil.Encode(crypto.FromECDSA(key))

	w, err := LocalWalletFromHex(keyHex)
	require.NoError(t, err)
	require.Equal(t, want, w.Address())

	// The 0x prefix is optional.
	w, err = LocalWalletFromHex(keyHex[2:])
	require.NoError(t, err)
	require.Equal(t, want, w.Address())

	_, err = LocalWalletFromHex("not a key")
	require.ErrorIs(t, err, vitals.ErrSignerUnavailable)
}

func TestLocalWalletFromFile(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "key.hex")
	require.NoError(t, os.WriteFile(path, []byte(hexutil.Encode(crypto.FromECDSA(key))+"\n"), 0o600))

	w, err := LocalWalletFromFile(path)
	require.NoError(t, err)
	require.Equal(t, common.PubkeyToAddress(key.PublicKey), w.Address())

	_, err = LocalWalletFromFile(filepath.Join(t.TempDir(), "missing"))
	require.ErrorIs(t, err, vitals.ErrSignerUnavailable)
}
