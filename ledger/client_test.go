// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger_test

import (
	"context"
	"math/big"
	"testing"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/fhe"
	"github.com/luxfi/vitals/ledger"
	"github.com/luxfi/vitals/ledger/ledgertest"
	"github.com/luxfi/vitals/wallet"
)

var (
	testChainID  = big.NewInt(1337)
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
)

func newBackend() *ledgertest.Backend {
	return ledgertest.New(testChainID, testContract)
}

func newTestClient(t *testing.T, backend *ledgertest.Backend, w wallet.Wallet) *ledger.Client {
	t.Helper()
	c, err := ledger.NewClient(log.NewNoOpLogger(), backend, w, testContract, ledger.Options{})
	require.NoError(t, err)
	return c
}

func encryptFor(t *testing.T, owner common.Address, m vitals.Measurements) *fhe.Submission {
	t.Helper()
	provider := fhe.NewMemoryProvider(fhe.NewMemoryStore())
	sub, err := fhe.EncryptMeasurements(context.Background(), provider, testContract, owner, m)
	require.NoError(t, err)
	return sub
}

func TestSubmitAndFetch(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	conf, err := c.Submit(context.Background(), sub)
	require.NoError(t, err)
	require.Equal(t, uint64(0), conf.Index)
	require.False(t, conf.Timestamp.IsZero())

	count, err := c.RecordCount(context.Background(), w.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)

	record, err := c.Record(context.Background(), w.Address(), 0)
	require.NoError(t, err)
	require.Equal(t, w.Address(), record.Owner)
	require.Equal(t, uint64(0), record.Index)
	handles, err := sub.RecordHandles()
	require.NoError(t, err)
	require.Equal(t, handles, record.Handles)
	require.True(t, record.Timestamp.Equal(conf.Timestamp))
}

func TestSubmitAssignsSequentialIndexes(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	for i := 0; i < 3; i++ {
		sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 170 + uint64(i), WeightGrams: 70000, Systolic: 120, Diastolic: 80})
		conf, err := c.Submit(context.Background(), sub)
		require.NoError(t, err)
		require.Equal(t, uint64(i), conf.Index)
	}

	// Records come back oldest first with strictly increasing timestamps.
	records, err := c.Records(context.Background(), w.Address())
	require.NoError(t, err)
	require.Len(t, records, 3)
	for i, r := range records {
		require.Equal(t, uint64(i), r.Index)
		if i > 0 {
			require.True(t, r.Timestamp.After(records[i-1].Timestamp))
		}
	}

	timestamps, err := c.Timestamps(context.Background(), w.Address())
	require.NoError(t, err)
	require.Len(t, timestamps, 3)
	for i, ts := range timestamps {
		require.True(t, ts.Equal(records[i].Timestamp))
	}
}

func TestSubmitUpdatesCountCache(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), sub)
	require.NoError(t, err)

	// The confirmed index updates the cached count; no contract read needed.
	count, err := c.RecordCount(context.Background(), w.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), count)
	require.Zero(t, backend.CountCalls())
}

func TestRecordCaching(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), sub)
	require.NoError(t, err)

	_, err = c.Record(context.Background(), w.Address(), 0)
	require.NoError(t, err)
	_, err = c.Record(context.Background(), w.Address(), 0)
	require.NoError(t, err)

	// Records are immutable: the second read is a cache hit.
	require.Equal(t, 1, backend.RecordCalls())
}

func TestRecordIndexOutOfRange(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), sub)
	require.NoError(t, err)

	_, err = c.Record(context.Background(), w.Address(), 1)
	require.ErrorIs(t, err, vitals.ErrIndexOutOfRange)
	// The bounds check fires before any contract read.
	require.Zero(t, backend.RecordCalls())
}

func TestOwnerIsolation(t *testing.T) {
	backend := newBackend()
	alice, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	bob, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)

	aliceClient := newTestClient(t, backend, alice)
	bobClient := newTestClient(t, backend, bob)

	_, err = aliceClient.Submit(context.Background(), encryptFor(t, alice.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80}))
	require.NoError(t, err)
	_, err = aliceClient.Submit(context.Background(), encryptFor(t, alice.Address(), vitals.Measurements{HeightCm: 176, WeightGrams: 70100, Systolic: 121, Diastolic: 81}))
	require.NoError(t, err)
	_, err = bobClient.Submit(context.Background(), encryptFor(t, bob.Address(), vitals.Measurements{HeightCm: 180, WeightGrams: 80000, Systolic: 130, Diastolic: 85}))
	require.NoError(t, err)

	aliceCount, err := aliceClient.RecordCount(context.Background(), alice.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(2), aliceCount)

	bobCount, err := bobClient.RecordCount(context.Background(), bob.Address())
	require.NoError(t, err)
	require.Equal(t, uint64(1), bobCount)

	// Bob's record 0 is his own, not Alice's.
	bobRecord, err := bobClient.Record(context.Background(), bob.Address(), 0)
	require.NoError(t, err)
	require.Equal(t, bob.Address(), bobRecord.Owner)
	aliceRecord, err := aliceClient.Record(context.Background(), alice.Address(), 0)
	require.NoError(t, err)
	require.NotEqual(t, aliceRecord.Handles, bobRecord.Handles)
}

func TestSubmitScopeChecks(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	other := common.HexToAddress("0x9999999999999999999999999999999999999999")

	wrongContract := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	wrongContract.Contract = other
	_, err = c.Submit(context.Background(), wrongContract)
	require.ErrorIs(t, err, vitals.ErrValidation)

	wrongOwner := encryptFor(t, other, vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), wrongOwner)
	require.ErrorIs(t, err, vitals.ErrValidation)

	// Nothing landed on the ledger.
	count, err := c.RecordCount(context.Background(), w.Address())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSubmitPartialRecordRejected(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	sub.Handles = sub.Handles[:2]
	_, err = c.Submit(context.Background(), sub)
	require.ErrorIs(t, err, vitals.ErrValidation)
}

func TestSubmitNoWallet(t *testing.T) {
	backend := newBackend()
	c := newTestClient(t, backend, nil)

	sub := encryptFor(t, common.HexToAddress("0x9999999999999999999999999999999999999999"), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err := c.Submit(context.Background(), sub)
	require.ErrorIs(t, err, vitals.ErrSignerUnavailable)
}

func TestSubmitSendRejected(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)
	backend.SetRejectSend(true)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), sub)
	require.ErrorIs(t, err, vitals.ErrSubmissionFailed)
}

func TestSubmitReverted(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c := newTestClient(t, backend, w)
	backend.RevertNext()

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), sub)
	require.ErrorIs(t, err, vitals.ErrSubmissionFailed)

	// The revert stored nothing.
	count, err := c.RecordCount(context.Background(), w.Address())
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestSubmitInclusionTimeout(t *testing.T) {
	backend := newBackend()
	w, err := wallet.GenerateLocalWallet()
	require.NoError(t, err)
	c, err := ledger.NewClient(log.NewNoOpLogger(), backend, w, testContract, ledger.Options{
		TxInclusionTimeout: 700 * time.Millisecond,
	})
	require.NoError(t, err)
	backend.SetDropReceipts(true)

	sub := encryptFor(t, w.Address(), vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80})
	_, err = c.Submit(context.Background(), sub)
	require.ErrorIs(t, err, vitals.ErrSubmissionFailed)
	require.Contains(t, err.Error(), "inclusion not confirmed")
}
