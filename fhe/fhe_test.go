// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"testing"

	"github.com/luxfi/geth/common"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/vitals"
)

var (
	testContract = common.HexToAddress("0x1111111111111111111111111111111111111111")
	testOwner    = common.HexToAddress("0x2222222222222222222222222222222222222222")
)

func TestEncryptedInputSingleUse(t *testing.T) {
	provider := NewMemoryProvider(NewMemoryStore())

	in := provider.CreateEncryptedInput(testContract, testOwner)
	require.NoError(t, in.Add32(175))

	_, err := in.Encrypt(context.Background())
	require.NoError(t, err)

	// Consumed buffers reject both reads and writes.
	require.ErrorIs(t, in.Add32(80), ErrInputConsumed)
	_, err = in.Encrypt(context.Background())
	require.ErrorIs(t, err, ErrInputConsumed)
}

func TestEncryptedInputValidation(t *testing.T) {
	provider := NewMemoryProvider(NewMemoryStore())

	in := provider.CreateEncryptedInput(testContract, testOwner)
	require.ErrorIs(t, in.Add32(uint64(vitals.MaxMeasurement)+1), vitals.ErrValidation)

	// Out-of-range values must fail before any provider call.
	_, err := in.Encrypt(context.Background())
	require.ErrorIs(t, err, ErrInputEmpty)
}

func TestEncryptedInputFull(t *testing.T) {
	provider := NewMemoryProvider(NewMemoryStore())

	in := provider.CreateEncryptedInput(testContract, testOwner)
	for i := 0; i < MaxInputValues; i++ {
		require.NoError(t, in.Add32(uint64(i)))
	}
	require.ErrorIs(t, in.Add32(1), ErrInputFull)
}

func TestEncryptMeasurementsAtomic(t *testing.T) {
	store := NewMemoryStore()
	provider := NewMemoryProvider(store)

	m := vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80}
	sub, err := EncryptMeasurements(context.Background(), provider, testContract, testOwner, m)
	require.NoError(t, err)

	require.Equal(t, testContract, sub.Contract)
	require.Equal(t, testOwner, sub.Owner)
	require.Len(t, sub.Handles, vitals.NumFields)
	require.NotEmpty(t, sub.Proof)
	require.NoError(t, sub.Verify())

	handles, err := sub.RecordHandles()
	require.NoError(t, err)
	for _, h := range handles {
		require.False(t, h.IsZero())
	}

	// All four ciphertexts land in the store together.
	require.Equal(t, vitals.NumFields, store.Len())
	values := m.Values()
	for i, h := range handles {
		ct, ok := store.Lookup(h)
		require.True(t, ok)
		require.Equal(t, values[i], ct.Value)
		require.Equal(t, testContract, ct.Contract)
		require.Equal(t, testOwner, ct.Owner)
	}
}

func TestEncryptMeasurementsRejectsOutOfRange(t *testing.T) {
	store := NewMemoryStore()
	provider := NewMemoryProvider(store)

	m := vitals.Measurements{HeightCm: uint64(vitals.MaxMeasurement) + 1}
	_, err := EncryptMeasurements(context.Background(), provider, testContract, testOwner, m)
	require.ErrorIs(t, err, vitals.ErrValidation)

	// Nothing was encrypted.
	require.Zero(t, store.Len())
}

func TestEncryptMeasurementsProviderUnavailable(t *testing.T) {
	store := NewMemoryStore()
	provider := NewMemoryProvider(store)
	provider.SetUnavailable(true)

	m := vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80}
	_, err := EncryptMeasurements(context.Background(), provider, testContract, testOwner, m)
	require.ErrorIs(t, err, vitals.ErrProviderUnavailable)
	require.Zero(t, store.Len())
}

func TestSubmissionVerify(t *testing.T) {
	handles := []vitals.Handle{{1}, {2}, {3}, {4}}

	sub := &Submission{Contract: testContract, Owner: testOwner, Handles: handles, Proof: []byte{1}}
	require.NoError(t, sub.Verify())

	empty := &Submission{Contract: testContract, Owner: testOwner, Proof: []byte{1}}
	require.ErrorIs(t, empty.Verify(), vitals.ErrValidation)

	zeroHandle := &Submission{Contract: testContract, Owner: testOwner, Handles: []vitals.Handle{{1}, {}}, Proof: []byte{1}}
	require.ErrorIs(t, zeroHandle.Verify(), vitals.ErrValidation)

	noProof := &Submission{Contract: testContract, Owner: testOwner, Handles: handles}
	require.ErrorIs(t, noProof.Verify(), vitals.ErrValidation)
}

func TestRecordHandlesArity(t *testing.T) {
	sub := &Submission{
		Handles: []vitals.Handle{{1}, {2}},
		Proof:   []byte{1},
	}
	// A partial record (2 of 4 handles) is not a valid state.
	_, err := sub.RecordHandles()
	require.ErrorIs(t, err, vitals.ErrValidation)
}

func TestMemoryProviderDistinctHandles(t *testing.T) {
	store := NewMemoryStore()
	provider := NewMemoryProvider(store)

	m := vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80}
	first, err := EncryptMeasurements(context.Background(), provider, testContract, testOwner, m)
	require.NoError(t, err)
	second, err := EncryptMeasurements(context.Background(), provider, testContract, testOwner, m)
	require.NoError(t, err)

	// Same plaintext, fresh handles: ciphertext handles never repeat
	// across submissions.
	seen := make(map[vitals.Handle]bool)
	for _, h := range append(append([]vitals.Handle{}, first.Handles...), second.Handles...) {
		require.False(t, seen[h])
		seen[h] = true
	}
}

func TestSharedStoreProvidersDistinctHandles(t *testing.T) {
	store := NewMemoryStore()

	// Two providers over one store, as when each submission builds its
	// own provider. Handles must stay unique per submission; otherwise
	// the second write would overwrite the first record's ciphertexts.
	m1 := vitals.Measurements{HeightCm: 175, WeightGrams: 70000, Systolic: 120, Diastolic: 80}
	first, err := EncryptMeasurements(context.Background(), NewMemoryProvider(store), testContract, testOwner, m1)
	require.NoError(t, err)

	m2 := vitals.Measurements{HeightCm: 176, WeightGrams: 70500, Systolic: 118, Diastolic: 76}
	second, err := EncryptMeasurements(context.Background(), NewMemoryProvider(store), testContract, testOwner, m2)
	require.NoError(t, err)

	seen := make(map[vitals.Handle]bool)
	for _, h := range append(append([]vitals.Handle{}, first.Handles...), second.Handles...) {
		require.False(t, seen[h])
		seen[h] = true
	}
	require.Equal(t, 8, store.Len())

	for i, want := range m1.Values() {
		ct, ok := store.Lookup(first.Handles[i])
		require.True(t, ok)
		require.Equal(t, want, ct.Value)
	}
	for i, want := range m2.Values() {
		ct, ok := store.Lookup(second.Handles[i])
		require.True(t, ok)
		require.Equal(t, want, ct.Value)
	}
}
