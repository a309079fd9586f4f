// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package fhe wraps a homomorphic-encryption provider behind a small
// interface: plaintext integers go into a single-use input buffer scoped to
// one (contract, owner) pair, and one Encrypt call turns the whole buffer
// into ciphertext handles plus a validity proof. The scoping is what lets
// the ledger contract verify, via the proof, that the handles were produced
// for it and by this owner.
package fhe

import (
	"context"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/vitals"
)

var (
	// ErrInputConsumed is returned when a buffer is reused after Encrypt.
	// Input buffers are build-once, encrypt-once, discard.
	ErrInputConsumed = errors.New("encrypted input already consumed")

	// ErrInputEmpty is returned when Encrypt is called on an empty buffer.
	ErrInputEmpty = errors.New("encrypted input is empty")

	// ErrInputFull is returned when more values are added than the
	// provider accepts in one buffer.
	ErrInputFull = errors.New("encrypted input is full")
)

// MaxInputValues is the largest number of values one input buffer holds.
const MaxInputValues = 16

// Provider is a homomorphic-encryption provider instance. Implementations
// wrap the provider SDK; the in-memory implementation backs tests.
type Provider interface {
	// CreateEncryptedInput returns a fresh single-use input buffer scoped
	// to the given contract and owner.
	CreateEncryptedInput(contract, owner common.Address) *EncryptedInput

	// Ready reports whether the provider is initialized and reachable.
	Ready(ctx context.Context) error
}

// Submission is the atomic product of encrypting one input buffer: one
// handle per buffered value and one proof binding all of them to the scoped
// contract and owner. Partial submissions are not a valid state; a
// Submission either carries a handle for every buffered value or was never
// produced.
type Submission struct {
	Contract common.Address
	Owner    common.Address
	Handles  []vitals.Handle
	Proof    []byte
}

// Verify checks the submission invariants before it is sent anywhere.
func (s *Submission) Verify() error {
	if len(s.Handles) == 0 {
		return fmt.Errorf("%w: submission has no handles", vitals.ErrValidation)
	}
	for i, h := range s.Handles {
		if h.IsZero() {
			return fmt.Errorf("%w: submission has zero handle at field %d", vitals.ErrValidation, i)
		}
	}
	if len(s.Proof) == 0 {
		return fmt.Errorf("%w: submission has empty proof", vitals.ErrValidation)
	}
	return nil
}

// RecordHandles returns the submission's handles as a record-shaped array.
// It fails unless the submission carries exactly one handle per record
// field, which is what keeps partial records off the ledger.
func (s *Submission) RecordHandles() ([vitals.NumFields]vitals.Handle, error) {
	var out [vitals.NumFields]vitals.Handle
	if len(s.Handles) != vitals.NumFields {
		return out, fmt.Errorf(
			"%w: record submission needs %d handles, got %d",
			vitals.ErrValidation, vitals.NumFields, len(s.Handles),
		)
	}
	copy(out[:], s.Handles)
	return out, nil
}

// encryptFunc is supplied by the provider; it encrypts the whole buffer
// atomically.
type encryptFunc func(ctx context.Context, in *EncryptedInput) (*Submission, error)

// EncryptedInput is a single-use buffer of plaintext values scoped to one
// (contract, owner) pair. It is not safe for concurrent use; the protocol
// builds one buffer per submission on a single flow.
type EncryptedInput struct {
	contract common.Address
	owner    common.Address
	values   []uint64
	consumed bool
	encrypt  encryptFunc
}

// NewEncryptedInput constructs an input buffer. Providers call this from
// CreateEncryptedInput with their own encrypt implementation.
func NewEncryptedInput(contract, owner common.Address, encrypt encryptFunc) *EncryptedInput {
	return &EncryptedInput{
		contract: contract,
		owner:    owner,
		encrypt:  encrypt,
	}
}

// Contract returns the contract address the buffer is scoped to.
func (in *EncryptedInput) Contract() common.Address { return in.contract }

// Owner returns the owner address the buffer is scoped to.
func (in *EncryptedInput) Owner() common.Address { return in.owner }

// Values returns the buffered plaintext values.
func (in *EncryptedInput) Values() []uint64 { return in.values }

// Add32 appends a 32-bit value to the buffer. Values outside the provider's
// declared bit-width fail before any provider call is made.
func (in *EncryptedInput) Add32(v uint64) error {
	if in.consumed {
		return ErrInputConsumed
	}
	if len(in.values) >= MaxInputValues {
		return ErrInputFull
	}
	if v > vitals.MaxMeasurement {
		return fmt.Errorf("%w: value %d exceeds 32-bit range", vitals.ErrValidation, v)
	}
	in.values = append(in.values, v)
	return nil
}

// Encrypt consumes the buffer and produces all handles and the proof in one
// atomic provider call. The buffer cannot be reused afterwards, even on
// failure: failure recovery builds a fresh buffer.
func (in *EncryptedInput) Encrypt(ctx context.Context) (*Submission, error) {
	if in.consumed {
		return nil, ErrInputConsumed
	}
	in.consumed = true
	if len(in.values) == 0 {
		return nil, ErrInputEmpty
	}
	sub, err := in.encrypt(ctx, in)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vitals.ErrProviderUnavailable, err)
	}
	if err := sub.Verify(); err != nil {
		return nil, err
	}
	return sub, nil
}

// EncryptMeasurements buffers one record's four values and encrypts them
// atomically.
func EncryptMeasurements(
	ctx context.Context,
	provider Provider,
	contract common.Address,
	owner common.Address,
	m vitals.Measurements,
) (*Submission, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}
	if err := provider.Ready(ctx); err != nil {
		return nil, fmt.Errorf("%w: %s", vitals.ErrProviderUnavailable, err)
	}
	in := provider.CreateEncryptedInput(contract, owner)
	for _, v := range m.Values() {
		if err := in.Add32(v); err != nil {
			return nil, err
		}
	}
	return in.Encrypt(ctx)
}
