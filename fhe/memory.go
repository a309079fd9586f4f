// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"sync"

	"github.com/luxfi/geth/common"

	"github.com/luxfi/vitals"
)

// MemoryProvider is an in-process provider backed by a MemoryStore. Handles
// are derived deterministically from (contract, owner, nonce, position) so
// tests get stable, collision-free identifiers without a real coprocessor.
// The nonce lives in the store so providers sharing one store never derive
// the same handle twice.
type MemoryProvider struct {
	store *MemoryStore

	lock sync.Mutex
	down bool
}

// NewMemoryProvider returns a provider writing ciphertexts into store.
func NewMemoryProvider(store *MemoryStore) *MemoryProvider {
	return &MemoryProvider{store: store}
}

// SetUnavailable toggles simulated provider outage.
func (p *MemoryProvider) SetUnavailable(down bool) {
	p.lock.Lock()
	defer p.lock.Unlock()
	p.down = down
}

// Ready implements Provider.
func (p *MemoryProvider) Ready(context.Context) error {
	p.lock.Lock()
	defer p.lock.Unlock()
	if p.down {
		return errors.New("memory provider offline")
	}
	return nil
}

// CreateEncryptedInput implements Provider.
func (p *MemoryProvider) CreateEncryptedInput(contract, owner common.Address) *EncryptedInput {
	return NewEncryptedInput(contract, owner, p.encrypt)
}

func (p *MemoryProvider) encrypt(_ context.Context, in *EncryptedInput) (*Submission, error) {
	p.lock.Lock()
	if p.down {
		p.lock.Unlock()
		return nil, errors.New("memory provider offline")
	}
	p.lock.Unlock()
	nonce := p.store.nextNonce()

	values := in.Values()
	handles := make([]vitals.Handle, len(values))
	for i, v := range values {
		h := deriveHandle(in.Contract(), in.Owner(), nonce, uint32(i))
		p.store.put(h, in.Contract(), in.Owner(), v)
		handles[i] = h
	}

	return &Submission{
		Contract: in.Contract(),
		Owner:    in.Owner(),
		Handles:  handles,
		Proof:    deriveProof(handles, in.Contract(), in.Owner()),
	}, nil
}

func deriveHandle(contract, owner common.Address, nonce uint64, position uint32) vitals.Handle {
	hasher := sha256.New()
	hasher.Write(contract.Bytes())
	hasher.Write(owner.Bytes())
	_ = binary.Write(hasher, binary.BigEndian, nonce)
	_ = binary.Write(hasher, binary.BigEndian, position)
	var h vitals.Handle
	copy(h[:], hasher.Sum(nil))
	return h
}

func deriveProof(handles []vitals.Handle, contract, owner common.Address) []byte {
	hasher := sha256.New()
	for _, h := range handles {
		hasher.Write(h[:])
	}
	hasher.Write(contract.Bytes())
	hasher.Write(owner.Bytes())
	return hasher.Sum(nil)
}

// Ciphertext is one stored value with the (contract, owner) scope it was
// encrypted under.
type Ciphertext struct {
	Contract common.Address
	Owner    common.Address
	Value    uint64
}

// MemoryStore is the provider-side backing store mapping handles to the
// values they reference. The test decryption gateway reads from the same
// store, mirroring the coprocessor/gateway split of a real deployment.
type MemoryStore struct {
	lock  sync.RWMutex
	nonce uint64
	data  map[vitals.Handle]Ciphertext
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[vitals.Handle]Ciphertext)}
}

func (s *MemoryStore) nextNonce() uint64 {
	s.lock.Lock()
	defer s.lock.Unlock()
	n := s.nonce
	s.nonce++
	return n
}

func (s *MemoryStore) put(h vitals.Handle, contract, owner common.Address, value uint64) {
	s.lock.Lock()
	defer s.lock.Unlock()
	s.data[h] = Ciphertext{Contract: contract, Owner: owner, Value: value}
}

// Lookup returns the ciphertext behind a handle.
func (s *MemoryStore) Lookup(h vitals.Handle) (Ciphertext, bool) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	ct, ok := s.data[h]
	return ct, ok
}

// Len returns the number of stored ciphertexts.
func (s *MemoryStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.data)
}
