// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package vitals defines the data model for confidential health records:
// plaintext measurements, ciphertext handles, and the records the ledger
// stores. Plaintext values exist only transiently in memory; the ledger
// only ever sees handles and proofs.
package vitals

import (
	"fmt"
	"math"
	"time"

	"github.com/luxfi/geth/common"
)

// MaxMeasurement is the largest value the encryption provider can encrypt.
// All measurements are encrypted as 32-bit unsigned integers.
const MaxMeasurement = math.MaxUint32

// NumFields is the number of encrypted fields per record.
const NumFields = 4

// Field indices within a record's handle array.
const (
	FieldHeight = iota
	FieldWeight
	FieldSystolic
	FieldDiastolic
)

// Measurements is one plaintext health reading. The canonical units are
// centimeters for height, grams for weight, and mmHg for blood pressure;
// unit conversion happens before this boundary, never after it.
type Measurements struct {
	HeightCm    uint64
	WeightGrams uint64
	Systolic    uint64
	Diastolic   uint64
}

// Validate checks that every measurement fits the provider's 32-bit width.
func (m Measurements) Validate() error {
	for _, f := range []struct {
		name  string
		value uint64
	}{
		{"height", m.HeightCm},
		{"weight", m.WeightGrams},
		{"systolic", m.Systolic},
		{"diastolic", m.Diastolic},
	} {
		if f.value > MaxMeasurement {
			return fmt.Errorf("%w: %s value %d exceeds 32-bit range", ErrValidation, f.name, f.value)
		}
	}
	return nil
}

// Values returns the measurements in field-index order.
func (m Measurements) Values() [NumFields]uint64 {
	return [NumFields]uint64{m.HeightCm, m.WeightGrams, m.Systolic, m.Diastolic}
}

// MeasurementsFromValues is the inverse of Values.
func MeasurementsFromValues(v [NumFields]uint64) Measurements {
	return Measurements{
		HeightCm:    v[FieldHeight],
		WeightGrams: v[FieldWeight],
		Systolic:    v[FieldSystolic],
		Diastolic:   v[FieldDiastolic],
	}
}

// StoredRecord is the ledger's view of one record: four ciphertext handles
// and the inclusion timestamp, keyed by (owner, index). Immutable once
// written; the index space is append-only per owner.
type StoredRecord struct {
	Owner     common.Address
	Index     uint64
	Handles   [NumFields]Handle
	Timestamp time.Time
}

// Verify checks the ledger-side invariants: four non-zero handles and a
// non-zero timestamp. A record failing this was never validly stored.
func (r *StoredRecord) Verify() error {
	for i, h := range r.Handles {
		if h.IsZero() {
			return fmt.Errorf("%w: record %d has zero handle at field %d", ErrValidation, r.Index, i)
		}
	}
	if r.Timestamp.IsZero() || r.Timestamp.Unix() == 0 {
		return fmt.Errorf("%w: record %d has zero timestamp", ErrValidation, r.Index)
	}
	return nil
}

// DecryptedRecord is a StoredRecord joined with its decrypted plaintext.
// It exists only in memory for display and is never written back.
type DecryptedRecord struct {
	Index        uint64
	Measurements Measurements
	Timestamp    time.Time
}
