// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package vitals

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/luxfi/geth/common"
)

// HandleLen is the length of a ciphertext handle in bytes.
const HandleLen = 32

// Handle is an opaque fixed-width reference to one encrypted value held by
// the encryption provider. A handle is not itself sensitive: without the
// provider and a matching authorization it reveals nothing.
type Handle [HandleLen]byte

// ParseHandle parses a handle from a hex string, optionally 0x-prefixed.
func ParseHandle(s string) (Handle, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return Handle{}, fmt.Errorf("%w: invalid handle hex: %s", ErrValidation, err)
	}
	if len(b) != HandleLen {
		return Handle{}, fmt.Errorf("%w: handle must be %d bytes, got %d", ErrValidation, HandleLen, len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}

// HandleFromBytes converts a byte slice to a handle.
func HandleFromBytes(b []byte) (Handle, error) {
	if len(b) != HandleLen {
		return Handle{}, fmt.Errorf("%w: handle must be %d bytes, got %d", ErrValidation, HandleLen, len(b))
	}
	var h Handle
	copy(h[:], b)
	return h, nil
}

// Hex returns the 0x-prefixed hex encoding of the handle. This is the
// canonical key format used by the decryption gateway's result mapping.
func (h Handle) Hex() string {
	return "0x" + hex.EncodeToString(h[:])
}

// String implements fmt.Stringer.
func (h Handle) String() string {
	return h.Hex()
}

// Hash returns the handle as a common.Hash for ABI encoding.
func (h Handle) Hash() common.Hash {
	return common.Hash(h)
}

// IsZero reports whether the handle is the zero value. The ledger never
// returns a zero handle for a stored record.
func (h Handle) IsZero() bool {
	return h == Handle{}
}
