// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package grant

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/ids"
	"golang.org/x/crypto/nacl/box"
)

// KeyLen is the length of an X25519 key in bytes.
const KeyLen = 32

var errKeyDiscarded = errors.New("ephemeral private key already discarded")

// Keypair is a single-session X25519 pair. The decryption gateway seals
// plaintexts to the public half; only the holder of the private half can
// open them. A keypair is generated fresh per decryption session, never
// persisted, and never reused across sessions.
type Keypair struct {
	public  [KeyLen]byte
	private *[KeyLen]byte
}

// GenerateKeypair creates a fresh session keypair.
func GenerateKeypair() (*Keypair, error) {
	pub, priv, err := box.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate session keypair: %w", err)
	}
	return &Keypair{public: *pub, private: priv}, nil
}

// PublicKey returns the public half.
func (k *Keypair) PublicKey() [KeyLen]byte {
	return k.public
}

// PublicKeyHex returns the 0x-prefixed hex public key as it appears in the
// signed authorization message.
func (k *Keypair) PublicKeyHex() string {
	return hexutil.Encode(k.public[:])
}

// PrivateKeyRef exposes the private half for box operations performed on
// behalf of this keypair, or nil after Zero.
func (k *Keypair) PrivateKeyRef() *[KeyLen]byte {
	return k.private
}

// SessionID is a stable identifier for the keypair's session, derived from
// the public key. Used only for log correlation.
func (k *Keypair) SessionID() ids.ID {
	return ids.ID(sha256.Sum256(k.public[:]))
}

// Open opens a sealed box produced for this keypair's public key by the
// holder of peerPublic. The box is expected in [24-byte nonce || sealed]
// form.
func (k *Keypair) Open(sealed []byte, peerPublic [KeyLen]byte) ([]byte, error) {
	if k.private == nil {
		return nil, errKeyDiscarded
	}
	if len(sealed) < 24 {
		return nil, errors.New("sealed box too short")
	}
	var nonce [24]byte
	copy(nonce[:], sealed[:24])
	plaintext, ok := box.Open(nil, sealed[24:], &nonce, &peerPublic, k.private)
	if !ok {
		return nil, errors.New("failed to open sealed box")
	}
	return plaintext, nil
}

// Zero wipes and discards the private half. Called when the decryption
// session ends; any later Open fails.
func (k *Keypair) Zero() {
	if k.private == nil {
		return
	}
	for i := range k.private {
		k.private[i] = 0
	}
	k.private = nil
}

// Seal seals plaintext to a recipient public key, prefixing the random
// nonce. The gateway side of the exchange; exported so the in-process test
// gateway produces wire-identical boxes.
func Seal(plaintext []byte, recipientPublic [KeyLen]byte, senderPrivate *[KeyLen]byte) ([]byte, error) {
	var nonce [24]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return box.Seal(nonce[:], plaintext, &nonce, &recipientPublic, senderPrivate), nil
}
