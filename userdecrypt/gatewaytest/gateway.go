// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package gatewaytest is an in-process decryption gateway for tests. It
// performs the real service-side checks -- signature recovery over the
// typed authorization message, validity-window enforcement, contract-scope
// enforcement -- against an fhe.MemoryStore, and seals plaintexts to the
// session public key exactly as a production gateway would.
package gatewaytest

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/luxfi/crypto"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/fhe"
	"github.com/luxfi/vitals/grant"
	"github.com/luxfi/vitals/userdecrypt"
)

// Gateway is an http.Handler serving the encryption-input and
// user-decryption endpoints over one shared ciphertext store.
type Gateway struct {
	store    *fhe.MemoryStore
	provider *fhe.MemoryProvider
	chainID  *big.Int
	keypair  *grant.Keypair

	lock sync.Mutex
	now  func() time.Time
	down bool
}

// New creates a gateway over the given ciphertext store.
func New(store *fhe.MemoryStore, chainID *big.Int) (*Gateway, error) {
	keypair, err := grant.GenerateKeypair()
	if err != nil {
		return nil, err
	}
	return &Gateway{
		store:    store,
		provider: fhe.NewMemoryProvider(store),
		chainID:  chainID,
		keypair:  keypair,
		now:      time.Now,
	}, nil
}

// SetClock pins the gateway's wall clock.
func (g *Gateway) SetClock(now func() time.Time) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.now = now
}

// SetUnavailable toggles simulated outage: requests fail with 503.
func (g *Gateway) SetUnavailable(down bool) {
	g.lock.Lock()
	defer g.lock.Unlock()
	g.down = down
}

// ServeHTTP implements http.Handler.
func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	g.lock.Lock()
	down := g.down
	g.lock.Unlock()

	switch {
	case r.Method == http.MethodGet && r.URL.Path == fhe.HealthPath:
		if down {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	case r.Method == http.MethodPost && r.URL.Path == fhe.EncryptPath:
		if down {
			writeError(w, http.StatusServiceUnavailable, vitals.CodeUnavailable, "gateway offline")
			return
		}
		g.serveEncrypt(w, r)
	case r.Method == http.MethodPost && r.URL.Path == userdecrypt.APIPath:
		if down {
			writeError(w, http.StatusServiceUnavailable, vitals.CodeUnavailable, "gateway offline")
			return
		}
		g.serveUserDecrypt(w, r)
	default:
		http.NotFound(w, r)
	}
}

// serveEncrypt encrypts one input buffer through the in-memory provider
// and returns the handles and proof, mirroring the provider service's
// atomic contract.
func (g *Gateway) serveEncrypt(w http.ResponseWriter, r *http.Request) {
	var req fhe.EncryptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, vitals.CodeValidation, fmt.Sprintf("bad request body: %s", err))
		return
	}

	in := g.provider.CreateEncryptedInput(
		common.HexToAddress(req.ContractAddress),
		common.HexToAddress(req.OwnerAddress),
	)
	for _, v := range req.Values {
		if err := in.Add32(v); err != nil {
			writeError(w, http.StatusBadRequest, vitals.CodeValidation, err.Error())
			return
		}
	}
	sub, err := in.Encrypt(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, vitals.CodeUnavailable, err.Error())
		return
	}

	handles := make([]string, len(sub.Handles))
	for i, h := range sub.Handles {
		handles[i] = h.Hex()
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(fhe.EncryptResponse{
		Handles: handles,
		Proof:   hexutil.Encode(sub.Proof),
	})
}

func (g *Gateway) serveUserDecrypt(w http.ResponseWriter, r *http.Request) {
	g.lock.Lock()
	now := g.now()
	g.lock.Unlock()

	var req userdecrypt.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, vitals.CodeValidation, fmt.Sprintf("bad request body: %s", err))
		return
	}

	reconstructed, owner, err := reconstructGrant(&req)
	if err != nil {
		writeError(w, http.StatusBadRequest, vitals.CodeValidation, err.Error())
		return
	}

	if !reconstructed.ValidAt(now) {
		writeError(w, http.StatusForbidden, vitals.CodeAuthorizationExpired, "grant validity window does not cover the current time")
		return
	}

	if err := g.verifySignature(reconstructed, owner, req.Signature); err != nil {
		writeError(w, http.StatusUnauthorized, vitals.CodeUnauthorized, err.Error())
		return
	}

	results := make([]userdecrypt.SealedResult, 0, len(req.HandleContractPairs))
	for _, pair := range req.HandleContractPairs {
		handle, err := vitals.ParseHandle(pair.Handle)
		if err != nil {
			writeError(w, http.StatusBadRequest, vitals.CodeValidation, err.Error())
			return
		}
		pairContract := common.HexToAddress(pair.ContractAddress)
		if !reconstructed.Covers(pairContract) {
			writeError(w, http.StatusForbidden, vitals.CodeUnauthorized,
				fmt.Sprintf("contract %s is not in the authorized set", pairContract))
			return
		}

		ct, ok := g.store.Lookup(handle)
		if !ok {
			// Unknown handle: omit from the results rather than invent a
			// value. The client treats absence as a per-field failure.
			continue
		}
		if ct.Contract != pairContract {
			writeError(w, http.StatusForbidden, vitals.CodeUnauthorized,
				fmt.Sprintf("handle %s does not belong to contract %s", handle, pairContract))
			return
		}
		if ct.Owner != owner {
			writeError(w, http.StatusForbidden, vitals.CodeUnauthorized,
				fmt.Sprintf("handle %s is not accessible to %s", handle, owner))
			return
		}

		var plaintext [8]byte
		binary.BigEndian.PutUint64(plaintext[:], ct.Value)
		sealed, err := grant.Seal(plaintext[:], reconstructed.PublicKey, g.keypair.PrivateKeyRef())
		if err != nil {
			writeError(w, http.StatusInternalServerError, vitals.CodeUnavailable, err.Error())
			return
		}
		results = append(results, userdecrypt.SealedResult{
			Handle:      handle.Hex(),
			SealedValue: hexutil.Encode(sealed),
		})
	}

	pub := g.keypair.PublicKey()
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(userdecrypt.Response{
		GatewayPublicKey: hexutil.Encode(pub[:]),
		Results:          results,
	})
}

func reconstructGrant(req *userdecrypt.Request) (*grant.Grant, common.Address, error) {
	pubBytes, err := hexutil.Decode(req.PublicKey)
	if err != nil || len(pubBytes) != grant.KeyLen {
		return nil, common.Address{}, fmt.Errorf("bad session public key")
	}
	var pub [grant.KeyLen]byte
	copy(pub[:], pubBytes)

	contracts := make([]common.Address, len(req.ContractAddresses))
	for i, c := range req.ContractAddresses {
		contracts[i] = common.HexToAddress(c)
	}

	g := &grant.Grant{
		PublicKey: pub,
		Contracts: contracts,
		StartTime: time.Unix(req.StartTimestamp, 0),
		Duration:  time.Duration(req.DurationSeconds) * time.Second,
	}
	if err := g.Verify(); err != nil {
		return nil, common.Address{}, err
	}
	return g, common.HexToAddress(req.Owner), nil
}

// verifySignature recovers the signer of the typed authorization message
// and requires it to be the claimed owner.
func (g *Gateway) verifySignature(reconstructed *grant.Grant, owner common.Address, sigHex string) error {
	sig, err := hexutil.Decode("0x" + strings.TrimPrefix(sigHex, "0x"))
	if err != nil {
		return fmt.Errorf("bad signature encoding")
	}
	if len(sig) != crypto.SignatureLength {
		return fmt.Errorf("signature must be %d bytes", crypto.SignatureLength)
	}

	digest, err := grant.Hash(reconstructed, g.chainID)
	if err != nil {
		return fmt.Errorf("failed to hash authorization message: %s", err)
	}

	recoverSig := make([]byte, crypto.SignatureLength)
	copy(recoverSig, sig)
	if recoverSig[64] >= 27 {
		recoverSig[64] -= 27
	}
	recovered, err := crypto.SigToPub(digest, recoverSig)
	if err != nil {
		return fmt.Errorf("failed to recover signer")
	}
	if common.PubkeyToAddress(*recovered) != owner {
		return fmt.Errorf("signature does not match the claimed owner")
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, code int32, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(userdecrypt.ErrorResponse{Code: code, Error: msg})
}
