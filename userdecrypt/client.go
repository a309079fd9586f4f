// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package userdecrypt is the client for the decryption gateway: it presents
// a signed, time-bounded authorization together with a batch of ciphertext
// handles and returns the plaintexts, sealed to the session's ephemeral
// public key so only the session holder can read them. Batching matters
// because each gateway round trip is costly and every stored record needs
// four handles decrypted together.
package userdecrypt

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/grant"
)

// APIPath is the gateway's user-decryption endpoint.
const APIPath = "/v1/user-decrypt"

const defaultRequestTimeout = 30 * time.Second

// HandlePair is one ciphertext handle together with its owning contract.
// The gateway authorizes each pair against the grant's contract set.
type HandlePair struct {
	Handle   vitals.Handle
	Contract common.Address
}

// RecordPairs expands a stored record into its four handle/contract pairs.
func RecordPairs(record *vitals.StoredRecord, contract common.Address) []HandlePair {
	pairs := make([]HandlePair, vitals.NumFields)
	for i, h := range record.Handles {
		pairs[i] = HandlePair{Handle: h, Contract: contract}
	}
	return pairs
}

// Request is the gateway wire request.
type Request struct {
	HandleContractPairs []RequestPair `json:"handle-contract-pairs"`
	PublicKey           string        `json:"public-key"`
	// hex-encoded signature over the UserDecryptRequestVerification typed
	// message, without 0x prefix.
	Signature         string   `json:"signature"`
	ContractAddresses []string `json:"contract-addresses"`
	Owner             string   `json:"owner"`
	StartTimestamp    int64    `json:"start-timestamp"`
	DurationSeconds   int64    `json:"duration-seconds"`
}

// RequestPair is one handle/contract pair on the wire.
type RequestPair struct {
	Handle          string `json:"handle"`
	ContractAddress string `json:"contract-address"`
}

// Response is the gateway wire response. Each plaintext comes back sealed
// to the session public key; the gateway never returns raw plaintext.
type Response struct {
	// hex encoding of the gateway's X25519 public key used for sealing.
	GatewayPublicKey string         `json:"gateway-public-key"`
	Results          []SealedResult `json:"results"`
}

// SealedResult is one decrypted value, sealed.
type SealedResult struct {
	Handle string `json:"handle"`
	// hex encoding of [nonce || box] sealed to the session public key.
	SealedValue string `json:"sealed-value"`
}

// ErrorResponse is the gateway error body.
type ErrorResponse struct {
	Code  int32  `json:"code"`
	Error string `json:"error"`
}

// Result maps a handle's canonical hex form to its plaintext. A handle
// absent from the map failed to decrypt; absence is never zero.
type Result map[string]uint64

// Value looks up the plaintext for a handle.
func (r Result) Value(h vitals.Handle) (uint64, bool) {
	v, ok := r[h.Hex()]
	return v, ok
}

// Join reconstitutes a record's plaintext measurements from the result. A
// handle missing from the result is a decryption failure for that field.
func (r Result) Join(record *vitals.StoredRecord) (*vitals.DecryptedRecord, error) {
	var values [vitals.NumFields]uint64
	for i, h := range record.Handles {
		v, ok := r.Value(h)
		if !ok {
			return nil, fmt.Errorf(
				"%w: no decryption result for record %d field %d handle %s",
				vitals.ErrDecryptionUnavailable, record.Index, i, h,
			)
		}
		values[i] = v
	}
	return &vitals.DecryptedRecord{
		Index:        record.Index,
		Measurements: vitals.MeasurementsFromValues(values),
		Timestamp:    record.Timestamp,
	}, nil
}

// Client calls the decryption gateway.
type Client struct {
	logger     log.Logger
	baseURL    string
	httpClient *http.Client

	// now is swapped in tests to pin expiry checks.
	now func() time.Time
}

// NewClient returns a gateway client for baseURL.
func NewClient(logger log.Logger, baseURL string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &Client{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: httpClient,
		now:        time.Now,
	}
}

// WithClock overrides the wall clock. Test hook.
func (c *Client) WithClock(now func() time.Time) *Client {
	c.now = now
	return c
}

// Decrypt sends the handle/contract pairs under one signed grant and
// returns the plaintext mapping. All pairs must belong to contracts the
// grant covers and the grant must be current; both are checked before the
// network call so a doomed request never leaves the client. Plaintexts are
// never cached.
func (c *Client) Decrypt(
	ctx context.Context,
	pairs []HandlePair,
	signed *grant.SignedGrant,
) (Result, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("%w: no handles to decrypt", vitals.ErrValidation)
	}
	if len(signed.Signature) == 0 {
		return nil, fmt.Errorf("%w: grant is unsigned", vitals.ErrUnauthorized)
	}
	if err := signed.CheckCurrent(c.now()); err != nil {
		return nil, err
	}
	for _, p := range pairs {
		if !signed.Grant.Covers(p.Contract) {
			return nil, fmt.Errorf(
				"%w: handle %s belongs to contract %s outside the grant scope",
				vitals.ErrUnauthorized, p.Handle, p.Contract,
			)
		}
	}

	resp, err := c.post(ctx, buildRequest(pairs, signed))
	if err != nil {
		return nil, err
	}

	gatewayPub, err := parseKey(resp.GatewayPublicKey)
	if err != nil {
		return nil, fmt.Errorf("%w: bad gateway public key: %s", vitals.ErrDecryptionUnavailable, err)
	}

	result := make(Result, len(resp.Results))
	for _, sealed := range resp.Results {
		handle, err := vitals.ParseHandle(sealed.Handle)
		if err != nil {
			return nil, fmt.Errorf("%w: bad handle in gateway response: %s", vitals.ErrDecryptionUnavailable, err)
		}
		sealedValue, err := hexutil.Decode(sealed.SealedValue)
		if err != nil {
			return nil, fmt.Errorf("%w: bad sealed value for %s: %s", vitals.ErrDecryptionUnavailable, handle, err)
		}
		plaintext, err := signed.Keypair.Open(sealedValue, gatewayPub)
		if err != nil {
			return nil, fmt.Errorf("%w: failed to open sealed value for %s: %s", vitals.ErrDecryptionUnavailable, handle, err)
		}
		if len(plaintext) != 8 {
			return nil, fmt.Errorf("%w: unexpected plaintext width %d for %s", vitals.ErrDecryptionUnavailable, len(plaintext), handle)
		}
		result[handle.Hex()] = binary.BigEndian.Uint64(plaintext)
	}

	c.logger.Debug(
		"batch decryption complete",
		log.Stringer("sessionID", signed.Keypair.SessionID()),
		log.Int("requested", len(pairs)),
		log.Int("decrypted", len(result)),
	)

	return result, nil
}

func buildRequest(pairs []HandlePair, signed *grant.SignedGrant) *Request {
	reqPairs := make([]RequestPair, len(pairs))
	for i, p := range pairs {
		reqPairs[i] = RequestPair{
			Handle:          p.Handle.Hex(),
			ContractAddress: p.Contract.Hex(),
		}
	}
	contracts := make([]string, len(signed.Grant.Contracts))
	for i, c := range signed.Grant.Contracts {
		contracts[i] = c.Hex()
	}
	pub := signed.Grant.PublicKey
	return &Request{
		HandleContractPairs: reqPairs,
		PublicKey:           hexutil.Encode(pub[:]),
		Signature:           hexutil.Encode(signed.Signature)[2:],
		ContractAddresses:   contracts,
		Owner:               signed.Owner.Hex(),
		StartTimestamp:      signed.Grant.StartTime.Unix(),
		DurationSeconds:     int64(signed.Grant.Duration / time.Second),
	}
}

func (c *Client) post(ctx context.Context, req *Request) (*Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decryption request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+APIPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build decryption request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vitals.ErrDecryptionUnavailable, err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if decodeErr := json.NewDecoder(httpResp.Body).Decode(&errResp); decodeErr == nil && errResp.Code != 0 {
			return nil, &vitals.Error{Code: errResp.Code, Message: errResp.Error}
		}
		switch {
		case httpResp.StatusCode == http.StatusUnauthorized || httpResp.StatusCode == http.StatusForbidden:
			return nil, fmt.Errorf("%w: gateway returned status %d", vitals.ErrUnauthorized, httpResp.StatusCode)
		default:
			return nil, fmt.Errorf("%w: gateway returned status %d", vitals.ErrDecryptionUnavailable, httpResp.StatusCode)
		}
	}

	var resp Response
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("%w: failed to decode gateway response: %s", vitals.ErrDecryptionUnavailable, err)
	}
	return &resp, nil
}

func parseKey(s string) ([grant.KeyLen]byte, error) {
	var key [grant.KeyLen]byte
	b, err := hexutil.Decode(s)
	if err != nil {
		return key, err
	}
	if len(b) != grant.KeyLen {
		return key, fmt.Errorf("key must be %d bytes, got %d", grant.KeyLen, len(b))
	}
	copy(key[:], b)
	return key, nil
}
