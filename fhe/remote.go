// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package fhe

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/common/hexutil"
	"github.com/luxfi/log"

	"github.com/luxfi/vitals"
)

// Gateway endpoints served by the encryption provider.
const (
	EncryptPath = "/v1/encrypt-input"
	HealthPath  = "/v1/health"
)

const defaultRequestTimeout = 30 * time.Second

// EncryptRequest is the provider wire request: one input buffer's worth of
// values, scoped to a (contract, owner) pair.
type EncryptRequest struct {
	ContractAddress string   `json:"contract-address"`
	OwnerAddress    string   `json:"owner-address"`
	Values          []uint64 `json:"values"`
}

// EncryptResponse is the provider wire response: all handles and the proof,
// produced atomically.
type EncryptResponse struct {
	Handles []string `json:"handles"`
	Proof   string   `json:"proof"`
}

// ErrorResponse is the provider error body.
type ErrorResponse struct {
	Error string `json:"error"`
}

var _ Provider = (*RemoteProvider)(nil)

// RemoteProvider talks to an encryption provider service over HTTP. One
// Encrypt call on a buffer is one round trip yielding every handle and the
// proof together; no network call happens before that.
type RemoteProvider struct {
	logger     log.Logger
	baseURL    string
	httpClient *http.Client
}

// NewRemoteProvider returns a provider client for baseURL.
func NewRemoteProvider(logger log.Logger, baseURL string, httpClient *http.Client) *RemoteProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultRequestTimeout}
	}
	return &RemoteProvider{
		logger:     logger,
		baseURL:    baseURL,
		httpClient: httpClient,
	}
}

// Ready implements Provider.
func (p *RemoteProvider) Ready(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.baseURL+HealthPath, nil)
	if err != nil {
		return err
	}
	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("provider health check returned status %d", resp.StatusCode)
	}
	return nil
}

// CreateEncryptedInput implements Provider.
func (p *RemoteProvider) CreateEncryptedInput(contract, owner common.Address) *EncryptedInput {
	return NewEncryptedInput(contract, owner, p.encrypt)
}

func (p *RemoteProvider) encrypt(ctx context.Context, in *EncryptedInput) (*Submission, error) {
	body, err := json.Marshal(&EncryptRequest{
		ContractAddress: in.Contract().Hex(),
		OwnerAddress:    in.Owner().Hex(),
		Values:          in.Values(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal encrypt request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+EncryptPath, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to build encrypt request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	httpResp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if decodeErr := json.NewDecoder(httpResp.Body).Decode(&errResp); decodeErr == nil && errResp.Error != "" {
			return nil, fmt.Errorf("provider rejected encryption: %s", errResp.Error)
		}
		return nil, fmt.Errorf("provider returned status %d", httpResp.StatusCode)
	}

	var resp EncryptResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode encrypt response: %w", err)
	}

	handles := make([]vitals.Handle, len(resp.Handles))
	for i, h := range resp.Handles {
		parsed, err := vitals.ParseHandle(h)
		if err != nil {
			return nil, fmt.Errorf("bad handle in encrypt response: %w", err)
		}
		handles[i] = parsed
	}
	proof, err := hexutil.Decode(resp.Proof)
	if err != nil {
		return nil, fmt.Errorf("bad proof in encrypt response: %w", err)
	}

	p.logger.Debug(
		"encrypted input buffer",
		log.Stringer("contract", in.Contract()),
		log.Stringer("owner", in.Owner()),
		log.Int("numValues", len(in.Values())),
	)

	return &Submission{
		Contract: in.Contract(),
		Owner:    in.Owner(),
		Handles:  handles,
		Proof:    proof,
	}, nil
}
