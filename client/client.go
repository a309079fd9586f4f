// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package client wires the full protocol: the write path (plaintext ->
// encrypted input -> ledger submission) and the read path (stored handles
// -> signed authorization -> batch decryption -> plaintext join). All
// collaborators are passed in explicitly; there is no ambient provider or
// wallet state.
package client

import (
	"context"
	"fmt"
	"time"

	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/fhe"
	"github.com/luxfi/vitals/grant"
	"github.com/luxfi/vitals/ledger"
	"github.com/luxfi/vitals/userdecrypt"
	"github.com/luxfi/vitals/wallet"
)

// Client is the owner-facing protocol client.
type Client struct {
	logger        log.Logger
	provider      fhe.Provider
	ledger        *ledger.Client
	authorizer    *grant.Authorizer
	decryptor     *userdecrypt.Client
	wallet        wallet.Wallet
	grantDuration time.Duration
}

// New assembles a client. A non-positive grantDuration selects the default
// ten-day window.
func New(
	logger log.Logger,
	provider fhe.Provider,
	ledgerClient *ledger.Client,
	decryptor *userdecrypt.Client,
	w wallet.Wallet,
	grantDuration time.Duration,
) *Client {
	return &Client{
		logger:        logger,
		provider:      provider,
		ledger:        ledgerClient,
		authorizer:    grant.NewAuthorizer(logger, ledgerClient.ChainID(), w),
		decryptor:     decryptor,
		wallet:        w,
		grantDuration: grantDuration,
	}
}

// Authorizer exposes the client's grant builder, mainly for tests that pin
// its clock.
func (c *Client) Authorizer() *grant.Authorizer { return c.authorizer }

// Owner returns the wallet address records are stored under.
func (c *Client) Owner() common.Address {
	return c.wallet.Address()
}

// AddRecord encrypts one reading and submits it as a single ledger
// transaction. Plaintext exists only for the duration of this call. On
// submission failure the encryption is discarded; retrying re-encrypts
// because proofs are single-use.
func (c *Client) AddRecord(ctx context.Context, m vitals.Measurements) (*ledger.Confirmation, error) {
	sub, err := fhe.EncryptMeasurements(ctx, c.provider, c.ledger.Contract(), c.Owner(), m)
	if err != nil {
		return nil, err
	}
	conf, err := c.ledger.Submit(ctx, sub)
	if err != nil {
		return nil, err
	}
	c.logger.Info(
		"health record stored",
		log.Uint64("index", conf.Index),
		log.Stringer("txID", conf.TxHash),
	)
	return conf, nil
}

// RecordCount returns the owner's record count.
func (c *Client) RecordCount(ctx context.Context) (uint64, error) {
	return c.ledger.RecordCount(ctx, c.Owner())
}

// Records returns the owner's stored records, oldest first.
func (c *Client) Records(ctx context.Context) ([]vitals.StoredRecord, error) {
	return c.ledger.Records(ctx, c.Owner())
}

// Timestamps returns the owner's record timestamps without decrypting.
func (c *Client) Timestamps(ctx context.Context) ([]time.Time, error) {
	return c.ledger.Timestamps(ctx, c.Owner())
}

// DecryptRecords runs one decryption session over the given records: one
// fresh keypair, one signed grant, one batched gateway call covering every
// record's four handles. The session's key material is discarded before
// returning, whatever the outcome.
func (c *Client) DecryptRecords(ctx context.Context, records []vitals.StoredRecord) ([]vitals.DecryptedRecord, error) {
	if len(records) == 0 {
		return nil, nil
	}

	signed, err := c.authorizer.Authorize(ctx, []common.Address{c.ledger.Contract()}, c.grantDuration)
	if err != nil {
		return nil, err
	}
	defer signed.Close()

	pairs := make([]userdecrypt.HandlePair, 0, len(records)*vitals.NumFields)
	for i := range records {
		pairs = append(pairs, userdecrypt.RecordPairs(&records[i], c.ledger.Contract())...)
	}

	result, err := c.decryptor.Decrypt(ctx, pairs, signed)
	if err != nil {
		return nil, err
	}

	decrypted := make([]vitals.DecryptedRecord, 0, len(records))
	for i := range records {
		rec, err := result.Join(&records[i])
		if err != nil {
			return nil, err
		}
		decrypted = append(decrypted, *rec)
	}
	return decrypted, nil
}

// DecryptAll fetches and decrypts every record the owner has stored.
func (c *Client) DecryptAll(ctx context.Context) ([]vitals.DecryptedRecord, error) {
	records, err := c.Records(ctx)
	if err != nil {
		return nil, err
	}
	decrypted, err := c.DecryptRecords(ctx, records)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt %d records: %w", len(records), err)
	}
	return decrypted, nil
}
