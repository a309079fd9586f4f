// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledger submits encrypted records to the records contract and
// reads them back. Writes are all-or-nothing: either the full record (four
// handles plus the ledger-assigned timestamp) is durably stored, or
// nothing is.
package ledger

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
	"github.com/luxfi/geth/ethclient"
	"github.com/luxfi/log"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/cache"
	"github.com/luxfi/vitals/fhe"
	"github.com/luxfi/vitals/wallet"
)

const (
	// If the max base fee is not explicitly set, use 3x the current base
	// fee estimate to allow for an increase before inclusion.
	defaultBaseFeeFactor = 3

	defaultGasLimit           = 500_000
	defaultTxInclusionTimeout = 30 * time.Second
	defaultReceiptPollPeriod  = 500 * time.Millisecond
	defaultRPCTimeout         = 10 * time.Second
	defaultCountTTL           = 10 * time.Second
	defaultRecordCacheSize    = 1024
)

// Backend is the subset of the ethclient interface the ledger client uses,
// wrapped for mocking purposes.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Options tune the client. The zero value selects defaults.
type Options struct {
	GasLimit             uint64
	MaxBaseFee           *big.Int
	MaxPriorityFeePerGas *big.Int
	TxInclusionTimeout   time.Duration
	CountTTL             time.Duration
	RecordCacheSize      int
}

func (o Options) withDefaults() Options {
	if o.GasLimit == 0 {
		o.GasLimit = defaultGasLimit
	}
	if o.TxInclusionTimeout == 0 {
		o.TxInclusionTimeout = defaultTxInclusionTimeout
	}
	if o.CountTTL == 0 {
		o.CountTTL = defaultCountTTL
	}
	if o.RecordCacheSize == 0 {
		o.RecordCacheSize = defaultRecordCacheSize
	}
	return o
}

type recordKey struct {
	owner common.Address
	index uint64
}

func (k recordKey) String() string {
	return fmt.Sprintf("%s/%d", k.owner, k.index)
}

// Confirmation reports a durably stored record: the creation event's index
// and ledger-assigned timestamp, plus the including transaction.
type Confirmation struct {
	TxHash    common.Hash
	Index     uint64
	Timestamp time.Time
}

// Client talks to the records contract for one wallet.
type Client struct {
	client               Backend
	wallet               wallet.Wallet
	contract             common.Address
	evmChainID           *big.Int
	nonceLock            *sync.Mutex
	currentNonce         uint64
	gasLimit             uint64
	maxBaseFee           *big.Int
	maxPriorityFeePerGas *big.Int
	txInclusionTimeout   time.Duration
	logger               log.Logger

	// Per-owner counts grow as records are appended, so they expire;
	// records themselves are immutable once written, so they never do.
	counts  *cache.TTLCache[common.Address, uint64]
	records *cache.LRUCache[recordKey, vitals.StoredRecord]
}

// NewClient wires a ledger client over an existing backend.
func NewClient(
	logger log.Logger,
	client Backend,
	w wallet.Wallet,
	contract common.Address,
	opts Options,
) (*Client, error) {
	opts = opts.withDefaults()

	ctx, cancel := context.WithTimeout(context.Background(), defaultRPCTimeout)
	defer cancel()

	evmChainID, err := client.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get chain ID from ledger endpoint: %w", err)
	}

	c := &Client{
		client:               client,
		wallet:               w,
		contract:             contract,
		evmChainID:           evmChainID,
		nonceLock:            new(sync.Mutex),
		gasLimit:             opts.GasLimit,
		maxBaseFee:           opts.MaxBaseFee,
		maxPriorityFeePerGas: opts.MaxPriorityFeePerGas,
		txInclusionTimeout:   opts.TxInclusionTimeout,
		logger:               logger,
		counts:               cache.NewTTLCache[common.Address, uint64](opts.CountTTL),
		records:              cache.NewLRUCache[recordKey, vitals.StoredRecord](opts.RecordCacheSize),
	}

	if w != nil {
		// Construct txs from the pending nonce to account for restarts
		// with long-pending txs in the mempool.
		pendingNonce, err := client.PendingNonceAt(ctx, w.Address())
		if err != nil {
			return nil, fmt.Errorf("failed to get pending nonce: %w", err)
		}
		c.currentNonce = pendingNonce
	}

	logger.Info(
		"initialized ledger client",
		log.Stringer("contract", contract),
		log.String("evmChainID", evmChainID.String()),
		log.Uint64("nonce", c.currentNonce),
	)

	return c, nil
}

// Dial connects to an RPC endpoint and wires a client over it.
func Dial(
	ctx context.Context,
	logger log.Logger,
	rpcURL string,
	w wallet.Wallet,
	contract common.Address,
	opts Options,
) (*Client, error) {
	ec, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc endpoint: %w", err)
	}
	return NewClient(logger, ec, w, contract, opts)
}

// Contract returns the records contract address.
func (c *Client) Contract() common.Address { return c.contract }

// ChainID returns the ledger chain ID.
func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.evmChainID) }

// Submit sends one record's submission as a single addRecord transaction
// and blocks until the ledger confirms inclusion. The submission must have
// been produced for this client's contract and wallet; a stale proof from a
// failed attempt must not be resubmitted, so failure recovery re-encrypts.
func (c *Client) Submit(ctx context.Context, sub *fhe.Submission) (*Confirmation, error) {
	if c.wallet == nil {
		return nil, fmt.Errorf("%w: ledger client has no wallet", vitals.ErrSignerUnavailable)
	}
	if err := sub.Verify(); err != nil {
		return nil, err
	}
	handles, err := sub.RecordHandles()
	if err != nil {
		return nil, err
	}
	if sub.Contract != c.contract {
		return nil, fmt.Errorf(
			"%w: submission scoped to contract %s, client bound to %s",
			vitals.ErrValidation, sub.Contract, c.contract,
		)
	}
	owner := c.wallet.Address()
	if sub.Owner != owner {
		return nil, fmt.Errorf(
			"%w: submission scoped to owner %s, wallet is %s",
			vitals.ErrValidation, sub.Owner, owner,
		)
	}

	callData, err := recordsABI.Pack(
		"addRecord",
		[32]byte(handles[vitals.FieldHeight]),
		[32]byte(handles[vitals.FieldWeight]),
		[32]byte(handles[vitals.FieldSystolic]),
		[32]byte(handles[vitals.FieldDiastolic]),
		sub.Proof,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to pack addRecord call: %w", err)
	}

	gasFeeCap, gasTipCap, err := c.suggestFees(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vitals.ErrSubmissionFailed, err)
	}

	// Synchronize nonce access so transactions go out in nonce order.
	c.nonceLock.Lock()
	nonce := c.currentNonce
	tx := types.NewTx(&types.DynamicFeeTx{
		ChainID:   c.evmChainID,
		Nonce:     nonce,
		To:        &c.contract,
		Gas:       c.gasLimit,
		GasFeeCap: gasFeeCap,
		GasTipCap: gasTipCap,
		Value:     big.NewInt(0),
		Data:      callData,
	})

	signedTx, err := c.wallet.SignTx(ctx, tx, c.evmChainID)
	if err != nil {
		c.nonceLock.Unlock()
		return nil, fmt.Errorf("%w: failed to sign transaction: %s", vitals.ErrSubmissionFailed, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	err = c.client.SendTransaction(sendCtx, signedTx)
	cancel()
	if err != nil {
		c.nonceLock.Unlock()
		return nil, fmt.Errorf("%w: %s", vitals.ErrSubmissionFailed, err)
	}
	c.currentNonce++
	c.nonceLock.Unlock()

	c.logger.Info(
		"sent record submission",
		log.Stringer("txID", signedTx.Hash()),
		log.Uint64("nonce", nonce),
	)

	receipt, err := c.waitForReceipt(ctx, signedTx.Hash())
	if err != nil {
		// Inclusion was not observed; the tx may still land. The caller
		// must confirm ledger state via RecordCount before retrying to
		// avoid duplicate records.
		return nil, fmt.Errorf(
			"%w: inclusion not confirmed for tx %s: %s",
			vitals.ErrSubmissionFailed, signedTx.Hash(), err,
		)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, fmt.Errorf(
			"%w: transaction %s reverted",
			vitals.ErrSubmissionFailed, signedTx.Hash(),
		)
	}

	ev, err := parseRecordAdded(receipt.Logs, c.contract, owner)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", vitals.ErrSubmissionFailed, err)
	}

	// The owner's count changed; drop the cached value eagerly.
	c.counts.Get(owner, func(common.Address) (uint64, error) {
		return ev.Index.Uint64() + 1, nil
	}, true)

	c.logger.Info(
		"record stored",
		log.Stringer("txID", signedTx.Hash()),
		log.Uint64("index", ev.Index.Uint64()),
		log.Uint64("timestamp", ev.Timestamp.Uint64()),
	)

	return &Confirmation{
		TxHash:    signedTx.Hash(),
		Index:     ev.Index.Uint64(),
		Timestamp: time.Unix(ev.Timestamp.Int64(), 0),
	}, nil
}

// suggestFees computes the EIP-1559 fee caps: max base fee (configured, or
// 3x the current estimate) plus the capped suggested tip.
func (c *Client) suggestFees(ctx context.Context) (gasFeeCap, gasTipCap *big.Int, err error) {
	maxBaseFee := c.maxBaseFee
	if maxBaseFee == nil || maxBaseFee.Sign() <= 0 {
		headerCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
		header, err := c.client.HeaderByNumber(headerCtx, nil)
		cancel()
		if err != nil {
			return nil, nil, fmt.Errorf("failed to get head header: %w", err)
		}
		if header.BaseFee == nil {
			return nil, nil, fmt.Errorf("ledger chain does not report a base fee")
		}
		maxBaseFee = new(big.Int).Mul(header.BaseFee, big.NewInt(defaultBaseFeeFactor))
	}

	tipCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	gasTipCap, err = c.client.SuggestGasTipCap(tipCtx)
	cancel()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to get gas tip cap: %w", err)
	}
	if c.maxPriorityFeePerGas != nil && gasTipCap.Cmp(c.maxPriorityFeePerGas) > 0 {
		gasTipCap = c.maxPriorityFeePerGas
	}

	return new(big.Int).Add(maxBaseFee, gasTipCap), gasTipCap, nil
}

func (c *Client) waitForReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.txInclusionTimeout)
	defer cancel()

	ticker := time.NewTicker(defaultReceiptPollPeriod)
	defer ticker.Stop()

	for {
		callCtx, callCancel := context.WithTimeout(ctx, defaultRPCTimeout)
		receipt, err := c.client.TransactionReceipt(callCtx, txHash)
		callCancel()
		if err == nil {
			return receipt, nil
		}

		c.logger.Debug(
			"waiting for transaction receipt",
			log.Stringer("txID", txHash),
			log.Err(err),
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}
