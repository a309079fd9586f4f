// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package ledgertest provides an in-memory simulation of the records
// contract behind the ledger.Backend interface, for tests that exercise
// the submission and fetch paths without a chain.
package ledgertest

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// The simulator owns its copy of the contract surface; it plays the
// contract, not the client.
const contractABIJSON = `[
	{
		"type": "function",
		"name": "addRecord",
		"stateMutability": "nonpayable",
		"inputs": [
			{"name": "encHeight", "type": "bytes32"},
			{"name": "encWeight", "type": "bytes32"},
			{"name": "encSystolic", "type": "bytes32"},
			{"name": "encDiastolic", "type": "bytes32"},
			{"name": "inputProof", "type": "bytes"}
		],
		"outputs": []
	},
	{
		"type": "function",
		"name": "getRecordCount",
		"stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "", "type": "uint256"}]
	},
	{
		"type": "function",
		"name": "getRecord",
		"stateMutability": "view",
		"inputs": [
			{"name": "owner", "type": "address"},
			{"name": "index", "type": "uint256"}
		],
		"outputs": [
			{"name": "encHeight", "type": "bytes32"},
			{"name": "encWeight", "type": "bytes32"},
			{"name": "encSystolic", "type": "bytes32"},
			{"name": "encDiastolic", "type": "bytes32"},
			{"name": "timestamp", "type": "uint256"}
		]
	},
	{
		"type": "function",
		"name": "getRecordTimestamps",
		"stateMutability": "view",
		"inputs": [{"name": "owner", "type": "address"}],
		"outputs": [{"name": "timestamps", "type": "uint256[]"}]
	},
	{
		"type": "event",
		"name": "RecordAdded",
		"inputs": [
			{"name": "owner", "type": "address", "indexed": true},
			{"name": "index", "type": "uint256", "indexed": false},
			{"name": "timestamp", "type": "uint256", "indexed": false}
		],
		"anonymous": false
	}
]`

var contractABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(contractABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid contract ABI: %s", err))
	}
	return parsed
}()

const numHandles = 4

type row struct {
	handles   [numHandles][32]byte
	timestamp int64
}

// Backend simulates the records contract: addRecord transactions append
// rows and emit RecordAdded, view calls read them back. Rows are keyed by
// transaction sender, so owner isolation falls out of signature recovery.
type Backend struct {
	lock sync.Mutex

	chainID  *big.Int
	contract common.Address
	rows     map[common.Address][]row
	nonces   map[common.Address]uint64
	receipts map[common.Hash]*types.Receipt
	nextTime int64

	rejectSend   bool
	revertNext   bool
	dropReceipts bool

	countCalls  int
	recordCalls int
}

// New returns a backend for the given chain and contract address.
func New(chainID *big.Int, contract common.Address) *Backend {
	return &Backend{
		chainID:  new(big.Int).Set(chainID),
		contract: contract,
		rows:     make(map[common.Address][]row),
		nonces:   make(map[common.Address]uint64),
		receipts: make(map[common.Hash]*types.Receipt),
		nextTime: 1_700_000_000,
	}
}

// SetRejectSend makes SendTransaction fail at the txpool.
func (b *Backend) SetRejectSend(reject bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.rejectSend = reject
}

// RevertNext makes the next transaction revert instead of storing a row.
func (b *Backend) RevertNext() {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.revertNext = true
}

// SetDropReceipts makes TransactionReceipt fail, simulating a tx stuck in
// the mempool.
func (b *Backend) SetDropReceipts(drop bool) {
	b.lock.Lock()
	defer b.lock.Unlock()
	b.dropReceipts = drop
}

// CountCalls reports how many getRecordCount calls reached the contract.
func (b *Backend) CountCalls() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.countCalls
}

// RecordCalls reports how many getRecord calls reached the contract.
func (b *Backend) RecordCalls() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.recordCalls
}

func (b *Backend) ChainID(context.Context) (*big.Int, error) {
	return new(big.Int).Set(b.chainID), nil
}

func (b *Backend) PendingNonceAt(_ context.Context, account common.Address) (uint64, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.nonces[account], nil
}

func (b *Backend) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(1_000_000_000)}, nil
}

func (b *Backend) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000), nil
}

func (b *Backend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	b.lock.Lock()
	defer b.lock.Unlock()

	if b.rejectSend {
		return errors.New("txpool rejected transaction")
	}

	sender, err := types.Sender(types.LatestSignerForChainID(b.chainID), tx)
	if err != nil {
		return err
	}
	if tx.Nonce() != b.nonces[sender] {
		return fmt.Errorf("nonce gap: got %d, want %d", tx.Nonce(), b.nonces[sender])
	}
	b.nonces[sender]++

	if b.revertNext {
		b.revertNext = false
		b.receipts[tx.Hash()] = &types.Receipt{
			Status: types.ReceiptStatusFailed,
			TxHash: tx.Hash(),
		}
		return nil
	}

	data := tx.Data()
	method := contractABI.Methods["addRecord"]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return errors.New("unexpected method call")
	}
	args, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return err
	}

	var r row
	for i := 0; i < numHandles; i++ {
		r.handles[i] = args[i].([32]byte)
	}
	r.timestamp = b.nextTime
	b.nextTime += 10

	index := uint64(len(b.rows[sender]))
	b.rows[sender] = append(b.rows[sender], r)

	eventData, err := contractABI.Events["RecordAdded"].Inputs.NonIndexed().Pack(
		new(big.Int).SetUint64(index),
		big.NewInt(r.timestamp),
	)
	if err != nil {
		return err
	}
	b.receipts[tx.Hash()] = &types.Receipt{
		Status: types.ReceiptStatusSuccessful,
		TxHash: tx.Hash(),
		Logs: []*types.Log{{
			Address: b.contract,
			Topics: []common.Hash{
				contractABI.Events["RecordAdded"].ID,
				common.BytesToHash(sender.Bytes()),
			},
			Data: eventData,
		}},
	}
	return nil
}

func (b *Backend) TransactionReceipt(_ context.Context, txHash common.Hash) (*types.Receipt, error) {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.dropReceipts {
		return nil, errors.New("not found")
	}
	receipt, ok := b.receipts[txHash]
	if !ok {
		return nil, errors.New("not found")
	}
	return receipt, nil
}

func (b *Backend) CallContract(_ context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	b.lock.Lock()
	defer b.lock.Unlock()

	data := call.Data
	if len(data) < 4 {
		return nil, errors.New("short calldata")
	}
	switch {
	case bytes.Equal(data[:4], contractABI.Methods["getRecordCount"].ID):
		b.countCalls++
		args, err := contractABI.Methods["getRecordCount"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		return contractABI.Methods["getRecordCount"].Outputs.Pack(
			new(big.Int).SetUint64(uint64(len(b.rows[owner]))),
		)
	case bytes.Equal(data[:4], contractABI.Methods["getRecord"].ID):
		b.recordCalls++
		args, err := contractABI.Methods["getRecord"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		index := args[1].(*big.Int).Uint64()
		if index >= uint64(len(b.rows[owner])) {
			return nil, errors.New("execution reverted: index out of range")
		}
		r := b.rows[owner][index]
		return contractABI.Methods["getRecord"].Outputs.Pack(
			r.handles[0], r.handles[1], r.handles[2], r.handles[3],
			big.NewInt(r.timestamp),
		)
	case bytes.Equal(data[:4], contractABI.Methods["getRecordTimestamps"].ID):
		args, err := contractABI.Methods["getRecordTimestamps"].Inputs.Unpack(data[4:])
		if err != nil {
			return nil, err
		}
		owner := args[0].(common.Address)
		timestamps := make([]*big.Int, len(b.rows[owner]))
		for i, r := range b.rows[owner] {
			timestamps[i] = big.NewInt(r.timestamp)
		}
		return contractABI.Methods["getRecordTimestamps"].Outputs.Pack(timestamps)
	default:
		return nil, errors.New("unknown method")
	}
}
