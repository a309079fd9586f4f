// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/luxfi/geth/accounts/abi"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/geth/core/types"
)

// Stable call surface of the records contract. The contract's storage logic
// is an external collaborator; only this interface is depended on.
const recordsABIJSON = `[
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

var recordsABI = func() abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(recordsABIJSON))
	if err != nil {
		panic(fmt.Sprintf("invalid records ABI: %s", err))
	}
	return parsed
}()

// recordAddedID is the topic identifying RecordAdded logs.
var recordAddedID = recordsABI.Events["RecordAdded"].ID

// recordAddedEvent is the unpacked creation event emitted by addRecord.
type recordAddedEvent struct {
	Index     *big.Int
	Timestamp *big.Int
}

// parseRecordAdded scans receipt logs for the contract's RecordAdded event
// matching owner.
func parseRecordAdded(logs []*types.Log, contract, owner common.Address) (*recordAddedEvent, error) {
	for _, l := range logs {
		if l.Address != contract || len(l.Topics) < 2 || l.Topics[0] != recordAddedID {
			continue
		}
		if common.BytesToAddress(l.Topics[1].Bytes()) != owner {
			continue
		}
		var ev recordAddedEvent
		if err := recordsABI.UnpackIntoInterface(&ev, "RecordAdded", l.Data); err != nil {
			return nil, fmt.Errorf("failed to unpack RecordAdded event: %w", err)
		}
		return &ev, nil
	}
	return nil, fmt.Errorf("no RecordAdded event for owner %s", owner)
}
