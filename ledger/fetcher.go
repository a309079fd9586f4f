// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package ledger

import (
	"context"
	"fmt"
	"math/big"
	"time"

	ethereum "github.com/luxfi/geth"
	"github.com/luxfi/geth/common"
	"github.com/luxfi/log"

	"github.com/luxfi/vitals"
)

// RecordCount returns how many records the owner has stored. Counts are
// served from a short-TTL cache with single-flight fetch so list views
// re-querying the ledger collapse onto one call.
func (c *Client) RecordCount(ctx context.Context, owner common.Address) (uint64, error) {
	return c.counts.Get(owner, func(owner common.Address) (uint64, error) {
		return c.fetchRecordCount(ctx, owner)
	}, false)
}

func (c *Client) fetchRecordCount(ctx context.Context, owner common.Address) (uint64, error) {
	out, err := c.call(ctx, "getRecordCount", owner)
	if err != nil {
		return 0, err
	}
	count, ok := out[0].(*big.Int)
	if !ok {
		return 0, fmt.Errorf("unexpected getRecordCount return type %T", out[0])
	}
	return count.Uint64(), nil
}

// Record returns the stored record at the given 0-based index. Indexes at
// or past RecordCount fail with ErrIndexOutOfRange before any contract
// read. Records are immutable once written, so hits are served from an LRU
// cache.
func (c *Client) Record(ctx context.Context, owner common.Address, index uint64) (*vitals.StoredRecord, error) {
	count, err := c.RecordCount(ctx, owner)
	if err != nil {
		return nil, err
	}
	if index >= count {
		return nil, fmt.Errorf(
			"%w: index %d, owner %s has %d records",
			vitals.ErrIndexOutOfRange, index, owner, count,
		)
	}

	record, err := c.records.Get(recordKey{owner: owner, index: index}, func(k recordKey) (vitals.StoredRecord, error) {
		return c.fetchRecord(ctx, k.owner, k.index)
	}, false)
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (c *Client) fetchRecord(ctx context.Context, owner common.Address, index uint64) (vitals.StoredRecord, error) {
	out, err := c.call(ctx, "getRecord", owner, new(big.Int).SetUint64(index))
	if err != nil {
		return vitals.StoredRecord{}, err
	}
	if len(out) != vitals.NumFields+1 {
		return vitals.StoredRecord{}, fmt.Errorf("unexpected getRecord return arity %d", len(out))
	}

	record := vitals.StoredRecord{Owner: owner, Index: index}
	for i := 0; i < vitals.NumFields; i++ {
		raw, ok := out[i].([32]byte)
		if !ok {
			return vitals.StoredRecord{}, fmt.Errorf("unexpected getRecord handle type %T", out[i])
		}
		record.Handles[i] = vitals.Handle(raw)
	}
	timestamp, ok := out[vitals.NumFields].(*big.Int)
	if !ok {
		return vitals.StoredRecord{}, fmt.Errorf("unexpected getRecord timestamp type %T", out[vitals.NumFields])
	}
	record.Timestamp = time.Unix(timestamp.Int64(), 0)

	if err := record.Verify(); err != nil {
		return vitals.StoredRecord{}, err
	}

	c.logger.Debug(
		"fetched record",
		log.Stringer("owner", owner),
		log.Uint64("index", index),
	)

	return record, nil
}

// Records returns all of the owner's stored records in insertion order
// (oldest first). Ordering is a ledger-side invariant; the client does not
// re-sort.
func (c *Client) Records(ctx context.Context, owner common.Address) ([]vitals.StoredRecord, error) {
	count, err := c.RecordCount(ctx, owner)
	if err != nil {
		return nil, err
	}

	records := make([]vitals.StoredRecord, 0, count)
	for index := uint64(0); index < count; index++ {
		record, err := c.Record(ctx, owner, index)
		if err != nil {
			return nil, err
		}
		records = append(records, *record)
	}
	return records, nil
}

// Timestamps returns the creation timestamps of all of the owner's records
// in insertion order, without touching any ciphertext.
func (c *Client) Timestamps(ctx context.Context, owner common.Address) ([]time.Time, error) {
	out, err := c.call(ctx, "getRecordTimestamps", owner)
	if err != nil {
		return nil, err
	}
	raw, ok := out[0].([]*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected getRecordTimestamps return type %T", out[0])
	}
	timestamps := make([]time.Time, len(raw))
	for i, ts := range raw {
		timestamps[i] = time.Unix(ts.Int64(), 0)
	}
	return timestamps, nil
}

// call packs and performs one read-only contract call.
func (c *Client) call(ctx context.Context, method string, args ...interface{}) ([]interface{}, error) {
	callData, err := recordsABI.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, defaultRPCTimeout)
	defer cancel()

	ret, err := c.client.CallContract(callCtx, ethereum.CallMsg{
		To:   &c.contract,
		Data: callData,
	}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	out, err := recordsABI.Unpack(method, ret)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s return: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s return", method)
	}
	return out, nil
}
