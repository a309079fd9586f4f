// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package config loads and validates the client configuration from a JSON
// config file, environment variables, and command-line flags.
package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/luxfi/geth/common"
)

// Defaults applied when a key is absent.
const (
	defaultLogLevel             = "info"
	defaultGasLimit             = 500_000
	defaultTxInclusionSeconds   = 30
	defaultGrantDurationSeconds = 10 * 24 * 60 * 60
	defaultCountCacheSeconds    = 10
	DefaultRecordCacheSize      = 1024
)

// Config is the vitals client configuration.
type Config struct {
	LogLevel             string `mapstructure:"log-level" json:"log-level"`
	RPCEndpoint          string `mapstructure:"rpc-endpoint" json:"rpc-endpoint"`
	ContractAddress      string `mapstructure:"contract-address" json:"contract-address"`
	GatewayEndpoint      string `mapstructure:"gateway-endpoint" json:"gateway-endpoint"`
	KeyFile              string `mapstructure:"key-file" json:"key-file"`
	GasLimit             uint64 `mapstructure:"gas-limit" json:"gas-limit"`
	TxInclusionSeconds   uint64 `mapstructure:"tx-inclusion-timeout-seconds" json:"tx-inclusion-timeout-seconds"`
	GrantDurationSeconds uint64 `mapstructure:"grant-duration-seconds" json:"grant-duration-seconds"`
	CountCacheSeconds    uint64 `mapstructure:"count-cache-seconds" json:"count-cache-seconds"`
	RecordCacheSize      int    `mapstructure:"record-cache-size" json:"record-cache-size"`
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := url.ParseRequestURI(c.RPCEndpoint); err != nil {
		return fmt.Errorf("invalid rpc-endpoint %q: %w", c.RPCEndpoint, err)
	}
	if _, err := url.ParseRequestURI(c.GatewayEndpoint); err != nil {
		return fmt.Errorf("invalid gateway-endpoint %q: %w", c.GatewayEndpoint, err)
	}
	if !common.IsHexAddress(c.ContractAddress) {
		return fmt.Errorf("invalid contract-address %q", c.ContractAddress)
	}
	if c.KeyFile == "" {
		return fmt.Errorf("key-file must be set")
	}
	if _, err := os.Stat(c.KeyFile); err != nil {
		return fmt.Errorf("key-file %q is not readable: %w", c.KeyFile, err)
	}
	if c.GrantDurationSeconds == 0 {
		return fmt.Errorf("grant-duration-seconds must be positive")
	}
	return nil
}

// Contract returns the parsed records contract address.
func (c *Config) Contract() common.Address {
	return common.HexToAddress(c.ContractAddress)
}

// TxInclusionTimeout returns the inclusion timeout as a duration.
func (c *Config) TxInclusionTimeout() time.Duration {
	return time.Duration(c.TxInclusionSeconds) * time.Second
}

// GrantDuration returns the authorization window as a duration.
func (c *Config) GrantDuration() time.Duration {
	return time.Duration(c.GrantDurationSeconds) * time.Second
}

// CountCacheTTL returns the record-count cache TTL as a duration.
func (c *Config) CountCacheTTL() time.Duration {
	return time.Duration(c.CountCacheSeconds) * time.Second
}
