// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package config

const (
	// Command line option keys
	ConfigFileKey = "config-file"
	VersionKey    = "version"
	HelpKey       = "help"

	// Top-level configuration keys
	LogLevelKey             = "log-level"
	RPCEndpointKey          = "rpc-endpoint"
	ContractAddressKey      = "contract-address"
	GatewayEndpointKey      = "gateway-endpoint"
	KeyFileKey              = "key-file"
	GasLimitKey             = "gas-limit"
	TxInclusionSecondsKey   = "tx-inclusion-timeout-seconds"
	GrantDurationSecondsKey = "grant-duration-seconds"
	CountCacheSecondsKey    = "count-cache-seconds"
	RecordCacheSizeKey      = "record-cache-size"
)
