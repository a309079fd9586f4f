// Copyright (C) 2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package main

import (
	"fmt"
	"os"
	"time"

	"github.com/luxfi/log"
	"github.com/spf13/cobra"

	"github.com/luxfi/vitals"
	"github.com/luxfi/vitals/client"
	"github.com/luxfi/vitals/config"
	"github.com/luxfi/vitals/fhe"
	"github.com/luxfi/vitals/ledger"
	"github.com/luxfi/vitals/userdecrypt"
	"github.com/luxfi/vitals/wallet"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "vitals",
	Short: "Confidential health records on an encrypted ledger",
	Long: `vitals stores numeric health measurements on a public ledger as
homomorphic-ciphertext handles and reveals them only to their owner
through signed, time-bounded decryption authorizations.`,
	Version: fmt.Sprintf("%s (built %s)", version, buildDate),
}

func init() {
	rootCmd.PersistentFlags().String(config.ConfigFileKey, "", "Path to the JSON config file")

	rootCmd.AddCommand(addCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(decryptCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(*cobra.Command, []string) {
		fmt.Printf("%s (built %s)\n", version, buildDate)
	},
}

// buildApp assembles the protocol client from the configuration.
func buildApp(cmd *cobra.Command) (*client.Client, log.Logger, error) {
	v, err := config.BuildViper(cmd.Root().PersistentFlags())
	if err != nil {
		return nil, nil, err
	}
	cfg, err := config.NewConfig(v)
	if err != nil {
		return nil, nil, err
	}

	logLevel, err := log.ToLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, fmt.Errorf("error reading log level from config: %w", err)
	}
	logger := log.NewLogger(
		"vitals",
		*log.NewWrappedCore(
			logLevel,
			os.Stderr,
			log.JSON.ConsoleEncoder(),
		),
	)

	w, err := wallet.LocalWalletFromFile(cfg.KeyFile)
	if err != nil {
		return nil, nil, err
	}

	ledgerClient, err := ledger.Dial(
		cmd.Context(),
		logger,
		cfg.RPCEndpoint,
		w,
		cfg.Contract(),
		ledger.Options{
			GasLimit:           cfg.GasLimit,
			TxInclusionTimeout: cfg.TxInclusionTimeout(),
			CountTTL:           cfg.CountCacheTTL(),
			RecordCacheSize:    cfg.RecordCacheSize,
		},
	)
	if err != nil {
		return nil, nil, err
	}

	provider := fhe.NewRemoteProvider(logger, cfg.GatewayEndpoint, nil)
	decryptor := userdecrypt.NewClient(logger, cfg.GatewayEndpoint, nil)

	return client.New(logger, provider, ledgerClient, decryptor, w, cfg.GrantDuration()), logger, nil
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Encrypt and store one health record",
	Long: `Encrypt the four measurements client-side and submit them to the
records contract as one transaction. Weight is given in grams.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := buildApp(cmd)
		if err != nil {
			return err
		}

		height, _ := cmd.Flags().GetUint64("height")
		weight, _ := cmd.Flags().GetUint64("weight-grams")
		systolic, _ := cmd.Flags().GetUint64("systolic")
		diastolic, _ := cmd.Flags().GetUint64("diastolic")

		conf, err := app.AddRecord(cmd.Context(), vitals.Measurements{
			HeightCm:    height,
			WeightGrams: weight,
			Systolic:    systolic,
			Diastolic:   diastolic,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Record stored:\n")
		fmt.Printf("  Index: %d\n", conf.Index)
		fmt.Printf("  Timestamp: %s\n", conf.Timestamp.UTC().Format(time.RFC3339))
		fmt.Printf("  Tx: %s\n", conf.TxHash)
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Print how many records are stored for this wallet",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := buildApp(cmd)
		if err != nil {
			return err
		}
		count, err := app.RecordCount(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Println(count)
		return nil
	},
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored records without decrypting",
	Long: `List every stored record's index, timestamp, and ciphertext handles.
No decryption authorization is requested. Read failures degrade to an
empty listing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, logger, err := buildApp(cmd)
		if err != nil {
			return err
		}

		records, err := app.Records(cmd.Context())
		if err != nil {
			logger.Warn("failed to list records", log.Err(err))
			records = nil
		}

		fmt.Printf("%d records for %s\n", len(records), app.Owner())
		for _, r := range records {
			fmt.Printf("  [%d] %s\n", r.Index, r.Timestamp.UTC().Format(time.RFC3339))
			for _, h := range r.Handles {
				fmt.Printf("      %s\n", h)
			}
		}
		return nil
	},
}

var decryptCmd = &cobra.Command{
	Use:   "decrypt",
	Short: "Decrypt and display all stored records",
	Long: `Fetch every stored record, request one signed decryption
authorization covering all of them, and display the plaintext values.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, _, err := buildApp(cmd)
		if err != nil {
			return err
		}

		decrypted, err := app.DecryptAll(cmd.Context())
		if err != nil {
			return err
		}

		fmt.Printf("%d records for %s\n", len(decrypted), app.Owner())
		for _, r := range decrypted {
			m := r.Measurements
			fmt.Printf(
				"  [%d] %s  height=%dcm weight=%dg bp=%d/%d\n",
				r.Index,
				r.Timestamp.UTC().Format(time.RFC3339),
				m.HeightCm, m.WeightGrams, m.Systolic, m.Diastolic,
			)
		}
		return nil
	},
}

func init() {
	addCmd.Flags().Uint64("height", 0, "Height in centimeters")
	addCmd.Flags().Uint64("weight-grams", 0, "Weight in grams")
	addCmd.Flags().Uint64("systolic", 0, "Systolic blood pressure in mmHg")
	addCmd.Flags().Uint64("diastolic", 0, "Diastolic blood pressure in mmHg")
	for _, flag := range []string{"height", "weight-grams", "systolic", "diastolic"} {
		_ = addCmd.MarkFlagRequired(flag)
	}
}
