package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "ledger",
	Short: "Financial document ledger",
	Long: `ledger posts fiscal documents into per-company hash chains, issues
credit notes, allocates partner payments and relays ledger events.

Configuration is read from config.toml in the working directory and from
ERP_* environment variables (a .env file is loaded first when present).`,
	SilenceUsage: true,
}

// Execute runs the root command
func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("log-level", "", "override log.level (debug, info, warn, error)")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(outboxCmd)
	rootCmd.AddCommand(documentCmd)
	rootCmd.AddCommand(creditNoteCmd)
	rootCmd.AddCommand(paymentCmd)
	rootCmd.AddCommand(verifyChainCmd)
}

// printJSON writes v to stdout, indented
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// uuidFlag reads a required UUID flag
func uuidFlag(cmd *cobra.Command, name string) (uuid.UUID, error) {
	raw, err := cmd.Flags().GetString(name)
	if err != nil {
		return uuid.Nil, err
	}
	if raw == "" {
		return uuid.Nil, fmt.Errorf("--%s is required", name)
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, fmt.Errorf("--%s: %w", name, err)
	}
	return id, nil
}
