package main

import (
	"fmt"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "erpctl",
	Short: "Operator tooling for the ERP API",
	Long: `erpctl runs maintenance tasks against the ERP database:
schema migration, audit retention, status log reconciliation and
batch exports.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
