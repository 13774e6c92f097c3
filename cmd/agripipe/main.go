package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/fieldsense/agripipe/cmd/agripipe/commands"
)

func main() {
	globals := &commands.GlobalOptions{}

	rootCmd := &cobra.Command{
		Use:   "agripipe",
		Short: "Agricultural sensor batch ingestion pipeline",
		Long: `Ingests daily CSV batches of field sensor readings, validates and
cleans them, applies calibration, derives daily and rolling metrics, and
writes date-partitioned output with an auditable quality report.`,
		Version: "0.1.0",
	}

	rootCmd.PersistentFlags().StringVar(&globals.CfgFile, "config", "", "config file (default is ./agripipe.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&globals.Verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(commands.NewIngestCmd(globals))
	rootCmd.AddCommand(commands.NewInspectCmd(globals))

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
