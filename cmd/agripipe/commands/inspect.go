package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/fieldsense/agripipe/internal/ingest"
	"github.com/fieldsense/agripipe/internal/schema"
)

func NewInspectCmd(globals *GlobalOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <batch-file>",
		Short: "Describe a raw batch file without ingesting it",
		Long: `Reads one raw batch file, infers the type of each column, and runs the
schema contract against it. The checkpoint, output partitions, and quality
report are untouched.`,
		Example: `  agripipe inspect data/raw/2024-03-15.csv`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(globals, args[0])
		},
	}
	return cmd
}

func runInspect(globals *GlobalOptions, path string) error {
	logger := globals.Logger()

	reader := ingest.NewReader(filepath.Dir(path), logger)
	raw, err := reader.ReadRaw(path)
	if err != nil {
		return err
	}

	fmt.Printf("Batch:      %s\n", raw.BatchID)
	fmt.Printf("Batch date: %s\n", raw.BatchDate.Format("2006-01-02"))
	fmt.Printf("Rows:       %d\n\n", len(raw.Rows))

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COLUMN\tINFERRED TYPE")
	for _, check := range schema.Describe(raw) {
		fmt.Fprintf(w, "%s\t%s\n", check.Column, check.Detail)
	}
	if err := w.Flush(); err != nil {
		return err
	}

	fmt.Println()
	if err := schema.NewValidator(logger).Validate(raw); err != nil {
		fmt.Printf("Schema contract: FAIL\n  %v\n", err)
		return nil
	}
	fmt.Println("Schema contract: PASS")
	return nil
}
