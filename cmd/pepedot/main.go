package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var noColor bool

var rootCmd = &cobra.Command{
	Use:   "pepedot",
	Short: "Floor-plan annotation records: work orders, plan documents, photo-tagged points",
	Long: `pepedot keeps work-order records locally: each record owns a collection of
uploaded floor-plan PDFs and a ledger of photo-tagged annotation points
anchored to document coordinates.

Start the daemon with "pepedot start", then drive it from this CLI or from
an MCP-capable agent over stdio.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pepedot version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("pepedot version %s\n", version)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(rnCmd)
	rootCmd.AddCommand(docCmd)
	rootCmd.AddCommand(pointCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
