package main

import (
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "pdf-rag",
		Short: "Question answering over uploaded PDFs",
		Long: `pdf-rag accepts PDF uploads, extracts their text (with OCR for scanned
pages), indexes it in per-document vector stores and answers questions
against every processed document.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "config.yaml", "config file path")

	rootCmd.AddCommand(newServeCommand())
	rootCmd.AddCommand(newCleanupCommand())
	rootCmd.AddCommand(newStatusCommand())
	return rootCmd
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
