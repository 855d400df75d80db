package main

import (
	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "pdf-analysis",
	Short: "OCR uploaded PDFs and analyze them in chunks of pages",
	Long: `pdf-analysis accepts batches of PDF documents over HTTP, renders every page,
runs OCR on each page and, on request, groups the recognized pages into
chunks of K pages that are sent to an analysis workflow.

Configuration comes from an optional YAML file and environment variables
(a .env file in the working directory is loaded first).`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables override it")
}
