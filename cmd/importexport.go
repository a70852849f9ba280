package cmd

import (
	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/manager"
)

var importCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a download list",
	Long:  "Imports downloads from a JSON array, a {items: [...]} document, a YAML\nlist, or plain text (one 'url [path [queue [category]]]' per line).",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			return mgr.ImportList(args[0])
		})
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Export the download list",
	Long:  "Exports the session as one URL per line for .txt targets, or as a\nversioned JSON document otherwise.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			return mgr.ExportList(args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(importCmd, exportCmd)
}
