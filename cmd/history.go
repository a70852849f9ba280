package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/config"
	"github.com/raad-downloader/raad/internal/history"
	"github.com/raad-downloader/raad/internal/utils"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show completed downloads",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := history.Open(config.GetHistoryPath())
		if err != nil {
			return err
		}
		defer store.Close()

		entries, err := store.Recent(historyLimit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("No completed downloads.")
			return nil
		}
		for _, e := range entries {
			fmt.Printf("%s  %10s  %s\n",
				e.CompletedAt.Format(time.DateTime),
				utils.ConvertBytesToHumanReadable(e.Size),
				e.FilePath)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVar(&historyLimit, "limit", 50, "number of entries to show")
	rootCmd.AddCommand(historyCmd)
}
