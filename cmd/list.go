package cmd

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/utils"
)

var listSort string

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List downloads in the session",
	RunE: func(cmd *cobra.Command, args []string) error {
		lock, err := acquireLock()
		if err != nil {
			return err
		}
		defer lock.Unlock()

		mgr, hist, err := buildManager(logNotify)
		if err != nil {
			return err
		}
		defer func() {
			mgr.Stop()
			if hist != nil {
				hist.Close()
			}
		}()

		rows := mgr.Model().SortedRows(listSort, true)
		if len(rows) == 0 {
			fmt.Println("No downloads.")
			return nil
		}

		header := lipgloss.NewStyle().Bold(true)
		fmt.Println(header.Render(fmt.Sprintf("%-36s %-9s %22s %-12s %-10s", "FILE", "STATUS", "PROGRESS", "QUEUE", "CATEGORY")))
		for _, r := range rows {
			progress := utils.ConvertBytesToHumanReadable(r.Received)
			if r.Total > 0 {
				progress = fmt.Sprintf("%s / %s", progress, utils.ConvertBytesToHumanReadable(r.Total))
			}
			name := r.FileName
			if len(name) > 36 {
				name = name[:33] + "..."
			}
			fmt.Printf("%-36s %-9s %22s %-12s %-10s\n", name, r.Status, progress, r.Queue, r.Category)
		}
		return nil
	},
}

func init() {
	listCmd.Flags().StringVar(&listSort, "sort", "", "sort by: name, received, total, status, queue, category")
	rootCmd.AddCommand(listCmd)
}
