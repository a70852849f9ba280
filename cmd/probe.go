package cmd

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/utils"
)

var probeCmd = &cobra.Command{
	Use:   "probe <url>",
	Short: "Probe a URL for size and range support",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		client := &http.Client{Timeout: 30 * time.Second}
		req, err := http.NewRequest(http.MethodHead, args[0], nil)
		if err != nil {
			return err
		}
		req.Header.Set("User-Agent", "raad/1.0")

		resp, err := client.Do(req)
		if err != nil {
			return fmt.Errorf("test failed: %w", err)
		}
		defer resp.Body.Close()

		fmt.Printf("HTTP %d\n", resp.StatusCode)
		if resp.ContentLength > 0 {
			fmt.Printf("Size: %s (%d bytes)\n", utils.ConvertBytesToHumanReadable(resp.ContentLength), resp.ContentLength)
		}
		if utils.AcceptsByteRanges(resp.Header) {
			fmt.Println("Ranges: bytes")
		} else {
			fmt.Println("Ranges: not advertised")
		}
		if etag := resp.Header.Get("ETag"); etag != "" {
			fmt.Println("ETag:", etag)
		}
		if lm := resp.Header.Get("Last-Modified"); lm != "" {
			fmt.Println("Last-Modified:", lm)
		}
		if name := utils.FilenameFromResponse(resp.Header); name != "" {
			fmt.Println("Filename:", name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(probeCmd)
}
