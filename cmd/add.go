package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/engine"
)

var (
	addMirrors   []string
	addHeaders   []string
	addCookie    string
	addUser      string
	addPassword  string
	addProxy     string
	addChecksum  string
	addVerify    bool
	addClipboard bool
	addRetryMax  int
	addRetryWait int
)

var addCmd = &cobra.Command{
	Use:   "add [url]...",
	Short: "Add downloads to the session",
	Long:  "Adds one or more URLs to the persisted session. With --clipboard the\nURL is read from the system clipboard.",
	RunE: func(cmd *cobra.Command, args []string) error {
		urls := append([]string(nil), args...)
		if addClipboard {
			text, err := clipboard.ReadAll()
			if err != nil {
				return fmt.Errorf("reading clipboard: %w", err)
			}
			for _, line := range strings.Fields(text) {
				urls = append(urls, line)
			}
		}
		if len(urls) == 0 {
			return fmt.Errorf("no URLs given")
		}

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

		opts, err := buildTaskOptions()
		if err != nil {
			return err
		}
		added := 0
		for _, rawurl := range urls {
			// Added paused; the next run restores them paused until resumed.
			if mgr.AddDownloadAdvanced(rawurl, resolveOutput(), queueFlag, categoryFlag, true, opts) != nil {
				added++
			}
		}
		fmt.Printf("Added %d download(s)\n", added)
		return nil
	},
}

func buildTaskOptions() (*engine.Options, error) {
	opts := &engine.Options{
		Mirrors:          addMirrors,
		Headers:          addHeaders,
		CookieHeader:     addCookie,
		AuthUser:         addUser,
		AuthPassword:     addPassword,
		ChecksumExpected: addChecksum,
		VerifyOnComplete: addVerify,
		RetryMax:         addRetryMax,
		RetryDelaySec:    addRetryWait,
	}
	if addProxy != "" {
		host, portStr, ok := strings.Cut(addProxy, ":")
		if !ok {
			return nil, fmt.Errorf("proxy must be host:port")
		}
		port, err := strconv.Atoi(portStr)
		if err != nil || port <= 0 {
			return nil, fmt.Errorf("invalid proxy port %q", portStr)
		}
		opts.Proxy = engine.Proxy{Host: host, Port: port}
	}
	return opts, nil
}

func init() {
	addCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output directory or file path")
	addCmd.Flags().StringVar(&queueFlag, "queue", "", "queue to add downloads to")
	addCmd.Flags().StringVar(&categoryFlag, "category", "", "category override")
	addCmd.Flags().StringArrayVar(&addMirrors, "mirror", nil, "mirror URL (repeatable)")
	addCmd.Flags().StringArrayVar(&addHeaders, "header", nil, "custom header 'Name: Value' (repeatable)")
	addCmd.Flags().StringVar(&addCookie, "cookie", "", "raw Cookie header")
	addCmd.Flags().StringVar(&addUser, "user", "", "basic auth user")
	addCmd.Flags().StringVar(&addPassword, "password", "", "basic auth password")
	addCmd.Flags().StringVar(&addProxy, "proxy", "", "HTTP proxy host:port")
	addCmd.Flags().StringVar(&addChecksum, "checksum", "", "expected digest (algorithm auto-detected by length)")
	addCmd.Flags().BoolVar(&addVerify, "verify", false, "verify checksum after completion")
	addCmd.Flags().IntVar(&addRetryMax, "retry-max", -1, "retry attempts (-1 = default)")
	addCmd.Flags().IntVar(&addRetryWait, "retry-delay", -1, "retry delay seconds (-1 = default)")
	addCmd.Flags().BoolVar(&addClipboard, "clipboard", false, "read URLs from the clipboard")
	rootCmd.AddCommand(addCmd)
}
