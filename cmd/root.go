// Package cmd implements the raad command tree.
package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/gofrs/flock"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/config"
	"github.com/raad-downloader/raad/internal/engine/events"
	"github.com/raad-downloader/raad/internal/history"
	"github.com/raad-downloader/raad/internal/logging"
	"github.com/raad-downloader/raad/internal/manager"
	"github.com/raad-downloader/raad/internal/platform"
	"github.com/raad-downloader/raad/internal/tui"
)

// Version information, set via ldflags at build time.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

var (
	log       zerolog.Logger
	debugFlag bool

	outputFlag   string
	queueFlag    string
	categoryFlag string
	pausedFlag   bool
	headlessFlag bool
)

var rootCmd = &cobra.Command{
	Use:     "raad [url]...",
	Short:   "A multi-queue download manager",
	Long:    "raad is a terminal download manager with segmented transfers, queues,\nschedules, quotas, and resumable sessions.",
	Version: Version,
	Args:    cobra.ArbitraryArgs,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log = logging.Setup(debugFlag)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		lock, err := acquireLock()
		if err != nil {
			return err
		}
		defer lock.Unlock()

		notifier := &tui.Notifier{}
		notify := notifier.Notify
		if headlessFlag {
			notify = logNotify
		}
		mgr, hist, err := buildManager(notify)
		if err != nil {
			return err
		}
		defer func() {
			mgr.Stop()
			if hist != nil {
				hist.Close()
			}
		}()
		mgr.Start()

		for _, rawurl := range args {
			mgr.AddDownloadAdvanced(rawurl, resolveOutput(), queueFlag, categoryFlag, pausedFlag, nil)
		}

		if headlessFlag {
			return runHeadless(mgr, len(args) > 0)
		}

		program := tea.NewProgram(tui.New(mgr), tea.WithAltScreen())
		notifier.Attach(program)
		_, err = program.Run()
		return err
	},
}

func resolveOutput() string {
	if outputFlag == "" {
		return ""
	}
	return outputFlag
}

// acquireLock takes the single-instance lock; a second instance refuses
// to start rather than fight over the session file.
func acquireLock() (*flock.Flock, error) {
	path := config.GetLockPath()
	if err := os.MkdirAll(config.GetRaadDir(), 0755); err != nil {
		return nil, err
	}
	lock := flock.New(path)
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring lock: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("raad is already running (lock held at %s)", path)
	}
	return lock, nil
}

// buildManager assembles the manager with its injected collaborators.
func buildManager(notify func(events.Notice)) (*manager.Manager, *history.Store, error) {
	settings, err := config.LoadSettings()
	if err != nil {
		return nil, nil, fmt.Errorf("loading settings: %w", err)
	}
	hist, err := history.Open(config.GetHistoryPath())
	if err != nil {
		log.Warn().Err(err).Msg("history unavailable")
		hist = nil
	}
	mgr := manager.New(manager.Deps{
		Log:      log,
		Settings: settings,
		Platform: platform.New(logging.Component(log, "platform")),
		History:  hist,
		Notify:   notify,
	})
	return mgr, hist, nil
}

// logNotify routes manager toasts to the logger in headless runs.
func logNotify(n events.Notice) {
	switch n.Severity {
	case events.SeverityDanger:
		log.Error().Msg(n.Message)
	case events.SeverityWarning:
		log.Warn().Msg(n.Message)
	default:
		log.Info().Msg(n.Message)
	}
}

// runHeadless drives downloads without the TUI, exiting when the work
// drains (if any was queued) or blocking on the scheduler otherwise.
func runHeadless(mgr *manager.Manager, exitWhenDone bool) error {
	if !exitWhenDone {
		select {} // scheduler keeps running; terminate with a signal
	}
	for {
		time.Sleep(500 * time.Millisecond)
		if mgr.ActiveCount() == 0 && mgr.QueuedCount() == 0 {
			return nil
		}
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugFlag, "debug", false, "enable debug logging")
	rootCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "output directory or file path")
	rootCmd.Flags().StringVar(&queueFlag, "queue", "", "queue to add downloads to")
	rootCmd.Flags().StringVar(&categoryFlag, "category", "", "category override (default: auto)")
	rootCmd.Flags().BoolVar(&pausedFlag, "paused", false, "add downloads paused")
	rootCmd.Flags().BoolVar(&headlessFlag, "headless", false, "run without the TUI")
}

// Execute runs the command tree.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
