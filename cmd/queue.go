package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/raad-downloader/raad/internal/manager"
	"github.com/raad-downloader/raad/internal/utils"
)

var (
	queueMaxConcurrent int
	queueMaxSpeed      string
	queueSchedule      string
	queueQuota         string
)

var queueCmd = &cobra.Command{
	Use:   "queue",
	Short: "Manage download queues",
}

// withManager runs fn against a locked, fully restored manager instance.
func withManager(fn func(*manager.Manager) error) error {
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
	return fn(mgr)
}

var queueListCmd = &cobra.Command{
	Use:   "show",
	Short: "Show queues and their limits",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			for _, name := range mgr.QueueNames() {
				info, ok := mgr.Queue(name)
				if !ok {
					continue
				}
				line := fmt.Sprintf("%-16s concurrent=%d", info.Name, info.MaxConcurrent)
				if info.MaxSpeed > 0 {
					line += " speed=" + utils.ConvertBytesToHumanReadable(info.MaxSpeed) + "/s"
				}
				if info.ScheduleEnabled {
					line += fmt.Sprintf(" schedule=%02d:%02d-%02d:%02d",
						info.StartMinutes/60, info.StartMinutes%60,
						info.EndMinutes/60, info.EndMinutes%60)
				}
				if info.QuotaEnabled {
					line += fmt.Sprintf(" quota=%s (today %s)",
						utils.ConvertBytesToHumanReadable(info.QuotaBytes),
						utils.ConvertBytesToHumanReadable(info.DownloadedToday))
				}
				fmt.Println(line)
			}
			return nil
		})
	},
}

var queueAddCmd = &cobra.Command{
	Use:   "add <name>",
	Short: "Create a queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			mgr.CreateQueue(args[0])
			return nil
		})
	},
}

var queueRemoveCmd = &cobra.Command{
	Use:   "rm <name>",
	Short: "Remove a queue (tasks move to the default queue)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			if args[0] == mgr.DefaultQueueName() {
				return fmt.Errorf("cannot remove the default queue")
			}
			mgr.RemoveQueue(args[0])
			return nil
		})
	},
}

var queueRenameCmd = &cobra.Command{
	Use:   "rename <old> <new>",
	Short: "Rename a queue",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			mgr.RenameQueue(args[0], args[1])
			return nil
		})
	},
}

var queueSetCmd = &cobra.Command{
	Use:   "set <name>",
	Short: "Update a queue's limits",
	Long: "Updates a queue's concurrency, speed cap, schedule window, or daily\n" +
		"quota. Schedule format: HH:MM-HH:MM (empty string disables).\n" +
		"Quota and speed accept sizes like 500K, 10M, 1G (0 disables).",
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withManager(func(mgr *manager.Manager) error {
			if _, ok := mgr.Queue(args[0]); !ok {
				return fmt.Errorf("no such queue %q", args[0])
			}
			mgr.UpdateQueue(args[0], func(info *manager.QueueInfo) {
				if cmd.Flags().Changed("max-concurrent") {
					info.MaxConcurrent = queueMaxConcurrent
				}
				if cmd.Flags().Changed("max-speed") {
					if v, err := parseSize(queueMaxSpeed); err == nil {
						info.MaxSpeed = v
					}
				}
				if cmd.Flags().Changed("schedule") {
					start, end, ok := parseSchedule(queueSchedule)
					info.ScheduleEnabled = ok
					if ok {
						info.StartMinutes = start
						info.EndMinutes = end
					}
				}
				if cmd.Flags().Changed("quota") {
					v, err := parseSize(queueQuota)
					if err == nil {
						info.QuotaEnabled = v > 0
						info.QuotaBytes = v
					}
				}
			})
			return nil
		})
	},
}

func init() {
	queueSetCmd.Flags().IntVar(&queueMaxConcurrent, "max-concurrent", 0, "max concurrent downloads (0 = global limit)")
	queueSetCmd.Flags().StringVar(&queueMaxSpeed, "max-speed", "", "speed cap, e.g. 500K (0 = unlimited)")
	queueSetCmd.Flags().StringVar(&queueSchedule, "schedule", "", "daily window HH:MM-HH:MM (empty disables)")
	queueSetCmd.Flags().StringVar(&queueQuota, "quota", "", "daily byte quota, e.g. 2G (0 disables)")

	queueCmd.AddCommand(queueListCmd, queueAddCmd, queueRemoveCmd, queueRenameCmd, queueSetCmd)
	rootCmd.AddCommand(queueCmd)
}
