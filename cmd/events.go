package cmd

import (
	"fmt"
	"time"

	"github.com/josephlewis42/jobsh/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var sessionFilter string

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the shell event log.",
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Show a report of events.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := config.ReadEventLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

var catCommand = &cobra.Command{
	Use:   "cat",
	Short: "Print the events, one per line.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := config.ReadEventLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		w := cmd.OutOrStdout()
		return logger.ReadJSONLinesLog(fd, func(e *logger.Event) {
			if sessionFilter != "" && e.SessionID != sessionFilter {
				return
			}
			fmt.Fprintln(w, formatEvent(e))
		})
	},
}

func formatEvent(e *logger.Event) string {
	ts := time.UnixMicro(e.TimestampMicros).UTC().Format(time.RFC3339)
	out := fmt.Sprintf("%s %s %s", ts, e.SessionID, e.Type)
	if e.JobID > 0 {
		out += fmt.Sprintf(" [%d] %d", e.JobID, e.PID)
	}
	if e.Line != "" {
		out += fmt.Sprintf(" %q", e.Line)
	}
	if e.Status != nil {
		out += fmt.Sprintf(" status=%d", *e.Status)
	}
	if e.Count > 0 {
		out += fmt.Sprintf(" count=%d", e.Count)
	}
	if e.Error != "" {
		out += fmt.Sprintf(" error=%q", e.Error)
	}
	return out
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
	eventsCmd.AddCommand(catCommand)

	catCommand.Flags().StringVar(&sessionFilter, "session", "", "only show events from the session with this ID")
}
