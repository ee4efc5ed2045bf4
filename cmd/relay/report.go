package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-relay/internal/api"
	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/models"
)

// reporter is satisfied by the in-process driver and the remote client.
type reporter interface {
	Report(ctx context.Context, event models.FailureEvent) (engine.Outcome, error)
}

var (
	reportSource  string
	reportLogFile string
	reportTraceID string
	reportFile    string
	reportLine    int
	reportCommand string
	reportRemote  string
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Report one failure",
	Long: `Report a single failure. The log is read from --log-file, or from stdin when
--log-file is "-" or omitted.

Exit codes:
  0 - Ticket created or recurrence recorded
  1 - Reporting failed
  2 - Configuration error`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if reportSource == "" {
			return errors.New("--source is required")
		}
		log, err := readLog(cmd.InOrStdin(), reportLogFile)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		rep, closeFn, err := newReporter(ctx, reportRemote)
		if err != nil {
			return err
		}
		defer closeFn()

		outcome, err := rep.Report(ctx, models.FailureEvent{
			Source:  reportSource,
			Log:     log,
			TraceID: reportTraceID,
			File:    reportFile,
			Line:    reportLine,
			Command: reportCommand,
		})
		if err != nil {
			return err
		}
		printOutcome(cmd.OutOrStdout(), outcome)
		return nil
	},
}

func init() {
	reportCmd.Flags().StringVarP(&reportSource, "source", "s", "", "Failing phase or test suite name")
	reportCmd.Flags().StringVarP(&reportLogFile, "log-file", "l", "-", "File holding the failure log (- for stdin)")
	reportCmd.Flags().StringVar(&reportTraceID, "trace-id", "", "Trace id shared by reports of one run (generated when empty)")
	reportCmd.Flags().StringVar(&reportFile, "file", "", "Source file of the failure, if known")
	reportCmd.Flags().IntVar(&reportLine, "line", 0, "Line of the failure, if known")
	reportCmd.Flags().StringVar(&reportCommand, "command", "", "Command that failed")
	reportCmd.Flags().StringVar(&reportRemote, "remote", "", "Report through a relay server at this address (default remote.address)")
	rootCmd.AddCommand(reportCmd)
}

func readLog(stdin io.Reader, path string) (string, error) {
	if path == "" || path == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read log from stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read log: %w", err)
	}
	return string(data), nil
}

// newReporter returns the remote client when an address is configured, otherwise the
// in-process pipeline.
func newReporter(ctx context.Context, remote string) (reporter, func(), error) {
	if remote == "" {
		remote = cfg.Remote.Address
	}
	if remote != "" {
		client, err := api.DialRemote(remote)
		if err != nil {
			return nil, nil, err
		}
		return timeoutReporter{next: client, timeout: cfg.Remote.Timeout}, func() { _ = client.Close() }, nil
	}
	r, err := buildRelay(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return r.driver, r.Close, nil
}

type timeoutReporter struct {
	next    reporter
	timeout time.Duration
}

func (t timeoutReporter) Report(ctx context.Context, event models.FailureEvent) (engine.Outcome, error) {
	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}
	return t.next.Report(ctx, event)
}

func printOutcome(w io.Writer, out engine.Outcome) {
	green := color.New(color.FgGreen).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	if out.Created {
		fmt.Fprintf(w, "%s Created %s\n", green("✓"), out.TicketKey)
	} else {
		fmt.Fprintf(w, "%s Recurrence of %s", yellow("↻"), out.TicketKey)
		if out.Occurrence > 0 {
			fmt.Fprintf(w, " (occurrence %d)", out.Occurrence)
		}
		fmt.Fprintln(w)
	}
	if out.TicketURL != "" {
		fmt.Fprintf(w, "  %s %s\n", cyan("ticket:"), out.TicketURL)
	}
	fmt.Fprintf(w, "  %s %s\n", cyan("fingerprint:"), out.Fingerprint)
	if out.ArchiveURL != "" {
		fmt.Fprintf(w, "  %s %s\n", cyan("archive:"), out.ArchiveURL)
	}
	if out.Mode != "" && out.Mode != "network" {
		fmt.Fprintf(w, "  %s %s\n", cyan("mode:"), out.Mode)
	}
}
