package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-relay/internal/harness"
)

var (
	execPhases     []string
	execMaxRetries int
)

var execCmd = &cobra.Command{
	Use:   "exec [-- command...]",
	Short: "Run build phases and report the first unrecoverable failure",
	Long: `Run phases in order, retrying each failed phase with a fixed backoff. When a
phase still fails after its retries, the failure is reported once and the run stops.

Phases come from --phase name=command flags, the trailing command, or the
harness.phases list in the configuration file.`,
	Example: `  relay exec --phase lint="golangci-lint run" --phase test="go test ./..."
  relay exec -- make release`,
	RunE: func(cmd *cobra.Command, args []string) error {
		phases, err := resolvePhases(execPhases, args)
		if err != nil {
			return configError(err)
		}

		maxRetries := cfg.Harness.MaxRetries
		if cmd.Flags().Changed("max-retries") {
			maxRetries = execMaxRetries
		}

		ctx := cmd.Context()
		rep, closeFn, err := newReporter(ctx, "")
		if err != nil {
			return err
		}
		defer closeFn()

		runner := harness.NewRunner(rep, maxRetries, cfg.Harness.Backoff, logger)
		results, err := runner.Run(ctx, phases)
		printPhases(cmd, results)
		return err
	},
}

func init() {
	execCmd.Flags().StringArrayVarP(&execPhases, "phase", "p", nil, "Phase as name=command; repeatable")
	execCmd.Flags().IntVar(&execMaxRetries, "max-retries", harness.DefaultMaxRetries, "Retries per phase after the first attempt")
	rootCmd.AddCommand(execCmd)
}

func resolvePhases(flags, args []string) ([]harness.Phase, error) {
	var phases []harness.Phase
	for _, raw := range flags {
		name, command, ok := strings.Cut(raw, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(command) == "" {
			return nil, fmt.Errorf("phase %q must be name=command", raw)
		}
		phases = append(phases, harness.Phase{Name: strings.TrimSpace(name), Command: command})
	}
	if len(args) > 0 {
		phases = append(phases, harness.Phase{Name: args[0], Command: strings.Join(args, " ")})
	}
	if len(phases) == 0 {
		for _, p := range cfg.Harness.Phases {
			phases = append(phases, harness.Phase{Name: p.Name, Command: p.Command})
		}
	}
	if len(phases) == 0 {
		return nil, errors.New("no phases given")
	}
	return phases, nil
}

func printPhases(cmd *cobra.Command, results []harness.PhaseResult) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	w := cmd.OutOrStdout()
	for _, res := range results {
		if res.Passed {
			fmt.Fprintf(w, "%s %s (%s, %d attempt(s))\n", green("✓"), res.Name, res.Duration.Round(time.Millisecond), res.Attempts)
			continue
		}
		fmt.Fprintf(w, "%s %s unrecoverable after %d attempt(s)\n", red("✗"), res.Name, res.Attempts)
		if res.Outcome != nil {
			printOutcome(w, *res.Outcome)
		}
	}
}
