package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-relay/internal/cache"
	"github.com/miradorstack/mirador-relay/internal/config"
	"github.com/miradorstack/mirador-relay/internal/owner"
	"github.com/miradorstack/mirador-relay/internal/payload"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check relay configuration and backend reachability",
	Long: `Run checks against every backend the relay talks to.

Exit codes:
  0 - All checks passed (warnings allowed)
  1 - One or more checks failed`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
		defer cancel()

		green := color.New(color.FgGreen).SprintFunc()
		red := color.New(color.FgRed).SprintFunc()
		yellow := color.New(color.FgYellow).SprintFunc()
		cyan := color.New(color.FgCyan).SprintFunc()
		w := cmd.OutOrStdout()

		var failures []string
		ok := func(format string, a ...any) { fmt.Fprintf(w, "  %s %s\n", green("✓"), fmt.Sprintf(format, a...)) }
		warn := func(format string, a ...any) { fmt.Fprintf(w, "  %s %s\n", yellow("⚠"), fmt.Sprintf(format, a...)) }
		fail := func(format string, a ...any) {
			msg := fmt.Sprintf(format, a...)
			failures = append(failures, msg)
			fmt.Fprintf(w, "  %s %s\n", red("✗"), msg)
		}

		ci := config.CISignals()
		fmt.Fprintf(w, "%s Environment\n", cyan("→"))
		ok("deployment environment: %s", payload.DetectEnvironment(ci))
		ok("execution model: %s", payload.ExecutionModel(ci))

		fmt.Fprintf(w, "%s Ticketing\n", cyan("→"))
		jira := jiraClient(cfg)
		switch {
		case jira == nil && cfg.Ticketing.RequireCredentials:
			fail("credentials missing and ticketing.requireCredentials is set")
		case jira == nil:
			warn("no credentials; incidents go to the ledger at %s", cfg.Ticketing.LedgerPath)
			if err := os.MkdirAll(filepath.Dir(cfg.Ticketing.LedgerPath), 0o755); err != nil {
				fail("ledger directory not writable: %v", err)
			}
		default:
			if name, err := jira.CheckProject(ctx); err != nil {
				fail("project %s: %v", cfg.Ticketing.Project, err)
			} else {
				ok("project %s (%s) reachable", cfg.Ticketing.Project, name)
			}
		}

		fmt.Fprintf(w, "%s Dedup store\n", cyan("→"))
		checkDedup(cfg, ok, warn, fail)

		fmt.Fprintf(w, "%s Archive\n", cyan("→"))
		if bucket := cfg.ArchiveBucket(); bucket == "" {
			warn("no bucket or GCP project; records will not be archived")
		} else {
			ok("bucket %s", bucket)
		}

		fmt.Fprintf(w, "%s Ownership\n", cyan("→"))
		if _, err := owner.NewGit(ctx); err != nil {
			warn("git unavailable; all incidents go to %s", owner.Fallback(cfg.Service.OwnerDomain).Email)
		} else {
			ok("git available for blame")
		}

		fmt.Fprintf(w, "%s Notifications\n", cyan("→"))
		if cfg.Slack.Token != "" && cfg.Slack.Channel != "" {
			ok("slack channel %s", cfg.Slack.Channel)
		} else {
			warn("slack disabled")
		}

		if len(failures) > 0 {
			return fmt.Errorf("%d check(s) failed", len(failures))
		}
		fmt.Fprintf(w, "\n%s All checks passed\n", green("✓"))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func checkDedup(cfg *config.Config, ok, warn, fail func(string, ...any)) {
	switch cfg.Dedup.Backend {
	case config.BackendValkey:
		checkValkey(cfg, ok, fail)
	case config.BackendBadger:
		provider, err := cache.NewBadgerProvider(cache.BadgerConfig{Path: cfg.Dedup.Badger.Path})
		if err != nil {
			fail("badger at %s: %v", cfg.Dedup.Badger.Path, err)
			return
		}
		_ = provider.Close()
		ok("badger at %s", cfg.Dedup.Badger.Path)
	case config.BackendMemory:
		warn("in-memory store; duplicates are only suppressed within one process")
	case config.BackendLabel:
		ok("ticket label search")
	default:
		if cfg.Dedup.Valkey.Addr != "" {
			checkValkey(cfg, ok, fail)
			return
		}
		if cfg.Ticketing.HasCredentials() {
			ok("ticket label search")
			return
		}
		warn("no shared store; the local ledger deduplicates")
	}
}

func checkValkey(cfg *config.Config, ok, fail func(string, ...any)) {
	v := cfg.Dedup.Valkey
	_, err := cache.NewValkeyProvider(cache.ValkeyConfig{
		Addr:        v.Addr,
		Username:    v.Username,
		Password:    v.Password,
		DB:          v.DB,
		DialTimeout: v.DialTimeout,
		TLS:         v.TLS,
	})
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fail("valkey at %s timed out", v.Addr)
			return
		}
		fail("valkey at %s: %v", v.Addr, err)
		return
	}
	ok("valkey at %s", v.Addr)
}
