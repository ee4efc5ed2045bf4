package main

import (
	"fmt"
	"io"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/patterns"
)

var (
	hotspotsLimit  int
	hotspotsWindow time.Duration
)

var hotspotsCmd = &cobra.Command{
	Use:   "hotspots",
	Short: "List the most frequent failures recorded in the local ledger",
	Example: `  relay hotspots
  relay hotspots --since 24h --limit 5`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ledger := dedup.NewLedger(cfg.Ticketing.LedgerPath, logger)
		hotspots, err := patterns.NewMiner(logger, ledger).Mine(hotspotsWindow, hotspotsLimit)
		if err != nil {
			return fmt.Errorf("read ledger %s: %w", ledger.Path(), err)
		}
		printHotspots(cmd.OutOrStdout(), ledger.Path(), hotspots)
		return nil
	},
}

func init() {
	hotspotsCmd.Flags().IntVarP(&hotspotsLimit, "limit", "n", 10, "Maximum hotspots to list; 0 lists all")
	hotspotsCmd.Flags().DurationVar(&hotspotsWindow, "since", 0, "Only count ledger entries newer than this")
	rootCmd.AddCommand(hotspotsCmd)
}

func printHotspots(w io.Writer, path string, hotspots []models.Hotspot) {
	if len(hotspots) == 0 {
		fmt.Fprintf(w, "no failures recorded in %s\n", path)
		return
	}
	bold := color.New(color.Bold).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	for _, h := range hotspots {
		fp := h.Fingerprint
		if len(fp) > 12 {
			fp = fp[:12]
		}
		fmt.Fprintf(w, "%s %s  %s occurrence(s)  last %s\n",
			bold(fp), h.TicketKey, yellow(h.Total()), h.LastSeen.UTC().Format(time.RFC3339))
	}
}
