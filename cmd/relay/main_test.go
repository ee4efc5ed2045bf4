package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-relay/internal/config"
	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(configError(errors.New("bad yaml"))))
	assert.Equal(t, 2, exitCode(fmt.Errorf("wrap: %w", config.ErrInvalid)))
	assert.Equal(t, 2, exitCode(utils.NewAppError("ticket.New", "missing", utils.ErrAuthenticationMissing)))
	assert.Equal(t, 1, exitCode(utils.ErrTicketCreate))
}

func TestResolvePhases(t *testing.T) {
	cfg = &config.Config{Harness: config.HarnessConfig{Phases: []config.Phase{{Name: "test", Command: "go test ./..."}}}}

	phases, err := resolvePhases([]string{"lint=golangci-lint run"}, []string{"make", "release"})
	require.NoError(t, err)
	require.Len(t, phases, 2)
	assert.Equal(t, "lint", phases[0].Name)
	assert.Equal(t, "golangci-lint run", phases[0].Command)
	assert.Equal(t, "make release", phases[1].Command)

	phases, err = resolvePhases(nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "go test ./...", phases[0].Command)

	_, err = resolvePhases([]string{"no-command"}, nil)
	assert.Error(t, err)

	cfg = &config.Config{}
	_, err = resolvePhases(nil, nil)
	assert.Error(t, err)
}

func TestReadLog(t *testing.T) {
	log, err := readLog(strings.NewReader("from stdin"), "-")
	require.NoError(t, err)
	assert.Equal(t, "from stdin", log)

	path := filepath.Join(t.TempDir(), "build.log")
	require.NoError(t, os.WriteFile(path, []byte("from file"), 0o644))
	log, err = readLog(nil, path)
	require.NoError(t, err)
	assert.Equal(t, "from file", log)

	_, err = readLog(nil, filepath.Join(t.TempDir(), "missing.log"))
	assert.Error(t, err)
}

func TestPrintOutcome(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printOutcome(&buf, engine.Outcome{TicketKey: "OPS-1", Created: true, Fingerprint: "abc", TicketURL: "https://jira/browse/OPS-1"})
	assert.Contains(t, buf.String(), "Created OPS-1")
	assert.Contains(t, buf.String(), "https://jira/browse/OPS-1")

	buf.Reset()
	printOutcome(&buf, engine.Outcome{TicketKey: "OPS-LOCAL-abc-1", Occurrence: 3, Mode: "ledger"})
	assert.Contains(t, buf.String(), "Recurrence of OPS-LOCAL-abc-1 (occurrence 3)")
	assert.Contains(t, buf.String(), "mode: ledger")
}

func TestPrintHotspots(t *testing.T) {
	color.NoColor = true
	var buf bytes.Buffer
	printHotspots(&buf, "ledger.jsonl", nil)
	assert.Contains(t, buf.String(), "no failures recorded in ledger.jsonl")

	buf.Reset()
	printHotspots(&buf, "ledger.jsonl", []models.Hotspot{{
		Fingerprint: "0123456789abcdef",
		TicketKey:   "OPS-7",
		Incidents:   1,
		Recurrences: 2,
		LastSeen:    time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}})
	assert.Equal(t, "0123456789ab OPS-7  3 occurrence(s)  last 2026-03-01T12:00:00Z\n", buf.String())
}
