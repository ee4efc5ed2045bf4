// Package harness runs build phases with a bounded retry and reports the first
// unrecoverable failure exactly once.
package harness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"

	"github.com/google/uuid"

	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/scrub"
)

// Defaults for the phase retry loop.
const (
	DefaultMaxRetries = 2
	DefaultBackoff    = time.Second
)

// ErrPhaseFailed is returned when a phase exhausts its attempts.
var ErrPhaseFailed = errors.New("phase failed")

// Phase is one named shell command.
type Phase struct {
	Name    string `yaml:"name"`
	Command string `yaml:"command"`
}

// Reporter receives unrecoverable failures.
type Reporter interface {
	Report(ctx context.Context, event models.FailureEvent) (engine.Outcome, error)
}

// ExecFunc runs command and returns its combined output.
type ExecFunc func(ctx context.Context, command string) ([]byte, error)

// PhaseResult records how a phase ended.
type PhaseResult struct {
	Name     string
	Attempts int
	Passed   bool
	Duration time.Duration
	// Outcome is set when a failed phase was reported.
	Outcome *engine.Outcome
}

// Runner executes phases in order and stops at the first one that cannot be recovered.
type Runner struct {
	reporter   Reporter
	maxRetries int
	backoff    time.Duration
	exec       ExecFunc
	sleep      func(ctx context.Context, d time.Duration) error
	traceID    string
	logger     *slog.Logger
}

// NewRunner builds a Runner. maxRetries < 0 and backoff < 0 select the defaults.
// All reports from one Runner share a trace id.
func NewRunner(reporter Reporter, maxRetries int, backoff time.Duration, logger *slog.Logger) *Runner {
	if maxRetries < 0 {
		maxRetries = DefaultMaxRetries
	}
	if backoff < 0 {
		backoff = DefaultBackoff
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		reporter:   reporter,
		maxRetries: maxRetries,
		backoff:    backoff,
		exec:       shellExec,
		sleep:      sleepContext,
		traceID:    uuid.NewString(),
		logger:     logger,
	}
}

// WithExec replaces command execution; used by tests.
func (r *Runner) WithExec(fn ExecFunc) *Runner {
	r.exec = fn
	return r
}

// WithSleep replaces the backoff wait; used by tests.
func (r *Runner) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Runner {
	r.sleep = fn
	return r
}

// WithTraceID pins the run trace id.
func (r *Runner) WithTraceID(id string) *Runner {
	if id != "" {
		r.traceID = id
	}
	return r
}

// TraceID is shared by every report of this run.
func (r *Runner) TraceID() string { return r.traceID }

// Run executes phases in order. A failed phase is reported once and returned as an
// error wrapping ErrPhaseFailed; later phases do not run.
func (r *Runner) Run(ctx context.Context, phases []Phase) ([]PhaseResult, error) {
	r.logger.Info("run started", slog.String("trace_id", r.traceID), slog.Int("phases", len(phases)))
	results := make([]PhaseResult, 0, len(phases))
	for _, phase := range phases {
		res, output, err := r.runPhase(ctx, phase)
		if err != nil {
			results = append(results, res)
			return results, err
		}
		if res.Passed {
			r.logger.Info("phase passed",
				slog.String("phase", phase.Name),
				slog.Int("attempts", res.Attempts),
				slog.Duration("duration", res.Duration),
			)
			results = append(results, res)
			continue
		}

		r.logger.Error("phase unrecoverable", slog.String("phase", phase.Name), slog.Int("attempts", res.Attempts))
		outcome, reportErr := r.reporter.Report(ctx, models.FailureEvent{
			Source:  phase.Name,
			Log:     scrub.Secrets(string(output)),
			TraceID: r.traceID,
			Command: phase.Command,
		})
		if reportErr == nil {
			res.Outcome = &outcome
		}
		results = append(results, res)
		failure := fmt.Errorf("%w: %s after %d attempts", ErrPhaseFailed, phase.Name, res.Attempts)
		if reportErr != nil {
			return results, errors.Join(failure, reportErr)
		}
		return results, failure
	}
	return results, nil
}

// runPhase returns the output of the last attempt. err is only set when ctx ends.
func (r *Runner) runPhase(ctx context.Context, phase Phase) (PhaseResult, []byte, error) {
	res := PhaseResult{Name: phase.Name}
	start := time.Now()
	var output []byte
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		res.Attempts++
		out, err := r.exec(ctx, phase.Command)
		output = out
		if err == nil {
			res.Passed = true
			break
		}
		if ctx.Err() != nil {
			res.Duration = time.Since(start)
			return res, output, ctx.Err()
		}
		if attempt == r.maxRetries {
			break
		}
		r.logger.Warn("phase failed; retrying",
			slog.String("phase", phase.Name),
			slog.Int("attempt", res.Attempts),
			slog.Int("max_retries", r.maxRetries),
			slog.Any("error", err),
		)
		if err := r.sleep(ctx, r.backoff); err != nil {
			res.Duration = time.Since(start)
			return res, output, err
		}
	}
	res.Duration = time.Since(start)
	return res, output, nil
}

func shellExec(ctx context.Context, command string) ([]byte, error) {
	return exec.CommandContext(ctx, "sh", "-c", command).CombinedOutput()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
