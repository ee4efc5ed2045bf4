// Package archive persists incident records to durable blob storage.
package archive

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/miradorstack/mirador-relay/internal/metrics"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

// ContentType of archived records.
const ContentType = "application/json"

// Config tunes the upload retry loop.
type Config struct {
	Bucket      string
	MaxAttempts int
	BaseDelay   time.Duration
	MaxJitter   time.Duration
	MaxDelay    time.Duration
}

// DefaultBucket names the bucket used when only a GCP project is configured.
func DefaultBucket(project string) string {
	if project == "" {
		return ""
	}
	return "antigravity-logging-" + project
}

// ObjectName is the deterministic object path for a trace, so re-uploads overwrite.
func ObjectName(traceID string) string {
	safe := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			return r
		default:
			return '_'
		}
	}, traceID)
	return "trace_" + safe + ".json"
}

// ObjectURL is the browser URL of an archived object.
func ObjectURL(bucket, object string) string {
	return "https://storage.cloud.google.com/" + bucket + "/" + object
}

// Uploader writes incident records with bounded retries and jittered exponential backoff.
type Uploader struct {
	store  BlobStore
	cfg    Config
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func(max time.Duration) time.Duration
	logger *slog.Logger
}

// NewUploader returns an Uploader. A nil store makes every upload a logged skip.
func NewUploader(store BlobStore, cfg Config, logger *slog.Logger) *Uploader {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = time.Second
	}
	if cfg.MaxJitter <= 0 {
		cfg.MaxJitter = time.Second
	}
	if cfg.MaxDelay <= 0 {
		cfg.MaxDelay = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Uploader{
		store:  store,
		cfg:    cfg,
		sleep:  sleepContext,
		jitter: randomJitter,
		logger: logger,
	}
}

// WithSleep replaces the wait between attempts; used by tests.
func (u *Uploader) WithSleep(fn func(ctx context.Context, d time.Duration) error) *Uploader {
	u.sleep = fn
	return u
}

// WithJitter replaces the jitter source; used by tests.
func (u *Uploader) WithJitter(fn func(max time.Duration) time.Duration) *Uploader {
	u.jitter = fn
	return u
}

// Upload archives record under trace_<traceID>.json in destination, falling back to the
// configured bucket. It never fails the caller: a missing destination or store, or an
// exhausted retry budget, yields ("", false) and a warning.
func (u *Uploader) Upload(ctx context.Context, record models.IncidentRecord, destination, traceID string) (string, bool) {
	bucket := destination
	if bucket == "" {
		bucket = u.cfg.Bucket
	}
	if u.store == nil || bucket == "" {
		u.logger.Info("archive upload skipped; no bucket or storage client configured")
		metrics.ObserveArchiveUpload(metrics.UploadSkipped)
		return "", false
	}

	content, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		u.logger.Warn("archive upload skipped; record not serialisable", slog.Any("error", err))
		metrics.ObserveArchiveUpload(metrics.UploadFailure)
		return "", false
	}
	object := ObjectName(traceID)

	var lastErr error
	attempts := 0
	for attempt := 0; attempt < u.cfg.MaxAttempts; attempt++ {
		attempts++
		lastErr = u.store.PutObject(ctx, bucket, object, content, ContentType)
		if lastErr == nil {
			url := ObjectURL(bucket, object)
			u.logger.Info("incident record archived", slog.String("url", url), slog.Int("attempts", attempts))
			metrics.ObserveArchiveUpload(metrics.UploadSuccess)
			return url, true
		}
		if IsPermanent(lastErr) || attempt == u.cfg.MaxAttempts-1 {
			break
		}
		wait := u.backoff(attempt)
		u.logger.Warn("archive upload failed; retrying",
			slog.Int("attempt", attempts),
			slog.Duration("wait", wait),
			slog.Any("error", lastErr),
		)
		if err := u.sleep(ctx, wait); err != nil {
			lastErr = err
			break
		}
	}

	u.logger.Warn("archive upload abandoned",
		slog.String("bucket", bucket),
		slog.String("object", object),
		slog.Int("attempts", attempts),
		slog.Any("error", fmt.Errorf("%w: %v", utils.ErrUploadFailed, lastErr)),
	)
	metrics.ObserveArchiveUpload(metrics.UploadFailure)
	return "", false
}

// backoff is 2^attempt * base plus jitter in [0, MaxJitter), capped at MaxDelay.
func (u *Uploader) backoff(attempt int) time.Duration {
	wait := time.Duration(1<<attempt)*u.cfg.BaseDelay + u.jitter(u.cfg.MaxJitter)
	return utils.ClampDuration(wait, u.cfg.MaxDelay)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func randomJitter(max time.Duration) time.Duration {
	if max <= 0 {
		return 0
	}
	return rand.N(max)
}
