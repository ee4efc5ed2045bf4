package main

import (
	"context"
	"log/slog"
	"time"

	"github.com/miradorstack/mirador-relay/internal/archive"
	"github.com/miradorstack/mirador-relay/internal/cache"
	"github.com/miradorstack/mirador-relay/internal/config"
	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/engine"
	"github.com/miradorstack/mirador-relay/internal/extractors"
	"github.com/miradorstack/mirador-relay/internal/notify"
	"github.com/miradorstack/mirador-relay/internal/owner"
	"github.com/miradorstack/mirador-relay/internal/payload"
	"github.com/miradorstack/mirador-relay/internal/repo"
	"github.com/miradorstack/mirador-relay/internal/ticket"
)

// relay is the in-process pipeline and the resources it holds.
type relay struct {
	driver  *engine.Driver
	gateway ticket.Gateway
	jira    *repo.JiraClient
	closers []func() error
}

func (r *relay) Close() {
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			slog.Default().Warn("close failed", slog.Any("error", err))
		}
	}
}

func jiraClient(cfg *config.Config) *repo.JiraClient {
	if !cfg.Ticketing.HasCredentials() {
		return nil
	}
	return repo.NewJiraClient(repo.JiraConfig{
		BaseURL:  cfg.Ticketing.BaseURL,
		Email:    cfg.Ticketing.Email,
		Token:    cfg.Ticketing.Token,
		Project:  cfg.Ticketing.Project,
		RichText: cfg.Ticketing.RichText,
		Timeout:  cfg.Ticketing.Timeout,
	})
}

// buildRelay wires every component from cfg. Optional backends that fail to start
// degrade with a warning; only an unusable rule pack or missing required credentials
// are errors.
func buildRelay(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*relay, error) {
	r := &relay{jira: jiraClient(cfg)}
	ci := config.CISignals()

	var (
		blamer owner.Blamer
		vcs    engine.RevisionSource
	)
	if git, err := owner.NewGit(ctx); err != nil {
		logger.Debug("git unavailable; owners fall back to on-call", slog.Any("error", err))
	} else {
		blamer, vcs = git, git
	}

	var (
		tracker  ticket.Tracker
		accounts owner.AccountFinder
	)
	if r.jira != nil {
		tracker, accounts = r.jira, r.jira
	}
	resolver := owner.NewResolver(blamer, accounts, owner.Fallback(cfg.Service.OwnerDomain), 5*time.Second, logger)

	store := r.buildStore(cfg, logger)
	gateway, err := ticket.New(ticket.Config{
		Project:            cfg.Ticketing.Project,
		IssueType:          cfg.Ticketing.IssueType,
		Priority:           cfg.Ticketing.Priority,
		TTL:                cfg.Dedup.TTL,
		RequireCredentials: cfg.Ticketing.RequireCredentials,
		LedgerPath:         cfg.Ticketing.LedgerPath,
	}, tracker, store, resolver, logger)
	if err != nil {
		r.Close()
		return nil, err
	}
	r.gateway = gateway

	rules, err := engine.NewRuleEngine(cfg.Rules.Path, logger)
	if err != nil {
		r.Close()
		return nil, configError(err)
	}

	var blobs archive.BlobStore
	bucket := cfg.ArchiveBucket()
	if bucket != "" {
		gcs, err := archive.NewGCSStore(ctx, cfg.Archive.CredentialsFile)
		if err != nil {
			logger.Warn("archive storage unavailable; records will not be uploaded", slog.Any("error", err))
		} else {
			blobs = gcs
			r.closers = append(r.closers, gcs.Close)
		}
	}
	uploader := archive.NewUploader(blobs, archive.Config{
		Bucket:      bucket,
		MaxAttempts: cfg.Archive.MaxAttempts,
		BaseDelay:   cfg.Archive.BaseDelay,
		MaxJitter:   cfg.Archive.MaxJitter,
		MaxDelay:    cfg.Archive.MaxDelay,
	}, logger)

	var notifier engine.Notifier
	if slack := notify.NewSlack(notify.SlackConfig{Token: cfg.Slack.Token, Channel: cfg.Slack.Channel, APIURL: cfg.Slack.APIURL}, logger); slack != nil {
		notifier = slack
	}

	builder := payload.NewBuilder(payload.ServiceInfo{
		Name:          cfg.Service.Name,
		Version:       cfg.Service.Version,
		PipelineName:  cfg.Service.PipelineName,
		ArtifactName:  cfg.Service.ArtifactName,
		RepositoryURL: cfg.Service.RepositoryURL,
	}, ci)

	r.driver = engine.NewDriver(engine.DriverDeps{
		Gateway:   gateway,
		Builder:   builder,
		Rules:     rules,
		Extractor: extractors.NewLogsExtractor(),
		Owners:    resolver,
		VCS:       vcs,
		Archiver:  uploader,
		Bucket:    bucket,
		Notifier:  notifier,
		CI:        ci,
		Logger:    logger,
	})
	logger.Debug("relay wired",
		slog.String("mode", gateway.Mode()),
		slog.String("environment", builder.Environment()),
		slog.String("bucket", bucket),
	)
	return r, nil
}

// buildStore picks the dedup backend. Unreachable backends fail open to the next
// usable one.
func (r *relay) buildStore(cfg *config.Config, logger *slog.Logger) dedup.Store {
	ttl := cfg.Dedup.TTL
	backend := cfg.Dedup.Backend
	if backend == config.BackendAuto {
		switch {
		case cfg.Dedup.Valkey.Addr != "":
			backend = config.BackendValkey
		case r.jira != nil:
			backend = config.BackendLabel
		default:
			backend = config.BackendMemory
		}
	}

	switch backend {
	case config.BackendValkey:
		v := cfg.Dedup.Valkey
		provider, err := cache.NewValkeyProvider(cache.ValkeyConfig{
			Addr:         v.Addr,
			Username:     v.Username,
			Password:     v.Password,
			DB:           v.DB,
			DialTimeout:  v.DialTimeout,
			ReadTimeout:  v.ReadTimeout,
			WriteTimeout: v.WriteTimeout,
			MaxRetries:   v.MaxRetries,
			TLS:          v.TLS,
		})
		if err == nil {
			r.closers = append(r.closers, provider.Close)
			return dedup.NewKVStore(provider, config.BackendValkey, ttl, logger)
		}
		logger.Warn("valkey unavailable; falling back", slog.String("addr", v.Addr), slog.Any("error", err))
	case config.BackendBadger:
		provider, err := cache.NewBadgerProvider(cache.BadgerConfig{Path: cfg.Dedup.Badger.Path, Logger: logger})
		if err == nil {
			r.closers = append(r.closers, provider.Close)
			return dedup.NewKVStore(provider, config.BackendBadger, ttl, logger)
		}
		logger.Warn("badger unavailable; falling back", slog.String("path", cfg.Dedup.Badger.Path), slog.Any("error", err))
	case config.BackendMemory:
		return dedup.NewKVStore(cache.NewMemoryProvider(nil), config.BackendMemory, ttl, logger)
	}

	if r.jira != nil {
		return dedup.NewLabelStore(r.jira, ttl, logger)
	}
	return dedup.NewKVStore(cache.NewMemoryProvider(nil), config.BackendMemory, ttl, logger)
}
