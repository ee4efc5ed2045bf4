package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// BadgerConfig configures the embedded dedup store.
type BadgerConfig struct {
	// Path is the database directory. Ignored when InMemory is set.
	Path     string
	InMemory bool
	Logger   *slog.Logger
}

// BadgerProvider implements Provider on an embedded BadgerDB, using Badger's native
// per-entry TTL for record expiry. Useful on long-lived runners without a Valkey.
type BadgerProvider struct {
	db *badger.DB
}

// NewBadgerProvider opens (or creates) the database described by cfg.
func NewBadgerProvider(cfg BadgerConfig) (*BadgerProvider, error) {
	var opts badger.Options
	switch {
	case cfg.InMemory:
		opts = badger.DefaultOptions("").WithInMemory(true)
	case cfg.Path == "":
		return nil, errors.New("badger path is required for persistent store")
	default:
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	if cfg.Logger != nil {
		opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &BadgerProvider{db: db}, nil
}

func (p *BadgerProvider) Get(_ context.Context, key string) ([]byte, error) {
	var value []byte
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrCacheMiss
	}
	return value, err
}

func (p *BadgerProvider) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(entry(key, value, ttl))
	})
}

// SetNX writes inside one serializable transaction; a concurrent writer to the same
// key makes the commit fail with badger.ErrConflict rather than overwrite.
func (p *BadgerProvider) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	stored := false
	err := p.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		switch {
		case err == nil:
			return nil
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.SetEntry(entry(key, value, ttl)); err != nil {
			return err
		}
		stored = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return stored, nil
}

// Incr keeps the expiry set when the counter was created.
func (p *BadgerProvider) Incr(_ context.Context, key string, ttl time.Duration) (int64, error) {
	var n int64
	err := p.db.Update(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			n = 1
			return txn.SetEntry(entry(key, []byte("1"), ttl))
		}
		if err != nil {
			return err
		}
		raw, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		current, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("counter %s is not an integer: %w", key, err)
		}
		n = current + 1

		remaining := time.Duration(0)
		if exp := item.ExpiresAt(); exp > 0 {
			remaining = time.Until(time.Unix(int64(exp), 0))
			if remaining <= 0 {
				remaining = time.Second
			}
		}
		return txn.SetEntry(entry(key, []byte(strconv.FormatInt(n, 10)), remaining))
	})
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (p *BadgerProvider) Del(_ context.Context, key string) error {
	return p.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

func (p *BadgerProvider) Close() error {
	return p.db.Close()
}

func entry(key string, value []byte, ttl time.Duration) *badger.Entry {
	e := badger.NewEntry([]byte(key), value)
	if ttl > 0 {
		e = e.WithTTL(ttl)
	}
	return e
}

// badgerLogger routes Badger's internal logging through slog.
type badgerLogger struct {
	logger *slog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}
