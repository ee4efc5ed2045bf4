package ticket

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/miradorstack/mirador-relay/internal/cache"
	"github.com/miradorstack/mirador-relay/internal/dedup"
	"github.com/miradorstack/mirador-relay/internal/document"
	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
	memcache "github.com/miradorstack/mirador-relay/pkg/cache"
)

type fakeTracker struct {
	mu        sync.Mutex
	created   []models.Ticket
	comments  map[string]int
	createErr error
}

func (f *fakeTracker) CreateIssue(_ context.Context, t models.Ticket, _ document.Document) (models.TicketRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return models.TicketRef{}, f.createErr
	}
	f.created = append(f.created, t)
	key := fmt.Sprintf("%s-%d", t.Project, len(f.created))
	return models.TicketRef{Key: key, URL: "https://jira.example/browse/" + key}, nil
}

func (f *fakeTracker) AddComment(_ context.Context, key string, _ document.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.comments == nil {
		f.comments = map[string]int{}
	}
	f.comments[key]++
	return nil
}

func (f *fakeTracker) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := len(f.created)
	for _, c := range f.comments {
		n += c
	}
	return n
}

type fixedAccounts map[string]string

func (a fixedAccounts) FindAccount(_ context.Context, email string) (string, bool) {
	id, ok := a[email]
	return id, ok
}

func incident(source, log string) Incident {
	return Incident{
		Event:       models.FailureEvent{Source: source, Log: log, TraceID: "trace-1"},
		Fingerprint: dedup.Fingerprint(source, log),
		Summary:     "Fix [" + source + "] " + log,
		Owner:       models.Owner{Name: "Dev", Email: "dev@example.com"},
	}
}

func TestNetworkGatewayCreatesOnceThenComments(t *testing.T) {
	tracker := &fakeTracker{}
	store := dedup.NewKVStore(cache.NewMemoryProvider(nil), "memory", 0, utils.DiscardLogger())
	gw := NewNetworkGateway(Config{Project: "OPS"}, tracker, store, fixedAccounts{"dev@example.com": "acc-1"}, utils.DiscardLogger())
	ctx := context.Background()

	const n = 4
	var keys []string
	for i := 0; i < n; i++ {
		res, err := gw.Report(ctx, incident("unit-tests", "AssertionError: expected 1"))
		require.NoError(t, err)
		keys = append(keys, res.Ref.Key)
		assert.Equal(t, i == 0, res.Created)
		assert.Equal(t, int64(i+1), res.Occurrence)
	}

	require.Len(t, tracker.created, 1)
	assert.Equal(t, n-1, tracker.comments["OPS-1"])
	for _, k := range keys {
		assert.Equal(t, "OPS-1", k)
	}

	created := tracker.created[0]
	assert.Equal(t, "Bug", created.IssueType)
	assert.Equal(t, "Highest", created.Priority)
	assert.Equal(t, "acc-1", created.Assignee)
	assert.Contains(t, created.Labels, dedup.Label(dedup.Fingerprint("unit-tests", "AssertionError: expected 1")))
	assert.Contains(t, created.Labels, "build-failure")
}

func TestNetworkGatewayDistinctFingerprints(t *testing.T) {
	tracker := &fakeTracker{}
	store := dedup.NewKVStore(cache.NewMemoryProvider(nil), "memory", 0, utils.DiscardLogger())
	gw := NewNetworkGateway(Config{}, tracker, store, nil, utils.DiscardLogger())

	a, err := gw.Report(context.Background(), incident("lint", "E501 line too long"))
	require.NoError(t, err)
	b, err := gw.Report(context.Background(), incident("lint", "E302 expected 2 blank lines"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Ref.Key, b.Ref.Key)
	assert.Len(t, tracker.created, 2)
	assert.Empty(t, tracker.created[0].Assignee)
}

func TestNetworkGatewayNewTicketAfterExpiry(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	provider := cache.NewMemoryProvider(memcache.NewMemoryCacheWithClock(clock))
	store := dedup.NewKVStore(provider, "memory", time.Hour, utils.DiscardLogger())
	tracker := &fakeTracker{}
	gw := NewNetworkGateway(Config{TTL: time.Hour}, tracker, store, nil, utils.DiscardLogger())
	ctx := context.Background()

	first, err := gw.Report(ctx, incident("api", "Timeout"))
	require.NoError(t, err)
	now = now.Add(2 * time.Hour)
	second, err := gw.Report(ctx, incident("api", "Timeout"))
	require.NoError(t, err)

	assert.True(t, second.Created)
	assert.NotEqual(t, first.Ref.Key, second.Ref.Key)
	assert.Len(t, tracker.created, 2)
}

func TestSummaryGateRejectsBeforeAnyCall(t *testing.T) {
	tracker := &fakeTracker{}
	store := dedup.NewKVStore(cache.NewMemoryProvider(nil), "memory", 0, utils.DiscardLogger())
	gw := NewNetworkGateway(Config{}, tracker, store, nil, utils.DiscardLogger())

	in := incident("api", "Timeout")
	in.Summary = "BadSummary"
	_, err := gw.Report(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrSchemaViolation)
	assert.Zero(t, tracker.calls())

	assert.NoError(t, ValidateSummary("Fix [API] Timeout"))
	assert.Error(t, ValidateSummary("Fix [API]"))
	assert.Error(t, ValidateSummary(""))
}

func TestNetworkGatewayCreateFailure(t *testing.T) {
	tracker := &fakeTracker{createErr: errors.New("400 Bad Request: field 'priority' is invalid")}
	store := dedup.NewKVStore(cache.NewMemoryProvider(nil), "memory", 0, utils.DiscardLogger())
	gw := NewNetworkGateway(Config{}, tracker, store, nil, utils.DiscardLogger())

	in := incident("api", "Timeout")
	_, err := gw.Report(context.Background(), in)
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrTicketCreate)
	assert.Contains(t, err.Error(), "field 'priority' is invalid")

	_, ok := store.Lookup(context.Background(), in.Fingerprint)
	assert.False(t, ok, "failed create leaves no dedup record")
}

func TestLedgerGatewayDegradedMode(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.jsonl")
	gw, err := New(Config{Project: "OPS", LedgerPath: path}, nil, nil, nil, utils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, ModeLedger, gw.Mode())

	in := incident("build", "undefined: foo")
	first, err := gw.Report(context.Background(), in)
	require.NoError(t, err)
	assert.True(t, first.Created)
	assert.Equal(t, "OPS-LOCAL-"+in.Fingerprint[:8]+"-1", first.Ref.Key)

	again, err := gw.Report(context.Background(), in)
	require.NoError(t, err)
	assert.False(t, again.Created)
	assert.Equal(t, first.Ref.Key, again.Ref.Key)
	assert.Equal(t, int64(2), again.Occurrence)
}

func TestNewRequiresCredentialsWhenConfigured(t *testing.T) {
	_, err := New(Config{RequireCredentials: true}, nil, nil, nil, utils.DiscardLogger())
	require.Error(t, err)
	assert.ErrorIs(t, err, utils.ErrAuthenticationMissing)

	gw, err := New(Config{}, &fakeTracker{}, dedup.NewKVStore(nil, "noop", 0, nil), nil, utils.DiscardLogger())
	require.NoError(t, err)
	assert.Equal(t, ModeNetwork, gw.Mode())
}

func TestLabels(t *testing.T) {
	labels := Labels("abc", "ci failure", "build-failure", "")
	assert.Equal(t, []string{"fp:abc", "auto-generated", "build-failure", "blocking", "ci-failure"}, labels)
}

func TestRecurrenceComment(t *testing.T) {
	in := incident("api", "Timeout")
	in.RunURL = "https://github.com/o/r/actions/runs/1"
	doc := RecurrenceComment(time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC), in, 3)
	text := document.PlainText(doc)
	assert.Contains(t, text, "Recurrence detected at 2026-03-01T00:00:00Z")
	assert.Contains(t, text, "Trace ID: trace-1")
	assert.Contains(t, text, "Occurrence: 3")
	assert.Contains(t, text, "https://github.com/o/r/actions/runs/1")
}
