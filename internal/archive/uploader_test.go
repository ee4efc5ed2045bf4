package archive

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/miradorstack/mirador-relay/internal/models"
	"github.com/miradorstack/mirador-relay/internal/utils"
)

type fakeStore struct {
	errs    []error
	calls   int
	bucket  string
	object  string
	ctype   string
	content []byte
}

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, content []byte, contentType string) error {
	f.calls++
	f.bucket, f.object, f.ctype, f.content = bucket, object, contentType, content
	if len(f.errs) == 0 {
		return nil
	}
	err := f.errs[0]
	f.errs = f.errs[1:]
	return err
}

func recordingSleep(waits *[]time.Duration) func(context.Context, time.Duration) error {
	return func(_ context.Context, d time.Duration) error {
		*waits = append(*waits, d)
		return nil
	}
}

func halfJitter(max time.Duration) time.Duration { return max / 2 }

func TestUploadSucceedsFirstTry(t *testing.T) {
	store := &fakeStore{}
	u := NewUploader(store, Config{Bucket: "default-bucket"}, utils.DiscardLogger())

	url, ok := u.Upload(context.Background(), models.IncidentRecord{TraceID: "t-1", SchemaVersion: models.IncidentSchemaVersion}, "", "t-1")
	require.True(t, ok)
	assert.Equal(t, "https://storage.cloud.google.com/default-bucket/trace_t-1.json", url)
	assert.Equal(t, 1, store.calls)
	assert.Equal(t, ContentType, store.ctype)

	var decoded models.IncidentRecord
	require.NoError(t, json.Unmarshal(store.content, &decoded))
	assert.Equal(t, models.IncidentSchemaVersion, decoded.SchemaVersion)
}

func TestUploadRetryBound(t *testing.T) {
	transient := errors.New("connection reset")
	store := &fakeStore{errs: []error{transient, transient, transient}}
	var waits []time.Duration
	u := NewUploader(store, Config{Bucket: "b"}, utils.DiscardLogger()).
		WithSleep(recordingSleep(&waits)).
		WithJitter(halfJitter)

	url, ok := u.Upload(context.Background(), models.IncidentRecord{}, "", "t")
	assert.False(t, ok)
	assert.Empty(t, url)
	assert.Equal(t, 3, store.calls)
	require.Len(t, waits, 2)
	assert.Less(t, waits[0], waits[1], "waits must strictly increase")
	assert.Equal(t, 1500*time.Millisecond, waits[0])
	assert.Equal(t, 2500*time.Millisecond, waits[1])
}

func TestUploadRecoversAfterTransientFailure(t *testing.T) {
	store := &fakeStore{errs: []error{&googleapi.Error{Code: http.StatusTooManyRequests}}}
	var waits []time.Duration
	u := NewUploader(store, Config{}, utils.DiscardLogger()).WithSleep(recordingSleep(&waits))

	url, ok := u.Upload(context.Background(), models.IncidentRecord{}, "explicit", "t")
	require.True(t, ok)
	assert.Equal(t, "https://storage.cloud.google.com/explicit/trace_t.json", url)
	assert.Equal(t, 2, store.calls)
	assert.Len(t, waits, 1)
}

func TestUploadStopsOnPermanentError(t *testing.T) {
	store := &fakeStore{errs: []error{&googleapi.Error{Code: http.StatusForbidden}}}
	var waits []time.Duration
	u := NewUploader(store, Config{Bucket: "b"}, utils.DiscardLogger()).WithSleep(recordingSleep(&waits))

	_, ok := u.Upload(context.Background(), models.IncidentRecord{}, "", "t")
	assert.False(t, ok)
	assert.Equal(t, 1, store.calls)
	assert.Empty(t, waits)
}

func TestUploadSkipsWithoutBucketOrStore(t *testing.T) {
	store := &fakeStore{}
	_, ok := NewUploader(store, Config{}, utils.DiscardLogger()).Upload(context.Background(), models.IncidentRecord{}, "", "t")
	assert.False(t, ok)
	assert.Zero(t, store.calls)

	_, ok = NewUploader(nil, Config{Bucket: "b"}, utils.DiscardLogger()).Upload(context.Background(), models.IncidentRecord{}, "", "t")
	assert.False(t, ok)
}

func TestObjectNaming(t *testing.T) {
	assert.Equal(t, "trace_abc-123.json", ObjectName("abc-123"))
	assert.Equal(t, "trace_a_b.json", ObjectName("a/b"))
	assert.Equal(t, "antigravity-logging-proj", DefaultBucket("proj"))
	assert.Empty(t, DefaultBucket(""))
}

func TestIsPermanent(t *testing.T) {
	assert.True(t, IsPermanent(&googleapi.Error{Code: http.StatusNotFound}))
	assert.False(t, IsPermanent(&googleapi.Error{Code: http.StatusRequestTimeout}))
	assert.False(t, IsPermanent(&googleapi.Error{Code: http.StatusServiceUnavailable}))
	assert.False(t, IsPermanent(errors.New("eof")))
}
