package poster

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	errs "catbot/pkg/errors"
	"catbot/pkg/ledger"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/retry"
	"catbot/pkg/staging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	createErrs  []error
	publishErrs []error
	waitErr     error
	creates     int
	publishes   int
	waits       int
	lastURL     string
	lastType    models.MediaType
}

func (f *fakePublisher) CreateContainer(ctx context.Context, mediaURL string, mediaType models.MediaType, caption string) (string, error) {
	f.creates++
	f.lastURL, f.lastType = mediaURL, mediaType
	if len(f.createErrs) > 0 {
		err := f.createErrs[0]
		f.createErrs = f.createErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "container-1", nil
}

func (f *fakePublisher) WaitForContainer(ctx context.Context, containerID string) error {
	f.waits++
	return f.waitErr
}

func (f *fakePublisher) Publish(ctx context.Context, containerID string) (string, error) {
	f.publishes++
	if len(f.publishErrs) > 0 {
		err := f.publishErrs[0]
		f.publishErrs = f.publishErrs[1:]
		if err != nil {
			return "", err
		}
	}
	return "ig-555", nil
}

type fakeStager struct {
	staged  int
	removed []string
	err     error
}

func (f *fakeStager) Stage(ctx context.Context, file models.MediaFile) (staging.Object, error) {
	if f.err != nil {
		return staging.Object{}, f.err
	}
	f.staged++
	return staging.Object{Key: "catbot/k1.mp4", URL: "https://pub.example/catbot/k1.mp4"}, nil
}

func (f *fakeStager) Remove(ctx context.Context, key string) error {
	f.removed = append(f.removed, key)
	return nil
}

type memRecorder struct{ records []models.PostRecord }

func (m *memRecorder) RecordPost(ctx context.Context, rec *models.PostRecord) error {
	m.records = append(m.records, *rec)
	return nil
}

type failingLedger struct{}

func (failingLedger) Append(string, time.Time) error { return errors.New("disk full") }

func openLedger(t *testing.T) *ledger.Ledger {
	t.Helper()
	l, err := ledger.Open(filepath.Join(t.TempDir(), "posted_media.json"), logger.NewNopLogger())
	require.NoError(t, err)
	return l
}

func liveOptions() Options {
	return Options{MaxAttempts: 3, Backoff: &retry.ConstantBackoff{Delay: 0}}
}

var videoFile = models.MediaFile{Path: "downloads/v1.mp4", MediaID: "v1", Account: "cats.daily", Type: models.MediaTypeVideo}

func TestPostPublishes(t *testing.T) {
	pub, stager, rec, led := &fakePublisher{}, &fakeStager{}, &memRecorder{}, openLedger(t)
	p := New(pub, stager, led, rec, liveOptions(), logger.NewNopLogger())

	res, err := p.Post(context.Background(), videoFile, "zoomies #cats")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "ig-555", res.PublishedID)

	assert.Equal(t, "https://pub.example/catbot/k1.mp4", pub.lastURL)
	assert.Equal(t, models.MediaTypeVideo, pub.lastType)
	assert.Equal(t, 1, pub.waits, "video containers are polled")
	assert.Equal(t, []string{"catbot/k1.mp4"}, stager.removed)

	assert.True(t, led.Contains("v1"))
	require.Len(t, rec.records, 1)
	assert.Equal(t, models.OutcomeSuccess, rec.records[0].Outcome)
	assert.Equal(t, "ig-555", rec.records[0].PublishedID)
	assert.Equal(t, "cats.daily", rec.records[0].Account)
}

func TestPostImageSkipsPolling(t *testing.T) {
	pub := &fakePublisher{}
	p := New(pub, &fakeStager{}, openLedger(t), nil, liveOptions(), logger.NewNopLogger())

	_, err := p.Post(context.Background(), models.MediaFile{MediaID: "i1", Type: models.MediaTypeImage}, "loaf")
	require.NoError(t, err)
	assert.Equal(t, 0, pub.waits)
}

func TestPostRetriesRateLimit(t *testing.T) {
	pub := &fakePublisher{
		createErrs:  []error{errs.New(errs.ErrorTypeRateLimit, 4, "slow down"), nil},
		publishErrs: []error{errs.New(errs.ErrorTypeServerError, 500, "oops"), nil},
	}
	led := openLedger(t)
	p := New(pub, &fakeStager{}, led, nil, liveOptions(), logger.NewNopLogger())

	res, err := p.Post(context.Background(), videoFile, "c")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, 2, pub.creates)
	assert.Equal(t, 2, pub.publishes)
	assert.True(t, led.Contains("v1"))
}

func TestPostRateLimitExhausted(t *testing.T) {
	limited := errs.New(errs.ErrorTypeRateLimit, 613, "too many posts")
	pub := &fakePublisher{createErrs: []error{limited, limited, limited, limited}}
	rec, led := &memRecorder{}, openLedger(t)
	stager := &fakeStager{}
	p := New(pub, stager, led, rec, liveOptions(), logger.NewNopLogger())

	res, err := p.Post(context.Background(), videoFile, "c")
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeRateLimit))
	assert.False(t, errs.IsFatal(err))
	assert.Equal(t, 3, pub.creates)
	assert.Equal(t, models.OutcomeFailure, res.Outcome)

	assert.False(t, led.Contains("v1"))
	require.Len(t, rec.records, 1)
	assert.Equal(t, models.OutcomeFailure, rec.records[0].Outcome)
	assert.NotEmpty(t, rec.records[0].Error)
	assert.Equal(t, []string{"catbot/k1.mp4"}, stager.removed, "staged object is removed on failure too")
}

func TestPostAuthFailureIsFatal(t *testing.T) {
	pub := &fakePublisher{createErrs: []error{errs.New(errs.ErrorTypeAuth, 190, "token expired")}}
	p := New(pub, &fakeStager{}, openLedger(t), &memRecorder{}, liveOptions(), logger.NewNopLogger())

	_, err := p.Post(context.Background(), videoFile, "c")
	require.Error(t, err)
	assert.True(t, errs.IsFatal(err))
	assert.Equal(t, 1, pub.creates, "auth failures are never retried")
	assert.Equal(t, 0, pub.publishes)
}

func TestPostContainerProcessingFails(t *testing.T) {
	pub := &fakePublisher{waitErr: errs.New(errs.ErrorTypeValidation, 0, "ERROR")}
	p := New(pub, &fakeStager{}, openLedger(t), nil, liveOptions(), logger.NewNopLogger())

	_, err := p.Post(context.Background(), videoFile, "c")
	require.Error(t, err)
	assert.Equal(t, 0, pub.publishes)
}

func TestPostStagingFailure(t *testing.T) {
	stager := &fakeStager{err: errs.New(errs.ErrorTypeValidation, 0, "unknown type")}
	pub := &fakePublisher{}
	p := New(pub, stager, openLedger(t), nil, liveOptions(), logger.NewNopLogger())

	_, err := p.Post(context.Background(), videoFile, "c")
	require.Error(t, err)
	assert.Equal(t, 0, pub.creates)
	assert.Empty(t, stager.removed)
}

func TestPostTestingMode(t *testing.T) {
	pub, stager, rec, led := &fakePublisher{}, &fakeStager{}, &memRecorder{}, openLedger(t)
	p := New(pub, stager, led, rec, Options{TestingMode: true}, logger.NewNopLogger())
	assert.True(t, p.TestingMode())

	res, err := p.Post(context.Background(), videoFile, "simulated caption")
	require.NoError(t, err)
	assert.Equal(t, models.OutcomeSimulated, res.Outcome)
	assert.Equal(t, 0, stager.staged)
	assert.Equal(t, 0, pub.creates)
	assert.True(t, led.Contains("v1"))
	require.Len(t, rec.records, 1)
	assert.Equal(t, models.OutcomeSimulated, rec.records[0].Outcome)
}

func TestPostNotConfigured(t *testing.T) {
	p := New(nil, nil, openLedger(t), nil, liveOptions(), logger.NewNopLogger())
	_, err := p.Post(context.Background(), videoFile, "c")
	assert.True(t, errs.Is(err, errs.ErrorTypeConfig))
}

func TestPostLedgerFailure(t *testing.T) {
	rec := &memRecorder{}
	p := New(&fakePublisher{}, &fakeStager{}, failingLedger{}, rec, liveOptions(), logger.NewNopLogger())

	res, err := p.Post(context.Background(), videoFile, "c")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrLedger)
	assert.Equal(t, models.OutcomeSuccess, res.Outcome)
	assert.Equal(t, "ig-555", res.PublishedID)
	require.Len(t, rec.records, 1)
	assert.Equal(t, "ig-555", rec.records[0].PublishedID)
	assert.Contains(t, rec.records[0].Error, "ledger")
}
