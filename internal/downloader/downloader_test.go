package downloader

import (
	"context"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"catbot/internal/testutil"
	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/instagram"
	"catbot/pkg/logger"
	"catbot/pkg/metadata"
	"catbot/pkg/models"
	"catbot/pkg/retry"
	"catbot/pkg/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedSource returns one body or error per call
type scriptedSource struct {
	bodies [][]byte
	errors []error
	calls  int32
}

func (s *scriptedSource) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	i := int(atomic.AddInt32(&s.calls, 1)) - 1
	if i < len(s.errors) && s.errors[i] != nil {
		w.Write([]byte("partial"))
		return 7, s.errors[i]
	}
	body := s.bodies[len(s.bodies)-1]
	if i < len(s.bodies) {
		body = s.bodies[i]
	}
	n, err := w.Write(body)
	return int64(n), err
}

func newDownloader(t *testing.T, source MediaSource) (*Downloader, *storage.Manager) {
	t.Helper()
	store, err := storage.NewManager(t.TempDir(), "", "")
	require.NoError(t, err)
	cfg := Config{Attempts: 3, Backoff: &retry.ConstantBackoff{Delay: 0}}
	return New(source, store, cfg, logger.NewNopLogger()), store
}

func candidate(id string, mediaType models.MediaType) models.Candidate {
	return models.Candidate{
		Account:   "cats.daily",
		MediaID:   id,
		Type:      mediaType,
		URL:       "https://cdn.example/" + id,
		Caption:   "loaf #cats",
		LikeCount: 2000,
	}
}

func listDir(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFetchImage(t *testing.T) {
	source := &scriptedSource{bodies: [][]byte{testutil.JPEG(4096)}}
	d, store := newDownloader(t, source)

	file, err := d.Fetch(context.Background(), candidate("111", models.MediaTypeImage))
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(store.DownloadsDir(), "111.jpg"), file.Path)
	assert.Equal(t, models.MediaTypeImage, file.Type)
	assert.Equal(t, int64(4096), file.Size)
	assert.Equal(t, models.OriginSource, file.Origin)
	assert.Equal(t, "cats.daily", file.Account)

	side, err := metadata.Load(file.Path)
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", side.MIME)
	assert.Equal(t, []string{"#cats"}, side.Hashtags)
	assert.Equal(t, 1, side.Attempts)
}

func TestFetchRetriesTransientFailures(t *testing.T) {
	source := &scriptedSource{
		errors: []error{errs.New(errs.ErrorTypeNetwork, 0, "reset"), nil},
		bodies: [][]byte{nil, testutil.MP4(60 * 1024)},
	}
	d, store := newDownloader(t, source)

	file, err := d.Fetch(context.Background(), candidate("222", models.MediaTypeVideo))
	require.NoError(t, err)
	assert.Equal(t, models.MediaTypeVideo, file.Type)
	assert.Equal(t, int32(2), atomic.LoadInt32(&source.calls))
	assert.ElementsMatch(t, []string{"222.mp4", "222.json"}, listDir(t, store.DownloadsDir()))

	side, err := metadata.Load(file.Path)
	require.NoError(t, err)
	assert.Equal(t, 2, side.Attempts)
}

func TestFetchRejectsTooSmallVideo(t *testing.T) {
	source := &scriptedSource{bodies: [][]byte{testutil.MP4(10 * 1024)}}
	d, store := newDownloader(t, source)

	_, err := d.Fetch(context.Background(), candidate("333", models.MediaTypeVideo))
	require.Error(t, err)
	assert.True(t, errs.Is(err, errs.ErrorTypeValidation))
	assert.Equal(t, int32(3), atomic.LoadInt32(&source.calls))
	assert.Empty(t, listDir(t, store.DownloadsDir()), "partial files must be removed")
}

func TestFetchRejectsWrongContent(t *testing.T) {
	source := &scriptedSource{bodies: [][]byte{testutil.Text(8000)}}
	d, store := newDownloader(t, source)

	_, err := d.Fetch(context.Background(), candidate("444", models.MediaTypeImage))
	require.Error(t, err)
	assert.Empty(t, listDir(t, store.DownloadsDir()))
}

func TestFetchRejectsTypeMismatch(t *testing.T) {
	source := &scriptedSource{bodies: [][]byte{testutil.JPEG(4096)}}
	d, _ := newDownloader(t, source)

	_, err := d.Fetch(context.Background(), candidate("555", models.MediaTypeVideo))
	assert.True(t, errs.Is(err, errs.ErrorTypeValidation))
}

func TestFetchDoesNotRetryAuth(t *testing.T) {
	source := &scriptedSource{errors: []error{errs.New(errs.ErrorTypeAuth, 403, "forbidden")}, bodies: [][]byte{nil}}
	d, store := newDownloader(t, source)

	_, err := d.Fetch(context.Background(), candidate("666", models.MediaTypeImage))
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
	assert.Equal(t, int32(1), atomic.LoadInt32(&source.calls))
	assert.Empty(t, listDir(t, store.DownloadsDir()))
}

func TestFetchMissingURL(t *testing.T) {
	d, _ := newDownloader(t, &scriptedSource{})
	c := candidate("777", models.MediaTypeImage)
	c.URL = ""

	_, err := d.Fetch(context.Background(), c)
	assert.True(t, errs.Is(err, errs.ErrorTypeValidation))
}

func TestFetchFromSourceClient(t *testing.T) {
	srv := testutil.NewSourceServer()
	defer srv.Close()
	srv.SetPosts("cats.daily",
		testutil.Post{ID: "888", Likes: 5000, Body: testutil.PNG(2048), TakenAt: 10},
		testutil.Post{ID: "999", Likes: 5000, TakenAt: 5},
	)
	srv.FailMedia("999", http.StatusNotFound)

	client := instagram.NewClient(config.SourceConfig{BaseURL: srv.URL()}, nil, logger.NewNopLogger())
	media, err := client.RecentMedia(context.Background(), "cats.daily", 12)
	require.NoError(t, err)
	require.Len(t, media, 2)

	d, store := newDownloader(t, client)
	file, err := d.Fetch(context.Background(), media[0])
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(store.DownloadsDir(), "888.png"), file.Path)

	_, err = d.Fetch(context.Background(), media[1])
	assert.True(t, errs.Is(err, errs.ErrorTypeNotFound))
}
