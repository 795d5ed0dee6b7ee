package staging

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"catbot/internal/testutil"
	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	objects map[string][]byte
	types   map[string]string
	putErr  error
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	key := aws.ToString(in.Bucket) + "/" + aws.ToString(in.Key)
	m.objects[key] = data
	m.types[key] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *memStore) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func stagingConfig() config.StagingConfig {
	return config.StagingConfig{
		Bucket:        "media",
		Prefix:        "catbot/",
		PublicBaseURL: "https://pub.example.dev/",
	}
}

func TestStageAndRemove(t *testing.T) {
	store := newMemStore()
	s := NewWithClient(store, stagingConfig(), logger.NewNopLogger())

	body := testutil.MP4(64 * 1024)
	path := testutil.WriteFile(t, t.TempDir(), "123.mp4", body)

	obj, err := s.Stage(context.Background(), models.MediaFile{Path: path, MediaID: "123", Type: models.MediaTypeVideo})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(obj.Key, "catbot/"))
	assert.True(t, strings.HasSuffix(obj.Key, ".mp4"))
	assert.Equal(t, "https://pub.example.dev/"+obj.Key, obj.URL)
	assert.Equal(t, "video/mp4", obj.MIME)
	assert.Equal(t, int64(len(body)), obj.Size)
	assert.Equal(t, body, store.objects["media/"+obj.Key])
	assert.Equal(t, "video/mp4", store.types["media/"+obj.Key])

	require.NoError(t, s.Remove(context.Background(), obj.Key))
	assert.Empty(t, store.objects)
}

func TestStageUsesFreshKeys(t *testing.T) {
	s := NewWithClient(newMemStore(), stagingConfig(), logger.NewNopLogger())
	path := testutil.WriteFile(t, t.TempDir(), "a.jpg", testutil.JPEG(2048))
	file := models.MediaFile{Path: path, MediaID: "a", Type: models.MediaTypeImage}

	first, err := s.Stage(context.Background(), file)
	require.NoError(t, err)
	second, err := s.Stage(context.Background(), file)
	require.NoError(t, err)
	assert.NotEqual(t, first.Key, second.Key)
}

func TestStageRejectsUnknownContent(t *testing.T) {
	s := NewWithClient(newMemStore(), stagingConfig(), logger.NewNopLogger())
	path := testutil.WriteFile(t, t.TempDir(), "note.jpg", testutil.Text(4096))

	_, err := s.Stage(context.Background(), models.MediaFile{Path: path})
	assert.True(t, errs.Is(err, errs.ErrorTypeValidation))
}

func TestStageUploadFailureIsRetryable(t *testing.T) {
	store := newMemStore()
	store.putErr = errors.New("connection reset")
	s := NewWithClient(store, stagingConfig(), logger.NewNopLogger())
	path := testutil.WriteFile(t, t.TempDir(), "a.png", testutil.PNG(2048))

	_, err := s.Stage(context.Background(), models.MediaFile{Path: path})
	assert.True(t, errs.IsRetryable(err))
}

func TestStageMissingFile(t *testing.T) {
	s := NewWithClient(newMemStore(), stagingConfig(), logger.NewNopLogger())
	_, err := s.Stage(context.Background(), models.MediaFile{Path: filepath.Join(t.TempDir(), "gone.jpg")})
	assert.Error(t, err)
}

func TestPublicURLEscapes(t *testing.T) {
	s := NewWithClient(newMemStore(), stagingConfig(), logger.NewNopLogger())
	assert.Equal(t, "https://pub.example.dev/catbot/a%20b.jpg", s.PublicURL("catbot/a b.jpg"))
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), config.StagingConfig{}, logger.NewNopLogger())
	assert.True(t, errs.Is(err, errs.ErrorTypeConfig))
}
