package metadata

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"catbot/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractHashtags(t *testing.T) {
	tags := ExtractHashtags("Monday mood 😼 #Cats #catsofinstagram #cats no#tag? #kätzchen")
	assert.Equal(t, []string{"#cats", "#catsofinstagram", "#tag", "#kätzchen"}, tags)
	assert.Nil(t, ExtractHashtags("no tags here"))
}

func TestSidecarPath(t *testing.T) {
	assert.Equal(t, filepath.Join("downloads", "123.json"), SidecarPath(filepath.Join("downloads", "123.mp4")))
	assert.Equal(t, "abc.json", SidecarPath("abc"))
}

func TestSaveAndLoad(t *testing.T) {
	dir := t.TempDir()
	mediaPath := filepath.Join(dir, "42.jpg")

	c := models.Candidate{
		Account:   "cats.daily",
		MediaID:   "42",
		Shortcode: "SC42",
		Type:      models.MediaTypeImage,
		URL:       "https://cdn.example/42.jpg",
		Caption:   "sun loaf #caturday",
		LikeCount: 1200,
		TakenAt:   time.Unix(1700000000, 0).UTC(),
	}
	require.NoError(t, FromCandidate(c, 2048, "image/jpeg", 2).Save(mediaPath))
	assert.True(t, Exists(mediaPath))

	loaded, err := Load(mediaPath)
	require.NoError(t, err)
	assert.Equal(t, "42", loaded.MediaID)
	assert.Equal(t, "cats.daily", loaded.Account)
	assert.Equal(t, []string{"#caturday"}, loaded.Hashtags)
	assert.Equal(t, 2, loaded.Attempts)
	assert.Equal(t, int64(2048), loaded.FileSize)
	assert.True(t, c.TakenAt.Equal(loaded.TakenAt))
}

func TestLoadMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.jpg"))
	assert.Error(t, err)
}

func TestTruncateCaption(t *testing.T) {
	assert.Equal(t, "short", TruncateCaption("short", 10))
	assert.Equal(t, "abcdefg...", TruncateCaption("abcdefghijklmnop", 10))
}

func TestCleanOrphaned(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.mp4"), []byte("x"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "kept.json"), []byte("{}"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "gone.json"), []byte("{}"), 0644))

	removed, err := CleanOrphaned(dir)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.FileExists(t, filepath.Join(dir, "kept.json"))
	assert.NoFileExists(t, filepath.Join(dir, "gone.json"))
}
