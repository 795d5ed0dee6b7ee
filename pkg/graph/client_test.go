package graph

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGraph records requests and serves canned Graph API answers
type fakeGraph struct {
	mu       sync.Mutex
	payloads map[string][]map[string]interface{}
	statuses []string
	handler  func(w http.ResponseWriter, r *http.Request) bool
}

func (f *fakeGraph) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if f.handler != nil && f.handler(w, r) {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method == http.MethodPost {
		var payload map[string]interface{}
		json.NewDecoder(r.Body).Decode(&payload)
		f.payloads[r.URL.Path] = append(f.payloads[r.URL.Path], payload)
	}

	switch r.URL.Path {
	case "/v21.0/1784/media":
		json.NewEncoder(w).Encode(map[string]string{"id": "container-1"})
	case "/v21.0/1784/media_publish":
		json.NewEncoder(w).Encode(map[string]string{"id": "published-9"})
	case "/v21.0/container-1":
		status := StatusFinished
		if len(f.statuses) > 0 {
			status, f.statuses = f.statuses[0], f.statuses[1:]
		}
		json.NewEncoder(w).Encode(map[string]string{"status_code": status, "id": "container-1"})
	case "/v21.0/me":
		json.NewEncoder(w).Encode(map[string]string{"id": "1784", "user_id": "1784", "username": "daily.cat.bot"})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newClient(t *testing.T, f *fakeGraph) *Client {
	t.Helper()
	if f.payloads == nil {
		f.payloads = make(map[string][]map[string]interface{})
	}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return NewClient(config.InstagramConfig{
		AccountID:             "1784",
		AccessToken:           "tok",
		GraphBaseURL:          srv.URL,
		GraphVersion:          "v21.0",
		ContainerPollInterval: time.Millisecond,
		ContainerTimeout:      time.Second,
	}, logger.NewNopLogger())
}

func graphError(w http.ResponseWriter, status, code int, kind, message string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{"message": message, "type": kind, "code": code, "fbtrace_id": "trace"},
	})
}

func TestCreateImageContainer(t *testing.T) {
	f := &fakeGraph{}
	c := newClient(t, f)

	id, err := c.CreateContainer(context.Background(), "https://cdn.example/a.jpg", models.MediaTypeImage, "meow")
	require.NoError(t, err)
	assert.Equal(t, "container-1", id)

	payload := f.payloads["/v21.0/1784/media"][0]
	assert.Equal(t, "https://cdn.example/a.jpg", payload["image_url"])
	assert.Equal(t, "meow", payload["caption"])
	assert.Equal(t, "tok", payload["access_token"])
	assert.NotContains(t, payload, "media_type")
}

func TestCreateVideoContainerIsReel(t *testing.T) {
	f := &fakeGraph{}
	c := newClient(t, f)

	_, err := c.CreateContainer(context.Background(), "https://cdn.example/v.mp4", models.MediaTypeVideo, "zoom")
	require.NoError(t, err)

	payload := f.payloads["/v21.0/1784/media"][0]
	assert.Equal(t, "REELS", payload["media_type"])
	assert.Equal(t, "https://cdn.example/v.mp4", payload["video_url"])
	assert.NotContains(t, payload, "image_url")
}

func TestWaitForContainerPolls(t *testing.T) {
	f := &fakeGraph{statuses: []string{StatusInProgress, StatusInProgress, StatusFinished}}
	c := newClient(t, f)

	require.NoError(t, c.WaitForContainer(context.Background(), "container-1"))
	assert.Empty(t, f.statuses)
}

func TestWaitForContainerError(t *testing.T) {
	f := &fakeGraph{statuses: []string{StatusInProgress, StatusError}}
	c := newClient(t, f)

	err := c.WaitForContainer(context.Background(), "container-1")
	assert.True(t, errs.Is(err, errs.ErrorTypeValidation))
}

func TestWaitForContainerTimeout(t *testing.T) {
	f := &fakeGraph{handler: func(w http.ResponseWriter, r *http.Request) bool {
		json.NewEncoder(w).Encode(map[string]string{"status_code": StatusInProgress})
		return true
	}}
	c := newClient(t, f)
	c.pollTimeout = 20 * time.Millisecond
	c.pollInterval = 5 * time.Millisecond

	err := c.WaitForContainer(context.Background(), "container-1")
	require.Error(t, err)
}

func TestPublish(t *testing.T) {
	f := &fakeGraph{}
	c := newClient(t, f)

	id, err := c.Publish(context.Background(), "container-1")
	require.NoError(t, err)
	assert.Equal(t, "published-9", id)
	assert.Equal(t, "container-1", f.payloads["/v21.0/1784/media_publish"][0]["creation_id"])
}

func TestValidateCredentials(t *testing.T) {
	c := newClient(t, &fakeGraph{})
	account, err := c.ValidateCredentials(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "daily.cat.bot", account.Username)

	c.accessToken = ""
	_, err = c.ValidateCredentials(context.Background())
	assert.True(t, errs.Is(err, errs.ErrorTypeAuth))
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   int
		kind   string
		want   errs.ErrorType
	}{
		{"app rate limit", http.StatusBadRequest, 4, "OAuthException", errs.ErrorTypeRateLimit},
		{"user rate limit", http.StatusBadRequest, 17, "OAuthException", errs.ErrorTypeRateLimit},
		{"publish limit", http.StatusBadRequest, 613, "OAuthException", errs.ErrorTypeRateLimit},
		{"http 429", http.StatusTooManyRequests, 0, "", errs.ErrorTypeRateLimit},
		{"expired token", http.StatusBadRequest, 190, "OAuthException", errs.ErrorTypeAuth},
		{"forbidden", http.StatusForbidden, 10, "OAuthException", errs.ErrorTypeAuth},
		{"server", http.StatusInternalServerError, 1, "OAuthException", errs.ErrorTypeServerError},
		{"bad parameter", http.StatusBadRequest, 100, "OAuthException", errs.ErrorTypeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := &fakeGraph{handler: func(w http.ResponseWriter, r *http.Request) bool {
				if tt.code == 0 {
					w.WriteHeader(tt.status)
					return true
				}
				graphError(w, tt.status, tt.code, tt.kind, "nope")
				return true
			}}
			c := newClient(t, f)

			_, err := c.CreateContainer(context.Background(), "https://x/y.jpg", models.MediaTypeImage, "")
			require.Error(t, err)
			assert.Equal(t, tt.want, errs.TypeOf(err))
		})
	}
}

func TestNetworkError(t *testing.T) {
	c := NewClient(config.InstagramConfig{AccountID: "1", AccessToken: "t", GraphBaseURL: "http://127.0.0.1:1"}, logger.NewNopLogger())
	_, err := c.Publish(context.Background(), "x")
	assert.True(t, errs.Is(err, errs.ErrorTypeNetwork))
}
