package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
)

// Post is one media item served by SourceServer
type Post struct {
	ID       string
	Likes    int
	Comments int
	Video    bool
	Caption  string
	TakenAt  int64
	Body     []byte
}

// SourceServer simulates the profile and CDN endpoints the source client
// reads from.
type SourceServer struct {
	server        *httptest.Server
	mu            sync.RWMutex
	posts         map[string][]Post
	profileErrors map[string]int
	mediaErrors   map[string]int
	requestCount  int32
	downloads     int32
}

// NewSourceServer starts a fake source server. Close it when done.
func NewSourceServer() *SourceServer {
	s := &SourceServer{
		posts:         make(map[string][]Post),
		profileErrors: make(map[string]int),
		mediaErrors:   make(map[string]int),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/users/web_profile_info/", s.handleProfile)
	mux.HandleFunc("/media/", s.handleMedia)
	s.server = httptest.NewServer(mux)
	return s
}

// URL returns the server base URL
func (s *SourceServer) URL() string { return s.server.URL }

// Close shuts the server down
func (s *SourceServer) Close() { s.server.Close() }

// SetPosts replaces the posts served for account, newest first
func (s *SourceServer) SetPosts(account string, posts ...Post) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[account] = posts
}

// FailProfile makes profile requests for account answer with code
func (s *SourceServer) FailProfile(account string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profileErrors[account] = code
}

// FailMedia makes downloads of media id answer with code
func (s *SourceServer) FailMedia(id string, code int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mediaErrors[id] = code
}

// RequestCount returns the number of profile requests served
func (s *SourceServer) RequestCount() int { return int(atomic.LoadInt32(&s.requestCount)) }

// DownloadCount returns the number of media requests served
func (s *SourceServer) DownloadCount() int { return int(atomic.LoadInt32(&s.downloads)) }

func (s *SourceServer) handleProfile(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.requestCount, 1)
	account := r.URL.Query().Get("username")

	s.mu.RLock()
	code := s.profileErrors[account]
	posts, ok := s.posts[account]
	s.mu.RUnlock()

	if code != 0 {
		w.WriteHeader(code)
		json.NewEncoder(w).Encode(map[string]interface{}{
			"message": http.StatusText(code),
			"status":  "fail",
		})
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(map[string]interface{}{"message": "User not found", "status": "fail"})
		return
	}

	edges := make([]map[string]interface{}, 0, len(posts))
	for _, p := range posts {
		node := map[string]interface{}{
			"id":                    p.ID,
			"shortcode":             "SC" + p.ID,
			"is_video":              p.Video,
			"display_url":           s.server.URL + "/media/" + p.ID + ".jpg",
			"taken_at_timestamp":    p.TakenAt,
			"edge_liked_by":         map[string]int{"count": p.Likes},
			"edge_media_to_comment": map[string]int{"count": p.Comments},
			"owner":                 map[string]string{"username": account},
			"edge_media_to_caption": map[string]interface{}{
				"edges": []map[string]interface{}{{"node": map[string]string{"text": p.Caption}}},
			},
		}
		if p.Video {
			node["video_url"] = s.server.URL + "/media/" + p.ID + ".mp4"
		}
		edges = append(edges, map[string]interface{}{"node": node})
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"data": map[string]interface{}{
			"user": map[string]interface{}{
				"id":       "id_" + account,
				"username": account,
				"edge_owner_to_timeline_media": map[string]interface{}{
					"count": len(posts),
					"edges": edges,
				},
			},
		},
		"status": "ok",
	})
}

func (s *SourceServer) handleMedia(w http.ResponseWriter, r *http.Request) {
	atomic.AddInt32(&s.downloads, 1)
	name := strings.TrimPrefix(r.URL.Path, "/media/")
	id := strings.TrimSuffix(strings.TrimSuffix(name, ".jpg"), ".mp4")

	s.mu.RLock()
	defer s.mu.RUnlock()

	if code := s.mediaErrors[id]; code != 0 {
		w.WriteHeader(code)
		return
	}
	for _, posts := range s.posts {
		for _, p := range posts {
			if p.ID == id {
				w.Header().Set("Content-Length", fmt.Sprint(len(p.Body)))
				w.Write(p.Body)
				return
			}
		}
	}
	w.WriteHeader(http.StatusNotFound)
}
