package instagram

import (
	"sort"
	"time"

	"catbot/pkg/models"
)

// ProfileResponse is the top-level response of the profile endpoint
type ProfileResponse struct {
	RequiresToLogin bool   `json:"requires_to_login"`
	Data            Data   `json:"data"`
	Status          string `json:"status"`
	Message         string `json:"message"`
}

// Data wraps the user information in the response
type Data struct {
	User *User `json:"user"`
}

// User is an Instagram profile with its most recent media
type User struct {
	ID                       string   `json:"id"`
	Username                 string   `json:"username"`
	IsPrivate                bool     `json:"is_private"`
	EdgeOwnerToTimelineMedia Timeline `json:"edge_owner_to_timeline_media"`
}

// Timeline holds the first page of a profile's media
type Timeline struct {
	Count int    `json:"count"`
	Edges []Edge `json:"edges"`
}

// Edge wraps a single media node
type Edge struct {
	Node Node `json:"node"`
}

// Count is the {"count": n} shape used for likes and comments
type Count struct {
	Count int `json:"count"`
}

// Node is a single media item
type Node struct {
	ID                   string       `json:"id"`
	Shortcode            string       `json:"shortcode"`
	DisplayURL           string       `json:"display_url"`
	VideoURL             string       `json:"video_url"`
	IsVideo              bool         `json:"is_video"`
	TakenAtTimestamp     int64        `json:"taken_at_timestamp"`
	EdgeLikedBy          Count        `json:"edge_liked_by"`
	EdgeMediaPreviewLike Count        `json:"edge_media_preview_like"`
	EdgeMediaToComment   Count        `json:"edge_media_to_comment"`
	EdgeMediaToCaption   CaptionEdges `json:"edge_media_to_caption"`
	Owner                Owner        `json:"owner"`
}

// CaptionEdges holds the caption text nodes
type CaptionEdges struct {
	Edges []struct {
		Node struct {
			Text string `json:"text"`
		} `json:"node"`
	} `json:"edges"`
}

// Owner is the account that published a node
type Owner struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Likes returns the like count, falling back to the preview count the
// endpoint sometimes reports instead.
func (n Node) Likes() int {
	if n.EdgeLikedBy.Count > 0 {
		return n.EdgeLikedBy.Count
	}
	return n.EdgeMediaPreviewLike.Count
}

// Caption returns the first caption text, if any
func (n Node) Caption() string {
	if len(n.EdgeMediaToCaption.Edges) == 0 {
		return ""
	}
	return n.EdgeMediaToCaption.Edges[0].Node.Text
}

// Candidate converts the node into a candidate from account
func (n Node) Candidate(account string) models.Candidate {
	c := models.Candidate{
		Account:      account,
		MediaID:      n.ID,
		Shortcode:    n.Shortcode,
		Type:         models.MediaTypeImage,
		URL:          n.DisplayURL,
		Caption:      n.Caption(),
		LikeCount:    n.Likes(),
		CommentCount: n.EdgeMediaToComment.Count,
	}
	if n.IsVideo {
		c.Type = models.MediaTypeVideo
		c.URL = n.VideoURL
	}
	if n.TakenAtTimestamp > 0 {
		c.TakenAt = time.Unix(n.TakenAtTimestamp, 0).UTC()
	}
	return c
}

// Candidates converts a profile's media into candidates, newest first
func (u *User) Candidates(account string) []models.Candidate {
	out := make([]models.Candidate, 0, len(u.EdgeOwnerToTimelineMedia.Edges))
	for _, edge := range u.EdgeOwnerToTimelineMedia.Edges {
		if edge.Node.ID == "" {
			continue
		}
		out = append(out, edge.Node.Candidate(account))
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].TakenAt.After(out[j].TakenAt)
	})
	return out
}
