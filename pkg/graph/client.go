package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/retry"
)

// Container status codes reported by the Graph API
const (
	StatusFinished   = "FINISHED"
	StatusInProgress = "IN_PROGRESS"
	StatusError      = "ERROR"
	StatusExpired    = "EXPIRED"
	StatusPublished  = "PUBLISHED"
)

// Graph error codes that mean "slow down"
var rateLimitCodes = map[int]bool{4: true, 17: true, 32: true, 613: true}

const invalidTokenCode = 190

// Account is the publishing account behind an access token
type Account struct {
	ID          string `json:"id"`
	UserID      string `json:"user_id"`
	Username    string `json:"username"`
	AccountType string `json:"account_type"`
}

// apiError is the error envelope of every Graph API response
type apiError struct {
	Error *struct {
		Message      string `json:"message"`
		Type         string `json:"type"`
		Code         int    `json:"code"`
		ErrorSubcode int    `json:"error_subcode"`
		FBTraceID    string `json:"fbtrace_id"`
	} `json:"error"`
}

// Client publishes media through the Instagram Graph API
type Client struct {
	httpClient   *http.Client
	baseURL      string
	version      string
	accountID    string
	accessToken  string
	pollInterval time.Duration
	pollTimeout  time.Duration
	logger       logger.Logger
}

// NewClient creates a Graph API client for the configured account
func NewClient(cfg config.InstagramConfig, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	baseURL := strings.TrimRight(cfg.GraphBaseURL, "/")
	if baseURL == "" {
		baseURL = "https://graph.instagram.com"
	}
	version := cfg.GraphVersion
	if version == "" {
		version = "v21.0"
	}
	poll := cfg.ContainerPollInterval
	if poll <= 0 {
		poll = 5 * time.Second
	}
	pollTimeout := cfg.ContainerTimeout
	if pollTimeout <= 0 {
		pollTimeout = 5 * time.Minute
	}

	return &Client{
		httpClient:   &http.Client{Timeout: 60 * time.Second},
		baseURL:      baseURL,
		version:      version,
		accountID:    cfg.AccountID,
		accessToken:  cfg.AccessToken,
		pollInterval: poll,
		pollTimeout:  pollTimeout,
		logger:       log.WithField("component", "graph"),
	}
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

func (c *Client) endpoint(parts ...string) string {
	return c.baseURL + "/" + c.version + "/" + strings.Join(parts, "/")
}

// CreateContainer creates an unpublished media container. Images use
// image_url; videos are published as reels through video_url.
func (c *Client) CreateContainer(ctx context.Context, mediaURL string, mediaType models.MediaType, caption string) (string, error) {
	payload := map[string]interface{}{
		"caption":      caption,
		"access_token": c.accessToken,
	}
	if mediaType == models.MediaTypeVideo {
		payload["media_type"] = "REELS"
		payload["video_url"] = mediaURL
	} else {
		payload["image_url"] = mediaURL
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, c.endpoint(c.accountID, "media"), payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errs.New(errs.ErrorTypeParsing, 0, "no container ID returned from Instagram")
	}

	c.logger.DebugWithFields("media container created", map[string]interface{}{
		"container_id": result.ID,
		"media_type":   string(mediaType),
	})
	return result.ID, nil
}

// ContainerStatus returns the processing status of a container
func (c *Client) ContainerStatus(ctx context.Context, containerID string) (string, error) {
	params := url.Values{}
	params.Set("fields", "status_code,status")
	params.Set("access_token", c.accessToken)

	var result struct {
		StatusCode string `json:"status_code"`
		Status     string `json:"status"`
	}
	if err := c.get(ctx, c.endpoint(containerID)+"?"+params.Encode(), &result); err != nil {
		return "", err
	}
	return result.StatusCode, nil
}

// WaitForContainer polls until the container is ready to publish
func (c *Client) WaitForContainer(ctx context.Context, containerID string) error {
	ctx, cancel := context.WithTimeout(ctx, c.pollTimeout)
	defer cancel()

	for {
		status, err := c.ContainerStatus(ctx, containerID)
		if err != nil {
			return err
		}

		switch status {
		case StatusFinished, StatusPublished:
			return nil
		case StatusError, StatusExpired:
			return errs.New(errs.ErrorTypeValidation, 0,
				fmt.Sprintf("media container %s failed processing: %s", containerID, status))
		}

		c.logger.DebugWithFields("waiting for media container", map[string]interface{}{
			"container_id": containerID,
			"status":       status,
		})

		if err := retry.Wait(ctx, c.pollInterval); err != nil {
			return errs.Wrap(errs.ErrorTypeServerError, err,
				fmt.Sprintf("media container %s not ready after %s", containerID, c.pollTimeout))
		}
	}
}

// Publish publishes a ready container and returns the new media id
func (c *Client) Publish(ctx context.Context, containerID string) (string, error) {
	payload := map[string]interface{}{
		"creation_id":  containerID,
		"access_token": c.accessToken,
	}

	var result struct {
		ID string `json:"id"`
	}
	if err := c.post(ctx, c.endpoint(c.accountID, "media_publish"), payload, &result); err != nil {
		return "", err
	}
	if result.ID == "" {
		return "", errs.New(errs.ErrorTypeParsing, 0, "no media ID returned from publish")
	}

	c.logger.InfoWithFields("media published", map[string]interface{}{
		"container_id": containerID,
		"media_id":     result.ID,
	})
	return result.ID, nil
}

// ValidateCredentials checks the access token and returns its account
func (c *Client) ValidateCredentials(ctx context.Context) (*Account, error) {
	if c.accessToken == "" {
		return nil, errs.New(errs.ErrorTypeAuth, http.StatusUnauthorized, "no access token configured")
	}

	params := url.Values{}
	params.Set("fields", "id,user_id,username,account_type")
	params.Set("access_token", c.accessToken)

	var account Account
	if err := c.get(ctx, c.endpoint("me")+"?"+params.Encode(), &account); err != nil {
		return nil, err
	}
	return &account, nil
}

func (c *Client) get(ctx context.Context, url string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	return c.do(req, out)
}

func (c *Client) post(ctx context.Context, url string, payload interface{}, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out interface{}) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return errs.Wrap(errs.ErrorTypeNetwork, err, "Graph API request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read Graph API response")
	}

	c.logger.DebugWithFields("Graph API request completed", map[string]interface{}{
		"method":   req.Method,
		"path":     req.URL.Path,
		"status":   resp.StatusCode,
		"duration": time.Since(start),
	})

	if err := classify(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse Graph API response")
	}
	return nil
}

// classify maps a Graph API response to a typed error, or nil on success
func classify(status int, body []byte) error {
	var envelope apiError
	_ = json.Unmarshal(body, &envelope)

	if status >= 200 && status < 300 && envelope.Error == nil {
		return nil
	}

	message := http.StatusText(status)
	code := status
	if envelope.Error != nil {
		message = envelope.Error.Message
		code = envelope.Error.Code
		switch {
		case rateLimitCodes[code]:
			return errs.New(errs.ErrorTypeRateLimit, code, message)
		case code == invalidTokenCode || (envelope.Error.Type == "OAuthException" && (status == 401 || status == 403)):
			return errs.New(errs.ErrorTypeAuth, code, message)
		}
	}

	e := errs.FromStatus(status, message)
	e.Code = code
	if e.Type == errs.ErrorTypeUnknown {
		e.Type = errs.ErrorTypeValidation
	}
	return e
}
