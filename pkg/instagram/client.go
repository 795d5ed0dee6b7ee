package instagram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/models"
	"catbot/pkg/ratelimit"
)

// Client reads public profiles and media from Instagram's web API
type Client struct {
	httpClient *http.Client
	headers    map[string]string
	baseURL    string
	limiter    ratelimit.Limiter
	logger     logger.Logger
}

// NewClient creates a source client. The limiter may be nil.
func NewClient(cfg config.SourceConfig, limiter ratelimit.Limiter, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = BaseURL
	}
	timeout := cfg.DownloadTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	c := &Client{
		httpClient: &http.Client{Timeout: timeout},
		headers: map[string]string{
			"User-Agent":      cfg.UserAgent,
			"Accept":          "*/*",
			"Accept-Language": "en-US,en;q=0.9",
			"X-IG-App-ID":     WebAppID,
			"Referer":         BaseURL + "/",
		},
		baseURL: baseURL,
		limiter: limiter,
		logger:  log.WithField("component", "source"),
	}

	if cfg.SessionID != "" {
		cookie := "sessionid=" + cfg.SessionID
		if cfg.CSRFToken != "" {
			cookie += "; csrftoken=" + cfg.CSRFToken
			c.headers["X-CSRFToken"] = cfg.CSRFToken
		}
		c.headers["Cookie"] = cookie
	}
	return c
}

// SetHTTPClient replaces the underlying HTTP client
func (c *Client) SetHTTPClient(hc *http.Client) {
	c.httpClient = hc
}

// SetHeader sets a custom header for the client
func (c *Client) SetHeader(key, value string) {
	c.headers[key] = value
}

// doRequest waits for the limiter, then sends req with the configured headers
func (c *Client) doRequest(ctx context.Context, req *http.Request) (*http.Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	for key, value := range c.headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)

	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.logger.WarnWithFields("HTTP request failed", map[string]interface{}{
			"method":   req.Method,
			"url":      req.URL.String(),
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "request failed")
	}

	c.logger.DebugWithFields("HTTP request completed", map[string]interface{}{
		"method":   req.Method,
		"url":      req.URL.String(),
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return resp, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	return c.doRequest(ctx, req)
}

// checkResponseStatus maps a non-2xx response to a typed error
func (c *Client) checkResponseStatus(resp *http.Response, url string) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	e := errs.FromStatus(resp.StatusCode, fmt.Sprintf("unexpected status %d", resp.StatusCode))
	switch e.Type {
	case errs.ErrorTypeAuth:
		e.Message = "authentication required"
	case errs.ErrorTypeNotFound:
		e.Message = "resource not found"
	case errs.ErrorTypeRateLimit:
		e.Message = "rate limit exceeded"
	case errs.ErrorTypeServerError:
		e.Message = "server error"
	}

	c.logger.WarnWithFields("source API error", map[string]interface{}{
		"status": resp.StatusCode,
		"url":    url,
		"type":   string(e.Type),
	})
	return e
}

// FetchProfile fetches a profile and the first page of its media
func (c *Client) FetchProfile(ctx context.Context, username string) (*User, error) {
	url := ProfileURL(c.baseURL, username)

	resp, err := c.get(ctx, url)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, url); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}

	var response ProfileResponse
	if err := json.Unmarshal(body, &response); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse profile response", map[string]interface{}{
			"username":     username,
			"error":        err.Error(),
			"body_preview": preview,
		})
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse profile JSON")
	}

	if response.RequiresToLogin {
		return nil, errs.New(errs.ErrorTypeAuth, http.StatusUnauthorized, "Instagram requires authentication to view "+username)
	}
	if response.Data.User == nil {
		return nil, errs.New(errs.ErrorTypeNotFound, http.StatusNotFound, "profile not found: "+username)
	}

	return response.Data.User, nil
}

// RecentMedia returns up to limit of the account's latest media, newest first
func (c *Client) RecentMedia(ctx context.Context, account string, limit int) ([]models.Candidate, error) {
	user, err := c.FetchProfile(ctx, SanitizeUsername(account))
	if err != nil {
		return nil, err
	}

	candidates := user.Candidates(account)
	if limit > 0 && len(candidates) > limit {
		candidates = candidates[:limit]
	}

	c.logger.DebugWithFields("fetched recent media", map[string]interface{}{
		"account": account,
		"count":   len(candidates),
	})
	return candidates, nil
}

// Download streams the media at url into w and returns the byte count
func (c *Client) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	resp, err := c.get(ctx, url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if err := c.checkResponseStatus(resp, url); err != nil {
		return 0, err
	}

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return n, ctx.Err()
		}
		return n, errs.Wrap(errs.ErrorTypeNetwork, err, "download interrupted")
	}
	if resp.ContentLength > 0 && n != resp.ContentLength {
		return n, errs.New(errs.ErrorTypeNetwork, resp.StatusCode,
			fmt.Sprintf("short download: got %d of %d bytes", n, resp.ContentLength))
	}
	return n, nil
}
