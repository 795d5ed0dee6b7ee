package caption

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"catbot/pkg/config"
	errs "catbot/pkg/errors"
	"catbot/pkg/logger"
	"catbot/pkg/metadata"
	"catbot/pkg/models"
)

const (
	// MaxLength is Instagram's caption limit in characters
	MaxLength = 2200

	// inspirationLimit caps how much of the source caption goes into the prompt
	inspirationLimit = 200

	maxSourceHashtags = 8

	systemPrompt = "You write Instagram captions for a cat account. Reply with the caption only."
)

// Request describes the media a caption is wanted for
type Request struct {
	MediaID         string
	Type            models.MediaType
	OriginalCaption string
	Hashtags        []string
}

// RequestFor builds a request from a local file and its sidecar, if any
func RequestFor(file models.MediaFile) Request {
	req := Request{MediaID: file.MediaID, Type: file.Type}
	if side, err := metadata.Load(file.Path); err == nil {
		req.OriginalCaption = side.Caption
		req.Hashtags = side.Hashtags
	}
	return req
}

// Result is a caption and where it came from
type Result struct {
	Text      string
	Generated bool
	Err       error
}

// Generator asks a chat completion API for a caption and falls back to a
// fixed template whenever that fails.
type Generator struct {
	client  openaigo.Client
	enabled bool
	model   string
	timeout time.Duration
	logger  logger.Logger
}

// New creates a generator. Without an API key every call uses the fallback.
func New(cfg config.CaptionConfig, log logger.Logger) *Generator {
	return NewWithHTTPClient(cfg, &http.Client{}, log)
}

// NewWithHTTPClient creates a generator using httpClient for API calls
func NewWithHTTPClient(cfg config.CaptionConfig, httpClient *http.Client, log logger.Logger) *Generator {
	if log == nil {
		log = logger.GetLogger()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 20 * time.Second
	}

	g := &Generator{
		model:   strings.TrimSpace(cfg.Model),
		timeout: timeout,
		logger:  log.WithField("component", "caption"),
	}

	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return g
	}

	opts := []option.RequestOption{
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(0),
		option.WithRequestTimeout(timeout),
	}
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		opts = append(opts, option.WithBaseURL(base))
	}
	g.client = openaigo.NewClient(opts...)
	g.enabled = true
	return g
}

// Enabled reports whether an API key is configured
func (g *Generator) Enabled() bool { return g.enabled }

// Generate returns a caption for req. It never fails: any API problem
// yields the fallback caption with Err set for logging.
func (g *Generator) Generate(ctx context.Context, req Request) Result {
	if !g.enabled {
		return Result{Text: Fallback(req.MediaID, req.Type)}
	}

	text, err := g.complete(ctx, req)
	if err != nil {
		g.logger.WithError(err).WarnWithFields("caption generation failed, using fallback", map[string]interface{}{
			"media_id":   req.MediaID,
			"media_type": string(req.Type),
		})
		return Result{Text: Fallback(req.MediaID, req.Type), Err: err}
	}

	return Result{Text: finish(text, req), Generated: true}
}

func (g *Generator) complete(ctx context.Context, req Request) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	start := time.Now()
	resp, err := g.client.Chat.Completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model: openaigo.ChatModel(g.model),
		Messages: []openaigo.ChatCompletionMessageParamUnion{
			openaigo.SystemMessage(systemPrompt),
			openaigo.UserMessage(Prompt(req)),
		},
	})
	if err != nil {
		if ctx.Err() != nil {
			return "", errs.Wrap(errs.ErrorTypeNetwork, ctx.Err(), "caption request timed out")
		}
		return "", errs.Wrap(errs.ErrorTypeNetwork, err, "caption request failed")
	}
	if len(resp.Choices) == 0 {
		return "", errs.New(errs.ErrorTypeParsing, 0, "caption response has no choices")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", errs.New(errs.ErrorTypeParsing, 0, "caption response is empty")
	}

	g.logger.DebugWithFields("caption generated", map[string]interface{}{
		"media_id": req.MediaID,
		"model":    g.model,
		"duration": time.Since(start),
	})
	return text, nil
}

// Prompt builds the user prompt for req
func Prompt(req Request) string {
	var b strings.Builder

	if req.Type == models.MediaTypeVideo {
		b.WriteString("Write a short, punchy Instagram reel caption for a cute cat video.")
	} else {
		b.WriteString("Write a cute and engaging Instagram caption for a cat photo.")
	}

	if original := strings.TrimSpace(req.OriginalCaption); original != "" {
		runes := []rune(original)
		if len(runes) > inspirationLimit {
			runes = runes[:inspirationLimit]
		}
		fmt.Fprintf(&b, "\nTake inspiration from this caption but do not copy it: %q", string(runes))
	}

	b.WriteString("\nFocus on cat behaviour, cuteness or humour. Keep it under 150 characters")
	b.WriteString(" and end with 5 to 8 relevant hashtags.")
	return b.String()
}

// finish appends hashtags when the model left them out and enforces the
// length limit.
func finish(text string, req Request) string {
	if !strings.Contains(text, "#") {
		tags := defaultHashtags(req.Type)
		if len(req.Hashtags) > 0 {
			src := req.Hashtags
			if len(src) > maxSourceHashtags {
				src = src[:maxSourceHashtags]
			}
			tags = strings.Join(src, " ")
		}
		text += "\n\n" + tags
	}
	return Truncate(text, MaxLength)
}

// Truncate cuts s to at most limit characters
func Truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
