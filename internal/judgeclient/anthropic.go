// Package judgeclient is a concrete, optional LanguageJudge adapter
// backed by the Anthropic API. It implements (but is not depended on by)
// the judge evaluator's LanguageJudge interface, preserving the core's
// "the core sees a single capability; its wire format is not part of the
// core" boundary (spec.md §1) while still exercising a real transport
// library end to end.
package judgeclient

import (
	"context"
	"errors"
	"net"
	"os"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/cenkalti/backoff/v4"

	"github.com/agent-replay/tracecore/internal/apperr"
	"github.com/agent-replay/tracecore/internal/eval/judge"
)

// DefaultModel is used when Client isn't given an explicit model.
const DefaultModel = "claude-3-5-haiku-20241022"

// ErrAPIKeyRequired is returned when no API key is available from either
// the constructor argument or the ANTHROPIC_API_KEY environment variable.
var ErrAPIKeyRequired = errors.New("judgeclient: ANTHROPIC_API_KEY not set")

// Client adapts the Anthropic SDK to judge.LanguageJudge.
type Client struct {
	sdk     anthropic.Client
	model   anthropic.Model
	retry   backoff.BackOff
	timeout time.Duration
}

// Option configures a Client.
type Option func(*Client)

// WithModel overrides DefaultModel.
func WithModel(model string) Option {
	return func(c *Client) { c.model = anthropic.Model(model) }
}

// WithTimeout bounds a single Call, the only cancellable operation in the
// core (spec.md §5).
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New builds a Client. apiKey may be empty, in which case
// ANTHROPIC_API_KEY must be set.
func New(apiKey string, opts ...Option) (*Client, error) {
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, ErrAPIKeyRequired
	}

	c := &Client{
		sdk:     anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:   DefaultModel,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.retry == nil {
		eb := backoff.NewExponentialBackOff()
		eb.InitialInterval = 500 * time.Millisecond
		eb.MaxElapsedTime = 20 * time.Second
		c.retry = backoff.WithMaxRetries(eb, 3)
	}
	return c, nil
}

// Call implements judge.LanguageJudge (spec.md §6).
func (c *Client) Call(ctx context.Context, req judge.Request) (judge.Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	params := anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.Prompt)),
		},
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}

	start := time.Now()
	var message *anthropic.Message

	op := func() error {
		m, err := c.sdk.Messages.New(ctx, params)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		message = m
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(c.retry, ctx))
	latency := time.Since(start)
	if err != nil {
		return judge.Reply{}, classifyError(err)
	}

	if len(message.Content) == 0 {
		return judge.Reply{}, apperr.New(apperr.Server, "judge response had no content blocks")
	}
	block := message.Content[0]
	if block.Type != "text" {
		return judge.Reply{}, apperr.New(apperr.Server, "judge response block was %q, not text", block.Type)
	}

	inputTokens := message.Usage.InputTokens
	outputTokens := message.Usage.OutputTokens

	return judge.Reply{
		Text:            block.Text,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		Model:           string(message.Model),
		Provider:        "anthropic",
		CostEstimateUSD: judge.PriceTokens(string(message.Model), inputTokens, outputTokens),
		LatencyMS:       latency.Milliseconds(),
	}, nil
}

func isRetryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode == 429 || apiErr.StatusCode >= 500
	}
	return false
}

func classifyError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return apperr.Wrap(apperr.Network, err, "judge call timed out")
	}
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.StatusCode == 401 || apiErr.StatusCode == 403:
			return apperr.Wrap(apperr.Auth, err, "anthropic authentication failed")
		case apiErr.StatusCode == 429:
			return apperr.Wrap(apperr.RateLimit, err, "anthropic rate limit exceeded")
		case apiErr.StatusCode >= 500:
			return apperr.Wrap(apperr.Server, err, "anthropic server error")
		}
		return apperr.Wrap(apperr.Server, err, "anthropic API error")
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return apperr.Wrap(apperr.Network, err, "network error calling anthropic")
	}
	return apperr.Wrap(apperr.Server, err, "judge call failed")
}
