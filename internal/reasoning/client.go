package reasoning

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sony/gobreaker"

	"github.com/dealdesk/dealdesk/internal/metrics"
)

// Circuit breaker thresholds for the reasoning endpoint. Generation calls
// recover slowly, so the circuit stays open longer than it would for a
// typical HTTP dependency.
const (
	breakerMinRequests     = 3
	breakerFailureRatio    = 0.6
	breakerOpenTimeout     = 60 * time.Second
	breakerHalfOpenMaxReqs = 2
	breakerCountInterval   = 10 * time.Second
)

// Client talks to an OpenAI-compatible chat completions endpoint
type Client struct {
	endpoint    string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	maxRetries  int
	timeout     time.Duration
	httpClient  *http.Client
	breaker     *gobreaker.CircuitBreaker
	cache       *ResponseCache
}

// ClientConfig contains configuration for the reasoning client
type ClientConfig struct {
	Endpoint    string
	APIKey      string
	Model       string
	Temperature float64
	MaxTokens   int
	MaxRetries  int
	Timeout     time.Duration
	Cache       *ResponseCache
}

// Ensure Client implements the Service interface
var _ Service = (*Client)(nil)

// NewClient creates a new reasoning client
func NewClient(config ClientConfig) *Client {
	if config.Endpoint == "" {
		config.Endpoint = "http://localhost:8081/v1/chat/completions"
	}
	if config.Model == "" {
		config.Model = "gpt-4o"
	}
	if config.Temperature == 0 {
		config.Temperature = 0.7
	}
	if config.MaxTokens == 0 {
		config.MaxTokens = 2000
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &Client{
		endpoint:    config.Endpoint,
		apiKey:      config.APIKey,
		model:       config.Model,
		temperature: config.Temperature,
		maxTokens:   config.MaxTokens,
		maxRetries:  config.MaxRetries,
		timeout:     config.Timeout,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
		breaker: newBreaker(),
		cache:   config.Cache,
	}
}

// Generate produces a free-text reply for the given conversation
func (c *Client) Generate(ctx context.Context, messages []ChatMessage) (string, error) {
	var key string
	if c.cache != nil {
		key = CacheKey(c.model, messages)
		if content, ok := c.cache.Get(ctx, key); ok {
			metrics.RecordCacheHit()
			return content, nil
		}
		metrics.RecordCacheMiss()
	}

	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}

	resp, err := c.completeWithRetry(ctx, request)
	if err != nil {
		return "", err
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no choices in reasoning response")
	}
	content := resp.Choices[0].Message.Content

	if c.cache != nil {
		_ = c.cache.Set(ctx, key, c.model, content)
	}

	return content, nil
}

// GenerateStructured produces a schema-constrained reply and unmarshals it
// into target
func (c *Client) GenerateStructured(ctx context.Context, messages []ChatMessage, schema ResponseSchema, target interface{}) error {
	request := ChatRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
		ResponseFormat: &ResponseFormat{
			Type: "json_schema",
			JSONSchema: &JSONSchemaSpec{
				Name:   schema.Name,
				Strict: true,
				Schema: schema.Schema,
			},
		},
	}

	resp, err := c.completeWithRetry(ctx, request)
	if err != nil {
		return err
	}

	if len(resp.Choices) == 0 {
		return fmt.Errorf("no choices in reasoning response")
	}

	return parseJSONContent(resp.Choices[0].Message.Content, target)
}

// completeWithRetry sends a request with retry logic
func (c *Client) completeWithRetry(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			// Quadratic backoff
			backoff := time.Duration(attempt*attempt) * time.Second
			log.Warn().
				Err(lastErr).
				Int("attempt", attempt).
				Dur("backoff", backoff).
				Msg("Retrying reasoning request")

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(backoff):
			}
		}

		resp, err := c.complete(ctx, request)
		if err == nil {
			return resp, nil
		}

		lastErr = err

		// Client errors won't heal on retry
		var apiErr *APIError
		if errors.As(err, &apiErr) && !apiErr.IsRetryable() {
			return nil, fmt.Errorf("reasoning request failed: %w", err)
		}
	}

	return nil, fmt.Errorf("reasoning request failed after %d attempts: %w", c.maxRetries+1, lastErr)
}

// complete runs one request through the circuit breaker and records metrics
func (c *Client) complete(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	start := time.Now()
	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.do(ctx, request)
	})

	outcome := metrics.OutcomeSuccess
	if err != nil {
		outcome = metrics.OutcomeError
	}
	metrics.RecordReasoningRequest(outcome, time.Since(start))

	if err != nil {
		return nil, err
	}
	return result.(*ChatResponse), nil
}

func (c *Client) do(ctx context.Context, request ChatRequest) (*ChatResponse, error) {
	requestBody, err := json.Marshal(request)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.endpoint, bytes.NewBuffer(requestBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	log.Debug().
		Str("endpoint", c.endpoint).
		Str("model", c.model).
		Int("message_count", len(request.Messages)).
		Bool("structured", request.ResponseFormat != nil).
		Msg("Sending reasoning request")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	duration := time.Since(start)

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var errResp ErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Type:       errResp.Error.Type,
				Message:    errResp.Error.Message,
			}
		}
		return nil, classifyHTTPError(resp.StatusCode, string(body))
	}

	var chatResp ChatResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("failed to parse response: %w", err)
	}

	log.Debug().
		Str("model", chatResp.Model).
		Int("prompt_tokens", chatResp.Usage.PromptTokens).
		Int("completion_tokens", chatResp.Usage.CompletionTokens).
		Dur("duration", duration).
		Msg("Reasoning request completed")

	return &chatResp, nil
}

func newBreaker() *gobreaker.CircuitBreaker {
	return gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "reasoning",
		MaxRequests: breakerHalfOpenMaxReqs,
		Interval:    breakerCountInterval,
		Timeout:     breakerOpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= breakerMinRequests && failureRatio >= breakerFailureRatio
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			var stateValue float64
			switch to {
			case gobreaker.StateClosed:
				stateValue = 0
			case gobreaker.StateOpen:
				stateValue = 1
			case gobreaker.StateHalfOpen:
				stateValue = 2
			}
			metrics.SetReasoningBreakerState(stateValue)
			log.Warn().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Reasoning circuit breaker state changed")
		},
	})
}

// parseJSONContent extracts and unmarshals a JSON payload from model output,
// tolerating markdown fences and surrounding prose
func parseJSONContent(content string, target interface{}) error {
	extracted := extractJSONFromMarkdown(content)
	if extracted == "" {
		extracted = extractFirstJSONObject(content)
	}
	if extracted == "" {
		extracted = content
	}

	if err := json.Unmarshal([]byte(extracted), target); err != nil {
		return fmt.Errorf("failed to parse structured response: %w", err)
	}
	return nil
}

// extractJSONFromMarkdown extracts a JSON payload from a ```json or ```
// code block. Returns "" when no fenced JSON is present.
func extractJSONFromMarkdown(content string) string {
	contentBytes := []byte(content)

	start := -1
	if idx := bytes.Index(contentBytes, []byte("```json")); idx >= 0 {
		start = idx + 7
	} else if idx := bytes.Index(contentBytes, []byte("```")); idx >= 0 {
		start = idx + 3
	}
	if start < 0 {
		return ""
	}

	rest := contentBytes[start:]
	end := bytes.Index(rest, []byte("```"))
	if end < 0 {
		return ""
	}

	candidate := string(bytes.TrimSpace(rest[:end]))
	if !strings.HasPrefix(candidate, "{") && !strings.HasPrefix(candidate, "[") {
		return ""
	}
	return candidate
}

// extractFirstJSONObject returns the first balanced JSON object or array in
// content, or "" when none is found
func extractFirstJSONObject(content string) string {
	start := strings.IndexAny(content, "{[")
	if start < 0 {
		return ""
	}

	open := content[start]
	var closing byte = '}'
	if open == '[' {
		closing = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(content); i++ {
		ch := content[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case open:
			depth++
		case closing:
			depth--
			if depth == 0 {
				return content[start : i+1]
			}
		}
	}
	return ""
}
