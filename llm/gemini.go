// Package llm is a thin client for the Gemini generateContent API, used for
// structured lesson extraction and for code reformatting.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
)

var baseURL = "https://generativelanguage.googleapis.com/v1beta"

// MaxAttempts bounds the number of extraction attempts when the model output
// fails schema validation.
const MaxAttempts = 5

// Client talks to a single Gemini model.
type Client struct {
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger
}

// Config configures the client.
type Config struct {
	APIKey string `json:"-" yaml:"-"`

	// Model is the generateContent model id (default: gemini-2.5-flash).
	Model string `json:"model" yaml:"model"`

	// RequestTimeout bounds one generateContent call (default: 120s).
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// Logger for debug/error messages.
	Logger *slog.Logger `json:"-" yaml:"-"`
}

func (c *Config) defaults() {
	if c.Model == "" {
		c.Model = "gemini-2.5-flash"
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 120 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// New creates a Client.
func New(cfg Config) *Client {
	cfg.defaults()
	return &Client{
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: cfg.RequestTimeout},
		logger:     cfg.Logger,
	}
}

// ErrHTTP is a non-2xx response from the API.
type ErrHTTP struct {
	Status int
	Body   string
}

func (e *ErrHTTP) Error() string {
	return fmt.Sprintf("gemini: http %d: %s", e.Status, truncate(e.Body, 300))
}

// ValidationError reports that every attempt produced output failing schema
// validation. It carries the issues and the last offending value so callers
// can log them.
type ValidationError struct {
	Attempts int
	Issues   []string
	Raw      json.RawMessage
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("gemini: output failed schema validation after %d attempts: %s",
		e.Attempts, strings.Join(e.Issues, "; "))
}

// GenerateText sends one prompt and returns the plain text response.
func (c *Client) GenerateText(ctx context.Context, system, prompt string) (string, error) {
	body := c.buildBody(system, prompt, nil)
	return c.doGenerate(ctx, body)
}

// GenerateStructured requests JSON output constrained by schema, validates
// the result against the same schema, and retries on validation failure up
// to MaxAttempts. The returned bytes are the validated raw JSON.
func (c *Client) GenerateStructured(ctx context.Context, system, prompt string, schema *jsonschema.Schema) (json.RawMessage, error) {
	resolved, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve schema: %w", err)
	}
	body := c.buildBody(system, prompt, schema)

	var lastIssue string
	var lastRaw json.RawMessage

	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		text, err := c.doGenerate(ctx, body)
		if err != nil {
			return nil, err
		}
		raw := json.RawMessage(strings.TrimSpace(text))

		var instance any
		if err := json.Unmarshal(raw, &instance); err != nil {
			lastIssue = "response is not valid JSON: " + err.Error()
			lastRaw = raw
			c.logger.Warn("structured output rejected", "attempt", attempt, "issue", lastIssue)
			continue
		}
		if err := resolved.Validate(instance); err != nil {
			lastIssue = err.Error()
			lastRaw = raw
			c.logger.Warn("structured output rejected", "attempt", attempt, "issue", lastIssue)
			continue
		}
		return raw, nil
	}

	return nil, &ValidationError{
		Attempts: MaxAttempts,
		Issues:   []string{lastIssue},
		Raw:      lastRaw,
	}
}

func (c *Client) buildBody(system, prompt string, schema *jsonschema.Schema) map[string]any {
	body := map[string]any{
		"contents": []map[string]any{
			{
				"role":  "user",
				"parts": []map[string]any{{"text": prompt}},
			},
		},
	}
	if system != "" {
		body["systemInstruction"] = map[string]any{
			"parts": []map[string]any{{"text": system}},
		}
	}

	genConfig := map[string]any{
		"temperature": 0,
	}
	if schema != nil {
		genConfig["responseMimeType"] = "application/json"
		genConfig["responseSchema"] = schema
	}
	body["generationConfig"] = genConfig
	return body
}

// doGenerate performs a non-streaming generateContent call and returns the
// concatenated text parts of the first candidate.
func (c *Client) doGenerate(ctx context.Context, body map[string]any) (string, error) {
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", baseURL, c.model, c.apiKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", fmt.Errorf("marshal body: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(payload)))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("gemini request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", &ErrHTTP{Status: resp.StatusCode, Body: string(respBody)}
	}

	var parsed response
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return "", fmt.Errorf("parse response: %w", err)
	}
	if len(parsed.Candidates) == 0 {
		return "", fmt.Errorf("gemini: response has no candidates")
	}

	var sb strings.Builder
	for _, part := range parsed.Candidates[0].Content.Parts {
		if part.Thought {
			continue
		}
		sb.WriteString(part.Text)
	}
	return sb.String(), nil
}

type response struct {
	Candidates []struct {
		Content struct {
			Parts []struct {
				Text    string `json:"text"`
				Thought bool   `json:"thought,omitempty"`
			} `json:"parts"`
		} `json:"content"`
	} `json:"candidates"`
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
