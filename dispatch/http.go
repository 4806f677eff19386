package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adwhq/adwflow/types"
)

// HTTPBackendConfig configures a model-API backend.
type HTTPBackendConfig struct {
	// Name is the registry identifier, e.g. "opus" or "sonnet".
	Name string `yaml:"name"`
	// BaseURL is the API root, e.g. "https://api.anthropic.com".
	BaseURL string `yaml:"base_url"`
	// APIKey authenticates requests via the x-api-key header.
	APIKey string `yaml:"api_key"`
	// Model is the default model identifier sent with each request.
	Model string `yaml:"model"`
	// MaxTokens caps the completion length.
	MaxTokens int `yaml:"max_tokens"`
	// Timeout is the default per-call timeout.
	Timeout time.Duration `yaml:"timeout"`
	// RateLimit caps dispatch hops to this backend, in calls per second.
	// Zero means unlimited.
	RateLimit float64 `yaml:"rate_limit"`
	// Burst is the rate limiter burst size, clamped to at least 1 when
	// RateLimit is set.
	Burst int `yaml:"burst"`
}

// HTTPBackend executes prompts against a messages-style model API. The
// request and response shapes follow the Anthropic wire format; the session
// key is minted per call so repair loops can reference the originating
// exchange.
type HTTPBackend struct {
	cfg    HTTPBackendConfig
	client *http.Client
	logger *zap.Logger
}

// NewHTTPBackend creates a model-API backend.
func NewHTTPBackend(cfg HTTPBackendConfig, logger *zap.Logger) *HTTPBackend {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = DefaultHopTimeout
	}
	if cfg.MaxTokens == 0 {
		cfg.MaxTokens = 8192
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.anthropic.com"
	}
	return &HTTPBackend{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "http_backend"), zap.String("backend", cfg.Name)),
	}
}

func (b *HTTPBackend) Name() string { return b.cfg.Name }

type apiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type apiRequest struct {
	Model     string       `json:"model"`
	Messages  []apiMessage `json:"messages"`
	MaxTokens int          `json:"max_tokens"`
}

type apiUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

type apiResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage apiUsage `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Execute sends the prompt as a single user message and returns the
// concatenated text blocks of the response.
func (b *HTTPBackend) Execute(ctx context.Context, prompt string, opts Options) (*Result, error) {
	model := b.cfg.Model
	if opts.Model != "" {
		model = opts.Model
	}

	body, err := json.Marshal(apiRequest{
		Model:     model,
		Messages:  []apiMessage{{Role: "user", Content: prompt}},
		MaxTokens: b.cfg.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(b.cfg.BaseURL, "/") + "/v1/messages"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", b.cfg.APIKey)
	req.Header.Set("anthropic-version", "2023-06-01")

	start := time.Now()
	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response (status %d): %w", resp.StatusCode, err)
	}
	if resp.StatusCode != http.StatusOK {
		msg := strings.TrimSpace(string(raw))
		if parsed.Error != nil {
			msg = parsed.Error.Message
		}
		return nil, fmt.Errorf("api status %d: %s", resp.StatusCode, msg)
	}

	var out strings.Builder
	for _, block := range parsed.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}

	b.logger.Debug("model call completed",
		zap.String("model", model),
		zap.Duration("latency", time.Since(start)),
		zap.Int("output_tokens", parsed.Usage.OutputTokens),
	)

	return &Result{
		SessionKey: uuid.New().String(),
		Output:     out.String(),
		Success:    true,
		Tokens: types.TokenUsage{
			PromptTokens:     parsed.Usage.InputTokens,
			CompletionTokens: parsed.Usage.OutputTokens,
			TotalTokens:      parsed.Usage.InputTokens + parsed.Usage.OutputTokens,
		},
	}, nil
}
