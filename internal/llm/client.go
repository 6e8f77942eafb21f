package llm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Family selects the wire protocol.
type Family string

const (
	FamilyOpenAI    Family = "openai"
	FamilyAnthropic Family = "anthropic"
)

// Config is one provider binding. BaseURL carries no trailing slash and no
// endpoint path; the family appends its own.
type Config struct {
	Family  Family
	BaseURL string
	Model   string
	APIKey  string
}

// Client talks to whichever provider is currently configured. The mutable
// binding sits behind a lock; each request snapshots it up front, so a switch
// mid-flight only affects later requests.
type Client struct {
	mu       sync.RWMutex
	cfg      Config
	defaults Config

	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient builds a client bound to cfg, remembering it as the default for
// RestoreDefaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("llm client: base URL is empty")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm client: model is empty")
	}
	if cfg.Family == "" {
		cfg.Family = FamilyOpenAI
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		defaults:   cfg,
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		logger:     logger,
	}, nil
}

// SwitchProvider rebinds the client to another family, endpoint, and model.
// The API key is kept unless updated separately.
func (c *Client) SwitchProvider(family Family, baseURL, model string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Family = family
	c.cfg.BaseURL = baseURL
	c.cfg.Model = model
	c.logger.Info("llm provider switched", "family", family, "base_url", baseURL, "model", model)
}

// UpdateAPIKey replaces the key in place.
func (c *Client) UpdateAPIKey(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.APIKey = key
}

// Rebind replaces both the live binding and the default one, so a later
// RestoreDefaults lands on the new configuration. An empty APIKey keeps the
// current key.
func (c *Client) Rebind(cfg Config) error {
	if cfg.BaseURL == "" {
		return fmt.Errorf("llm client: base URL is empty")
	}
	if cfg.Model == "" {
		return fmt.Errorf("llm client: model is empty")
	}
	if cfg.Family == "" {
		cfg.Family = FamilyOpenAI
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if cfg.APIKey == "" {
		cfg.APIKey = c.cfg.APIKey
	}
	c.cfg = cfg
	c.defaults = cfg
	c.logger.Info("llm client rebound", "family", cfg.Family, "base_url", cfg.BaseURL, "model", cfg.Model)
	return nil
}

// RestoreDefaults reverts to the binding the client was constructed with.
func (c *Client) RestoreDefaults() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = c.defaults
	c.logger.Info("llm provider restored", "family", c.cfg.Family, "model", c.cfg.Model)
}

// Snapshot returns the current binding.
func (c *Client) Snapshot() Config {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg
}

// Model returns the currently configured model name.
func (c *Client) Model() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Model
}

// Chat performs one non-streaming request against the current binding.
func (c *Client) Chat(ctx context.Context, req Request) (*Response, error) {
	cfg := c.Snapshot()
	if req.Model == "" {
		req.Model = cfg.Model
	}
	start := time.Now()
	var (
		resp *Response
		err  error
	)
	switch cfg.Family {
	case FamilyAnthropic:
		resp, err = c.chatAnthropic(ctx, cfg, req)
	default:
		resp, err = c.chatOpenAI(ctx, cfg, req)
	}
	if err != nil {
		return nil, err
	}
	c.logger.Debug("llm chat complete",
		"family", cfg.Family, "model", req.Model,
		"input_tokens", resp.InputTokens, "output_tokens", resp.OutputTokens,
		"tool_calls", len(resp.ToolCalls), "elapsed", time.Since(start))
	return resp, nil
}

// ChatStream performs one streaming request. The returned channel is closed
// after EventDone or EventError. Cancelling ctx aborts the stream.
func (c *Client) ChatStream(ctx context.Context, req Request) (<-chan StreamEvent, error) {
	cfg := c.Snapshot()
	if req.Model == "" {
		req.Model = cfg.Model
	}
	switch cfg.Family {
	case FamilyAnthropic:
		return c.streamAnthropic(ctx, cfg, req)
	default:
		return c.streamOpenAI(ctx, cfg, req)
	}
}
