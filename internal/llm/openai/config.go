package openai

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/baloghm/meterbill/internal/llm"
)

// Config for the OpenAI-compatible client.
type Config struct {
	APIKey      string
	BaseURL     string        // default https://api.openai.com/v1
	Models      []string      // ordered fallback list, first entry preferred
	Temperature float32       // 0..2
	Timeout     time.Duration // http client timeout
	MaxAttempts int           // per-model attempts for transient errors
	BaseDelay   time.Duration // first backoff delay, doubles each attempt
}

// Client issues structured-output vision requests with retry and model
// fallback. It implements llm.ReadingExtractor.
type Client struct {
	cfg        Config
	httpClient *http.Client
	logger     *slog.Logger
}

var _ llm.ReadingExtractor = (*Client)(nil)

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.openai.com/v1"
	}
	if len(cfg.Models) == 0 {
		cfg.Models = []string{"gpt-4o-mini", "gpt-4o"}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 45 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.BaseDelay <= 0 {
		cfg.BaseDelay = 2 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger,
	}
}
