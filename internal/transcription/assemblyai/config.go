package assemblyai

import (
	"log/slog"
	"net/http"
	"os"
	"time"
)

// Config for the AssemblyAI client.
type Config struct {
	APIKey      string        // if empty, falls back to env ASSEMBLYAI_API_KEY
	BaseURL     string        // default https://api.assemblyai.com
	Timeout     time.Duration // http client timeout
	MaxAttempts int           // attempts for rate-limited or 5xx requests, default 5
	MaxBackoff  time.Duration // backoff ceiling between attempts, default 30s

	// OnRateLimit, when set, is called before the client sleeps out a
	// rate-limit window.
	OnRateLimit func(wait time.Duration)
}

type Client struct {
	cfg    Config
	http   *http.Client
	logger *slog.Logger
}

func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.APIKey == "" {
		cfg.APIKey = os.Getenv("ASSEMBLYAI_API_KEY")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = "https://api.assemblyai.com"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 5
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}
