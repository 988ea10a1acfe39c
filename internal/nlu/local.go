package nlu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/metrics"
)

const (
	defaultLocalTimeout  = 30 * time.Second
	defaultLocalAttempts = 3
	defaultBackoffStep   = time.Second
	defaultCacheSize     = 128
)

// LocalConfig configures the self-hosted LLM provider.
type LocalConfig struct {
	BaseURL  string
	Model    string
	Timeout  time.Duration // per-attempt request timeout
	Attempts int           // total attempts, not extra retries
	// BackoffStep scales the linear wait between attempts: after attempt n
	// the provider waits n×BackoffStep. Zero means one second.
	BackoffStep time.Duration
	CacheSize   int
	// HTTPClient overrides the transport; nil means http.DefaultTransport.
	HTTPClient *http.Client
}

// LocalProvider classifies messages through a self-hosted LLM speaking the
// Ollama generate API. Successful classifications are cached by normalized
// input text so repeated identical messages skip the model entirely.
type LocalProvider struct {
	baseURL     string
	model       string
	timeout     time.Duration
	attempts    int
	backoffStep time.Duration
	httpClient  *http.Client
	cache       *resultCache
	log         zerolog.Logger
}

// NewLocalProvider creates the local provider, applying defaults for any
// zero-valued settings.
func NewLocalProvider(cfg LocalConfig) *LocalProvider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultLocalTimeout
	}
	if cfg.Attempts <= 0 {
		cfg.Attempts = defaultLocalAttempts
	}
	if cfg.BackoffStep <= 0 {
		cfg.BackoffStep = defaultBackoffStep
	}
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = defaultCacheSize
	}
	client := cfg.HTTPClient
	if client == nil {
		client = &http.Client{}
	}
	return &LocalProvider{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		timeout:     cfg.Timeout,
		attempts:    cfg.Attempts,
		backoffStep: cfg.BackoffStep,
		httpClient:  client,
		cache:       newResultCache(cfg.CacheSize),
		log:         logger.Component("nlu.local"),
	}
}

func (p *LocalProvider) Name() string { return "local" }

// Understand consults the cache, then calls the model with bounded retries.
// Each failed attempt waits attempt×BackoffStep before the next one.
func (p *LocalProvider) Understand(ctx context.Context, text string, _ Dialog) (Result, error) {
	if p.baseURL == "" {
		return Result{}, ErrNotConfigured
	}

	key := normalizeText(text)
	if res, ok := p.cache.Get(key); ok {
		metrics.NLUCacheHits.Inc()
		return res, nil
	}
	metrics.NLUCacheMisses.Inc()

	var lastErr error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		res, err := p.generate(ctx, text)
		if err == nil {
			p.cache.Put(key, res)
			return res, nil
		}
		lastErr = err
		p.log.Warn().Err(err).Int("attempt", attempt).Msg("local nlu attempt failed")

		if attempt < p.attempts {
			if err := sleep(ctx, time.Duration(attempt)*p.backoffStep); err != nil {
				return Result{}, err
			}
		}
	}
	return Result{}, fmt.Errorf("local nlu failed after %d attempts: %w", p.attempts, lastErr)
}

// generateRequest is the Ollama generate API request body.
type generateRequest struct {
	Model   string          `json:"model"`
	Prompt  string          `json:"prompt"`
	Stream  bool            `json:"stream"`
	Options generateOptions `json:"options"`
}

type generateOptions struct {
	Temperature float64 `json:"temperature"`
	TopP        float64 `json:"top_p"`
	NumPredict  int     `json:"num_predict"`
}

type generateResponse struct {
	Response string `json:"response"`
}

func (p *LocalProvider) generate(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(generateRequest{
		Model:  p.model,
		Prompt: systemPrompt + "\n\n用戶訊息：" + text + "\n\n只回應 JSON，不要其他文字。",
		Stream: false,
		Options: generateOptions{
			Temperature: 0.1,
			TopP:        0.9,
			NumPredict:  256,
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("encoding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Result{}, fmt.Errorf("calling local nlu: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Result{}, fmt.Errorf("local nlu returned status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return Result{}, fmt.Errorf("reading response: %w", err)
	}

	var gr generateResponse
	if err := json.Unmarshal(raw, &gr); err != nil {
		return Result{}, fmt.Errorf("decoding response envelope: %w", err)
	}

	return parseIntentResponse(gr.Response)
}

// sleep waits for d unless the context ends first.
func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
