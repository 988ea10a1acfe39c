// Package nlu turns free-text chat messages into intents and entities. A
// single configured provider does the understanding; every failure path
// degrades synchronously to the deterministic rule engine, so resolution
// never fails.
package nlu

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/leecheenbao/tripeak-b2b/internal/config"
	"github.com/leecheenbao/tripeak-b2b/internal/logger"
	"github.com/leecheenbao/tripeak-b2b/internal/metrics"
)

// Intents understood by the assistant.
const (
	IntentQueryOrder     = "query_order"
	IntentQueryProduct   = "query_product"
	IntentQueryStock     = "query_stock"
	IntentGreeting       = "greeting"
	IntentGetHelp        = "get_help"
	IntentContactSupport = "contact_support"
	IntentGetLineUserID  = "get_line_user_id"
	IntentUnclear        = "unclear"
)

// Entity keys.
const (
	EntityOrderNumber  = "orderNumber"
	EntityProductName  = "productName"
	EntityCategoryName = "categoryName"
)

// Result is a fully-populated understanding of one message. Dispatchers may
// rely on Entities being non-nil and Confidence being within [0, 1].
type Result struct {
	Intent     string            `json:"intent"`
	Confidence float64           `json:"confidence"`
	Entities   map[string]string `json:"entities"`
	Message    string            `json:"message"`
}

// Normalize fills the defaults for fields a provider left empty so the
// dispatcher never sees a partial result.
func (r Result) Normalize() Result {
	if r.Intent == "" {
		r.Intent = IntentUnclear
	}
	if r.Confidence <= 0 {
		r.Confidence = 0.5
	}
	if r.Confidence > 1 {
		r.Confidence = 1
	}
	if r.Entities == nil {
		r.Entities = map[string]string{}
	}
	if r.Message == "" {
		r.Message = MessageUnclear
	}
	return r
}

// Dialog is the conversational context handed to providers.
type Dialog struct {
	State string
}

// Provider is one pluggable NLU backend.
type Provider interface {
	// Understand classifies text. Implementations may fail; the Router is
	// responsible for degrading to the rule engine.
	Understand(ctx context.Context, text string, dialog Dialog) (Result, error)
	// Name identifies the provider in logs and metrics.
	Name() string
}

// Provider failure sentinels.
var (
	ErrNotConfigured  = errors.New("nlu provider not configured")
	ErrNotImplemented = errors.New("nlu provider not implemented")
)

// NewProvider builds the active provider from configuration. The selection
// happens once at startup; the rule engine remains the universal fallback
// regardless of which provider is active.
func NewProvider(cfg *config.Config) (Provider, error) {
	switch cfg.NLUProvider {
	case config.ProviderOpenAI:
		return NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel, cfg.OpenAITimeout), nil
	case config.ProviderLocal:
		return NewLocalProvider(LocalConfig{
			BaseURL:   cfg.LocalNLUBaseURL,
			Model:     cfg.LocalNLUModel,
			Timeout:   cfg.LocalNLUTimeout,
			Attempts:  cfg.LocalNLURetries,
			CacheSize: cfg.NLUCacheSize,
		}), nil
	case config.ProviderRules:
		return NewRuleEngine(), nil
	case config.ProviderGoogle:
		return placeholderProvider{name: string(config.ProviderGoogle)}, nil
	case config.ProviderDialogflow:
		return placeholderProvider{name: string(config.ProviderDialogflow)}, nil
	default:
		return nil, fmt.Errorf("unknown nlu provider: %s", cfg.NLUProvider)
	}
}

// placeholderProvider stands in for integrations that are declared but not
// built; it always fails over to the rule engine.
type placeholderProvider struct {
	name string
}

func (p placeholderProvider) Understand(context.Context, string, Dialog) (Result, error) {
	return Result{}, fmt.Errorf("%s: %w", p.name, ErrNotImplemented)
}

func (p placeholderProvider) Name() string { return p.name }

// Router resolves text through the active provider with the rule engine as
// fallback. Resolve never fails.
type Router struct {
	provider Provider
	rules    *RuleEngine
	log      zerolog.Logger
}

// NewRouter creates a router around the given provider.
func NewRouter(provider Provider) *Router {
	return &Router{
		provider: provider,
		rules:    NewRuleEngine(),
		log:      logger.Component("nlu"),
	}
}

// Resolve classifies text. On any provider failure the deterministic rule
// engine answers instead, so the caller always receives a usable result.
func (r *Router) Resolve(ctx context.Context, text string, dialog Dialog) Result {
	res, err := r.provider.Understand(ctx, text, dialog)
	if err != nil {
		metrics.NLURequests.WithLabelValues(r.provider.Name(), "error").Inc()
		metrics.NLUFallbacks.Inc()
		r.log.Warn().Err(err).Str("provider", r.provider.Name()).Msg("provider failed, using rule fallback")
		res, _ = r.rules.Understand(ctx, text, dialog)
	} else {
		metrics.NLURequests.WithLabelValues(r.provider.Name(), "ok").Inc()
	}
	res = res.Normalize()
	r.log.Debug().
		Str("intent", res.Intent).
		Float64("confidence", res.Confidence).
		Msg("resolved intent")
	return res
}

// normalizeText produces the canonical form used as cache key and for
// keyword matching: lower-cased, trimmed.
func normalizeText(text string) string {
	return strings.ToLower(strings.TrimSpace(text))
}
