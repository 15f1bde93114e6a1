package router

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/zerohandoff/zhc-plane/internal/config"
)

// CostEstimate is the per-dispatch cost-estimate artifact (spec.md §4.5
// step 3, §6 "cost_estimate.json").
type CostEstimate struct {
	EstimatedCostUSD float64 `json:"estimated_cost_usd"`
	CostSource       string  `json:"cost_source"`
	PricingModel     string  `json:"pricing_model"`
	InputTokens      int     `json:"input_tokens"`
	OutputTokensEst  int     `json:"output_tokens_estimate"`
}

// modelPrice is a cached prompt/completion price pair, USD per million
// tokens.
type modelPrice struct {
	PromptPerMillion     float64
	CompletionPerMillion float64
}

// pricingCache caches external pricing lookups per model so a lookup
// failure or rate limit only affects the first dispatch that needs a given
// model's price.
type pricingCache struct {
	mu     sync.Mutex
	prices map[string]modelPrice
}

func newPricingCache() *pricingCache {
	return &pricingCache{prices: map[string]modelPrice{}}
}

// costEstimator estimates a dispatch's USD cost: an external pricing
// lookup when enabled, falling back to a route-specific heuristic on
// failure, disablement, or timeout (spec.md §4.5 step 3).
type costEstimator struct {
	cfg        config.CostConfig
	provider   config.ProviderConfig
	httpClient *http.Client
	cache      *pricingCache
}

func newCostEstimator(cfg config.CostConfig, provider config.ProviderConfig) *costEstimator {
	return &costEstimator{
		cfg:        cfg,
		provider:   provider,
		httpClient: &http.Client{},
		cache:      newPricingCache(),
	}
}

// heuristicRates is the route-specific fallback rate (USD per million
// tokens), used when pricing lookup is disabled or fails.
var heuristicRates = map[string]modelPrice{
	"LIGHT": {PromptPerMillion: 0.15, CompletionPerMillion: 0.60},
	"HEAVY": {PromptPerMillion: 3.00, CompletionPerMillion: 15.00},
}

// Estimate computes a CostEstimate for inputTokens with outputTokensEst
// assumed output, for the given route class and model.
func (e *costEstimator) Estimate(ctx context.Context, routeClass, model string, inputTokens int) CostEstimate {
	outputTokensEst := inputTokens / 4
	if outputTokensEst == 0 {
		outputTokensEst = 1
	}

	if e.cfg.LookupEnabled {
		if price, source, ok := e.lookupPrice(ctx, model); ok {
			return CostEstimate{
				EstimatedCostUSD: costFromPrice(price, inputTokens, outputTokensEst),
				CostSource:       source,
				PricingModel:     model,
				InputTokens:      inputTokens,
				OutputTokensEst:  outputTokensEst,
			}
		}
	}

	price := heuristicRates[routeClass]
	return CostEstimate{
		EstimatedCostUSD: costFromPrice(price, inputTokens, outputTokensEst),
		CostSource:       "heuristic",
		PricingModel:     e.cfg.ModelDefault,
		InputTokens:      inputTokens,
		OutputTokensEst:  outputTokensEst,
	}
}

func costFromPrice(price modelPrice, inputTokens, outputTokens int) float64 {
	cost := float64(inputTokens)/1_000_000*price.PromptPerMillion +
		float64(outputTokens)/1_000_000*price.CompletionPerMillion
	return roundTo6(cost)
}

func roundTo6(v float64) float64 {
	scaled := v * 1_000_000
	return float64(int64(scaled+0.5)) / 1_000_000
}

// lookupPrice queries OpenRouter's model pricing endpoint, caching the
// result per model. Returns ok=false on any failure so the caller falls
// back to the heuristic.
func (e *costEstimator) lookupPrice(ctx context.Context, model string) (modelPrice, string, bool) {
	e.cache.mu.Lock()
	if price, ok := e.cache.prices[model]; ok {
		e.cache.mu.Unlock()
		return price, "openrouter_cached", true
	}
	e.cache.mu.Unlock()

	if e.provider.OpenRouterAPIKey == "" || model == "" {
		return modelPrice{}, "", false
	}

	lookupCtx, cancel := context.WithTimeout(ctx, e.cfg.LookupTimeout())
	defer cancel()

	url := fmt.Sprintf("https://openrouter.ai/api/v1/models/%s/endpoints", model)
	req, err := http.NewRequestWithContext(lookupCtx, http.MethodGet, url, nil)
	if err != nil {
		return modelPrice{}, "", false
	}
	req.Header.Set("Authorization", "Bearer "+e.provider.OpenRouterAPIKey)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return modelPrice{}, "", false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return modelPrice{}, "", false
	}

	var payload struct {
		Data struct {
			Pricing struct {
				Prompt     string `json:"prompt"`
				Completion string `json:"completion"`
			} `json:"pricing"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return modelPrice{}, "", false
	}

	prompt, err1 := parsePricePerToken(payload.Data.Pricing.Prompt)
	completion, err2 := parsePricePerToken(payload.Data.Pricing.Completion)
	if err1 != nil || err2 != nil {
		return modelPrice{}, "", false
	}

	price := modelPrice{PromptPerMillion: prompt * 1_000_000, CompletionPerMillion: completion * 1_000_000}
	e.cache.mu.Lock()
	e.cache.prices[model] = price
	e.cache.mu.Unlock()

	return price, "openrouter", true
}

func parsePricePerToken(s string) (float64, error) {
	var v float64
	_, err := fmt.Sscanf(s, "%g", &v)
	return v, err
}
