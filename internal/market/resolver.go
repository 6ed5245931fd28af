// Package market resolves outcome token ids to market metadata.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"tradewatch/internal/trade"
)

const marketsPath = "/markets"

// Fallback is returned whenever a lookup fails.
var Fallback = trade.MarketInfo{
	MarketID:     "unknown",
	Title:        "Polymarket trade",
	OutcomeLabel: "Outcome",
}

// Resolver looks up market metadata for an outcome token. It never fails.
type Resolver interface {
	Resolve(ctx context.Context, tokenID string) trade.MarketInfo
}

// Options parameterise the Gamma API resolver.
type Options struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// Gamma resolves metadata from the Polymarket Gamma API and caches hits for the process lifetime.
type Gamma struct {
	opts    Options
	logger  zerolog.Logger
	client  *http.Client
	baseURL string

	mu    sync.RWMutex
	cache map[string]trade.MarketInfo
}

// NewGamma constructs a resolver.
func NewGamma(opts Options, logger zerolog.Logger) *Gamma {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://gamma-api.polymarket.com"
	}

	return &Gamma{
		opts:    opts,
		logger:  logger.With().Str("component", "market_resolver").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		cache:   make(map[string]trade.MarketInfo),
	}
}

// Resolve returns cached or freshly fetched metadata, or Fallback on any failure.
func (g *Gamma) Resolve(ctx context.Context, tokenID string) trade.MarketInfo {
	g.mu.RLock()
	hit, ok := g.cache[tokenID]
	g.mu.RUnlock()
	if ok {
		return hit
	}

	info, err := g.fetch(ctx, tokenID)
	if err != nil {
		g.logger.Warn().Err(err).Str("token_id", tokenID).Msg("market lookup failed; using fallback")
		return Fallback
	}

	g.mu.Lock()
	g.cache[tokenID] = info
	g.mu.Unlock()
	return info
}

func (g *Gamma) fetch(ctx context.Context, tokenID string) (trade.MarketInfo, error) {
	endpoint := g.baseURL + marketsPath + "?clob_token_ids=" + url.QueryEscape(tokenID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return trade.MarketInfo{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(g.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return trade.MarketInfo{}, err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return trade.MarketInfo{}, err
	}
	if resp.StatusCode != http.StatusOK {
		return trade.MarketInfo{}, fmt.Errorf("gamma api error (%d): %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var markets []gammaMarket
	if err := json.Unmarshal(payload, &markets); err != nil {
		return trade.MarketInfo{}, fmt.Errorf("decode markets: %w", err)
	}
	if len(markets) == 0 {
		return trade.MarketInfo{}, errors.New("no market for token")
	}
	return markets[0].info(tokenID)
}

type gammaMarket struct {
	ID           string `json:"id"`
	Question     string `json:"question"`
	Image        string `json:"image"`
	Icon         string `json:"icon"`
	Slug         string `json:"slug"`
	Outcomes     string `json:"outcomes"`
	ClobTokenIDs string `json:"clobTokenIds"`
}

// info converts the API record; outcomes and clobTokenIds are JSON arrays encoded as strings.
func (m gammaMarket) info(tokenID string) (trade.MarketInfo, error) {
	var outcomes, ids []string
	if err := json.Unmarshal([]byte(m.Outcomes), &outcomes); err != nil {
		return trade.MarketInfo{}, fmt.Errorf("decode outcomes: %w", err)
	}
	if err := json.Unmarshal([]byte(m.ClobTokenIDs), &ids); err != nil {
		return trade.MarketInfo{}, fmt.Errorf("decode clobTokenIds: %w", err)
	}

	label := Fallback.OutcomeLabel
	for i, id := range ids {
		if id == tokenID && i < len(outcomes) {
			label = outcomes[i]
			break
		}
	}

	image := m.Image
	if image == "" {
		image = m.Icon
	}

	return trade.MarketInfo{
		MarketID:     m.ID,
		Title:        m.Question,
		Image:        image,
		Slug:         m.Slug,
		OutcomeLabel: label,
	}, nil
}

var _ Resolver = (*Gamma)(nil)
