// Package prices wraps the CoinMarketCap quotes API behind the engine's
// price-oracle boundary, with a short-lived cache and hardcoded fallbacks.
// Prices may be stale under upstream failure; callers treat whatever comes
// back as authoritative.
package prices

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/rs/zerolog"

	"freefall/internal/cache"
	"freefall/internal/game"
)

const defaultAPIURL = "https://sandbox-api.coinmarketcap.com/v1/cryptocurrency/quotes/latest"

// CoinMarketCap numeric ids per symbol.
var symbolToID = map[string]string{
	game.CurrencyBTC: "1",
	game.CurrencyETH: "1027",
}

// Last-resort prices when the API fails and nothing is cached.
var fallbackPrices = map[string]float64{
	game.CurrencyBTC: 50000,
	game.CurrencyETH: 3000,
}

type Client struct {
	apiURL string
	apiKey string
	http   *http.Client
	cache  cache.Service
	log    zerolog.Logger
}

// New builds the price client. A nil cache disables caching; fallback
// behavior is unaffected.
func New(c cache.Service, log zerolog.Logger) *Client {
	apiURL := os.Getenv("PRICE_API_URL")
	if apiURL == "" {
		apiURL = defaultAPIURL
	}
	return &Client{
		apiURL: apiURL,
		apiKey: os.Getenv("COINMARKETCAP_API_KEY"),
		http:   &http.Client{Timeout: 5 * time.Second},
		cache:  c,
		log:    log.With().Str("component", "prices").Logger(),
	}
}

// GetPrice returns the USD price for one currency: cached value if fresh,
// else live from the API (and cached), else the fallback. Upstream failure
// is logged, never returned, so gameplay does not stall on the oracle.
func (c *Client) GetPrice(ctx context.Context, currency string) (float64, error) {
	if !game.SupportedCurrency(currency) {
		return 0, game.ErrUnsupportedCurrency
	}

	if c.cache != nil {
		if price, ok, err := c.cache.Price(ctx, currency); err == nil && ok {
			return price, nil
		}
	}

	quotes, err := c.fetch(ctx, currency)
	if err == nil {
		if price, ok := quotes[currency]; ok {
			c.storeCached(ctx, currency, price)
			return price, nil
		}
		err = fmt.Errorf("quote missing for %s", currency)
	}

	c.log.Warn().Err(err).Str("currency", currency).Msg("price fetch failed, using fallback")
	return fallbackPrices[currency], nil
}

// GetAllPrices returns USD prices for every supported currency, falling
// back per currency on failure.
func (c *Client) GetAllPrices(ctx context.Context) (map[string]float64, error) {
	quotes, err := c.fetch(ctx, game.CurrencyBTC, game.CurrencyETH)
	if err != nil {
		c.log.Warn().Err(err).Msg("bulk price fetch failed, using cache/fallback")
		quotes = map[string]float64{}
	}

	prices := make(map[string]float64, len(symbolToID))
	for symbol := range symbolToID {
		if price, ok := quotes[symbol]; ok {
			c.storeCached(ctx, symbol, price)
			prices[symbol] = price
			continue
		}
		if c.cache != nil {
			if price, ok, err := c.cache.Price(ctx, symbol); err == nil && ok {
				prices[symbol] = price
				continue
			}
		}
		prices[symbol] = fallbackPrices[symbol]
	}
	return prices, nil
}

type quoteResponse struct {
	Data map[string]struct {
		Quote struct {
			USD struct {
				Price float64 `json:"price"`
			} `json:"USD"`
		} `json:"quote"`
	} `json:"data"`
}

func (c *Client) fetch(ctx context.Context, symbols ...string) (map[string]float64, error) {
	ids := ""
	for _, s := range symbols {
		if ids != "" {
			ids += ","
		}
		ids += symbolToID[s]
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiURL, nil)
	if err != nil {
		return nil, err
	}
	q := req.URL.Query()
	q.Set("id", ids)
	req.URL.RawQuery = q.Encode()
	req.Header.Set("X-CMC_PRO_API_KEY", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price api status %d", resp.StatusCode)
	}

	var qr quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&qr); err != nil {
		return nil, fmt.Errorf("decode price response: %w", err)
	}

	quotes := make(map[string]float64)
	for symbol, id := range symbolToID {
		if entry, ok := qr.Data[id]; ok {
			quotes[symbol] = entry.Quote.USD.Price
		}
	}
	return quotes, nil
}

func (c *Client) storeCached(ctx context.Context, currency string, price float64) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SetPrice(ctx, currency, price); err != nil {
		c.log.Debug().Err(err).Str("currency", currency).Msg("price cache write failed")
	}
}
