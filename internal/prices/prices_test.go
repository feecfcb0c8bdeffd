package prices

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"freefall/internal/cache"
	"freefall/internal/game"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func quoteServer(t *testing.T, btc, eth float64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-CMC_PRO_API_KEY") == "" {
			t.Error("request missing API key header")
		}
		fmt.Fprintf(w, `{"data":{
			"1":{"quote":{"USD":{"price":%f}}},
			"1027":{"quote":{"USD":{"price":%f}}}
		}}`, btc, eth)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(t *testing.T, apiURL string, withCache bool) *Client {
	t.Helper()
	t.Setenv("PRICE_API_URL", apiURL)
	t.Setenv("COINMARKETCAP_API_KEY", "test_key")

	var c cache.Service
	if withCache {
		mr := miniredis.RunT(t)
		client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { client.Close() })
		c = cache.NewWithClient(client)
	}
	return New(c, zerolog.Nop())
}

func TestGetPrice(t *testing.T) {
	srv := quoteServer(t, 61234.5, 3456.7)
	client := newTestClient(t, srv.URL, true)

	price, err := client.GetPrice(context.Background(), game.CurrencyBTC)
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if price != 61234.5 {
		t.Errorf("GetPrice(BTC) = %v, want 61234.5", price)
	}

	price, err = client.GetPrice(context.Background(), game.CurrencyETH)
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if price != 3456.7 {
		t.Errorf("GetPrice(ETH) = %v, want 3456.7", price)
	}
}

func TestGetPrice_ServesFromCache(t *testing.T) {
	srv := quoteServer(t, 61234.5, 3456.7)
	client := newTestClient(t, srv.URL, true)

	if _, err := client.GetPrice(context.Background(), game.CurrencyBTC); err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}

	// upstream gone; the cached quote still serves
	srv.Close()

	price, err := client.GetPrice(context.Background(), game.CurrencyBTC)
	if err != nil {
		t.Fatalf("GetPrice() after upstream loss error = %v", err)
	}
	if price != 61234.5 {
		t.Errorf("GetPrice() from cache = %v, want 61234.5", price)
	}
}

func TestGetPrice_FallbackOnUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL, false)

	price, err := client.GetPrice(context.Background(), game.CurrencyBTC)
	if err != nil {
		t.Fatalf("GetPrice() error = %v, fallback should absorb upstream failure", err)
	}
	if price != fallbackPrices[game.CurrencyBTC] {
		t.Errorf("GetPrice() = %v, want fallback %v", price, fallbackPrices[game.CurrencyBTC])
	}
}

func TestGetPrice_UnsupportedCurrency(t *testing.T) {
	client := newTestClient(t, "http://localhost:0", false)

	_, err := client.GetPrice(context.Background(), "DOGE")
	if !errors.Is(err, game.ErrUnsupportedCurrency) {
		t.Errorf("GetPrice(DOGE) error = %v, want %v", err, game.ErrUnsupportedCurrency)
	}
}

func TestGetAllPrices(t *testing.T) {
	srv := quoteServer(t, 61234.5, 3456.7)
	client := newTestClient(t, srv.URL, false)

	prices, err := client.GetAllPrices(context.Background())
	if err != nil {
		t.Fatalf("GetAllPrices() error = %v", err)
	}
	if prices[game.CurrencyBTC] != 61234.5 || prices[game.CurrencyETH] != 3456.7 {
		t.Errorf("GetAllPrices() = %v", prices)
	}
}

func TestGetAllPrices_FallbackPerCurrency(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL, true)

	// a cached ETH quote survives the outage; BTC drops to the fallback
	if err := client.cache.SetPrice(context.Background(), game.CurrencyETH, 2999); err != nil {
		t.Fatal(err)
	}

	prices, err := client.GetAllPrices(context.Background())
	if err != nil {
		t.Fatalf("GetAllPrices() error = %v", err)
	}
	if prices[game.CurrencyETH] != 2999 {
		t.Errorf("ETH price = %v, want cached 2999", prices[game.CurrencyETH])
	}
	if prices[game.CurrencyBTC] != fallbackPrices[game.CurrencyBTC] {
		t.Errorf("BTC price = %v, want fallback", prices[game.CurrencyBTC])
	}
}

func TestGetPrice_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	t.Cleanup(srv.Close)
	client := newTestClient(t, srv.URL, false)
	client.http.Timeout = 50 * time.Millisecond

	price, err := client.GetPrice(context.Background(), game.CurrencyETH)
	if err != nil {
		t.Fatalf("GetPrice() error = %v", err)
	}
	if price != fallbackPrices[game.CurrencyETH] {
		t.Errorf("GetPrice() = %v, want fallback on timeout", price)
	}
}
