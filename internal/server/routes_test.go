package server

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"freefall/internal/game"
)

// memStore is just enough of game.Store to stand the engine up in tests.
type memStore struct{}

func (memStore) HighestRoundID(ctx context.Context) (int64, error)          { return 0, nil }
func (memStore) CreateRound(ctx context.Context, r *game.Round) error       { return nil }
func (memStore) UpdateRound(ctx context.Context, r *game.Round) error       { return nil }
func (memStore) UpdateRoundStatus(ctx context.Context, r *game.Round) error { return nil }
func (memStore) PlaceBet(ctx context.Context, r *game.Round, b *game.Bet, t *game.Transaction) error {
	return nil
}
func (memStore) SettleCashout(ctx context.Context, r *game.Round, b *game.Bet, c *game.Cashout, t *game.Transaction) error {
	return nil
}

type staticPrices struct{}

func (staticPrices) GetPrice(ctx context.Context, currency string) (float64, error) {
	return 50000, nil
}

type noopBus struct{}

func (noopBus) Broadcast(event string, data any) {}

func newTestServer(t *testing.T, cfg game.Config) *FiberServer {
	t.Helper()
	s := &FiberServer{
		App:    fiber.New(),
		engine: game.NewEngine(memStore{}, staticPrices{}, noopBus{}, nil, zerolog.Nop(), cfg),
		hub:    game.NewHub(zerolog.Nop()),
		log:    zerolog.Nop(),
	}
	s.App.Get("/api/v1/game/state", s.gameStateHandler)
	s.App.Post("/api/v1/game/bet", s.placeBetHandler)
	s.App.Post("/api/v1/game/cashout", s.cashoutHandler)
	s.App.Get("/api/v1/game/verify", s.verifyRoundHandler)
	s.App.Post("/api/v1/wallet/:userId/deposit", s.walletDepositHandler)
	return s
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("could not read response body: %v", err)
	}
	var result map[string]any
	if err := json.Unmarshal(body, &result); err != nil {
		t.Fatalf("could not unmarshal response: %v", err)
	}
	return result
}

func TestGameStateHandler(t *testing.T) {
	s := newTestServer(t, game.Config{NextRoundIn: 5 * time.Second})

	req, _ := http.NewRequest("GET", "/api/v1/game/state", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	result := decodeBody(t, resp)
	if result["success"] != true {
		t.Errorf("expected success; got %v", result["success"])
	}
	state, ok := result["game"].(map[string]any)
	if !ok {
		t.Fatalf("missing game state in response: %v", result)
	}
	if state["status"] != "waiting" {
		t.Errorf("expected waiting state before the first round; got %v", state["status"])
	}
}

func TestPlaceBetHandler_MissingUser(t *testing.T) {
	s := newTestServer(t, game.Config{})

	req, _ := http.NewRequest("POST", "/api/v1/game/bet", strings.NewReader(`{"usdAmount":10,"currency":"BTC"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400; got %v", resp.Status)
	}
}

func TestPlaceBetHandler_EngineUnavailable(t *testing.T) {
	// engine loop not running: the request can only time out
	s := newTestServer(t, game.Config{BetTimeout: 10 * time.Millisecond})

	req, _ := http.NewRequest("POST", "/api/v1/game/bet",
		strings.NewReader(`{"userId":"alice","usdAmount":10,"currency":"BTC"}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("expected status 503; got %v", resp.Status)
	}
}

func TestCashoutHandler_MissingUser(t *testing.T) {
	s := newTestServer(t, game.Config{})

	req, _ := http.NewRequest("POST", "/api/v1/game/cashout", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400; got %v", resp.Status)
	}
}

func TestVerifyRoundHandler(t *testing.T) {
	s := newTestServer(t, game.Config{})
	seed := "public_verify_seed"
	roundID := int64(11)
	hash, crash := game.DeriveCrashPoint(seed, roundID)

	url := fmt.Sprintf("/api/v1/game/verify?seed=%s&roundId=%d&hash=%s&crashPoint=%v", seed, roundID, hash, crash)
	req, _ := http.NewRequest("GET", url, nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("expected status OK; got %v", resp.Status)
	}

	result := decodeBody(t, resp)
	if result["hash"] != hash {
		t.Errorf("hash = %v, want %v", result["hash"], hash)
	}
	if result["crashPoint"] != crash {
		t.Errorf("crashPoint = %v, want %v", result["crashPoint"], crash)
	}
	if result["valid"] != true {
		t.Errorf("valid = %v, want true for an honest claim", result["valid"])
	}
}

func TestVerifyRoundHandler_DishonestClaim(t *testing.T) {
	s := newTestServer(t, game.Config{})

	req, _ := http.NewRequest("GET", "/api/v1/game/verify?seed=some_seed&roundId=3&crashPoint=99.99", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}

	result := decodeBody(t, resp)
	if result["valid"] == true {
		t.Error("expected dishonest crash point claim to be rejected")
	}
}

func TestVerifyRoundHandler_MissingParams(t *testing.T) {
	s := newTestServer(t, game.Config{})

	req, _ := http.NewRequest("GET", "/api/v1/game/verify?seed=only_a_seed", nil)
	resp, err := s.App.Test(req)
	if err != nil {
		t.Fatalf("could not perform request: %v", err)
	}
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected status 400; got %v", resp.Status)
	}
}

func TestWalletDepositHandler_Validation(t *testing.T) {
	// validation runs before any store access, so no store is wired here
	tests := []struct {
		name string
		body string
	}{
		{name: "zero amount", body: `{"currency":"BTC","amount":0}`},
		{name: "negative amount", body: `{"currency":"BTC","amount":-1}`},
		{name: "unsupported currency", body: `{"currency":"DOGE","amount":1}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t, game.Config{})

			req, _ := http.NewRequest("POST", "/api/v1/wallet/alice/deposit", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")
			resp, err := s.App.Test(req)
			if err != nil {
				t.Fatalf("could not perform request: %v", err)
			}
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("expected status 400; got %v", resp.Status)
			}
		})
	}
}

func TestLedgerErrorStatus(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "invalid amount", err: game.ErrInvalidAmount, want: http.StatusBadRequest},
		{name: "unsupported currency", err: game.ErrUnsupportedCurrency, want: http.StatusBadRequest},
		{name: "no active round", err: game.ErrNoActiveRound, want: http.StatusBadRequest},
		{name: "insufficient balance", err: game.ErrInsufficientBalance, want: http.StatusBadRequest},
		{name: "no pending bet", err: game.ErrNoPendingBet, want: http.StatusBadRequest},
		{name: "bet already pending", err: game.ErrBetPending, want: http.StatusBadRequest},
		{name: "request timeout", err: game.ErrRequestTimeout, want: http.StatusServiceUnavailable},
		{name: "engine busy", err: game.ErrEngineBusy, want: http.StatusServiceUnavailable},
		{name: "unknown", err: fmt.Errorf("store exploded"), want: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			app.Get("/err", func(c *fiber.Ctx) error {
				return ledgerError(c, tt.err)
			})

			req, _ := http.NewRequest("GET", "/err", nil)
			resp, err := app.Test(req)
			if err != nil {
				t.Fatalf("could not perform request: %v", err)
			}
			if resp.StatusCode != tt.want {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.want)
			}
		})
	}
}
