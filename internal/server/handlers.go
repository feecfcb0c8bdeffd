package server

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"freefall/internal/game"
)

type placeBetBody struct {
	UserID    string  `json:"userId"`
	UsdAmount float64 `json:"usdAmount"`
	Currency  string  `json:"currency"`
}

type cashoutBody struct {
	UserID string `json:"userId"`
}

type depositBody struct {
	Currency string  `json:"currency"`
	Amount   float64 `json:"amount"`
}

func (s *FiberServer) gameStateHandler(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"success": true,
		"game":    s.engine.Snapshot(),
	})
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var body placeBetBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.UserID == "" {
		return badRequest(c, "userId is required")
	}

	bet, err := s.engine.PlaceBet(body.UserID, body.UsdAmount, body.Currency)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"bet":     bet,
	})
}

func (s *FiberServer) cashoutHandler(c *fiber.Ctx) error {
	var body cashoutBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.UserID == "" {
		return badRequest(c, "userId is required")
	}

	result, err := s.engine.Cashout(body.UserID)
	if err != nil {
		return ledgerError(c, err)
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"cryptoAmount": result.CryptoAmount,
		"usdAmount":    result.UsdAmount,
		"multiplier":   result.Multiplier,
	})
}

// roundHistoryEntry hides the seed and crash point of any round that has
// not ended yet; ended rounds expose both so players can verify fairness.
type roundHistoryEntry struct {
	RoundID    int64            `json:"roundId"`
	Hash       string           `json:"hash"`
	Status     game.RoundStatus `json:"status"`
	StartTime  *time.Time       `json:"startTime,omitempty"`
	EndTime    *time.Time       `json:"endTime,omitempty"`
	CrashPoint float64          `json:"crashPoint,omitempty"`
	Seed       string           `json:"seed,omitempty"`
	Bets       []*game.Bet      `json:"bets"`
	Cashouts   []*game.Cashout  `json:"cashouts"`
}

func (s *FiberServer) gameHistoryHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 10)
	offset := c.QueryInt("offset", 0)

	rounds, err := s.store.RoundHistory(c.Context(), limit, offset)
	if err != nil {
		s.log.Error().Err(err).Msg("round history failed")
		return serverError(c, "failed to load history")
	}

	history := make([]roundHistoryEntry, 0, len(rounds))
	for _, r := range rounds {
		entry := roundHistoryEntry{
			RoundID:  r.RoundID,
			Hash:     r.Hash,
			Status:   r.Status,
			Bets:     r.Bets,
			Cashouts: r.Cashouts,
		}
		if !r.StartTime.IsZero() {
			t := r.StartTime
			entry.StartTime = &t
		}
		if !r.EndTime.IsZero() {
			t := r.EndTime
			entry.EndTime = &t
		}
		if r.Status == game.StatusCrashed || r.Status == game.StatusSettled {
			entry.CrashPoint = r.CrashPoint
			entry.Seed = r.Seed
		}
		history = append(history, entry)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"history": history,
	})
}

func (s *FiberServer) verifyRoundHandler(c *fiber.Ctx) error {
	seed := c.Query("seed")
	roundID, err := strconv.ParseInt(c.Query("roundId"), 10, 64)
	if seed == "" || err != nil {
		return badRequest(c, "seed and roundId are required")
	}

	hash, crashPoint := game.DeriveCrashPoint(seed, roundID)
	resp := fiber.Map{
		"success":    true,
		"roundId":    roundID,
		"hash":       hash,
		"crashPoint": crashPoint,
	}

	if claimed := c.Query("crashPoint"); claimed != "" {
		claimedCrash, err := strconv.ParseFloat(claimed, 64)
		if err != nil {
			return badRequest(c, "crashPoint must be a number")
		}
		resp["valid"] = game.VerifyCrashPoint(seed, roundID, c.Query("hash"), claimedCrash)
	}

	return c.JSON(resp)
}

func (s *FiberServer) pricesHandler(c *fiber.Ctx) error {
	allPrices, err := s.prices.GetAllPrices(c.Context())
	if err != nil {
		s.log.Error().Err(err).Msg("price fetch failed")
		return serverError(c, "failed to load prices")
	}
	return c.JSON(fiber.Map{
		"success": true,
		"prices":  allPrices,
	})
}

func (s *FiberServer) walletBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return badRequest(c, "userId is required")
	}

	if currency := c.Query("currency"); currency != "" {
		if !game.SupportedCurrency(currency) {
			return badRequest(c, game.ErrUnsupportedCurrency.Error())
		}
		balance, err := s.store.Balance(c.Context(), userID, currency)
		if err != nil {
			s.log.Error().Err(err).Str("user_id", userID).Msg("balance lookup failed")
			return serverError(c, "failed to load balance")
		}
		price, _ := s.prices.GetPrice(c.Context(), currency)
		return c.JSON(fiber.Map{
			"success":  true,
			"currency": currency,
			"balance": fiber.Map{
				"crypto": balance,
				"usd":    balance * price,
			},
		})
	}

	balances, err := s.store.Balances(c.Context(), userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("balances lookup failed")
		return serverError(c, "failed to load balances")
	}

	allPrices, _ := s.prices.GetAllPrices(c.Context())
	totalUsd := 0.0
	usd := fiber.Map{}
	for currency, balance := range balances {
		value := balance * allPrices[currency]
		usd[currency] = value
		totalUsd += value
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"balances": balances,
		"usd":      usd,
		"totalUsd": totalUsd,
	})
}

func (s *FiberServer) walletDepositHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return badRequest(c, "userId is required")
	}

	var body depositBody
	if err := c.BodyParser(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.Amount <= 0 {
		return badRequest(c, game.ErrInvalidAmount.Error())
	}
	if !game.SupportedCurrency(body.Currency) {
		return badRequest(c, game.ErrUnsupportedCurrency.Error())
	}

	price, _ := s.prices.GetPrice(c.Context(), body.Currency)
	tx := &game.Transaction{
		UserID:          userID,
		Type:            game.TxDeposit,
		Currency:        body.Currency,
		CryptoAmount:    body.Amount,
		UsdAmount:       body.Amount * price,
		PriceAtTime:     price,
		TransactionHash: "tx_" + uuid.NewString(),
		CreatedAt:       time.Now(),
	}

	if err := s.store.Deposit(c.Context(), tx); err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("deposit failed")
		return serverError(c, "deposit failed")
	}

	balance, err := s.store.Balance(c.Context(), userID, body.Currency)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("balance lookup failed")
		return serverError(c, "failed to load balance")
	}

	return c.JSON(fiber.Map{
		"success":  true,
		"currency": body.Currency,
		"balance": fiber.Map{
			"crypto": balance,
			"usd":    balance * price,
		},
	})
}

func (s *FiberServer) walletTransactionsHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return badRequest(c, "userId is required")
	}
	limit := c.QueryInt("limit", 20)
	offset := c.QueryInt("offset", 0)

	txs, err := s.store.TransactionHistory(c.Context(), userID, limit, offset)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("transaction history failed")
		return serverError(c, "failed to load transactions")
	}

	return c.JSON(fiber.Map{
		"success":      true,
		"transactions": txs,
	})
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

func serverError(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"success": false,
		"error":   message,
	})
}

// ledgerError maps the ledger taxonomy onto HTTP statuses. Every ledger
// error is client-facing and atomic-or-nothing, so nothing here signals a
// partial write.
func ledgerError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, game.ErrInvalidAmount),
		errors.Is(err, game.ErrUnsupportedCurrency),
		errors.Is(err, game.ErrNoActiveRound),
		errors.Is(err, game.ErrInsufficientBalance),
		errors.Is(err, game.ErrNoPendingBet),
		errors.Is(err, game.ErrBetPending):
		return badRequest(c, err.Error())
	case errors.Is(err, game.ErrRequestTimeout), errors.Is(err, game.ErrEngineBusy):
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	default:
		return serverError(c, err.Error())
	}
}
