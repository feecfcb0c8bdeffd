package game

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Store persists rounds, wallet mutations and the transaction log. PlaceBet
// and SettleCashout must be atomic: wallet mutation, round update and
// transaction append all commit or none do.
// UpdateRoundStatus writes lifecycle fields only (status, start/end time);
// the bet and cashout lists belong to the PlaceBet/SettleCashout
// transactions, so a delayed lifecycle write can never clobber them.
type Store interface {
	HighestRoundID(ctx context.Context) (int64, error)
	CreateRound(ctx context.Context, r *Round) error
	UpdateRound(ctx context.Context, r *Round) error
	UpdateRoundStatus(ctx context.Context, r *Round) error
	PlaceBet(ctx context.Context, r *Round, b *Bet, t *Transaction) error
	SettleCashout(ctx context.Context, r *Round, b *Bet, c *Cashout, t *Transaction) error
}

// PriceSource is the price oracle boundary. Implementations may serve
// stale or fallback values; the ledger treats whatever comes back as
// authoritative.
type PriceSource interface {
	GetPrice(ctx context.Context, currency string) (float64, error)
}

// SnapshotCache mirrors the public round state into a cache for cheap
// reads. Optional; a nil cache disables mirroring.
type SnapshotCache interface {
	StoreSnapshot(ctx context.Context, s Snapshot) error
}

// Config tunes the round lifecycle.
type Config struct {
	TickInterval   time.Duration // multiplier update cadence
	CrashPause     time.Duration // fixed pause after a crash before the waiting event
	NextRoundIn    time.Duration // advertised countdown of the waiting phase
	BetTimeout     time.Duration
	CashoutTimeout time.Duration
	StoreTimeout   time.Duration // bound on any single persistence call
}

func (c Config) withDefaults() Config {
	if c.TickInterval <= 0 {
		c.TickInterval = 100 * time.Millisecond
	}
	if c.CrashPause <= 0 {
		c.CrashPause = 100 * time.Millisecond
	}
	if c.NextRoundIn <= 0 {
		c.NextRoundIn = 5 * time.Second
	}
	if c.BetTimeout <= 0 {
		c.BetTimeout = 5 * time.Second
	}
	if c.CashoutTimeout <= 0 {
		c.CashoutTimeout = 500 * time.Millisecond
	}
	if c.StoreTimeout <= 0 {
		c.StoreTimeout = 2 * time.Second
	}
	return c
}

// Engine owns the round lifecycle. A single goroutine advances the state
// machine and is the only writer of round state; bet and cashout requests
// are delivered to that goroutine over channels, which makes it the one
// arbiter of the crash-vs-cashout race.
type Engine struct {
	store  Store
	prices PriceSource
	bus    Publisher
	cache  SnapshotCache
	log    zerolog.Logger
	cfg    Config
	clock  func(elapsed time.Duration) float64

	mu          sync.RWMutex
	current     *Round
	lastRoundID int64

	bets     chan betRequest
	cashouts chan cashoutRequest
	stop     chan struct{}
	done     chan struct{}
}

func NewEngine(store Store, prices PriceSource, bus Publisher, cache SnapshotCache, log zerolog.Logger, cfg Config) *Engine {
	return &Engine{
		store:    store,
		prices:   prices,
		bus:      bus,
		cache:    cache,
		log:      log.With().Str("component", "engine").Logger(),
		cfg:      cfg.withDefaults(),
		clock:    Multiplier,
		bets:     make(chan betRequest, 1000),
		cashouts: make(chan cashoutRequest, 1000),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start seeds the round counter from the store and launches the loop.
// Round ids stay strictly increasing across restarts because the engine is
// the sole writer of round identity.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	last, err := e.store.HighestRoundID(ctx)
	if err != nil {
		return fmt.Errorf("load highest round id: %w", err)
	}
	e.lastRoundID = last

	go e.loop()
	e.log.Info().Int64("last_round_id", last).Msg("engine started")
	return nil
}

// Stop halts the loop after the current select. Accepted bets and cashouts
// already past their channel send still get a reply.
func (e *Engine) Stop() {
	close(e.stop)
	<-e.done
}

// PlaceBet hands a bet to the engine goroutine and waits for the outcome.
func (e *Engine) PlaceBet(userID string, usdAmount float64, currency string) (*Bet, error) {
	req := betRequest{userID: userID, usdAmount: usdAmount, currency: currency, reply: make(chan betReply, 1)}
	select {
	case e.bets <- req:
	default:
		return nil, ErrEngineBusy
	}
	select {
	case r := <-req.reply:
		return r.bet, r.err
	case <-time.After(e.cfg.BetTimeout):
		return nil, ErrRequestTimeout
	}
}

// Cashout hands a cashout to the engine goroutine and waits for the outcome.
func (e *Engine) Cashout(userID string) (*CashoutResult, error) {
	req := cashoutRequest{userID: userID, reply: make(chan cashoutReply, 1)}
	select {
	case e.cashouts <- req:
	default:
		return nil, ErrEngineBusy
	}
	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-time.After(e.cfg.CashoutTimeout):
		return nil, ErrRequestTimeout
	}
}

// Snapshot returns the public view of the current round.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()

	if e.current == nil {
		return Snapshot{Status: StatusWaiting, NextRoundIn: e.cfg.NextRoundIn.Seconds()}
	}
	s := Snapshot{
		Status:     e.current.Status,
		RoundID:    e.current.RoundID,
		Hash:       e.current.Hash,
		Multiplier: e.current.Multiplier,
	}
	switch e.current.Status {
	case StatusWaiting:
		s.NextRoundIn = e.cfg.NextRoundIn.Seconds()
	case StatusRunning:
		s.StartTime = e.current.StartTime
	}
	return s
}

func (e *Engine) loop() {
	defer close(e.done)
	for {
		select {
		case <-e.stop:
			e.log.Info().Msg("engine loop stopped")
			return
		default:
		}
		if !e.runRound() {
			return
		}
	}
}

// runRound drives one full waiting → running → crashed cycle. Returns false
// when the engine is stopping.
func (e *Engine) runRound() bool {
	roundID := e.lastRoundID + 1
	seed := GenerateSeed()
	hash, crashPoint := DeriveCrashPoint(seed, roundID)

	round := &Round{
		RoundID:    roundID,
		Seed:       seed,
		Hash:       hash,
		CrashPoint: crashPoint,
		Status:     StatusWaiting,
		Multiplier: MinCrashPoint,
	}

	// Fail fast: a round that cannot be persisted never opens for betting.
	if err := e.persist(func(ctx context.Context) error {
		return e.store.CreateRound(ctx, round)
	}); err != nil {
		e.log.Error().Err(err).Int64("round_id", roundID).Msg("round create failed, retrying after delay")
		return e.sleep(e.cfg.NextRoundIn)
	}

	e.mu.Lock()
	e.current = round
	e.mu.Unlock()

	// Two-stage delay: short fixed pause so the waiting event lands after
	// the crash broadcast has propagated, then the advertised countdown.
	if !e.sleep(e.cfg.CrashPause) {
		return false
	}
	e.bus.Broadcast(EventWaiting, waitingEvent{Status: string(StatusWaiting), NextRoundIn: e.cfg.NextRoundIn.Seconds()})
	e.mirrorSnapshot()

	if !e.waitingWindow() {
		return false
	}

	e.mu.Lock()
	round.Status = StatusRunning
	round.StartTime = time.Now()
	round.Multiplier = MinCrashPoint
	e.mu.Unlock()

	// Lifecycle write only: bets committed while this retries must not be
	// overwritten by a snapshot taken before they landed.
	e.persistAsync(round, e.store.UpdateRoundStatus)
	e.bus.Broadcast(EventRoundStart, roundStartEvent{
		RoundID:   round.RoundID,
		Hash:      round.Hash,
		StartTime: round.StartTime.UnixMilli(),
	})
	e.mirrorSnapshot()
	e.log.Info().Int64("round_id", round.RoundID).Str("hash", round.Hash[:16]).Msg("round running")

	if !e.runningWindow(round) {
		return false
	}

	e.lastRoundID = round.RoundID
	return true
}

// waitingWindow accepts bets for the upcoming round until the countdown
// expires. Cashout requests arriving here fail with ErrNoActiveRound.
func (e *Engine) waitingWindow() bool {
	timer := time.NewTimer(e.cfg.NextRoundIn)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return true
		case req := <-e.bets:
			bet, err := e.processBet(req)
			req.reply <- betReply{bet: bet, err: err}
		case req := <-e.cashouts:
			result, err := e.processCashout(req)
			req.reply <- cashoutReply{result: result, err: err}
		case <-e.stop:
			return false
		}
	}
}

// runningWindow ticks the multiplier clock until the crash point is hit,
// interleaving bet and cashout requests with the ticks.
func (e *Engine) runningWindow(round *Round) bool {
	ticker := time.NewTicker(e.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			elapsed := time.Since(round.StartTime)
			mult := e.clock(elapsed)

			if mult >= round.CrashPoint {
				e.settleCrash(round)
				return true
			}

			e.mu.Lock()
			round.Multiplier = mult
			e.mu.Unlock()
			e.bus.Broadcast(EventMultiplierUpdate, multiplierUpdateEvent{Multiplier: mult})

		case req := <-e.bets:
			bet, err := e.processBet(req)
			req.reply <- betReply{bet: bet, err: err}
		case req := <-e.cashouts:
			result, err := e.processCashout(req)
			req.reply <- cashoutReply{result: result, err: err}
		case <-e.stop:
			return false
		}
	}
}

// settleCrash ends the round: endTime fixed once, pending bets marked lost
// with no wallet mutation (the stake was deducted at placement), crash
// broadcast with the seed reveal.
func (e *Engine) settleCrash(round *Round) {
	e.mu.Lock()
	round.Status = StatusCrashed
	round.Multiplier = round.CrashPoint
	round.EndTime = time.Now()

	lost := 0
	for _, b := range round.Bets {
		if b.Status == BetPending {
			b.Status = BetLost
			lost++
		}
	}
	e.mu.Unlock()

	e.bus.Broadcast(EventRoundCrash, roundCrashEvent{
		RoundID:    round.RoundID,
		CrashPoint: round.CrashPoint,
		Seed:       round.Seed,
	})
	e.mirrorSnapshot()
	e.log.Info().
		Int64("round_id", round.RoundID).
		Float64("crash_point", round.CrashPoint).
		Int("lost_bets", lost).
		Msg("round crashed")

	// The in-memory transition is done; history catches up out of band.
	// The persisted row is marked settled once the lost bets are folded in.
	// The full write is safe here: the round is crashed, so no bet or
	// cashout transaction can land on it anymore.
	final := cloneRound(round)
	final.Status = StatusSettled
	e.persistAsync(final, e.store.UpdateRound)
}

func (e *Engine) processBet(req betRequest) (*Bet, error) {
	if req.usdAmount <= 0 {
		return nil, ErrInvalidAmount
	}
	if !SupportedCurrency(req.currency) {
		return nil, ErrUnsupportedCurrency
	}

	round := e.current
	if round == nil || (round.Status != StatusWaiting && round.Status != StatusRunning) {
		return nil, ErrNoActiveRound
	}
	for _, b := range round.Bets {
		if b.UserID == req.userID && b.Status == BetPending {
			return nil, ErrBetPending
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()

	price, err := e.prices.GetPrice(ctx, req.currency)
	if err != nil {
		return nil, fmt.Errorf("price lookup: %w", err)
	}

	now := time.Now()
	bet := &Bet{
		BetID:           newID(),
		UserID:          req.userID,
		UsdAmount:       req.usdAmount,
		Currency:        req.currency,
		CryptoAmount:    req.usdAmount / price,
		PriceAtBet:      price,
		PlacedAt:        now,
		Status:          BetPending,
		TransactionHash: "tx_" + newID(),
	}
	txRec := &Transaction{
		UserID:          req.userID,
		Type:            TxBet,
		Currency:        req.currency,
		CryptoAmount:    bet.CryptoAmount,
		UsdAmount:       req.usdAmount,
		PriceAtTime:     price,
		TransactionHash: bet.TransactionHash,
		RoundID:         round.RoundID,
		CreatedAt:       now,
	}

	e.mu.Lock()
	round.Bets = append(round.Bets, bet)
	e.mu.Unlock()

	if err := e.store.PlaceBet(ctx, round, bet, txRec); err != nil {
		e.mu.Lock()
		round.Bets = round.Bets[:len(round.Bets)-1]
		e.mu.Unlock()
		if errors.Is(err, ErrInsufficientBalance) {
			return nil, ErrInsufficientBalance
		}
		return nil, fmt.Errorf("place bet: %w", err)
	}

	e.bus.Broadcast(EventBetPlaced, betPlacedEvent{
		UserID:    req.userID,
		UsdAmount: req.usdAmount,
		Currency:  req.currency,
		RoundID:   round.RoundID,
	})
	e.log.Debug().Str("user_id", req.userID).Float64("usd", req.usdAmount).Str("currency", req.currency).Msg("bet placed")

	// Reply with a copy: the bet on the round stays owned by the engine
	// goroutine, which keeps mutating it through cashout and crash.
	bc := *bet
	return &bc, nil
}

func (e *Engine) processCashout(req cashoutRequest) (*CashoutResult, error) {
	round := e.current
	if round == nil || round.Status != StatusRunning {
		return nil, ErrNoActiveRound
	}

	var bet *Bet
	for _, b := range round.Bets {
		if b.UserID == req.userID && b.Status == BetPending {
			bet = b
			break
		}
	}
	if bet == nil {
		return nil, ErrNoPendingBet
	}

	// The multiplier is read here, inside the engine goroutine, so it can
	// never come from a round that has already crashed.
	multiplier := round.Multiplier
	payoutCrypto := bet.CryptoAmount * multiplier
	// USD valuation locks in the placement price, isolating round economics
	// from oracle movement during play.
	payoutUsd := payoutCrypto * bet.PriceAtBet

	now := time.Now()
	txHash := "tx_" + newID()
	cashout := &Cashout{
		UserID:            req.userID,
		CashoutMultiplier: multiplier,
		CashoutTime:       now,
		PayoutCrypto:      payoutCrypto,
		PayoutUsd:         payoutUsd,
		TransactionHash:   txHash,
	}
	txRec := &Transaction{
		UserID:          req.userID,
		Type:            TxCashout,
		Currency:        bet.Currency,
		CryptoAmount:    payoutCrypto,
		UsdAmount:       payoutUsd,
		PriceAtTime:     bet.PriceAtBet,
		TransactionHash: txHash,
		RoundID:         round.RoundID,
		Multiplier:      multiplier,
		CreatedAt:       now,
	}

	e.mu.Lock()
	bet.Status = BetCashedOut
	bet.CashoutMultiplier = multiplier
	bet.CashoutTime = now
	bet.PayoutCrypto = payoutCrypto
	bet.PayoutUsd = payoutUsd
	round.Cashouts = append(round.Cashouts, cashout)
	e.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()

	if err := e.store.SettleCashout(ctx, round, bet, cashout, txRec); err != nil {
		// Roll back: the bet stays pending and can be retried or settled
		// as lost at crash time.
		e.mu.Lock()
		bet.Status = BetPending
		bet.CashoutMultiplier = 0
		bet.CashoutTime = time.Time{}
		bet.PayoutCrypto = 0
		bet.PayoutUsd = 0
		round.Cashouts = round.Cashouts[:len(round.Cashouts)-1]
		e.mu.Unlock()
		return nil, fmt.Errorf("settle cashout: %w", err)
	}

	e.bus.Broadcast(EventPlayerCashout, playerCashoutEvent{
		UserID:     req.userID,
		Multiplier: multiplier,
		Payout:     payoutCrypto,
	})
	e.log.Debug().Str("user_id", req.userID).Float64("multiplier", multiplier).Float64("payout", payoutCrypto).Msg("cashed out")

	return &CashoutResult{CryptoAmount: payoutCrypto, UsdAmount: payoutUsd, Multiplier: multiplier}, nil
}

func (e *Engine) persist(op func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
	defer cancel()
	return op(ctx)
}

// persistAsync writes a round update off the engine goroutine with retries,
// so a slow store never stalls the multiplier tick. write receives a deep
// copy taken at call time.
func (e *Engine) persistAsync(round *Round, write func(context.Context, *Round) error) {
	snapshot := cloneRound(round)
	go func() {
		backoff := 200 * time.Millisecond
		for attempt := 1; attempt <= 3; attempt++ {
			err := e.persist(func(ctx context.Context) error {
				return write(ctx, snapshot)
			})
			if err == nil {
				return
			}
			if attempt == 3 {
				e.log.Error().Err(err).Int64("round_id", snapshot.RoundID).Msg("round persist failed, history will lag")
				return
			}
			e.log.Warn().Err(err).Int64("round_id", snapshot.RoundID).Int("attempt", attempt).Msg("round persist retry")
			time.Sleep(backoff)
			backoff *= 2
		}
	}()
}

func (e *Engine) mirrorSnapshot() {
	if e.cache == nil {
		return
	}
	snap := e.Snapshot()
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), e.cfg.StoreTimeout)
		defer cancel()
		if err := e.cache.StoreSnapshot(ctx, snap); err != nil {
			e.log.Warn().Err(err).Msg("snapshot cache write failed")
		}
	}()
}

// sleep waits for d unless the engine is stopping. Returns false on stop.
func (e *Engine) sleep(d time.Duration) bool {
	select {
	case <-time.After(d):
		return true
	case <-e.stop:
		return false
	}
}

func cloneRound(r *Round) *Round {
	c := *r
	c.Bets = make([]*Bet, len(r.Bets))
	for i, b := range r.Bets {
		bc := *b
		c.Bets[i] = &bc
	}
	c.Cashouts = make([]*Cashout, len(r.Cashouts))
	for i, co := range r.Cashouts {
		cc := *co
		c.Cashouts[i] = &cc
	}
	return &c
}
