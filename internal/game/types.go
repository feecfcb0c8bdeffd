package game

import (
	"time"

	"github.com/google/uuid"
)

// newID mints identifiers for bets and transaction hashes.
func newID() string {
	return uuid.NewString()
}

type RoundStatus string

const (
	StatusWaiting RoundStatus = "waiting"
	StatusRunning RoundStatus = "running"
	StatusCrashed RoundStatus = "crashed"
	StatusSettled RoundStatus = "settled"
)

type BetStatus string

const (
	BetPending   BetStatus = "pending"
	BetCashedOut BetStatus = "cashed_out"
	BetLost      BetStatus = "lost"
)

type TransactionType string

const (
	TxDeposit    TransactionType = "deposit"
	TxWithdrawal TransactionType = "withdrawal"
	TxBet        TransactionType = "bet"
	TxCashout    TransactionType = "cashout"
	TxWin        TransactionType = "win"
)

// Currencies the wallet and ledger accept.
const (
	CurrencyBTC = "BTC"
	CurrencyETH = "ETH"
)

func SupportedCurrency(currency string) bool {
	return currency == CurrencyBTC || currency == CurrencyETH
}

// Round is the authoritative in-memory round record. The engine goroutine
// is its only writer; everyone else sees copies via Snapshot.
type Round struct {
	RoundID    int64       `json:"roundId"`
	Seed       string      `json:"-"` // revealed only after the crash
	Hash       string      `json:"hash"`
	CrashPoint float64     `json:"-"` // hidden until the crash
	Status     RoundStatus `json:"status"`
	StartTime  time.Time   `json:"startTime"`
	EndTime    time.Time   `json:"endTime,omitempty"`
	Multiplier float64     `json:"multiplier"`
	Bets       []*Bet      `json:"bets"`
	Cashouts   []*Cashout  `json:"cashouts"`
}

// Bet belongs to exactly one round and one user. At most one pending bet
// per user per round.
type Bet struct {
	BetID             string    `json:"betId"`
	UserID            string    `json:"userId"`
	UsdAmount         float64   `json:"usdAmount"`
	Currency          string    `json:"currency"`
	CryptoAmount      float64   `json:"cryptoAmount"`
	PriceAtBet        float64   `json:"priceAtBet"` // USD per crypto, immutable after placement
	PlacedAt          time.Time `json:"placedAt"`
	Status            BetStatus `json:"status"`
	CashoutMultiplier float64   `json:"cashoutMultiplier,omitempty"`
	CashoutTime       time.Time `json:"cashoutTime,omitempty"`
	PayoutCrypto      float64   `json:"payoutCrypto,omitempty"`
	PayoutUsd         float64   `json:"payoutUsd,omitempty"`
	TransactionHash   string    `json:"transactionHash"`
}

type Cashout struct {
	UserID            string    `json:"userId"`
	CashoutMultiplier float64   `json:"cashoutMultiplier"`
	CashoutTime       time.Time `json:"cashoutTime"`
	PayoutCrypto      float64   `json:"payoutCrypto"`
	PayoutUsd         float64   `json:"payoutUsd"`
	TransactionHash   string    `json:"transactionHash"`
}

// Transaction is an append-only ledger entry. Created once, never mutated.
type Transaction struct {
	UserID          string          `json:"userId"`
	Type            TransactionType `json:"type"`
	Currency        string          `json:"currency"`
	CryptoAmount    float64         `json:"cryptoAmount"`
	UsdAmount       float64         `json:"usdAmount"`
	PriceAtTime     float64         `json:"priceAtTime"`
	TransactionHash string          `json:"transactionHash"`
	RoundID         int64           `json:"roundId,omitempty"`
	Multiplier      float64         `json:"multiplier,omitempty"`
	CreatedAt       time.Time       `json:"createdAt"`
}

// Snapshot is the public view of the current round sent to clients. It never
// carries the seed or the crash point of a live round.
type Snapshot struct {
	Status      RoundStatus `json:"status"`
	RoundID     int64       `json:"roundId,omitempty"`
	Hash        string      `json:"hash,omitempty"`
	Multiplier  float64     `json:"multiplier,omitempty"`
	StartTime   time.Time   `json:"startTime,omitempty"`
	NextRoundIn float64     `json:"nextRoundIn,omitempty"` // seconds, waiting only
}

// CashoutResult is returned to the player on a successful cash out.
type CashoutResult struct {
	CryptoAmount float64 `json:"cryptoAmount"`
	UsdAmount    float64 `json:"usdAmount"`
	Multiplier   float64 `json:"multiplier"`
}

type betRequest struct {
	userID    string
	usdAmount float64
	currency  string
	reply     chan betReply
}

type betReply struct {
	bet *Bet
	err error
}

type cashoutRequest struct {
	userID string
	reply  chan cashoutReply
}

type cashoutReply struct {
	result *CashoutResult
	err    error
}
