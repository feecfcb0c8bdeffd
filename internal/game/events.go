package game

// Event names on the wire. Broadcast events go to every connected viewer;
// cashout_success / cashout_error are direct replies to the requesting actor.
const (
	EventRoundStart       = "round_start"
	EventMultiplierUpdate = "multiplier_update"
	EventRoundCrash       = "round_crash"
	EventWaiting          = "waiting"
	EventBetPlaced        = "bet_placed"
	EventPlayerCashout    = "player_cashout"
	EventRoundState       = "round_state"
	EventCashoutSuccess   = "cashout_success"
	EventCashoutError     = "cashout_error"
)

// Envelope is the wire frame for every event.
type Envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

// Publisher delivers engine events to connected viewers. Implementations
// must not block the caller.
type Publisher interface {
	Broadcast(event string, data any)
}

type roundStartEvent struct {
	RoundID   int64  `json:"roundId"`
	Hash      string `json:"hash"`
	StartTime int64  `json:"startTime"` // unix millis
}

type multiplierUpdateEvent struct {
	Multiplier float64 `json:"multiplier"`
}

type roundCrashEvent struct {
	RoundID    int64   `json:"roundId"`
	CrashPoint float64 `json:"crashPoint"`
	Seed       string  `json:"seed"` // the reveal: verifies the pre-round hash
}

type waitingEvent struct {
	Status      string  `json:"status"`
	NextRoundIn float64 `json:"nextRoundIn"`
}

type betPlacedEvent struct {
	UserID    string  `json:"userId"`
	UsdAmount float64 `json:"usdAmount"`
	Currency  string  `json:"currency"`
	RoundID   int64   `json:"roundId"`
}

type playerCashoutEvent struct {
	UserID     string  `json:"userId"`
	Multiplier float64 `json:"multiplier"`
	Payout     float64 `json:"payout"`
}
