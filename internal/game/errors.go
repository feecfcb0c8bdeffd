package game

import "errors"

var (
	ErrNoActiveRound       = errors.New("no active round")
	ErrInvalidAmount       = errors.New("bet amount must be positive")
	ErrUnsupportedCurrency = errors.New("unsupported currency")
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrNoPendingBet        = errors.New("no pending bet for this user")
	ErrBetPending          = errors.New("user already has a pending bet this round")
	ErrRequestTimeout      = errors.New("request timed out")
	ErrEngineBusy          = errors.New("engine queue full")
)
