package server

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"freefall/internal/game"
)

type wsInbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type wsUserRef struct {
	UserID string `json:"userId"`
}

// gameWebSocketHandler serves the live event stream. Every connection gets
// a round_state snapshot up front; after that, engine events are broadcast
// through the hub and request outcomes are sent back directly.
func (s *FiberServer) gameWebSocketHandler(conn *websocket.Conn) {
	userID := conn.Query("userId", "anonymous")

	client := s.hub.RegisterClient(conn, userID)
	defer s.hub.UnregisterClient(client)

	if err := client.Send(game.EventRoundState, s.engine.Snapshot()); err != nil {
		s.log.Debug().Err(err).Str("user_id", userID).Msg("snapshot send failed")
		return
	}

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var msg wsInbound
		if err := json.Unmarshal(message, &msg); err != nil {
			client.Send("error", fiber.Map{"message": "invalid message format"})
			continue
		}

		switch msg.Event {
		case "cash_out":
			s.handleWsCashout(client, msg.Data, userID)

		case "get_balance":
			s.handleWsBalance(client, msg.Data, userID)

		case "ping":
			client.Send("pong", nil)

		default:
			client.Send("error", fiber.Map{"message": "unknown event"})
		}
	}
}

func (s *FiberServer) handleWsCashout(client *game.Client, data json.RawMessage, connUserID string) {
	userID := connUserID
	var ref wsUserRef
	if len(data) > 0 && json.Unmarshal(data, &ref) == nil && ref.UserID != "" {
		userID = ref.UserID
	}

	result, err := s.engine.Cashout(userID)
	if err != nil {
		client.Send(game.EventCashoutError, fiber.Map{"message": err.Error()})
		return
	}
	client.Send(game.EventCashoutSuccess, result)
}

func (s *FiberServer) handleWsBalance(client *game.Client, data json.RawMessage, connUserID string) {
	userID := connUserID
	var ref wsUserRef
	if len(data) > 0 && json.Unmarshal(data, &ref) == nil && ref.UserID != "" {
		userID = ref.UserID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	balances, err := s.store.Balances(ctx, userID)
	if err != nil {
		client.Send("error", fiber.Map{"message": "failed to load balances"})
		return
	}
	client.Send("balance_update", balances)
}
