package server

import (
	"encoding/json"

	"restjam/internal/featureflags"
	"restjam/internal/middleware"
	"restjam/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
)

// FeedHandler handles GET /api/ws/feed. Every connection receives the
// post_created, post_updated, post_deleted and post_reaction_updated events;
// the ticket only identifies the viewer for connection limits.
func (s *Server) FeedHandler() fiber.Handler {
	upgrade := websocket.New(func(conn *websocket.Conn) {
		key, _ := conn.Locals("userID").(string)

		client, err := s.hub.Register(key, conn)
		if err != nil {
			middleware.Logger.Warn("feed: failed to register connection", "user_id", key, "error", err)
			_ = conn.WriteMessage(websocket.TextMessage, errorFrame(err))
			_ = conn.Close()
			return
		}
		defer s.hub.UnregisterClient(client)

		go client.WritePump()
		client.ReadPump()
	})

	return func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		key, _ := c.Locals("userID").(string)
		if !s.featureFlags.EnabledByDefault(featureflags.Realtime, key) {
			return models.RespondWithAppError(c, models.NewConfigError("Realtime feed is disabled", "realtime_feed feature flag is off"))
		}
		return upgrade(c)
	}
}

// errorFrame is the JSON message sent before closing a rejected connection.
func errorFrame(err error) []byte {
	msg, mErr := json.Marshal(fiber.Map{"error": err.Error()})
	if mErr != nil {
		return []byte(`{"error":"internal error"}`)
	}
	return msg
}
