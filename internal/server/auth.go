package server

import (
	"errors"
	"time"

	"restjam/internal/auth"
	"restjam/internal/middleware"
	"restjam/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/v2/bson"
)

const wsTicketTTL = 60 * time.Second

func wsTicketKey(ticket string) string {
	return "ws_ticket:" + ticket
}

// setViewer stores v in locals and in the user context for resolvers,
// services and the request logger.
func setViewer(c *fiber.Ctx, v *auth.Viewer) {
	c.Locals("userID", v.UserID.Hex())
	ctx := auth.WithViewer(c.UserContext(), v)
	c.SetUserContext(middleware.WithUserID(ctx, v.UserID.Hex()))
}

func (s *Server) authenticate(c *fiber.Ctx) (*auth.Viewer, error) {
	token := auth.BearerToken(c.Get(fiber.HeaderAuthorization))
	if token == "" {
		return nil, auth.ErrNoToken
	}
	if s.authenticator == nil {
		return nil, models.NewUnauthorizedError("Authentication is not configured")
	}
	return s.authenticator.Authenticate(c.UserContext(), token)
}

// AuthRequired rejects requests without a valid Firebase ID token.
func (s *Server) AuthRequired() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if auth.ViewerFrom(c.UserContext()) != nil {
			return c.Next()
		}

		viewer, err := s.authenticate(c)
		if err != nil {
			if errors.Is(err, auth.ErrNoToken) {
				return models.RespondWithError(c, fiber.StatusUnauthorized,
					models.NewUnauthorizedError("Authorization required"))
			}
			middleware.Logger.WarnContext(c.UserContext(), "token rejected", "error", err)
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired token"))
		}

		setViewer(c, viewer)
		return c.Next()
	}
}

// OptionalAuth attaches the viewer when a valid token is sent. Missing or
// invalid tokens leave the request anonymous.
func (s *Server) OptionalAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		viewer, err := s.authenticate(c)
		if err != nil {
			if !errors.Is(err, auth.ErrNoToken) {
				middleware.Logger.DebugContext(c.UserContext(), "ignoring invalid token", "error", err)
			}
			return c.Next()
		}
		setViewer(c, viewer)
		return c.Next()
	}
}

// IssueWSTicket handles POST /api/ws/ticket. Browsers cannot set headers on
// websocket upgrades, so the feed accepts a short-lived single-use ticket.
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	viewer := auth.ViewerFrom(c.UserContext())
	if s.redis == nil {
		return models.RespondWithError(c, fiber.StatusServiceUnavailable,
			models.NewConfigError("Realtime feed is not available", "REDIS_URL is not reachable"))
	}

	ticket := uuid.NewString()
	if err := s.redis.Set(c.UserContext(), wsTicketKey(ticket), viewer.UserID.Hex(), wsTicketTTL).Err(); err != nil {
		return models.RespondWithError(c, fiber.StatusInternalServerError, models.NewInternalError(err))
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(wsTicketTTL.Seconds()),
	})
}

// WSTicketAuth resolves the viewer of a feed connection from its ticket.
// Connections without a ticket join anonymously.
func (s *Server) WSTicketAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		ticket := c.Query("ticket")
		if ticket == "" {
			return c.Next()
		}
		if s.redis == nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
		}

		// GETDEL makes the ticket single-use.
		raw, err := s.redis.GetDel(c.UserContext(), wsTicketKey(ticket)).Result()
		if err != nil {
			if !errors.Is(err, redis.Nil) {
				middleware.Logger.WarnContext(c.UserContext(), "ws ticket lookup failed", "error", err)
			}
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
		}
		userID, err := bson.ObjectIDFromHex(raw)
		if err != nil {
			return models.RespondWithError(c, fiber.StatusUnauthorized,
				models.NewUnauthorizedError("Invalid or expired WebSocket ticket"))
		}

		setViewer(c, &auth.Viewer{UserID: userID})
		return c.Next()
	}
}
