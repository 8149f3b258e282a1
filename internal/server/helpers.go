package server

import (
	"errors"

	"restjam/internal/aggregate"
	"restjam/internal/auth"
	"restjam/internal/models"
	"restjam/internal/service"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/v2/bson"
)

// parsePagination reads limit and offset query parameters. Out-of-range
// values fall back to the defaults.
func parsePagination(c *fiber.Ctx) aggregate.Page {
	return aggregate.Page{
		Limit:  c.QueryInt("limit", aggregate.DefaultLimit),
		Offset: c.QueryInt("offset", 0),
	}.Normalize()
}

// errResponseWritten signals that a helper already committed the response.
// Handlers return nil on it so the ErrorHandler does not overwrite it.
var errResponseWritten = errors.New("response already written")

// parseID reads a hex object id route parameter. On failure it writes a 400
// response and returns errResponseWritten.
func parseID(c *fiber.Ctx, param string) (bson.ObjectID, error) {
	label := "ID"
	if param != "id" {
		label = param
	}
	id, err := service.ParseID(c.Params(param), label)
	if err != nil {
		_ = models.RespondWithAppError(c, err)
		return bson.ObjectID{}, errResponseWritten
	}
	return id, nil
}

func viewerOf(c *fiber.Ctx) *auth.Viewer {
	return auth.ViewerFrom(c.UserContext())
}
