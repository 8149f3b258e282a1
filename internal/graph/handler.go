package graph

import (
	"encoding/json"
	"strings"

	"restjam/internal/models"

	"github.com/gofiber/fiber/v2"
	"github.com/graph-gophers/graphql-go"
)

type request struct {
	Query         string                 `json:"query"`
	OperationName string                 `json:"operationName"`
	Variables     map[string]interface{} `json:"variables"`
}

// Handler executes GraphQL requests. POST takes a JSON body; GET reads the
// query, operationName and variables query parameters. The request's user
// context carries the viewer into resolvers.
func Handler(schema *graphql.Schema) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req request
		if c.Method() == fiber.MethodGet {
			req.Query = c.Query("query")
			req.OperationName = c.Query("operationName")
			if raw := c.Query("variables"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &req.Variables); err != nil {
					return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("variables must be a JSON object"))
				}
			}
		} else if err := c.BodyParser(&req); err != nil {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("Invalid request body"))
		}

		if strings.TrimSpace(req.Query) == "" {
			return models.RespondWithError(c, fiber.StatusBadRequest, models.NewValidationError("query is required"))
		}

		resp := schema.Exec(c.UserContext(), req.Query, req.OperationName, req.Variables)
		return c.JSON(resp)
	}
}
