package handlers

import (
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/jjenkins/billtracker/internal/auth"
	"github.com/jjenkins/billtracker/internal/common"
	"github.com/jjenkins/billtracker/internal/service"
)

const usernameKey = "username"

type credentials struct {
	Username string `json:"username" form:"username"`
	Email    string `json:"email" form:"email"`
	Password string `json:"password" form:"password"`
}

// RegisterHandler creates an account
func RegisterHandler(tracker *service.Tracker) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req credentials
		if err := c.BodyParser(&req); err != nil {
			return failJSON(c, &common.ValidationError{Field: "body", Msg: err.Error()})
		}

		user, err := tracker.Register(c.UserContext(), req.Username, req.Email, req.Password)
		if err != nil {
			return failJSON(c, err)
		}

		return c.Status(fiber.StatusCreated).JSON(fiber.Map{"username": user.Username})
	}
}

// LoginHandler exchanges a username and password for a bearer token
func LoginHandler(tracker *service.Tracker, issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var req credentials
		if err := c.BodyParser(&req); err != nil {
			return failJSON(c, &common.ValidationError{Field: "body", Msg: err.Error()})
		}

		user, err := tracker.Authenticate(c.UserContext(), req.Username, req.Password)
		if err != nil {
			return failJSON(c, err)
		}

		token, err := issuer.Issue(user.Username)
		if err != nil {
			return failJSON(c, err)
		}

		return c.JSON(fiber.Map{"token": token})
	}
}

// RequireUser rejects requests without a valid bearer token and stores the
// token's username for later handlers
func RequireUser(issuer *auth.Issuer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		header := c.Get(fiber.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(token) == "" {
			return failJSON(c, fmt.Errorf("missing bearer token: %w", common.ErrUnauthorized))
		}

		username, err := issuer.Parse(strings.TrimSpace(token))
		if err != nil {
			return failJSON(c, err)
		}

		c.Locals(usernameKey, username)
		return c.Next()
	}
}

func currentUser(c *fiber.Ctx) string {
	username, _ := c.Locals(usernameKey).(string)
	return username
}
