package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	u "ogimage/internal/utils"
)

// ErrorHandler renders every error as {"message": "..."}. Errors that are
// not *fiber.Error become 500s carrying their own message.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := internalMessage(err)

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
		if msg == "" {
			msg = MsgInternalFailure
		}
	}

	if code >= fiber.StatusInternalServerError {
		u.Error("Request failed", "path", c.Path(), "status", code, "message", msg)
	} else {
		u.Warn("Request rejected", "path", c.Path(), "status", code, "message", msg)
	}

	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.Status(code).JSON(fiber.Map{"message": msg})
}
