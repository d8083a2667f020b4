package middleware

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/mkutlay/feedsync/internal/logger"
)

var validate = validator.New()

// ParseAndValidate parses the request body into s and validates it.
// Returns false after writing the error response when the body is
// malformed or fails validation.
func ParseAndValidate(c *fiber.Ctx, s interface{}) bool {
	if err := c.BodyParser(s); err != nil {
		_ = c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
			"msg":   err.Error(),
		})
		return false
	}

	if err := validate.Struct(s); err != nil {
		fields := make(map[string]string)
		for _, ferr := range err.(validator.ValidationErrors) {
			fields[ferr.Field()] = ferr.Tag()
		}
		_ = c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"error":  "Validation failed",
			"fields": fields,
		})
		return false
	}

	return true
}

// ErrorHandler handles errors escaping route handlers in a consistent way
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	if e, ok := err.(*fiber.Error); ok {
		code = e.Code
	}

	logger.Get().Error().
		Err(err).
		Str("method", c.Method()).
		Str("path", c.Path()).
		Int("status", code).
		Msg("HTTP error")

	return c.Status(code).JSON(fiber.Map{
		"error": http.StatusText(code),
	})
}
