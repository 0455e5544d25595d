package utils

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"ourchants/internal/apierr"
	"ourchants/internal/logging"
)

// ErrorResponse represents a standardized error response format
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    apierr.Code `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// SendError sends an error response for code with no details
func SendError(c *fiber.Ctx, code apierr.Code, message string) error {
	return c.Status(code.Status()).JSON(ErrorResponse{
		Error: message,
		Code:  code,
	})
}

// SendNotFoundError sends a not found error response for a missing song
func SendNotFoundError(c *fiber.Ctx) error {
	return SendError(c, apierr.CodeSongNotFound, "Song not found")
}

// SendInvalidRequestError sends an INVALID_REQUEST response for an unreadable body
func SendInvalidRequestError(c *fiber.Ctx) error {
	return SendError(c, apierr.CodeInvalidRequest, "Invalid request body")
}

// SendAPIError maps err onto the response envelope. Errors that are not
// client-facing outcomes are logged and reported without their cause.
func SendAPIError(c *fiber.Ctx, logger *logging.Logger, err error) error {
	apiErr := apierr.Classify(err)

	if logger != nil {
		switch apiErr.Code {
		case apierr.CodeInternal:
			logger.WithContext(c.UserContext()).Error().Err(err).
				Str("method", c.Method()).Str("path", c.Path()).
				Msg("Request failed")
		case apierr.CodeRateLimitExceeded:
			logger.WithContext(c.UserContext()).Warn().Err(err).
				Str("method", c.Method()).Str("path", c.Path()).
				Msg("Request throttled")
		}
	}

	if apiErr.RetryAfter > 0 {
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(apiErr.RetryAfter.Seconds())))
	}

	return c.Status(apiErr.Status()).JSON(ErrorResponse{
		Error:   apiErr.Message,
		Code:    apiErr.Code,
		Details: apiErr.Details,
	})
}
