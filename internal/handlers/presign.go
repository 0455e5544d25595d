package handlers

import (
	"bytes"
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"ourchants/internal/logging"
	"ourchants/internal/presign"
	"ourchants/internal/utils"
)

// PresignHandler issues presigned download links
type PresignHandler struct {
	checker *presign.Checker
	logger  *logging.Logger
}

// NewPresignHandler creates a new presign handler
func NewPresignHandler(checker *presign.Checker, logger *logging.Logger) *PresignHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &PresignHandler{checker: checker, logger: logger}
}

// CreatePresignedURL handles POST /presigned-url. An empty body, or JSON that
// is not an object, is treated as a request with no fields.
func (h *PresignHandler) CreatePresignedURL(c *fiber.Ctx) error {
	var req presign.Request
	body := bytes.TrimSpace(c.Body())
	switch {
	case len(body) == 0:
	case body[0] == '{':
		if err := json.Unmarshal(body, &req); err != nil {
			return utils.SendInvalidRequestError(c)
		}
	case !json.Valid(body):
		return utils.SendInvalidRequestError(c)
	}

	link, err := h.checker.Issue(c.UserContext(), req)
	if err != nil {
		return utils.SendAPIError(c, h.logger, err)
	}

	return c.JSON(link)
}
