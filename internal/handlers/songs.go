package handlers

import (
	"encoding/json"

	"github.com/gofiber/fiber/v2"

	"ourchants/internal/catalog"
	"ourchants/internal/logging"
	"ourchants/internal/pagination"
	"ourchants/internal/utils"
)

// SongHandler handles song catalog requests
type SongHandler struct {
	catalog *catalog.Service
	logger  *logging.Logger
}

// NewSongHandler creates a new song handler
func NewSongHandler(svc *catalog.Service, logger *logging.Logger) *SongHandler {
	if logger == nil {
		logger = logging.Nop()
	}
	return &SongHandler{catalog: svc, logger: logger}
}

// ListSongs handles GET /songs
func (h *SongHandler) ListSongs(c *fiber.Ctx) error {
	params, apiErr := pagination.GetListParams(c)
	if apiErr != nil {
		return utils.SendAPIError(c, h.logger, apiErr)
	}

	result, err := h.catalog.List(c.UserContext(), params)
	if err != nil {
		return utils.SendAPIError(c, h.logger, err)
	}

	return c.JSON(result)
}

// CreateSong handles POST /songs
func (h *SongHandler) CreateSong(c *fiber.Ctx) error {
	raw, ok := decodeObject(c.Body())
	if !ok {
		return utils.SendInvalidRequestError(c)
	}

	song, err := h.catalog.Create(c.UserContext(), raw)
	if err != nil {
		return utils.SendAPIError(c, h.logger, err)
	}

	return c.Status(fiber.StatusCreated).JSON(song)
}

// GetSong handles GET /songs/:id
func (h *SongHandler) GetSong(c *fiber.Ctx) error {
	song, found, err := h.catalog.Get(c.UserContext(), c.Params("id"))
	if err != nil {
		return utils.SendAPIError(c, h.logger, err)
	}
	if !found {
		return utils.SendNotFoundError(c)
	}

	return c.JSON(song)
}

// UpdateSong handles PUT /songs/:id
func (h *SongHandler) UpdateSong(c *fiber.Ctx) error {
	raw, ok := decodeObject(c.Body())
	if !ok {
		return utils.SendInvalidRequestError(c)
	}

	song, found, err := h.catalog.Update(c.UserContext(), c.Params("id"), raw)
	if !found && err == nil {
		return utils.SendNotFoundError(c)
	}
	if err != nil {
		return utils.SendAPIError(c, h.logger, err)
	}

	return c.JSON(song)
}

// DeleteSong handles DELETE /songs/:id
func (h *SongHandler) DeleteSong(c *fiber.Ctx) error {
	if err := h.catalog.Delete(c.UserContext(), c.Params("id")); err != nil {
		return utils.SendAPIError(c, h.logger, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

// decodeObject parses body as a JSON object. Arrays, scalars and null are
// rejected along with malformed input.
func decodeObject(body []byte) (map[string]interface{}, bool) {
	var raw map[string]interface{}
	if err := json.Unmarshal(body, &raw); err != nil || raw == nil {
		return nil, false
	}
	return raw, true
}
