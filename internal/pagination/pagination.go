package pagination

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"ourchants/internal/apierr"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds the list filter and offset/limit window
type Params struct {
	ArtistFilter string
	Limit        int
	Offset       int
}

// DefaultParams returns an unfiltered first page
func DefaultParams() Params {
	return Params{Limit: DefaultLimit}
}

// Validate checks limit and offset ranges
func (p Params) Validate() *apierr.Error {
	if p.Limit < 1 || p.Limit > MaxLimit {
		return apierr.WithDetails(apierr.CodeInvalidLimit, "Invalid limit parameter", "limit must be between 1 and 100")
	}
	if p.Offset < 0 {
		return apierr.WithDetails(apierr.CodeInvalidOffset, "Invalid offset parameter", "offset must be non-negative")
	}
	return nil
}

// Window returns the [start, end) bounds of the page within total items
func (p Params) Window(total int) (start, end int) {
	start = p.Offset
	if start > total {
		start = total
	}
	end = total
	if total-start > p.Limit {
		end = start + p.Limit
	}
	return start, end
}

// HasMore reports whether items exist beyond the page
func (p Params) HasMore(total int) bool {
	return p.Offset < total && total-p.Offset > p.Limit
}

// GetListParams extracts artist_filter, limit and offset from the query string.
// Missing values take their defaults; non-numeric values are rejected with the
// same codes as out-of-range ones.
func GetListParams(c *fiber.Ctx) (Params, *apierr.Error) {
	return ParseParams(c.Query("artist_filter"), c.Query("limit"), c.Query("offset"))
}

// ParseParams builds validated Params from raw query values
func ParseParams(artistFilter, limit, offset string) (Params, *apierr.Error) {
	params := DefaultParams()
	params.ArtistFilter = artistFilter

	if limit = strings.TrimSpace(limit); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil {
			return Params{}, apierr.WithDetails(apierr.CodeInvalidLimit, "Invalid limit parameter", "limit must be an integer")
		}
		params.Limit = n
	}

	if offset = strings.TrimSpace(offset); offset != "" {
		n, err := strconv.Atoi(offset)
		if err != nil {
			return Params{}, apierr.WithDetails(apierr.CodeInvalidOffset, "Invalid offset parameter", "offset must be an integer")
		}
		params.Offset = n
	}

	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}
