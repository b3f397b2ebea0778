package handlers

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const (
	defaultPageLimit = 10
	maxPageLimit     = 50
)

func parsePagination(c *fiber.Ctx) (page, limit int) {
	page = 1
	limit = defaultPageLimit

	if raw := strings.TrimSpace(c.Query("page")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			page = parsed
		}
	}
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}
	if limit > maxPageLimit {
		limit = maxPageLimit
	}
	return page, limit
}
