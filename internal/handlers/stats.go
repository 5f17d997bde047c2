package handlers

import (
	"net/http"
	"strconv"
	"time"

	"coinpayments-webhooks/internal/common/errors"
	"coinpayments-webhooks/internal/common/utils"
	"coinpayments-webhooks/internal/storage"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	defaultStatsWin  = 24 * time.Hour
)

// ListNotifications returns the most recent audit rows
// @Summary List received notifications
// @Description Returns the newest audit rows first. Bodies are not stored; each row carries a SHA-256 of the raw body.
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Maximum rows (default 50, max 500)"
// @Success 200 {object} map[string]interface{} "Notifications"
// @Failure 400 {object} errors.Response "Invalid limit"
// @Failure 500 {object} errors.Response "Storage error"
// @Router /api/notifications [get]
func (h *Handlers) ListNotifications(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, errors.MalformedError("limit must be a positive integer", err))
			return
		}
		limit = n
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	rows, err := h.storage.Recent(r.Context(), limit)
	if err != nil {
		writeError(w, errors.InternalError("failed to list notifications", err))
		return
	}
	if rows == nil {
		rows = []*storage.Notification{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"notifications": rows,
		"count":         len(rows),
		"limit":         limit,
	})
}

// GetStats counts notifications per outcome
// @Summary Notification statistics
// @Description Counts notifications per outcome over a trailing window
// @Tags notifications
// @Produce json
// @Security BearerAuth
// @Param window query string false "Trailing window such as 1h, 24h or 7d (default 24h)"
// @Success 200 {object} map[string]interface{} "Counts by outcome"
// @Failure 400 {object} errors.Response "Invalid window"
// @Failure 500 {object} errors.Response "Storage error"
// @Router /api/stats [get]
func (h *Handlers) GetStats(w http.ResponseWriter, r *http.Request) {
	window := defaultStatsWin
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := utils.ParseDuration(raw)
		if err != nil || d <= 0 {
			writeError(w, errors.MalformedError("window must be a positive duration", err))
			return
		}
		window = d
	}

	now := h.clock.Now()
	since := now.Add(-window)

	counts, err := h.storage.CountByOutcome(r.Context(), since)
	if err != nil {
		writeError(w, errors.InternalError("failed to count notifications", err))
		return
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"since":      since.UTC(),
		"until":      now.UTC(),
		"window":     utils.FormatDuration(window),
		"total":      total,
		"by_outcome": counts,
	})
}
