package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"tiffin-tracker-backend/internal/model"
	"tiffin-tracker-backend/internal/mw"
	"tiffin-tracker-backend/internal/parse"
	"tiffin-tracker-backend/internal/store"
)

type entryCountsRequest struct {
	AfternoonCount int `json:"afternoon_count"`
	EveningCount   int `json:"evening_count"`
}

func (r entryCountsRequest) counts() store.EntryCounts {
	return store.EntryCounts{Afternoon: r.AfternoonCount, Evening: r.EveningCount}
}

// dateRange reads ?start and ?end, defaulting to the current month.
func (h *Handler) dateRange(c *gin.Context) (string, string, bool) {
	start, end := parse.MonthRange(h.now(), h.loc)
	var err error
	if raw := c.Query("start"); raw != "" {
		if start, err = parse.Date(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", "", false
		}
	}
	if raw := c.Query("end"); raw != "" {
		if end, err = parse.Date(raw); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return "", "", false
		}
	}
	if start > end {
		c.JSON(http.StatusBadRequest, gin.H{"error": "start must not be after end"})
		return "", "", false
	}
	return start, end, true
}

func entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid entry id"})
		return 0, false
	}
	return id, true
}

// ListEntries returns the caller's entries in a date range, newest first.
func (h *Handler) ListEntries(c *gin.Context) {
	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}
	entries, err := h.store.ListEntries(c.Request.Context(), mw.UserID(c), start, end)
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, entries)
}

// GetSummary totals the caller's tiffins in a date range.
func (h *Handler) GetSummary(c *gin.Context) {
	start, end, ok := h.dateRange(c)
	if !ok {
		return
	}
	summary, err := h.store.SummarizeEntries(c.Request.Context(), mw.UserID(c), start, end)
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetDay returns the entry for one date, or an empty entry if none is logged.
func (h *Handler) GetDay(c *gin.Context) {
	date, err := parse.Date(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	userID := mw.UserID(c)
	entry, err := h.store.GetEntry(c.Request.Context(), userID, date)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusOK, model.TiffinEntry{UserID: userID, EntryDate: date})
		return
	}
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// PutDay logs the counts for one date. Future dates are rejected.
func (h *Handler) PutDay(c *gin.Context) {
	date, err := parse.Date(c.Param("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if date > h.today() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You can only log tiffins for today or past dates"})
		return
	}

	var req entryCountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.store.UpsertEntry(c.Request.Context(), mw.UserID(c), date, req.counts())
	if err != nil {
		h.storeError(c, err, "")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// PatchEntry changes the counts of an existing entry.
func (h *Handler) PatchEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	var req entryCountsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.store.UpdateEntry(c.Request.Context(), mw.UserID(c), id, req.counts())
	if err != nil {
		h.storeError(c, err, "entry not found")
		return
	}
	c.JSON(http.StatusOK, entry)
}

// DeleteEntry removes one of the caller's entries.
func (h *Handler) DeleteEntry(c *gin.Context) {
	id, ok := entryID(c)
	if !ok {
		return
	}
	if err := h.store.DeleteEntry(c.Request.Context(), mw.UserID(c), id); err != nil {
		h.storeError(c, err, "entry not found")
		return
	}
	c.Status(http.StatusNoContent)
}
