package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

type SyncHandler struct {
	services *services.Services
	log      logger.Logger
}

func NewSyncHandler(s *services.Services, log logger.Logger) *SyncHandler {
	return &SyncHandler{services: s, log: log}
}

// TriggerAccountSync runs a sync pass for one account and returns its result.
// A second trigger while a run is active gets 409.
func (h *SyncHandler) TriggerAccountSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "SyncHandler.TriggerAccountSync")
		defer span.Finish()
		tracing.TagComponentRest(span)

		accountID := c.Param("id")
		tracing.TagAccountId(span, accountID)

		result, err := h.services.SyncService.SyncAccount(ctx, accountID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, result)
	}
}

// TriggerUserSync fans out over all of the user's accounts
func (h *SyncHandler) TriggerUserSync() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "SyncHandler.TriggerUserSync")
		defer span.Finish()
		tracing.TagComponentRest(span)

		userID := c.Param("userId")
		tracing.TagUserId(span, userID)

		results, err := h.services.SyncService.SyncUserAccounts(ctx, userID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"results": results})
	}
}

// GetRun returns live progress for a sync run; pollable after completion
func (h *SyncHandler) GetRun() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		run, err := h.services.ProgressTracker.GetRun(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, run)
	}
}

func intQuery(c *gin.Context, name string, fallback int) int {
	raw := c.Query(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return fallback
	}
	return value
}
