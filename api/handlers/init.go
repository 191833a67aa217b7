package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/services"
)

type Handlers struct {
	Accounts *AccountsHandler
	Syncs    *SyncHandler
}

func InitHandlers(s *services.Services, repos *repository.Repositories, log logger.Logger) *Handlers {
	return &Handlers{
		Accounts: NewAccountsHandler(s, repos, log),
		Syncs:    NewSyncHandler(s, log),
	}
}

// statusForError maps the error taxonomy onto HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, apperrors.ErrAccountNotFound),
		errors.Is(err, apperrors.ErrSyncRunNotFound):
		return http.StatusNotFound
	case errors.Is(err, apperrors.ErrSyncInProgress):
		return http.StatusConflict
	case errors.Is(err, apperrors.ErrUnsupportedProvider):
		return http.StatusBadRequest
	case errors.Is(err, apperrors.ErrTokenRevoked),
		errors.Is(err, apperrors.ErrNoRefreshToken):
		return http.StatusUnprocessableEntity
	case errors.Is(err, apperrors.ErrQueueFull),
		errors.Is(err, apperrors.ErrQuotaExceeded):
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func respondError(c *gin.Context, err error) {
	c.JSON(statusForError(err), gin.H{"error": err.Error()})
}
