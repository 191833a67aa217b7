package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/customeros/mailsync/internal/enum"
	apperrors "github.com/customeros/mailsync/internal/errors"
	"github.com/customeros/mailsync/internal/logger"
	"github.com/customeros/mailsync/internal/models"
	"github.com/customeros/mailsync/internal/repository"
	"github.com/customeros/mailsync/internal/tracing"
	"github.com/customeros/mailsync/services"
)

type AccountsHandler struct {
	services *services.Services
	repos    *repository.Repositories
	log      logger.Logger
}

func NewAccountsHandler(s *services.Services, repos *repository.Repositories, log logger.Logger) *AccountsHandler {
	return &AccountsHandler{services: s, repos: repos, log: log}
}

type connectAccountRequest struct {
	UserID          string     `json:"userId" binding:"required"`
	Provider        string     `json:"provider" binding:"required"`
	RemoteAddress   string     `json:"remoteAddress" binding:"required,email"`
	AccessToken     string     `json:"accessToken" binding:"required"`
	RefreshToken    string     `json:"refreshToken"`
	TokenExpiry     *time.Time `json:"tokenExpiry"`
	SyncWindowStart *time.Time `json:"syncWindowStart"`
}

type accountResponse struct {
	ID              string     `json:"id"`
	UserID          string     `json:"userId"`
	Provider        string     `json:"provider"`
	RemoteAddress   string     `json:"remoteAddress"`
	SyncStatus      string     `json:"syncStatus"`
	Health          string     `json:"health"`
	LastSync        *time.Time `json:"lastSync,omitempty"`
	SyncWindowStart *time.Time `json:"syncWindowStart,omitempty"`
	ErrorMessage    string     `json:"errorMessage,omitempty"`
	CreatedAt       time.Time  `json:"createdAt"`
}

func toAccountResponse(account *models.EmailAccount) accountResponse {
	return accountResponse{
		ID:              account.ID,
		UserID:          account.UserID,
		Provider:        account.Provider.String(),
		RemoteAddress:   account.RemoteAddress,
		SyncStatus:      account.SyncStatus.String(),
		Health:          account.Health.String(),
		LastSync:        account.LastSync,
		SyncWindowStart: account.SyncWindowStart,
		ErrorMessage:    account.ErrorMessage,
		CreatedAt:       account.CreatedAt,
	}
}

// Connect registers a freshly authorized mailbox and stores its credential
func (h *AccountsHandler) Connect() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "AccountsHandler.Connect")
		defer span.Finish()
		tracing.TagComponentRest(span)

		var req connectAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		provider := enum.AccountProvider(req.Provider)
		if !provider.IsGoogle() {
			respondError(c, apperrors.ErrUnsupportedProvider)
			return
		}

		account := &models.EmailAccount{
			UserID:          req.UserID,
			Provider:        provider,
			RemoteAddress:   req.RemoteAddress,
			SyncStatus:      enum.SyncStatusIdle,
			Health:          enum.AccountHealthy,
			SyncWindowStart: req.SyncWindowStart,
		}
		accountID, err := h.repos.EmailAccountRepository.Create(ctx, account)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}

		credential := models.Credential{
			AccessToken:  req.AccessToken,
			RefreshToken: req.RefreshToken,
			Expiry:       req.TokenExpiry,
		}
		if err := h.services.TokenManager.StoreTokens(ctx, accountID, credential); err != nil {
			tracing.TraceErr(span, err)
			// roll back the half-connected account
			_ = h.repos.EmailAccountRepository.Delete(ctx, accountID)
			respondError(c, err)
			return
		}

		stored, err := h.repos.EmailAccountRepository.GetByID(ctx, accountID)
		if err != nil || stored == nil {
			tracing.TraceErr(span, err)
			respondError(c, apperrors.ErrAccountNotFound)
			return
		}
		c.JSON(http.StatusCreated, toAccountResponse(stored))
	}
}

func (h *AccountsHandler) Get() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		account, err := h.repos.EmailAccountRepository.GetByID(ctx, c.Param("id"))
		if err != nil {
			respondError(c, err)
			return
		}
		if account == nil {
			respondError(c, apperrors.ErrAccountNotFound)
			return
		}
		c.JSON(http.StatusOK, toAccountResponse(account))
	}
}

func (h *AccountsHandler) ListForUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		accounts, err := h.repos.EmailAccountRepository.GetByUserID(ctx, c.Param("userId"))
		if err != nil {
			respondError(c, err)
			return
		}
		out := make([]accountResponse, 0, len(accounts))
		for _, account := range accounts {
			out = append(out, toAccountResponse(account))
		}
		c.JSON(http.StatusOK, gin.H{"accounts": out})
	}
}

// Disconnect revokes the account's credential remotely, drops its scheduler
// and deletes the local record
func (h *AccountsHandler) Disconnect() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		span, ctx := tracing.StartTracerSpan(ctx, "AccountsHandler.Disconnect")
		defer span.Finish()
		tracing.TagComponentRest(span)

		accountID := c.Param("id")
		tracing.TagAccountId(span, accountID)

		account, err := h.repos.EmailAccountRepository.GetByID(ctx, accountID)
		if err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		if account == nil {
			respondError(c, apperrors.ErrAccountNotFound)
			return
		}

		if err := h.services.TokenManager.Revoke(ctx, accountID); err != nil {
			tracing.TraceErr(span, err)
			respondError(c, err)
			return
		}
		h.services.QuotaRegistry.Remove(accountID)

		c.JSON(http.StatusOK, gin.H{"deleted": accountID})
	}
}

// Messages pages through the stored messages for one account
func (h *AccountsHandler) Messages() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		limit := intQuery(c, "limit", 50)
		offset := intQuery(c, "offset", 0)

		messages, total, err := h.repos.EmailMessageRepository.ListByAccount(ctx, c.Param("id"), limit, offset)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"messages": messages,
			"total":    total,
			"limit":    limit,
			"offset":   offset,
		})
	}
}

// Health runs the token health check across the user's accounts
func (h *AccountsHandler) Health() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()

		unhealthy, err := h.services.TokenManager.CheckAccountsHealth(ctx, c.Param("userId"))
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"healthy":   len(unhealthy) == 0,
			"unhealthy": unhealthy,
		})
	}
}
