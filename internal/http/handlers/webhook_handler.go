package handlers

import (
	"crypto/subtle"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/wallet-backend/internal/dto"
	"github.com/ignatzorin/wallet-backend/internal/http/handlers/common"
	"github.com/ignatzorin/wallet-backend/internal/logger"
	"github.com/ignatzorin/wallet-backend/internal/service"
)

// WebhookHandler принимает уведомления платёжного провайдера о пополнениях.
type WebhookHandler struct {
	wallets    *service.WalletService
	webhookKey string
}

func NewWebhookHandler(wallets *service.WalletService, webhookKey string) *WebhookHandler {
	return &WebhookHandler{wallets: wallets, webhookKey: webhookKey}
}

// PaymentDeposit POST /webhooks/payment
// Провайдер может доставить одно событие несколько раз: повторная доставка
// отвечает 200 с duplicate=true и не зачисляется второй раз.
func (h *WebhookHandler) PaymentDeposit(c *gin.Context) {
	key := c.GetHeader("X-Webhook-Key")
	if h.webhookKey == "" || subtle.ConstantTimeCompare([]byte(key), []byte(h.webhookKey)) != 1 {
		common.RespondUnauthorized(c, "неверный ключ вебхука")
		return
	}

	var req struct {
		UserID    string `json:"user_id" binding:"required"`
		Amount    int64  `json:"amount" binding:"required,gt=0"`
		PaymentID string `json:"payment_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		common.RespondBadRequest(c, "неверный user_id")
		return
	}

	entry, duplicate, err := h.wallets.ProcessDeposit(c.Request.Context(), userID, req.Amount, req.PaymentID)
	if err != nil {
		c.Error(err)
		return
	}

	if duplicate {
		logger.WithComponent("webhook").
			WithField("payment_id", req.PaymentID).
			Info("Повторная доставка платежа, зачисление пропущено")
	}

	c.JSON(http.StatusOK, dto.DepositWebhookResponse{
		Transaction: entry,
		Duplicate:   duplicate,
	})
}
