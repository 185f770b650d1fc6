package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ignatzorin/wallet-backend/internal/dto"
	"github.com/ignatzorin/wallet-backend/internal/http/handlers/common"
	"github.com/ignatzorin/wallet-backend/internal/repository"
	"github.com/ignatzorin/wallet-backend/internal/service"
)

// AdminHandler - операции оператора над заявками и кошельками.
type AdminHandler struct {
	wallets     *service.WalletService
	withdrawals *service.WithdrawalService
}

func NewAdminHandler(wallets *service.WalletService, withdrawals *service.WithdrawalService) *AdminHandler {
	return &AdminHandler{wallets: wallets, withdrawals: withdrawals}
}

// ListWithdrawals GET /admin/withdrawals
func (h *AdminHandler) ListWithdrawals(c *gin.Context) {
	limit, offset := common.GetPagination(c)
	withdrawals, err := h.withdrawals.ListAll(c.Request.Context(), repository.WithdrawalFilter{
		Status: c.Query("status"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.WithdrawalListResponse{
		Withdrawals: withdrawals,
		Pagination:  dto.Pagination{Limit: limit, Offset: offset, Count: len(withdrawals)},
	})
}

// GetWithdrawal GET /admin/withdrawals/:id
func (h *AdminHandler) GetWithdrawal(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	withdrawal, err := h.withdrawals.GetByID(c.Request.Context(), id)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// ApproveWithdrawal POST /admin/withdrawals/:id/approve
func (h *AdminHandler) ApproveWithdrawal(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Notes string `json:"notes"`
	}
	_ = c.ShouldBindJSON(&req)

	withdrawal, err := h.withdrawals.Approve(c.Request.Context(), id, adminID, req.Notes)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// RejectWithdrawal POST /admin/withdrawals/:id/reject
func (h *AdminHandler) RejectWithdrawal(c *gin.Context) {
	adminID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "причина отклонения обязательна")
		return
	}

	withdrawal, err := h.withdrawals.Reject(c.Request.Context(), id, adminID, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// ProcessWithdrawal POST /admin/withdrawals/:id/process
func (h *AdminHandler) ProcessWithdrawal(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	withdrawal, err := h.withdrawals.Process(c.Request.Context(), id)
	if err != nil {
		// Перевод не прошёл, но заявка обновлена: отдаём её состояние.
		if withdrawal != nil {
			c.JSON(http.StatusBadGateway, gin.H{
				"error":      err.Error(),
				"withdrawal": withdrawal,
			})
			return
		}
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// CompleteWithdrawal POST /admin/withdrawals/:id/complete
// Для переводов, выполненных вне шлюза: оператор фиксирует идентификатор
// банковской транзакции вручную.
func (h *AdminHandler) CompleteWithdrawal(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		BankTransactionID string `json:"bank_transaction_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "идентификатор банковской транзакции обязателен")
		return
	}

	withdrawal, err := h.withdrawals.Complete(c.Request.Context(), id, req.BankTransactionID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// FailWithdrawal POST /admin/withdrawals/:id/fail
func (h *AdminHandler) FailWithdrawal(c *gin.Context) {
	id, err := common.ParseUUIDParam(c, "id")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Reason string `json:"reason" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "причина обязательна")
		return
	}

	withdrawal, err := h.withdrawals.Fail(c.Request.Context(), id, req.Reason)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, withdrawal)
}

// WalletStats GET /admin/wallets/stats
func (h *AdminHandler) WalletStats(c *gin.Context) {
	stats, err := h.wallets.GlobalStats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// SetWalletStatus PUT /admin/wallets/:userId/status
func (h *AdminHandler) SetWalletStatus(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Status string `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "статус обязателен")
		return
	}

	if err := h.wallets.SetWalletStatus(c.Request.Context(), userID, req.Status); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "статус кошелька обновлён", nil)
}

// ReconcileWallet GET /admin/wallets/:userId/reconcile
func (h *AdminHandler) ReconcileWallet(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	report, err := h.wallets.Reconcile(c.Request.Context(), userID)
	if err != nil && report == nil {
		c.Error(err)
		return
	}

	status := http.StatusOK
	if report != nil && !report.Consistent {
		status = http.StatusConflict
	}
	c.JSON(status, report)
}

// AwardCoins POST /admin/wallets/:userId/coins/award
func (h *AdminHandler) AwardCoins(c *gin.Context) {
	userID, err := common.ParseUUIDParam(c, "userId")
	if err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	var req struct {
		Coins       int64  `json:"coins" binding:"required,gt=0"`
		Type        string `json:"type" binding:"required"`
		ReferenceID string `json:"reference_id"`
		Description string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	refID := req.ReferenceID
	if refID == "" {
		refID = uuid.NewString()
	}
	entry, err := h.wallets.AwardCoins(c.Request.Context(), userID, req.Coins, req.Type,
		"ADMIN", refID, req.Description)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, entry)
}
