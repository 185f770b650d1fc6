package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/wallet-backend/internal/dto"
	"github.com/ignatzorin/wallet-backend/internal/http/handlers/common"
	"github.com/ignatzorin/wallet-backend/internal/repository"
	"github.com/ignatzorin/wallet-backend/internal/service"
)

type WalletHandler struct {
	wallets *service.WalletService
}

func NewWalletHandler(wallets *service.WalletService) *WalletHandler {
	return &WalletHandler{wallets: wallets}
}

// GetWallet GET /wallet
func (h *WalletHandler) GetWallet(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	wallet, err := h.wallets.GetWallet(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// GetStatistics GET /wallet/statistics
func (h *WalletHandler) GetStatistics(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	stats, err := h.wallets.Statistics(c.Request.Context(), userID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, stats)
}

// ListTransactions GET /wallet/transactions
func (h *WalletHandler) ListTransactions(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	limit, offset := common.GetPagination(c)
	filter := repository.TransactionFilter{
		Type:     c.Query("type"),
		Currency: c.Query("currency"),
		Limit:    limit,
		Offset:   offset,
	}
	if v := c.Query("from"); v != "" {
		if from, err := time.Parse(time.RFC3339, v); err == nil {
			filter.From = &from
		}
	}
	if v := c.Query("to"); v != "" {
		if to, err := time.Parse(time.RFC3339, v); err == nil {
			filter.To = &to
		}
	}

	transactions, err := h.wallets.ListTransactions(c.Request.Context(), userID, filter)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, dto.TransactionListResponse{
		Transactions: transactions,
		Pagination:   dto.Pagination{Limit: limit, Offset: offset, Count: len(transactions)},
	})
}

// ListCoinPackages GET /wallet/coins/packages
func (h *WalletHandler) ListCoinPackages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"packages": h.wallets.ListCoinPackages()})
}

// PurchaseCoins POST /wallet/coins/purchase
func (h *WalletHandler) PurchaseCoins(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		CoinAmount int64  `json:"coin_amount"`
		PackageID  string `json:"package_id"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}
	if req.CoinAmount <= 0 && req.PackageID == "" {
		common.RespondBadRequest(c, "укажите количество монет или пакет")
		return
	}

	wallet, err := h.wallets.PurchaseCoins(c.Request.Context(), userID, req.CoinAmount, req.PackageID)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, wallet)
}

// SpendCoins POST /wallet/coins/spend
func (h *WalletHandler) SpendCoins(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Coins         int64  `json:"coins" binding:"required,gt=0"`
		Type          string `json:"type" binding:"required"`
		ReferenceType string `json:"reference_type"`
		ReferenceID   string `json:"reference_id"`
		Description   string `json:"description"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, err.Error())
		return
	}

	entry, err := h.wallets.SpendCoins(c.Request.Context(), userID, req.Coins, req.Type,
		req.ReferenceType, req.ReferenceID, req.Description)
	if err != nil {
		c.Error(err)
		return
	}

	c.JSON(http.StatusOK, entry)
}

// SetPin PUT /wallet/pin
func (h *WalletHandler) SetPin(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Pin string `json:"pin" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "PIN обязателен")
		return
	}

	if err := h.wallets.SetTransactionPin(c.Request.Context(), userID, req.Pin); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "PIN код установлен", nil)
}

// UpdateBankAccount PUT /wallet/bank-account
func (h *WalletHandler) UpdateBankAccount(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		BankName      string `json:"bank_name" binding:"required"`
		AccountNumber string `json:"account_number" binding:"required"`
		AccountName   string `json:"account_name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "все банковские реквизиты обязательны")
		return
	}

	if err := h.wallets.UpdateBankAccount(c.Request.Context(), userID, req.BankName, req.AccountNumber, req.AccountName); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "банковские реквизиты сохранены", nil)
}

// SetRequire2FA PUT /wallet/2fa
func (h *WalletHandler) SetRequire2FA(c *gin.Context) {
	userID, err := common.CurrentUserID(c)
	if err != nil {
		common.RespondUnauthorized(c, err.Error())
		return
	}

	var req struct {
		Enabled *bool `json:"enabled" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		common.RespondBadRequest(c, "поле enabled обязательно")
		return
	}

	if err := h.wallets.SetRequire2FA(c.Request.Context(), userID, *req.Enabled); err != nil {
		c.Error(err)
		return
	}

	common.RespondSuccess(c, http.StatusOK, "настройка 2FA обновлена", nil)
}
