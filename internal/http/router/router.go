package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/wallet-backend/internal/config"
	"github.com/ignatzorin/wallet-backend/internal/http/handlers"
	"github.com/ignatzorin/wallet-backend/internal/http/middleware"
	"github.com/ignatzorin/wallet-backend/internal/service"
)

func SetupRouter(
	cfg *config.Config,
	healthHandler *handlers.HealthHandler,
	walletHandler *handlers.WalletHandler,
	withdrawalHandler *handlers.WithdrawalHandler,
	webhookHandler *handlers.WebhookHandler,
	adminHandler *handlers.AdminHandler,
	tokenManager *service.TokenManager,
) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.Default()
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", healthHandler.Health)

	api := r.Group("/api")

	// Вебхуки провайдера: авторизация по ключу, плюс rate limit от перебора.
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod))
	{
		webhooks.POST("/payment", webhookHandler.PaymentDeposit)
	}

	// Защищённые маршруты пользователя.
	protected := api.Group("/")
	protected.Use(middleware.AuthMiddleware(tokenManager))
	{
		protected.GET("/wallet", walletHandler.GetWallet)
		protected.GET("/wallet/statistics", walletHandler.GetStatistics)
		protected.GET("/wallet/transactions", walletHandler.ListTransactions)
		protected.GET("/wallet/coins/packages", walletHandler.ListCoinPackages)
		protected.POST("/wallet/coins/purchase", walletHandler.PurchaseCoins)
		protected.POST("/wallet/coins/spend", walletHandler.SpendCoins)
		protected.PUT("/wallet/pin", walletHandler.SetPin)
		protected.PUT("/wallet/bank-account", walletHandler.UpdateBankAccount)
		protected.PUT("/wallet/2fa", walletHandler.SetRequire2FA)

		protected.POST("/withdrawals",
			middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod),
			withdrawalHandler.Submit)
		protected.GET("/withdrawals", withdrawalHandler.List)
		protected.GET("/withdrawals/:id", middleware.UUIDValidator("id"), withdrawalHandler.Get)
		protected.POST("/withdrawals/:id/cancel", middleware.UUIDValidator("id"), withdrawalHandler.Cancel)
	}

	// Админка.
	admin := api.Group("/admin")
	admin.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireAdmin())
	{
		admin.GET("/withdrawals", adminHandler.ListWithdrawals)
		admin.GET("/withdrawals/:id", middleware.UUIDValidator("id"), adminHandler.GetWithdrawal)
		admin.POST("/withdrawals/:id/approve", middleware.UUIDValidator("id"), adminHandler.ApproveWithdrawal)
		admin.POST("/withdrawals/:id/reject", middleware.UUIDValidator("id"), adminHandler.RejectWithdrawal)
		admin.POST("/withdrawals/:id/process", middleware.UUIDValidator("id"), adminHandler.ProcessWithdrawal)
		admin.POST("/withdrawals/:id/complete", middleware.UUIDValidator("id"), adminHandler.CompleteWithdrawal)
		admin.POST("/withdrawals/:id/fail", middleware.UUIDValidator("id"), adminHandler.FailWithdrawal)

		admin.GET("/wallets/statistics", adminHandler.WalletStats)
		admin.PUT("/wallets/:userId/status", middleware.UUIDValidator("userId"), adminHandler.SetWalletStatus)
		admin.GET("/wallets/:userId/reconcile", middleware.UUIDValidator("userId"), adminHandler.ReconcileWallet)
		admin.POST("/wallets/:userId/coins/award", middleware.UUIDValidator("userId"), adminHandler.AwardCoins)
	}

	return r
}
