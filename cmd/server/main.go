package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/wallet-backend/internal/bank"
	"github.com/ignatzorin/wallet-backend/internal/config"
	"github.com/ignatzorin/wallet-backend/internal/db"
	"github.com/ignatzorin/wallet-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/wallet-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/wallet-backend/internal/http/router"
	"github.com/ignatzorin/wallet-backend/internal/logger"
	"github.com/ignatzorin/wallet-backend/internal/repository"
	"github.com/ignatzorin/wallet-backend/internal/service"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret)

	// Репозитории.
	ledgerRepo := repository.NewLedgerRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn, ledgerRepo, cfg.WalletLockTimeout)
	withdrawalRepo := repository.NewWithdrawalRepository(dbConn, walletRepo, ledgerRepo)

	// Сервисы.
	walletService := service.NewWalletService(walletRepo, ledgerRepo, cfg.CoinPrice)
	gateway := bank.NewClient(cfg.BankGatewayURL, cfg.BankGatewayAPIKey, cfg.BankGatewayTimeout)
	withdrawalService := service.NewWithdrawalService(withdrawalRepo, walletRepo, walletService, gateway, service.WithdrawalLimits{
		MinAmount:  cfg.MinWithdrawalAmount,
		MaxAmount:  cfg.MaxWithdrawalAmount,
		FeePercent: cfg.WithdrawalFeePercent,
		FeeMin:     cfg.WithdrawalFeeMin,
		FeeMax:     cfg.WithdrawalFeeMax,
		MaxPending: cfg.MaxPendingWithdrawals,
		TTL:        cfg.WithdrawalTTL,
		RetryLimit: cfg.WithdrawalRetryLimit,
	})

	// Фоновая обработка просроченных заявок.
	sweeper := service.NewExpirySweeper(withdrawalRepo, cfg.ExpirySweepInterval)
	goroutine.SafeGoWithContext(ctx, sweeper.Run)

	// HTTP хэндлеры.
	healthHandler := httpHandlers.NewHealthHandler(dbConn)
	walletHandler := httpHandlers.NewWalletHandler(walletService)
	withdrawalHandler := httpHandlers.NewWithdrawalHandler(withdrawalService)
	webhookHandler := httpHandlers.NewWebhookHandler(walletService, cfg.PaymentWebhookKey)
	adminHandler := httpHandlers.NewAdminHandler(walletService, withdrawalService)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, healthHandler, walletHandler, withdrawalHandler, webhookHandler, adminHandler, tokenManager)

	server := &http.Server{
		Addr:    ":" + cfg.HTTPPort,
		Handler: engine,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	log.Printf("main: HTTP сервер запущен на порту %s", cfg.HTTPPort)

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
