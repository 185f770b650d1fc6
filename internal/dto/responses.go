package dto

import (
	"github.com/ignatzorin/wallet-backend/internal/models"
)

// ErrorResponse - стандартный ответ с ошибкой.
type ErrorResponse struct {
	Error string `json:"error"`
}

// SuccessResponse - стандартный успешный ответ.
type SuccessResponse struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Pagination - метаданные постраничной выборки.
type Pagination struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
	Count  int `json:"count"`
}

// TransactionListResponse - история операций кошелька.
type TransactionListResponse struct {
	Transactions []models.WalletTransaction `json:"transactions"`
	Pagination   Pagination                 `json:"pagination"`
}

// WithdrawalListResponse - список заявок на вывод.
type WithdrawalListResponse struct {
	Withdrawals []models.WithdrawalRequest `json:"withdrawals"`
	Pagination  Pagination                 `json:"pagination"`
}

// DepositWebhookResponse - ответ на вебхук пополнения. Duplicate выставляется,
// когда событие уже было зачислено ранее.
type DepositWebhookResponse struct {
	Transaction *models.WalletTransaction `json:"transaction"`
	Duplicate   bool                      `json:"duplicate"`
}
