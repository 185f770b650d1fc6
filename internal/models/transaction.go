package models

import (
	"time"

	"github.com/google/uuid"
)

// Типы операций журнала
const (
	TransactionTypeDepositCash     = "DEPOSIT_CASH"
	TransactionTypeWithdrawalCash  = "WITHDRAWAL_CASH"
	TransactionTypePurchaseCoins   = "PURCHASE_COINS"
	TransactionTypeEarnCoins       = "EARN_COINS"
	TransactionTypeSpendCoins      = "SPEND_COINS"
	TransactionTypeBonusCoins      = "BONUS_COINS"
	TransactionTypePurchaseCourse  = "PURCHASE_COURSE"
	TransactionTypePurchasePremium = "PURCHASE_PREMIUM"
	TransactionTypeTipMentor       = "TIP_MENTOR"
	TransactionTypeFreeze          = "FREEZE"
	TransactionTypeUnfreeze        = "UNFREEZE"
	TransactionTypeRefundCash      = "REFUND_CASH"
	TransactionTypeAdminAdjustment = "ADMIN_ADJUSTMENT"
)

// Валюта операции
const (
	CurrencyCash = "CASH"
	CurrencyCoin = "COIN"
)

// Статусы записи журнала
const (
	TransactionStatusPending   = "PENDING"
	TransactionStatusCompleted = "COMPLETED"
	TransactionStatusFailed    = "FAILED"
	TransactionStatusReversed  = "REVERSED"
)

// WalletTransaction — неизменяемая запись журнала об одном изменении баланса.
// Суммы хранятся как положительные величины, направление определяет тип операции.
// Поля *BalanceAfter фиксируют остаток сразу после операции, что позволяет
// проводить аудит без полного пересчёта истории.
type WalletTransaction struct {
	ID               uuid.UUID `db:"id" json:"id"`
	WalletID         uuid.UUID `db:"wallet_id" json:"wallet_id"`
	TransactionType  string    `db:"transaction_type" json:"transaction_type"`
	CurrencyType     string    `db:"currency_type" json:"currency_type"`
	CashAmount       *int64    `db:"cash_amount" json:"cash_amount,omitempty"`
	CoinAmount       *int64    `db:"coin_amount" json:"coin_amount,omitempty"`
	CashBalanceAfter *int64    `db:"cash_balance_after" json:"cash_balance_after,omitempty"`
	CoinBalanceAfter *int64    `db:"coin_balance_after" json:"coin_balance_after,omitempty"`
	Description      string    `db:"description" json:"description"`
	ReferenceType    *string   `db:"reference_type" json:"reference_type,omitempty"`
	ReferenceID      *string   `db:"reference_id" json:"reference_id,omitempty"`
	Fee              int64     `db:"fee" json:"fee"`
	Status           string    `db:"status" json:"status"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// IsCash сообщает, относится ли запись к реальным деньгам.
func (t *WalletTransaction) IsCash() bool {
	return t.CurrencyType == CurrencyCash
}

// IsCoin сообщает, относится ли запись к монетам.
func (t *WalletTransaction) IsCoin() bool {
	return t.CurrencyType == CurrencyCoin
}
