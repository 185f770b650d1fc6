package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Статусы кошелька
const (
	WalletStatusActive = "ACTIVE"
	WalletStatusFrozen = "FROZEN"
	WalletStatusClosed = "CLOSED"
)

var (
	ErrInvalidAmount      = errors.New("сумма должна быть положительной")
	ErrInsufficientFunds  = errors.New("недостаточно средств")
	ErrInsufficientFrozen = errors.New("замороженных средств недостаточно")
	ErrWalletNotActive    = errors.New("кошелёк не активен")
)

// Wallet представляет кошелёк пользователя с двумя валютами:
// cash — реальные деньги (VND, целые единицы), можно вывести на банковский счёт;
// coins — внутренняя валюта, на реальные деньги не выводится.
type Wallet struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	CashBalance       int64      `db:"cash_balance" json:"cash_balance"`
	FrozenCashBalance int64      `db:"frozen_cash_balance" json:"frozen_cash_balance"`
	CoinBalance       int64      `db:"coin_balance" json:"coin_balance"`
	TotalDeposited    int64      `db:"total_deposited" json:"total_deposited"`
	TotalWithdrawn    int64      `db:"total_withdrawn" json:"total_withdrawn"`
	TotalCoinsEarned  int64      `db:"total_coins_earned" json:"total_coins_earned"`
	TotalCoinsSpent   int64      `db:"total_coins_spent" json:"total_coins_spent"`
	Status            string     `db:"status" json:"status"`
	BankName          *string    `db:"bank_name" json:"bank_name,omitempty"`
	BankAccountNumber *string    `db:"bank_account_number" json:"bank_account_number,omitempty"`
	BankAccountName   *string    `db:"bank_account_name" json:"bank_account_name,omitempty"`
	TransactionPin    *string    `db:"transaction_pin" json:"-"`
	Require2FA        bool       `db:"require_2fa" json:"require_2fa"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	LastTransactionAt *time.Time `db:"last_transaction_at" json:"last_transaction_at,omitempty"`
}

// AvailableCash возвращает доступный остаток без учёта замороженных средств.
func (w *Wallet) AvailableCash() int64 {
	return w.CashBalance - w.FrozenCashBalance
}

// HasAvailableCash проверяет, хватает ли доступного остатка.
func (w *Wallet) HasAvailableCash(amount int64) bool {
	return w.AvailableCash() >= amount
}

func (w *Wallet) ensureActive() error {
	if w.Status != WalletStatusActive {
		return ErrWalletNotActive
	}
	return nil
}

func (w *Wallet) touch() {
	now := time.Now()
	w.LastTransactionAt = &now
}

// DepositCash пополняет баланс реальных денег.
func (w *Wallet) DepositCash(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := w.ensureActive(); err != nil {
		return err
	}
	w.CashBalance += amount
	w.TotalDeposited += amount
	w.touch()
	return nil
}

// DeductCash списывает реальные деньги из доступного остатка.
func (w *Wallet) DeductCash(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := w.ensureActive(); err != nil {
		return err
	}
	if !w.HasAvailableCash(amount) {
		return ErrInsufficientFunds
	}
	w.CashBalance -= amount
	w.touch()
	return nil
}

// RefundCash возвращает ранее списанные деньги.
// В отличие от DepositCash не увеличивает totalDeposited.
func (w *Wallet) RefundCash(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := w.ensureActive(); err != nil {
		return err
	}
	w.CashBalance += amount
	w.touch()
	return nil
}

// AddCoins зачисляет купленные монеты (не учитывается в totalCoinsEarned).
func (w *Wallet) AddCoins(coins int64) error {
	if coins <= 0 {
		return ErrInvalidAmount
	}
	if err := w.ensureActive(); err != nil {
		return err
	}
	w.CoinBalance += coins
	w.touch()
	return nil
}

// EarnCoins зачисляет заработанные или бонусные монеты.
func (w *Wallet) EarnCoins(coins int64) error {
	if err := w.AddCoins(coins); err != nil {
		return err
	}
	w.TotalCoinsEarned += coins
	return nil
}

// SpendCoins списывает монеты.
func (w *Wallet) SpendCoins(coins int64) error {
	if coins <= 0 {
		return ErrInvalidAmount
	}
	if err := w.ensureActive(); err != nil {
		return err
	}
	if w.CoinBalance < coins {
		return ErrInsufficientFunds
	}
	w.CoinBalance -= coins
	w.TotalCoinsSpent += coins
	w.touch()
	return nil
}

// FreezeCash переводит сумму из доступного остатка в замороженный.
// Общий баланс не меняется.
func (w *Wallet) FreezeCash(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if err := w.ensureActive(); err != nil {
		return err
	}
	if !w.HasAvailableCash(amount) {
		return ErrInsufficientFunds
	}
	w.FrozenCashBalance += amount
	return nil
}

// UnfreezeCash возвращает замороженную сумму в доступный остаток.
func (w *Wallet) UnfreezeCash(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.FrozenCashBalance < amount {
		return ErrInsufficientFrozen
	}
	w.FrozenCashBalance -= amount
	return nil
}

// CompleteWithdrawal завершает вывод: списывает сумму и с баланса, и из заморозки.
func (w *Wallet) CompleteWithdrawal(amount int64) error {
	if amount <= 0 {
		return ErrInvalidAmount
	}
	if w.FrozenCashBalance < amount {
		return ErrInsufficientFrozen
	}
	if w.CashBalance < amount {
		return ErrInsufficientFunds
	}
	w.CashBalance -= amount
	w.FrozenCashBalance -= amount
	w.TotalWithdrawn += amount
	w.touch()
	return nil
}
