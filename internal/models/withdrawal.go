package models

import (
	"errors"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
)

// Статусы заявки на вывод
const (
	WithdrawalStatusPending    = "PENDING"
	WithdrawalStatusApproved   = "APPROVED"
	WithdrawalStatusProcessing = "PROCESSING"
	WithdrawalStatusCompleted  = "COMPLETED"
	WithdrawalStatusRejected   = "REJECTED"
	WithdrawalStatusCancelled  = "CANCELLED"
	WithdrawalStatusFailed     = "FAILED"
	WithdrawalStatusExpired    = "EXPIRED"
)

var ErrInvalidStatusTransition = errors.New("недопустимый переход статуса заявки")

// WithdrawalRequest — заявка на вывод средств на банковский счёт.
// Пока заявка не в терминальном статусе, её сумма заморожена в кошельке.
type WithdrawalRequest struct {
	ID                uuid.UUID  `db:"id" json:"id"`
	RequestCode       string     `db:"request_code" json:"request_code"`
	UserID            uuid.UUID  `db:"user_id" json:"user_id"`
	WalletID          uuid.UUID  `db:"wallet_id" json:"wallet_id"`
	Amount            int64      `db:"amount" json:"amount"`
	Fee               int64      `db:"fee" json:"fee"`
	NetAmount         int64      `db:"net_amount" json:"net_amount"`
	Status            string     `db:"status" json:"status"`
	BankName          string     `db:"bank_name" json:"bank_name"`
	BankAccountNumber string     `db:"bank_account_number" json:"bank_account_number"`
	BankAccountName   string     `db:"bank_account_name" json:"bank_account_name"`
	BankBranch        *string    `db:"bank_branch" json:"bank_branch,omitempty"`
	Reason            *string    `db:"reason" json:"reason,omitempty"`
	UserNotes         *string    `db:"user_notes" json:"user_notes,omitempty"`
	PinVerified       bool       `db:"pin_verified" json:"pin_verified"`
	TwoFAVerified     bool       `db:"two_fa_verified" json:"two_fa_verified"`
	ApprovedBy        *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`
	ApprovedAt        *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	AdminNotes        *string    `db:"admin_notes" json:"admin_notes,omitempty"`
	RejectionReason   *string    `db:"rejection_reason" json:"rejection_reason,omitempty"`
	BankTransactionID *string    `db:"bank_transaction_id" json:"bank_transaction_id,omitempty"`
	CompletedAt       *time.Time `db:"completed_at" json:"completed_at,omitempty"`
	Priority          int        `db:"priority" json:"priority"`
	RetryCount        int        `db:"retry_count" json:"retry_count"`
	LastRetryAt       *time.Time `db:"last_retry_at" json:"last_retry_at,omitempty"`
	ErrorMessage      *string    `db:"error_message" json:"error_message,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt         time.Time  `db:"updated_at" json:"updated_at"`
	ExpiresAt         *time.Time `db:"expires_at" json:"expires_at,omitempty"`
}

// IsFinal сообщает, достигла ли заявка терминального статуса.
func (r *WithdrawalRequest) IsFinal() bool {
	switch r.Status {
	case WithdrawalStatusCompleted, WithdrawalStatusRejected,
		WithdrawalStatusCancelled, WithdrawalStatusFailed, WithdrawalStatusExpired:
		return true
	}
	return false
}

// CanCancel сообщает, может ли пользователь отменить заявку.
// После начала обработки банком отмена не предлагается.
func (r *WithdrawalRequest) CanCancel() bool {
	return r.Status == WithdrawalStatusPending || r.Status == WithdrawalStatusApproved
}

// IsExpired проверяет, истёк ли срок жизни заявки.
func (r *WithdrawalRequest) IsExpired(now time.Time) bool {
	return r.ExpiresAt != nil && now.After(*r.ExpiresAt)
}

// Approve переводит заявку PENDING -> APPROVED.
func (r *WithdrawalRequest) Approve(adminID uuid.UUID, notes string) error {
	if r.Status != WithdrawalStatusPending {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	r.Status = WithdrawalStatusApproved
	r.ApprovedBy = &adminID
	r.ApprovedAt = &now
	if notes != "" {
		r.AdminNotes = &notes
	}
	return nil
}

// Reject переводит заявку PENDING -> REJECTED.
func (r *WithdrawalRequest) Reject(adminID uuid.UUID, reason string) error {
	if r.Status != WithdrawalStatusPending {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	r.Status = WithdrawalStatusRejected
	r.ApprovedBy = &adminID
	r.ApprovedAt = &now
	r.RejectionReason = &reason
	return nil
}

// Cancel переводит заявку в CANCELLED по инициативе пользователя.
func (r *WithdrawalRequest) Cancel() error {
	if !r.CanCancel() {
		return ErrInvalidStatusTransition
	}
	r.Status = WithdrawalStatusCancelled
	return nil
}

// MarkProcessing переводит заявку APPROVED -> PROCESSING перед обращением к банку.
func (r *WithdrawalRequest) MarkProcessing() error {
	if r.Status != WithdrawalStatusApproved {
		return ErrInvalidStatusTransition
	}
	r.Status = WithdrawalStatusProcessing
	return nil
}

// Complete переводит заявку PROCESSING -> COMPLETED после успешного перевода.
func (r *WithdrawalRequest) Complete(bankTransactionID string) error {
	if r.Status != WithdrawalStatusProcessing {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	r.Status = WithdrawalStatusCompleted
	r.CompletedAt = &now
	if bankTransactionID != "" {
		r.BankTransactionID = &bankTransactionID
	}
	return nil
}

// RecordRetry фиксирует неудачную попытку банковского перевода.
// Заявка остаётся в PROCESSING, решение о дальнейшей судьбе принимает оператор.
func (r *WithdrawalRequest) RecordRetry(errMsg string) error {
	if r.Status != WithdrawalStatusProcessing {
		return ErrInvalidStatusTransition
	}
	now := time.Now()
	r.RetryCount++
	r.LastRetryAt = &now
	r.ErrorMessage = &errMsg
	return nil
}

// Fail переводит заявку PROCESSING -> FAILED после исчерпания попыток.
func (r *WithdrawalRequest) Fail(errMsg string) error {
	if r.Status != WithdrawalStatusProcessing {
		return ErrInvalidStatusTransition
	}
	r.Status = WithdrawalStatusFailed
	r.ErrorMessage = &errMsg
	return nil
}

// Expire переводит просроченную заявку PENDING -> EXPIRED.
func (r *WithdrawalRequest) Expire() error {
	if r.Status != WithdrawalStatusPending {
		return ErrInvalidStatusTransition
	}
	r.Status = WithdrawalStatusExpired
	return nil
}

// GenerateRequestCode создаёт уникальный код заявки формата WD-<unix>-XXXX.
func GenerateRequestCode() string {
	return fmt.Sprintf("WD-%d-%04d", time.Now().Unix(), rand.Intn(10000))
}

// CalculatePriority назначает приоритет обработки по сумме: 1 — наивысший.
func CalculatePriority(amount int64) int {
	switch {
	case amount >= 10_000_000:
		return 1
	case amount >= 5_000_000:
		return 2
	case amount >= 1_000_000:
		return 3
	case amount >= 500_000:
		return 4
	default:
		return 5
	}
}
