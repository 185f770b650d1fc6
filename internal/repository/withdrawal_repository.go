package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/ignatzorin/wallet-backend/internal/models"
	"github.com/ignatzorin/wallet-backend/internal/repository/common"
)

var ErrWithdrawalNotFound = errors.New("заявка на вывод не найдена")

const referenceTypeWithdrawal = "WITHDRAWAL_REQUEST"

// WithdrawalFilter задаёт условия выборки заявок для админки.
type WithdrawalFilter struct {
	Status string
	Limit  int
	Offset int
}

// WithdrawalRepository хранит заявки на вывод и связывает их жизненный цикл
// с заморозкой средств в кошельке. Порядок блокировок фиксированный:
// сначала строка заявки, затем строка кошелька.
type WithdrawalRepository struct {
	db      *sqlx.DB
	wallets *WalletRepository
	ledger  *LedgerRepository
}

func NewWithdrawalRepository(db *sqlx.DB, wallets *WalletRepository, ledger *LedgerRepository) *WithdrawalRepository {
	return &WithdrawalRepository{db: db, wallets: wallets, ledger: ledger}
}

// Submit создаёт заявку и замораживает её сумму в кошельке в одной транзакции.
func (r *WithdrawalRepository) Submit(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	var saved models.WithdrawalRequest
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.wallets.lockForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := wallet.FreezeCash(req.Amount); err != nil {
			return err
		}
		if err := r.wallets.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		req.WalletID = wallet.ID
		if err := tx.GetContext(ctx, &saved, `
			INSERT INTO withdrawal_requests
				(request_code, user_id, wallet_id, amount, fee, net_amount, status,
				 bank_name, bank_account_number, bank_account_name, bank_branch,
				 reason, user_notes, pin_verified, two_fa_verified, priority, expires_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
			RETURNING *
		`, req.RequestCode, req.UserID, req.WalletID, req.Amount, req.Fee, req.NetAmount,
			models.WithdrawalStatusPending, req.BankName, req.BankAccountNumber, req.BankAccountName,
			req.BankBranch, req.Reason, req.UserNotes, req.PinVerified, req.TwoFAVerified,
			req.Priority, req.ExpiresAt); err != nil {
			return fmt.Errorf("withdrawal repository: insert %w", err)
		}

		_, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypeFreeze,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(req.Amount),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      fmt.Sprintf("Заморозка средств по заявке %s", saved.RequestCode),
			ReferenceType:    str(referenceTypeWithdrawal),
			ReferenceID:      str(saved.RequestCode),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// GetByID возвращает заявку без блокировки.
func (r *WithdrawalRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return common.GetByField[models.WithdrawalRequest](ctx, r.db, "withdrawal_requests", "id", id, ErrWithdrawalNotFound)
}

// CountActiveByUser считает незавершённые заявки пользователя.
func (r *WithdrawalRepository) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `
		SELECT COUNT(*) FROM withdrawal_requests
		WHERE user_id = $1 AND status IN ($2, $3, $4)
	`, userID, models.WithdrawalStatusPending, models.WithdrawalStatusApproved, models.WithdrawalStatusProcessing)
	if err != nil {
		return 0, fmt.Errorf("withdrawal repository: count active %w", err)
	}
	return count, nil
}

// ListByUser возвращает заявки пользователя от новых к старым.
func (r *WithdrawalRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	limit = clampLimit(limit)
	if offset < 0 {
		offset = 0
	}
	var requests []models.WithdrawalRequest
	err := r.db.SelectContext(ctx, &requests, `
		SELECT * FROM withdrawal_requests
		WHERE user_id = $1
		ORDER BY created_at DESC LIMIT $2 OFFSET $3
	`, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list by user %w", err)
	}
	return requests, nil
}

// ListAll возвращает заявки для админки: сначала приоритетные, внутри приоритета старые.
func (r *WithdrawalRepository) ListAll(ctx context.Context, filter WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	query := `SELECT * FROM withdrawal_requests`
	args := []interface{}{}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += " WHERE status = $1"
	}
	limit := clampLimit(filter.Limit)
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY priority, created_at LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var requests []models.WithdrawalRequest
	if err := r.db.SelectContext(ctx, &requests, query, args...); err != nil {
		return nil, fmt.Errorf("withdrawal repository: list all %w", err)
	}
	return requests, nil
}

// ListExpired возвращает PENDING заявки с истёкшим сроком жизни.
func (r *WithdrawalRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRequest, error) {
	limit = clampLimit(limit)
	var requests []models.WithdrawalRequest
	err := r.db.SelectContext(ctx, &requests, `
		SELECT * FROM withdrawal_requests
		WHERE status = $1 AND expires_at IS NOT NULL AND expires_at < $2
		ORDER BY expires_at LIMIT $3
	`, models.WithdrawalStatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("withdrawal repository: list expired %w", err)
	}
	return requests, nil
}

// lockRequest блокирует строку заявки до конца транзакции.
func (r *WithdrawalRepository) lockRequest(ctx context.Context, tx *sqlx.Tx, id uuid.UUID) (*models.WithdrawalRequest, error) {
	var req models.WithdrawalRequest
	err := tx.GetContext(ctx, &req, `SELECT * FROM withdrawal_requests WHERE id = $1 FOR UPDATE`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWithdrawalNotFound
		}
		if common.IsLockTimeout(err) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("withdrawal repository: lock request %w", err)
	}
	return &req, nil
}

func (r *WithdrawalRepository) save(ctx context.Context, tx *sqlx.Tx, req *models.WithdrawalRequest) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE withdrawal_requests SET
			status = $2, approved_by = $3, approved_at = $4, admin_notes = $5,
			rejection_reason = $6, bank_transaction_id = $7, completed_at = $8,
			retry_count = $9, last_retry_at = $10, error_message = $11, updated_at = NOW()
		WHERE id = $1
	`, req.ID, req.Status, req.ApprovedBy, req.ApprovedAt, req.AdminNotes,
		req.RejectionReason, req.BankTransactionID, req.CompletedAt,
		req.RetryCount, req.LastRetryAt, req.ErrorMessage)
	if err != nil {
		return fmt.Errorf("withdrawal repository: save %w", err)
	}
	return nil
}

// Approve переводит заявку в APPROVED.
func (r *WithdrawalRepository) Approve(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.WithdrawalRequest, error) {
	return r.transition(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.Approve(adminID, notes)
	})
}

// MarkProcessing переводит заявку в PROCESSING перед обращением к банку.
func (r *WithdrawalRepository) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.transition(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.MarkProcessing()
	})
}

// RecordRetry фиксирует неудачную попытку перевода, заявка остаётся в PROCESSING.
func (r *WithdrawalRepository) RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) (*models.WithdrawalRequest, error) {
	return r.transition(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.RecordRetry(errMsg)
	})
}

// transition выполняет переход статуса, не затрагивающий балансы кошелька.
func (r *WithdrawalRepository) transition(ctx context.Context, id uuid.UUID, fn func(*models.WithdrawalRequest) error) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		req, err = r.lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(req); err != nil {
			return err
		}
		return r.save(ctx, tx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Complete завершает вывод: списывает замороженную сумму из кошелька и пишет
// запись WITHDRAWAL_CASH с комиссией. Повторный вызов для уже завершённой
// заявки возвращает её без изменений.
func (r *WithdrawalRepository) Complete(ctx context.Context, id uuid.UUID, bankTransactionID string) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		req, err = r.lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if req.Status == models.WithdrawalStatusCompleted {
			return nil
		}
		if err := req.Complete(bankTransactionID); err != nil {
			return err
		}

		wallet, err := r.wallets.lockForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := wallet.CompleteWithdrawal(req.Amount); err != nil {
			return err
		}
		if err := r.wallets.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}
		if err := r.save(ctx, tx, req); err != nil {
			return err
		}

		_, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypeWithdrawalCash,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(req.Amount),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      fmt.Sprintf("Вывод средств по заявке %s", req.RequestCode),
			ReferenceType:    str(referenceTypeWithdrawal),
			ReferenceID:      str(req.RequestCode),
			Fee:              req.Fee,
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Reject отклоняет PENDING заявку и размораживает её сумму.
func (r *WithdrawalRepository) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	return r.release(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.Reject(adminID, reason)
	}, "Возврат заморозки: заявка %s отклонена")
}

// Cancel отменяет заявку по инициативе пользователя и размораживает её сумму.
func (r *WithdrawalRepository) Cancel(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.release(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.Cancel()
	}, "Возврат заморозки: заявка %s отменена")
}

// Expire переводит просроченную заявку в EXPIRED и размораживает её сумму.
func (r *WithdrawalRepository) Expire(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return r.release(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.Expire()
	}, "Возврат заморозки: срок заявки %s истёк")
}

// Fail переводит заявку PROCESSING -> FAILED и размораживает её сумму.
func (r *WithdrawalRepository) Fail(ctx context.Context, id uuid.UUID, errMsg string) (*models.WithdrawalRequest, error) {
	return r.release(ctx, id, func(req *models.WithdrawalRequest) error {
		return req.Fail(errMsg)
	}, "Возврат заморозки: перевод по заявке %s не удался")
}

// release - общий путь всех переходов, возвращающих замороженную сумму в кошелёк.
// Переход статуса и разморозка выполняются в одной транзакции, поэтому сумма
// не может быть разморожена дважды даже при конкурирующих вызовах.
func (r *WithdrawalRepository) release(ctx context.Context, id uuid.UUID, fn func(*models.WithdrawalRequest) error, descFormat string) (*models.WithdrawalRequest, error) {
	var req *models.WithdrawalRequest
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		var err error
		req, err = r.lockRequest(ctx, tx, id)
		if err != nil {
			return err
		}
		if err := fn(req); err != nil {
			return err
		}

		wallet, err := r.wallets.lockForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if err := wallet.UnfreezeCash(req.Amount); err != nil {
			return err
		}
		if err := r.wallets.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}
		if err := r.save(ctx, tx, req); err != nil {
			return err
		}

		_, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypeUnfreeze,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(req.Amount),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      fmt.Sprintf(descFormat, req.RequestCode),
			ReferenceType:    str(referenceTypeWithdrawal),
			ReferenceID:      str(req.RequestCode),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

func clampLimit(limit int) int {
	if limit <= 0 || limit > 100 {
		return 20
	}
	return limit
}
