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
)

var (
	ErrTransactionNotFound = errors.New("транзакция не найдена")
	ErrDuplicateReference  = errors.New("событие уже обработано")
)

// Имя частичного уникального индекса, страхующего идемпотентность зачислений.
const uniqueReferenceIndex = "uq_wallet_tx_reference"

// TransactionFilter задаёт условия выборки истории операций.
type TransactionFilter struct {
	Type     string
	Currency string
	From     *time.Time
	To       *time.Time
	Limit    int
	Offset   int
}

// LedgerSums — агрегаты по COMPLETED записям журнала одного кошелька.
// Должны сходиться с денормализованными счётчиками кошелька.
type LedgerSums struct {
	CashBalance    int64 `db:"cash_balance"`
	CoinBalance    int64 `db:"coin_balance"`
	TotalDeposited int64 `db:"total_deposited"`
	TotalWithdrawn int64 `db:"total_withdrawn"`
	CoinsEarned    int64 `db:"coins_earned"`
	CoinsSpent     int64 `db:"coins_spent"`
}

// LedgerRepository отвечает за журнал операций кошелька.
// Запись ведётся только внутри транзакции, в которой меняется баланс:
// запись журнала и изменение баланса фиксируются или откатываются вместе.
type LedgerRepository struct {
	db *sqlx.DB
}

func NewLedgerRepository(db *sqlx.DB) *LedgerRepository {
	return &LedgerRepository{db: db}
}

// Record вставляет запись журнала внутри транзакции вызывающей стороны.
// Поля *BalanceAfter должны отражать остатки кошелька после изменения.
func (r *LedgerRepository) Record(ctx context.Context, tx *sqlx.Tx, entry *models.WalletTransaction) (*models.WalletTransaction, error) {
	if entry.Status == "" {
		entry.Status = models.TransactionStatusCompleted
	}
	var saved models.WalletTransaction
	err := tx.GetContext(ctx, &saved, `
		INSERT INTO wallet_transactions
			(wallet_id, transaction_type, currency_type, cash_amount, coin_amount,
			 cash_balance_after, coin_balance_after, description, reference_type, reference_id, fee, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING *
	`, entry.WalletID, entry.TransactionType, entry.CurrencyType, entry.CashAmount, entry.CoinAmount,
		entry.CashBalanceAfter, entry.CoinBalanceAfter, entry.Description, entry.ReferenceType,
		entry.ReferenceID, entry.Fee, entry.Status)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: record %w", err)
	}
	return &saved, nil
}

// AlreadyProcessed проверяет, была ли уже успешно обработана ссылка на внешнее событие.
func (r *LedgerRepository) AlreadyProcessed(ctx context.Context, q sqlx.QueryerContext, referenceID, referenceType string) (bool, error) {
	var count int
	err := sqlx.GetContext(ctx, q, &count, `
		SELECT COUNT(*) FROM wallet_transactions
		WHERE reference_id = $1 AND reference_type = $2 AND status = $3
	`, referenceID, referenceType, models.TransactionStatusCompleted)
	if err != nil {
		return false, fmt.Errorf("ledger repository: already processed %w", err)
	}
	return count > 0, nil
}

// FindByReference возвращает COMPLETED запись по ссылке на внешнее событие.
func (r *LedgerRepository) FindByReference(ctx context.Context, q sqlx.QueryerContext, referenceID, referenceType string) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := sqlx.GetContext(ctx, q, &entry, `
		SELECT * FROM wallet_transactions
		WHERE reference_id = $1 AND reference_type = $2 AND status = $3
		ORDER BY created_at LIMIT 1
	`, referenceID, referenceType, models.TransactionStatusCompleted)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, fmt.Errorf("ledger repository: find by reference %w", err)
	}
	return &entry, nil
}

// GetByID возвращает запись журнала по идентификатору.
func (r *LedgerRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	var entry models.WalletTransaction
	err := r.db.GetContext(ctx, &entry, `SELECT * FROM wallet_transactions WHERE id = $1`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrTransactionNotFound
	}
	return &entry, err
}

// List возвращает историю операций кошелька от новых к старым.
func (r *LedgerRepository) List(ctx context.Context, walletID uuid.UUID, filter TransactionFilter) ([]models.WalletTransaction, error) {
	query := `SELECT * FROM wallet_transactions WHERE wallet_id = $1`
	args := []interface{}{walletID}

	if filter.Type != "" {
		args = append(args, filter.Type)
		query += fmt.Sprintf(" AND transaction_type = $%d", len(args))
	}
	if filter.Currency != "" {
		args = append(args, filter.Currency)
		query += fmt.Sprintf(" AND currency_type = $%d", len(args))
	}
	if filter.From != nil {
		args = append(args, *filter.From)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if filter.To != nil {
		args = append(args, *filter.To)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	limit := filter.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	args = append(args, limit, offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	var entries []models.WalletTransaction
	if err := r.db.SelectContext(ctx, &entries, query, args...); err != nil {
		return nil, fmt.Errorf("ledger repository: list %w", err)
	}
	return entries, nil
}

// Sums пересчитывает остатки и счётчики кошелька по COMPLETED записям журнала.
// FREEZE/UNFREEZE не меняют cash_balance и в пересчёте не участвуют.
func (r *LedgerRepository) Sums(ctx context.Context, walletID uuid.UUID) (*LedgerSums, error) {
	var sums LedgerSums
	err := r.db.GetContext(ctx, &sums, `
		SELECT
			COALESCE(SUM(CASE
				WHEN currency_type = 'CASH' AND transaction_type IN ('DEPOSIT_CASH', 'REFUND_CASH') THEN cash_amount
				WHEN currency_type = 'CASH' AND transaction_type NOT IN ('FREEZE', 'UNFREEZE') THEN -cash_amount
				ELSE 0 END), 0) AS cash_balance,
			COALESCE(SUM(CASE
				WHEN currency_type = 'COIN' AND transaction_type IN ('PURCHASE_COINS', 'EARN_COINS', 'BONUS_COINS') THEN coin_amount
				WHEN currency_type = 'COIN' THEN -coin_amount
				ELSE 0 END), 0) AS coin_balance,
			COALESCE(SUM(CASE WHEN transaction_type = 'DEPOSIT_CASH' THEN cash_amount ELSE 0 END), 0) AS total_deposited,
			COALESCE(SUM(CASE WHEN transaction_type = 'WITHDRAWAL_CASH' THEN cash_amount ELSE 0 END), 0) AS total_withdrawn,
			COALESCE(SUM(CASE WHEN transaction_type IN ('EARN_COINS', 'BONUS_COINS') THEN coin_amount ELSE 0 END), 0) AS coins_earned,
			COALESCE(SUM(CASE
				WHEN currency_type = 'COIN' AND transaction_type IN ('SPEND_COINS', 'PURCHASE_COURSE', 'PURCHASE_PREMIUM', 'TIP_MENTOR') THEN coin_amount
				ELSE 0 END), 0) AS coins_spent
		FROM wallet_transactions
		WHERE wallet_id = $1 AND status = $2
	`, walletID, models.TransactionStatusCompleted)
	if err != nil {
		return nil, fmt.Errorf("ledger repository: sums %w", err)
	}
	return &sums, nil
}
