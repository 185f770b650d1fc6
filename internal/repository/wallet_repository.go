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

var (
	ErrWalletNotFound = errors.New("кошелёк не найден")
	ErrLockTimeout    = errors.New("кошелёк занят другой операцией, попробуйте позже")
)

func i64(v int64) *int64 { return &v }

func str(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

// WalletGlobalStats — сводная статистика по всем кошелькам (для админки).
type WalletGlobalStats struct {
	TotalWallets     int64 `db:"total_wallets"`
	ActiveWallets    int64 `db:"active_wallets"`
	TotalCashBalance int64 `db:"total_cash_balance"`
	TotalFrozenCash  int64 `db:"total_frozen_cash"`
	TotalCoinBalance int64 `db:"total_coin_balance"`
}

// WalletRepository владеет кошельками и всеми изменениями балансов.
// Любая операция над балансом сериализуется блокировкой строки кошелька
// (SELECT ... FOR UPDATE) и пишет запись журнала в той же транзакции.
type WalletRepository struct {
	db          *sqlx.DB
	ledger      *LedgerRepository
	lockTimeout time.Duration
}

func NewWalletRepository(db *sqlx.DB, ledger *LedgerRepository, lockTimeout time.Duration) *WalletRepository {
	if lockTimeout <= 0 {
		lockTimeout = 3 * time.Second
	}
	return &WalletRepository{db: db, ledger: ledger, lockTimeout: lockTimeout}
}

// GetOrCreate возвращает кошелёк пользователя, создаёт с нулевыми балансами если не существует.
func (r *WalletRepository) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	var wallet models.Wallet
	query := `
		INSERT INTO wallets (user_id)
		VALUES ($1)
		ON CONFLICT (user_id) DO UPDATE SET updated_at = NOW()
		RETURNING *
	`
	if err := r.db.GetContext(ctx, &wallet, query, userID); err != nil {
		return nil, fmt.Errorf("wallet repository: get or create %w", err)
	}
	return &wallet, nil
}

// GetByUserID возвращает кошелёк без блокировки.
func (r *WalletRepository) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return common.GetByField[models.Wallet](ctx, r.db, "wallets", "user_id", userID, ErrWalletNotFound)
}

// lockForUpdate берёт эксклюзивную блокировку строки кошелька до конца транзакции.
// Ожидание ограничено lock_timeout: при его истечении возвращается ErrLockTimeout,
// и вызывающая сторона может повторить операцию.
func (r *WalletRepository) lockForUpdate(ctx context.Context, tx *sqlx.Tx, userID uuid.UUID) (*models.Wallet, error) {
	if err := common.SetLockTimeout(ctx, tx, r.lockTimeout); err != nil {
		return nil, fmt.Errorf("wallet repository: set lock timeout %w", err)
	}

	var wallet models.Wallet
	err := tx.GetContext(ctx, &wallet, `SELECT * FROM wallets WHERE user_id = $1 FOR UPDATE`, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWalletNotFound
		}
		if common.IsLockTimeout(err) {
			return nil, ErrLockTimeout
		}
		return nil, fmt.Errorf("wallet repository: lock %w", err)
	}
	return &wallet, nil
}

// saveBalances записывает новые балансы и счётчики кошелька.
func (r *WalletRepository) saveBalances(ctx context.Context, tx *sqlx.Tx, w *models.Wallet) error {
	_, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			cash_balance = $2, frozen_cash_balance = $3, coin_balance = $4,
			total_deposited = $5, total_withdrawn = $6,
			total_coins_earned = $7, total_coins_spent = $8,
			last_transaction_at = $9, updated_at = NOW()
		WHERE id = $1
	`, w.ID, w.CashBalance, w.FrozenCashBalance, w.CoinBalance,
		w.TotalDeposited, w.TotalWithdrawn, w.TotalCoinsEarned, w.TotalCoinsSpent,
		w.LastTransactionAt)
	if err != nil {
		return fmt.Errorf("wallet repository: save balances %w", err)
	}
	return nil
}

// DepositCash зачисляет реальные деньги на кошелёк пользователя.
// Повторная доставка того же внешнего события (referenceID, referenceType)
// не зачисляется второй раз: возвращается прежняя запись и ErrDuplicateReference.
func (r *WalletRepository) DepositCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	var entry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.lockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		// Проверка идемпотентности под блокировкой кошелька.
		if referenceID != "" {
			processed, err := r.ledger.AlreadyProcessed(ctx, tx, referenceID, referenceType)
			if err != nil {
				return err
			}
			if processed {
				return ErrDuplicateReference
			}
		}

		if err := wallet.DepositCash(amount); err != nil {
			return err
		}
		if err := r.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		entry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypeDepositCash,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(amount),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      description,
			ReferenceType:    str(referenceType),
			ReferenceID:      str(referenceID),
		})
		return err
	})
	if err != nil {
		// Конкурирующая доставка того же события: уникальный индекс не дал
		// записать дубль, возвращаем уже существующую запись.
		if errors.Is(err, ErrDuplicateReference) || common.IsUniqueViolation(err, uniqueReferenceIndex) {
			prior, findErr := r.ledger.FindByReference(ctx, r.db, referenceID, referenceType)
			if findErr != nil {
				return nil, findErr
			}
			return prior, ErrDuplicateReference
		}
		return nil, err
	}
	return entry, nil
}

// AddCoins зачисляет монеты. Для EARN_COINS и BONUS_COINS увеличивается
// счётчик заработанных монет, купленные монеты в него не входят.
func (r *WalletRepository) AddCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	if _, err := r.GetOrCreate(ctx, userID); err != nil {
		return nil, err
	}

	var entry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.lockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}

		earned := txType == models.TransactionTypeEarnCoins || txType == models.TransactionTypeBonusCoins
		if earned {
			err = wallet.EarnCoins(coins)
		} else {
			err = wallet.AddCoins(coins)
		}
		if err != nil {
			return err
		}
		if err := r.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		entry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  txType,
			CurrencyType:     models.CurrencyCoin,
			CoinAmount:       i64(coins),
			CoinBalanceAfter: i64(wallet.CoinBalance),
			Description:      description,
			ReferenceType:    str(referenceType),
			ReferenceID:      str(referenceID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// SpendCoins списывает монеты (покупка курса, premium, чаевые ментору).
func (r *WalletRepository) SpendCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.lockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := wallet.SpendCoins(coins); err != nil {
			return err
		}
		if err := r.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		entry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  txType,
			CurrencyType:     models.CurrencyCoin,
			CoinAmount:       i64(coins),
			CoinBalanceAfter: i64(wallet.CoinBalance),
			Description:      description,
			ReferenceType:    str(referenceType),
			ReferenceID:      str(referenceID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// DeductCash списывает реальные деньги из доступного остатка (покупка premium и т.п.).
func (r *WalletRepository) DeductCash(ctx context.Context, userID uuid.UUID, amount int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.lockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := wallet.DeductCash(amount); err != nil {
			return err
		}
		if err := r.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		entry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  txType,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(amount),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      description,
			ReferenceType:    str(referenceType),
			ReferenceID:      str(referenceID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RefundCash возвращает деньги на кошелёк (отмена покупки, компенсация).
func (r *WalletRepository) RefundCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	var entry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.lockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := wallet.RefundCash(amount); err != nil {
			return err
		}
		if err := r.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		entry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypeRefundCash,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(amount),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      description,
			ReferenceType:    str(referenceType),
			ReferenceID:      str(referenceID),
		})
		return err
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// PurchaseCoins покупает монеты за деньги кошелька: списание денег и зачисление
// монет в одной транзакции. Бонусные монеты пакета идут отдельной записью
// BONUS_COINS и учитываются как заработанные.
func (r *WalletRepository) PurchaseCoins(ctx context.Context, userID uuid.UUID, price, baseCoins, bonusCoins int64, packageID, description string) (*models.WalletTransaction, *models.WalletTransaction, error) {
	var cashEntry, coinEntry *models.WalletTransaction
	err := common.WithTransaction(ctx, r.db, func(tx *sqlx.Tx) error {
		wallet, err := r.lockForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if err := wallet.DeductCash(price); err != nil {
			return err
		}
		if err := wallet.AddCoins(baseCoins); err != nil {
			return err
		}
		if bonusCoins > 0 {
			if err := wallet.EarnCoins(bonusCoins); err != nil {
				return err
			}
		}
		if err := r.saveBalances(ctx, tx, wallet); err != nil {
			return err
		}

		cashEntry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypePurchaseCoins,
			CurrencyType:     models.CurrencyCash,
			CashAmount:       i64(price),
			CashBalanceAfter: i64(wallet.CashBalance),
			Description:      description,
			ReferenceType:    str("COIN_PURCHASE"),
			ReferenceID:      str(packageID),
		})
		if err != nil {
			return err
		}

		coinEntry, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
			WalletID:         wallet.ID,
			TransactionType:  models.TransactionTypePurchaseCoins,
			CurrencyType:     models.CurrencyCoin,
			CoinAmount:       i64(baseCoins),
			CoinBalanceAfter: i64(wallet.CoinBalance - bonusCoins),
			Description:      description,
			ReferenceType:    str("COIN_PURCHASE"),
			ReferenceID:      str(packageID),
		})
		if err != nil {
			return err
		}

		if bonusCoins > 0 {
			_, err = r.ledger.Record(ctx, tx, &models.WalletTransaction{
				WalletID:         wallet.ID,
				TransactionType:  models.TransactionTypeBonusCoins,
				CurrencyType:     models.CurrencyCoin,
				CoinAmount:       i64(bonusCoins),
				CoinBalanceAfter: i64(wallet.CoinBalance),
				Description:      fmt.Sprintf("Бонусные монеты пакета %s", packageID),
				ReferenceType:    str("COIN_PURCHASE"),
				ReferenceID:      str(packageID),
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return cashEntry, coinEntry, nil
}

// SetTransactionPin сохраняет bcrypt-хэш PIN кода.
func (r *WalletRepository) SetTransactionPin(ctx context.Context, userID uuid.UUID, pinHash string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE wallets SET transaction_pin = $2, updated_at = NOW() WHERE user_id = $1`, userID, pinHash)
	if err != nil {
		return fmt.Errorf("wallet repository: set pin %w", err)
	}
	return ensureRowAffected(res, ErrWalletNotFound)
}

// UpdateBankAccount сохраняет банковские реквизиты по умолчанию.
func (r *WalletRepository) UpdateBankAccount(ctx context.Context, userID uuid.UUID, bankName, accountNumber, accountName string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE wallets SET bank_name = $2, bank_account_number = $3, bank_account_name = $4, updated_at = NOW()
		WHERE user_id = $1
	`, userID, bankName, accountNumber, accountName)
	if err != nil {
		return fmt.Errorf("wallet repository: update bank account %w", err)
	}
	return ensureRowAffected(res, ErrWalletNotFound)
}

// SetRequire2FA включает или выключает требование 2FA для вывода средств.
func (r *WalletRepository) SetRequire2FA(ctx context.Context, userID uuid.UUID, enabled bool) error {
	res, err := r.db.ExecContext(ctx, `UPDATE wallets SET require_2fa = $2, updated_at = NOW() WHERE user_id = $1`, userID, enabled)
	if err != nil {
		return fmt.Errorf("wallet repository: set 2fa %w", err)
	}
	return ensureRowAffected(res, ErrWalletNotFound)
}

// SetStatus меняет административный статус кошелька.
func (r *WalletRepository) SetStatus(ctx context.Context, userID uuid.UUID, status string) error {
	res, err := r.db.ExecContext(ctx, `UPDATE wallets SET status = $2, updated_at = NOW() WHERE user_id = $1`, userID, status)
	if err != nil {
		return fmt.Errorf("wallet repository: set status %w", err)
	}
	return ensureRowAffected(res, ErrWalletNotFound)
}

// GlobalStats возвращает сводную статистику по всем кошелькам.
func (r *WalletRepository) GlobalStats(ctx context.Context) (*WalletGlobalStats, error) {
	var stats WalletGlobalStats
	err := r.db.GetContext(ctx, &stats, `
		SELECT
			COUNT(*) AS total_wallets,
			COUNT(*) FILTER (WHERE status = 'ACTIVE') AS active_wallets,
			COALESCE(SUM(cash_balance), 0) AS total_cash_balance,
			COALESCE(SUM(frozen_cash_balance), 0) AS total_frozen_cash,
			COALESCE(SUM(coin_balance), 0) AS total_coin_balance
		FROM wallets
	`)
	if err != nil {
		return nil, fmt.Errorf("wallet repository: global stats %w", err)
	}
	return &stats, nil
}

func ensureRowAffected(res sql.Result, notFound error) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return notFound
	}
	return nil
}
