package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/wallet-backend/internal/models"
	"github.com/ignatzorin/wallet-backend/internal/repository"
)

var (
	ErrUnknownCoinPackage = errors.New("неизвестный пакет монет")
	ErrInvalidPin         = errors.New("неверный PIN код")
	ErrPinNotSet          = errors.New("PIN код не установлен")
	ErrWalletMismatch     = errors.New("расхождение между кошельком и журналом операций")
)

// CoinPackage описывает пакет монет с бонусом.
type CoinPackage struct {
	ID         string `json:"id"`
	BaseCoins  int64  `json:"base_coins"`
	BonusCoins int64  `json:"bonus_coins"`
	PriceVND   int64  `json:"price_vnd"`
}

// coinPackages - доступные пакеты, от пробного до максимального.
var coinPackages = map[string]CoinPackage{
	"trial":     {ID: "trial", BaseCoins: 25, BonusCoins: 0, PriceVND: 2500},
	"starter":   {ID: "starter", BaseCoins: 50, BonusCoins: 5, PriceVND: 4500},
	"basic":     {ID: "basic", BaseCoins: 100, BonusCoins: 10, PriceVND: 8500},
	"student":   {ID: "student", BaseCoins: 250, BonusCoins: 30, PriceVND: 20000},
	"popular":   {ID: "popular", BaseCoins: 500, BonusCoins: 75, PriceVND: 40000},
	"weekend":   {ID: "weekend", BaseCoins: 750, BonusCoins: 150, PriceVND: 60000},
	"premium":   {ID: "premium", BaseCoins: 1000, BonusCoins: 200, PriceVND: 80000},
	"business":  {ID: "business", BaseCoins: 1500, BonusCoins: 300, PriceVND: 120000},
	"mega":      {ID: "mega", BaseCoins: 2500, BonusCoins: 600, PriceVND: 190000},
	"flash":     {ID: "flash", BaseCoins: 3000, BonusCoins: 1000, PriceVND: 210000},
	"ultimate":  {ID: "ultimate", BaseCoins: 5000, BonusCoins: 1500, PriceVND: 350000},
	"legendary": {ID: "legendary", BaseCoins: 10000, BonusCoins: 3500, PriceVND: 650000},
}

// WalletStore - операции хранилища кошельков, нужные сервису.
type WalletStore interface {
	GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error)
	DepositCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error)
	AddCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error)
	SpendCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error)
	DeductCash(ctx context.Context, userID uuid.UUID, amount int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error)
	RefundCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error)
	PurchaseCoins(ctx context.Context, userID uuid.UUID, price, baseCoins, bonusCoins int64, packageID, description string) (*models.WalletTransaction, *models.WalletTransaction, error)
	SetTransactionPin(ctx context.Context, userID uuid.UUID, pinHash string) error
	UpdateBankAccount(ctx context.Context, userID uuid.UUID, bankName, accountNumber, accountName string) error
	SetRequire2FA(ctx context.Context, userID uuid.UUID, enabled bool) error
	SetStatus(ctx context.Context, userID uuid.UUID, status string) error
	GlobalStats(ctx context.Context) (*repository.WalletGlobalStats, error)
}

// LedgerReader - читающие операции журнала, нужные сервису.
type LedgerReader interface {
	List(ctx context.Context, walletID uuid.UUID, filter repository.TransactionFilter) ([]models.WalletTransaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error)
	Sums(ctx context.Context, walletID uuid.UUID) (*repository.LedgerSums, error)
}

const globalStatsCacheKey = "wallet:global_stats"

// WalletService реализует пользовательские операции над кошельком.
type WalletService struct {
	wallets   WalletStore
	ledger    LedgerReader
	coinPrice int64
	cache     *CacheService
}

func NewWalletService(wallets WalletStore, ledger LedgerReader, coinPrice int64) *WalletService {
	if coinPrice <= 0 {
		coinPrice = 100
	}
	return &WalletService{
		wallets:   wallets,
		ledger:    ledger,
		coinPrice: coinPrice,
		cache:     NewCacheService(),
	}
}

// GetWallet возвращает кошелёк пользователя, создавая его при первом обращении.
func (s *WalletService) GetWallet(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	return s.wallets.GetOrCreate(ctx, userID)
}

// ProcessDeposit зачисляет подтверждённое пополнение от платёжного провайдера.
// Повторная доставка того же события не зачисляется второй раз.
func (s *WalletService) ProcessDeposit(ctx context.Context, userID uuid.UUID, amount int64, paymentID string) (*models.WalletTransaction, bool, error) {
	if amount <= 0 {
		return nil, false, models.ErrInvalidAmount
	}
	if paymentID == "" {
		return nil, false, fmt.Errorf("wallet service: пустой идентификатор платежа")
	}

	entry, err := s.wallets.DepositCash(ctx, userID, amount, "PAYMENT", paymentID,
		fmt.Sprintf("Пополнение кошелька, платёж %s", paymentID))
	if errors.Is(err, repository.ErrDuplicateReference) {
		return entry, true, nil
	}
	if err != nil {
		return nil, false, err
	}
	return entry, false, nil
}

// ListCoinPackages возвращает пакеты монет по возрастанию цены.
func (s *WalletService) ListCoinPackages() []CoinPackage {
	packages := make([]CoinPackage, 0, len(coinPackages))
	for _, pkg := range coinPackages {
		packages = append(packages, pkg)
	}
	sort.Slice(packages, func(i, j int) bool {
		return packages[i].PriceVND < packages[j].PriceVND
	})
	return packages
}

// PurchaseCoins покупает монеты за деньги кошелька. При указании packageID
// берутся монеты, бонус и цена пакета, иначе произвольное количество без бонуса.
func (s *WalletService) PurchaseCoins(ctx context.Context, userID uuid.UUID, coinAmount int64, packageID string) (*models.Wallet, error) {
	var price, baseCoins, bonusCoins int64
	refID := "custom"

	if packageID != "" {
		pkg, ok := coinPackages[packageID]
		if !ok {
			return nil, ErrUnknownCoinPackage
		}
		price = pkg.PriceVND
		baseCoins = pkg.BaseCoins
		bonusCoins = pkg.BonusCoins
		refID = pkg.ID
	} else {
		if coinAmount <= 0 {
			return nil, models.ErrInvalidAmount
		}
		price = coinAmount * s.coinPrice
		baseCoins = coinAmount
	}

	description := fmt.Sprintf("Покупка %d монет", baseCoins)
	if bonusCoins > 0 {
		description = fmt.Sprintf("Покупка %d монет (+%d бонус)", baseCoins, bonusCoins)
	}

	if _, _, err := s.wallets.PurchaseCoins(ctx, userID, price, baseCoins, bonusCoins, refID, description); err != nil {
		return nil, err
	}
	return s.wallets.GetByUserID(ctx, userID)
}

// AwardCoins зачисляет заработанные или бонусные монеты (завершение курса, акции).
func (s *WalletService) AwardCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	if txType != models.TransactionTypeEarnCoins && txType != models.TransactionTypeBonusCoins {
		return nil, fmt.Errorf("wallet service: недопустимый тип начисления %s", txType)
	}
	return s.wallets.AddCoins(ctx, userID, coins, txType, referenceType, referenceID, description)
}

// SpendCoins списывает монеты на покупку внутри платформы.
func (s *WalletService) SpendCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	switch txType {
	case models.TransactionTypeSpendCoins, models.TransactionTypePurchaseCourse,
		models.TransactionTypePurchasePremium, models.TransactionTypeTipMentor:
	default:
		return nil, fmt.Errorf("wallet service: недопустимый тип списания %s", txType)
	}
	return s.wallets.SpendCoins(ctx, userID, coins, txType, referenceType, referenceID, description)
}

// RefundCash возвращает деньги на кошелёк при отмене покупки.
func (s *WalletService) RefundCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	return s.wallets.RefundCash(ctx, userID, amount, referenceType, referenceID, description)
}

// ListTransactions возвращает историю операций кошелька.
func (s *WalletService) ListTransactions(ctx context.Context, userID uuid.UUID, filter repository.TransactionFilter) ([]models.WalletTransaction, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.ledger.List(ctx, wallet.ID, filter)
}

// SetTransactionPin устанавливает PIN код для подтверждения выводов.
func (s *WalletService) SetTransactionPin(ctx context.Context, userID uuid.UUID, pin string) error {
	if len(pin) < 4 || len(pin) > 6 {
		return fmt.Errorf("wallet service: PIN должен содержать от 4 до 6 цифр")
	}
	for _, c := range pin {
		if c < '0' || c > '9' {
			return fmt.Errorf("wallet service: PIN должен содержать только цифры")
		}
	}

	if _, err := s.wallets.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("wallet service: не удалось захэшировать PIN: %w", err)
	}
	return s.wallets.SetTransactionPin(ctx, userID, string(hash))
}

// VerifyPin проверяет PIN код кошелька.
func (s *WalletService) VerifyPin(wallet *models.Wallet, pin string) error {
	if wallet.TransactionPin == nil {
		return ErrPinNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*wallet.TransactionPin), []byte(pin)); err != nil {
		return ErrInvalidPin
	}
	return nil
}

// UpdateBankAccount сохраняет банковские реквизиты по умолчанию.
func (s *WalletService) UpdateBankAccount(ctx context.Context, userID uuid.UUID, bankName, accountNumber, accountName string) error {
	if bankName == "" || accountNumber == "" || accountName == "" {
		return fmt.Errorf("wallet service: все банковские реквизиты обязательны")
	}
	if _, err := s.wallets.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.wallets.UpdateBankAccount(ctx, userID, bankName, accountNumber, accountName)
}

// SetRequire2FA включает или выключает требование 2FA для вывода средств.
func (s *WalletService) SetRequire2FA(ctx context.Context, userID uuid.UUID, enabled bool) error {
	if _, err := s.wallets.GetOrCreate(ctx, userID); err != nil {
		return err
	}
	return s.wallets.SetRequire2FA(ctx, userID, enabled)
}

// SetWalletStatus меняет административный статус кошелька.
func (s *WalletService) SetWalletStatus(ctx context.Context, userID uuid.UUID, status string) error {
	switch status {
	case models.WalletStatusActive, models.WalletStatusFrozen, models.WalletStatusClosed:
	default:
		return fmt.Errorf("wallet service: недопустимый статус кошелька %s", status)
	}
	return s.wallets.SetStatus(ctx, userID, status)
}

// WalletStatistics - сводка по кошельку пользователя.
type WalletStatistics struct {
	CashBalance       int64      `json:"cash_balance"`
	AvailableCash     int64      `json:"available_cash"`
	FrozenCashBalance int64      `json:"frozen_cash_balance"`
	CoinBalance       int64      `json:"coin_balance"`
	TotalDeposited    int64      `json:"total_deposited"`
	TotalWithdrawn    int64      `json:"total_withdrawn"`
	TotalCoinsEarned  int64      `json:"total_coins_earned"`
	TotalCoinsSpent   int64      `json:"total_coins_spent"`
	LastTransactionAt *time.Time `json:"last_transaction_at,omitempty"`
}

// Statistics возвращает сводку по кошельку пользователя.
func (s *WalletService) Statistics(ctx context.Context, userID uuid.UUID) (*WalletStatistics, error) {
	wallet, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &WalletStatistics{
		CashBalance:       wallet.CashBalance,
		AvailableCash:     wallet.AvailableCash(),
		FrozenCashBalance: wallet.FrozenCashBalance,
		CoinBalance:       wallet.CoinBalance,
		TotalDeposited:    wallet.TotalDeposited,
		TotalWithdrawn:    wallet.TotalWithdrawn,
		TotalCoinsEarned:  wallet.TotalCoinsEarned,
		TotalCoinsSpent:   wallet.TotalCoinsSpent,
		LastTransactionAt: wallet.LastTransactionAt,
	}, nil
}

// GlobalStats возвращает сводную статистику по всем кошелькам.
// Агрегат считается по всей таблице, поэтому результат кэшируется на минуту.
func (s *WalletService) GlobalStats(ctx context.Context) (*repository.WalletGlobalStats, error) {
	value, err := s.cache.GetOrSet(globalStatsCacheKey, time.Minute, func() (interface{}, error) {
		return s.wallets.GlobalStats(ctx)
	})
	if err != nil {
		return nil, err
	}
	return value.(*repository.WalletGlobalStats), nil
}

// ReconcileReport - результат сверки кошелька с журналом операций.
type ReconcileReport struct {
	Wallet     *models.Wallet         `json:"wallet"`
	LedgerSums *repository.LedgerSums `json:"ledger_sums"`
	Consistent bool                   `json:"consistent"`
}

// Reconcile сверяет денормализованные остатки кошелька с пересчётом по журналу.
// Расхождение означает потерянную или лишнюю запись и требует разбирательства.
func (s *WalletService) Reconcile(ctx context.Context, userID uuid.UUID) (*ReconcileReport, error) {
	wallet, err := s.wallets.GetByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	sums, err := s.ledger.Sums(ctx, wallet.ID)
	if err != nil {
		return nil, err
	}

	report := &ReconcileReport{
		Wallet:     wallet,
		LedgerSums: sums,
		Consistent: wallet.CashBalance == sums.CashBalance &&
			wallet.CoinBalance == sums.CoinBalance &&
			wallet.TotalDeposited == sums.TotalDeposited &&
			wallet.TotalWithdrawn == sums.TotalWithdrawn &&
			wallet.TotalCoinsEarned == sums.CoinsEarned &&
			wallet.TotalCoinsSpent == sums.CoinsSpent,
	}
	if !report.Consistent {
		return report, ErrWalletMismatch
	}
	return report, nil
}
