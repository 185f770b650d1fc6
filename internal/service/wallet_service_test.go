package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/wallet-backend/internal/models"
	"github.com/ignatzorin/wallet-backend/internal/repository"
)

type mockWalletStore struct {
	mock.Mock
}

func (m *mockWalletStore) GetOrCreate(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletStore) GetByUserID(ctx context.Context, userID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWalletStore) DepositCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, referenceType, referenceID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletStore) AddCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, coins, txType, referenceType, referenceID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletStore) SpendCoins(ctx context.Context, userID uuid.UUID, coins int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, coins, txType, referenceType, referenceID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletStore) DeductCash(ctx context.Context, userID uuid.UUID, amount int64, txType, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, txType, referenceType, referenceID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletStore) RefundCash(ctx context.Context, userID uuid.UUID, amount int64, referenceType, referenceID, description string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, userID, amount, referenceType, referenceID, description)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockWalletStore) PurchaseCoins(ctx context.Context, userID uuid.UUID, price, baseCoins, bonusCoins int64, packageID, description string) (*models.WalletTransaction, *models.WalletTransaction, error) {
	args := m.Called(ctx, userID, price, baseCoins, bonusCoins, packageID, description)
	if args.Get(0) == nil {
		return nil, nil, args.Error(2)
	}
	return args.Get(0).(*models.WalletTransaction), args.Get(1).(*models.WalletTransaction), args.Error(2)
}

func (m *mockWalletStore) SetTransactionPin(ctx context.Context, userID uuid.UUID, pinHash string) error {
	args := m.Called(ctx, userID, pinHash)
	return args.Error(0)
}

func (m *mockWalletStore) UpdateBankAccount(ctx context.Context, userID uuid.UUID, bankName, accountNumber, accountName string) error {
	args := m.Called(ctx, userID, bankName, accountNumber, accountName)
	return args.Error(0)
}

func (m *mockWalletStore) SetRequire2FA(ctx context.Context, userID uuid.UUID, enabled bool) error {
	args := m.Called(ctx, userID, enabled)
	return args.Error(0)
}

func (m *mockWalletStore) SetStatus(ctx context.Context, userID uuid.UUID, status string) error {
	args := m.Called(ctx, userID, status)
	return args.Error(0)
}

func (m *mockWalletStore) GlobalStats(ctx context.Context) (*repository.WalletGlobalStats, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.WalletGlobalStats), args.Error(1)
}

type mockLedgerReader struct {
	mock.Mock
}

func (m *mockLedgerReader) List(ctx context.Context, walletID uuid.UUID, filter repository.TransactionFilter) ([]models.WalletTransaction, error) {
	args := m.Called(ctx, walletID, filter)
	return args.Get(0).([]models.WalletTransaction), args.Error(1)
}

func (m *mockLedgerReader) GetByID(ctx context.Context, id uuid.UUID) (*models.WalletTransaction, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

func (m *mockLedgerReader) Sums(ctx context.Context, walletID uuid.UUID) (*repository.LedgerSums, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.LedgerSums), args.Error(1)
}

func newWalletService(store *mockWalletStore, ledger *mockLedgerReader) *WalletService {
	return NewWalletService(store, ledger, 100)
}

func TestWalletService_ProcessDeposit(t *testing.T) {
	store := new(mockWalletStore)
	svc := newWalletService(store, new(mockLedgerReader))
	ctx := context.Background()
	userID := uuid.New()

	expected := &models.WalletTransaction{ID: uuid.New()}
	store.On("DepositCash", ctx, userID, int64(500000), "PAYMENT", "pay-1", mock.AnythingOfType("string")).Return(expected, nil)

	entry, duplicate, err := svc.ProcessDeposit(ctx, userID, 500000, "pay-1")
	assert.NoError(t, err)
	assert.False(t, duplicate)
	assert.Equal(t, expected, entry)
	store.AssertExpectations(t)
}

func TestWalletService_ProcessDeposit_Duplicate(t *testing.T) {
	store := new(mockWalletStore)
	svc := newWalletService(store, new(mockLedgerReader))
	ctx := context.Background()
	userID := uuid.New()

	prior := &models.WalletTransaction{ID: uuid.New()}
	store.On("DepositCash", ctx, userID, int64(500000), "PAYMENT", "pay-1", mock.AnythingOfType("string")).
		Return(prior, repository.ErrDuplicateReference)

	entry, duplicate, err := svc.ProcessDeposit(ctx, userID, 500000, "pay-1")
	assert.NoError(t, err)
	assert.True(t, duplicate)
	assert.Equal(t, prior, entry)
}

func TestWalletService_ProcessDeposit_Invalid(t *testing.T) {
	svc := newWalletService(new(mockWalletStore), new(mockLedgerReader))
	ctx := context.Background()

	_, _, err := svc.ProcessDeposit(ctx, uuid.New(), 0, "pay-1")
	assert.ErrorIs(t, err, models.ErrInvalidAmount)

	_, _, err = svc.ProcessDeposit(ctx, uuid.New(), 1000, "")
	assert.Error(t, err)
}

func TestWalletService_PurchaseCoins_Package(t *testing.T) {
	store := new(mockWalletStore)
	svc := newWalletService(store, new(mockLedgerReader))
	ctx := context.Background()
	userID := uuid.New()

	wallet := &models.Wallet{UserID: userID, CoinBalance: 575}
	store.On("PurchaseCoins", ctx, userID, int64(40000), int64(500), int64(75), "popular", mock.AnythingOfType("string")).
		Return(&models.WalletTransaction{}, &models.WalletTransaction{}, nil)
	store.On("GetByUserID", ctx, userID).Return(wallet, nil)

	got, err := svc.PurchaseCoins(ctx, userID, 0, "popular")
	assert.NoError(t, err)
	assert.Equal(t, wallet, got)
	store.AssertExpectations(t)
}

func TestWalletService_PurchaseCoins_Custom(t *testing.T) {
	store := new(mockWalletStore)
	svc := newWalletService(store, new(mockLedgerReader))
	ctx := context.Background()
	userID := uuid.New()

	// 200 монет по 100 VND без бонуса
	store.On("PurchaseCoins", ctx, userID, int64(20000), int64(200), int64(0), "custom", mock.AnythingOfType("string")).
		Return(&models.WalletTransaction{}, &models.WalletTransaction{}, nil)
	store.On("GetByUserID", ctx, userID).Return(&models.Wallet{}, nil)

	_, err := svc.PurchaseCoins(ctx, userID, 200, "")
	assert.NoError(t, err)
	store.AssertExpectations(t)
}

func TestWalletService_PurchaseCoins_UnknownPackage(t *testing.T) {
	svc := newWalletService(new(mockWalletStore), new(mockLedgerReader))

	_, err := svc.PurchaseCoins(context.Background(), uuid.New(), 0, "nonexistent")
	assert.ErrorIs(t, err, ErrUnknownCoinPackage)
}

func TestWalletService_SetTransactionPin_Validation(t *testing.T) {
	svc := newWalletService(new(mockWalletStore), new(mockLedgerReader))
	ctx := context.Background()

	assert.Error(t, svc.SetTransactionPin(ctx, uuid.New(), "12"))
	assert.Error(t, svc.SetTransactionPin(ctx, uuid.New(), "1234567"))
	assert.Error(t, svc.SetTransactionPin(ctx, uuid.New(), "12ab"))
}

func TestWalletService_VerifyPin(t *testing.T) {
	svc := newWalletService(new(mockWalletStore), new(mockLedgerReader))

	hash, err := bcrypt.GenerateFromPassword([]byte("1234"), bcrypt.MinCost)
	assert.NoError(t, err)
	hashStr := string(hash)
	wallet := &models.Wallet{TransactionPin: &hashStr}

	assert.NoError(t, svc.VerifyPin(wallet, "1234"))
	assert.ErrorIs(t, svc.VerifyPin(wallet, "0000"), ErrInvalidPin)
	assert.ErrorIs(t, svc.VerifyPin(&models.Wallet{}, "1234"), ErrPinNotSet)
}

func TestWalletService_AwardCoins_TypeGuard(t *testing.T) {
	store := new(mockWalletStore)
	svc := newWalletService(store, new(mockLedgerReader))
	ctx := context.Background()
	userID := uuid.New()

	_, err := svc.AwardCoins(ctx, userID, 100, models.TransactionTypeSpendCoins, "ADMIN", "x", "")
	assert.Error(t, err)

	store.On("AddCoins", ctx, userID, int64(100), models.TransactionTypeBonusCoins, "ADMIN", "promo-1", "акция").
		Return(&models.WalletTransaction{}, nil)
	_, err = svc.AwardCoins(ctx, userID, 100, models.TransactionTypeBonusCoins, "ADMIN", "promo-1", "акция")
	assert.NoError(t, err)
}

func TestWalletService_Reconcile(t *testing.T) {
	store := new(mockWalletStore)
	ledger := new(mockLedgerReader)
	svc := newWalletService(store, ledger)
	ctx := context.Background()
	userID := uuid.New()

	wallet := &models.Wallet{
		ID:             uuid.New(),
		UserID:         userID,
		CashBalance:    100000,
		CoinBalance:    50,
		TotalDeposited: 100000,
	}
	store.On("GetByUserID", ctx, userID).Return(wallet, nil)
	ledger.On("Sums", ctx, wallet.ID).Return(&repository.LedgerSums{
		CashBalance:    100000,
		CoinBalance:    50,
		TotalDeposited: 100000,
	}, nil)

	report, err := svc.Reconcile(ctx, userID)
	assert.NoError(t, err)
	assert.True(t, report.Consistent)
}

func TestWalletService_Reconcile_Mismatch(t *testing.T) {
	store := new(mockWalletStore)
	ledger := new(mockLedgerReader)
	svc := newWalletService(store, ledger)
	ctx := context.Background()
	userID := uuid.New()

	wallet := &models.Wallet{ID: uuid.New(), UserID: userID, CashBalance: 100000}
	store.On("GetByUserID", ctx, userID).Return(wallet, nil)
	ledger.On("Sums", ctx, wallet.ID).Return(&repository.LedgerSums{CashBalance: 90000}, nil)

	report, err := svc.Reconcile(ctx, userID)
	assert.ErrorIs(t, err, ErrWalletMismatch)
	assert.NotNil(t, report)
	assert.False(t, report.Consistent)
}

func TestWalletService_Statistics(t *testing.T) {
	wallets := new(mockWalletStore)
	svc := newWalletService(wallets, new(mockLedgerReader))
	ctx := context.Background()
	userID := uuid.New()

	wallets.On("GetOrCreate", ctx, userID).Return(&models.Wallet{
		UserID:            userID,
		CashBalance:       1000000,
		FrozenCashBalance: 300000,
		CoinBalance:       150,
		TotalDeposited:    2000000,
		TotalWithdrawn:    700000,
		Status:            models.WalletStatusActive,
	}, nil)

	stats, err := svc.Statistics(ctx, userID)
	assert.NoError(t, err)
	assert.Equal(t, int64(700000), stats.AvailableCash)
	assert.Equal(t, int64(2000000), stats.TotalDeposited)
	assert.Equal(t, int64(150), stats.CoinBalance)
}
