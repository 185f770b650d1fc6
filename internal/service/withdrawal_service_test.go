package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/wallet-backend/internal/bank"
	"github.com/ignatzorin/wallet-backend/internal/models"
	"github.com/ignatzorin/wallet-backend/internal/repository"
)

type mockWithdrawalStore struct {
	mock.Mock
}

func (m *mockWithdrawalStore) Submit(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error) {
	args := m.Called(ctx, userID)
	return args.Int(0), args.Error(1)
}

func (m *mockWithdrawalStore) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	args := m.Called(ctx, userID, limit, offset)
	return args.Get(0).([]models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) ListAll(ctx context.Context, filter repository.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRequest, error) {
	args := m.Called(ctx, now, limit)
	return args.Get(0).([]models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) Approve(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id, adminID, notes)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id, adminID, reason)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) Cancel(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) MarkProcessing(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) Complete(ctx context.Context, id uuid.UUID, bankTransactionID string) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id, bankTransactionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id, errMsg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) Fail(ctx context.Context, id uuid.UUID, errMsg string) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id, errMsg)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

func (m *mockWithdrawalStore) Expire(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WithdrawalRequest), args.Error(1)
}

type mockGateway struct {
	mock.Mock
}

func (m *mockGateway) Transfer(ctx context.Context, req bank.TransferRequest) (*bank.TransferResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*bank.TransferResult), args.Error(1)
}

func testLimits() WithdrawalLimits {
	return WithdrawalLimits{
		MinAmount:  100000,
		MaxAmount:  100000000,
		FeePercent: 1,
		FeeMin:     5000,
		FeeMax:     50000,
		MaxPending: 3,
		TTL:        72 * time.Hour,
		RetryLimit: 3,
	}
}

func newWithdrawalService(requests *mockWithdrawalStore, wallets *mockWalletStore, gateway *mockGateway) *WithdrawalService {
	pins := newWalletService(wallets, new(mockLedgerReader))
	return NewWithdrawalService(requests, wallets, pins, gateway, testLimits())
}

func TestWithdrawalService_CalculateFee(t *testing.T) {
	svc := newWithdrawalService(new(mockWithdrawalStore), new(mockWalletStore), new(mockGateway))

	// 1% от 500000 = 5000, равен минимуму
	assert.Equal(t, int64(5000), svc.CalculateFee(500000))
	// 1% от 200000 = 2000, поднимается до минимума
	assert.Equal(t, int64(5000), svc.CalculateFee(200000))
	// 1% от 10000000 = 100000, срезается до максимума
	assert.Equal(t, int64(50000), svc.CalculateFee(10000000))
	// Округление вверх: 1% от 123456 = 1234.56 -> 1235 -> минимум 5000
	assert.Equal(t, int64(5000), svc.CalculateFee(123456))
	// 1% от 2345600 = 23456, в пределах
	assert.Equal(t, int64(23456), svc.CalculateFee(2345600))
}

func TestWithdrawalService_Submit(t *testing.T) {
	requests := new(mockWithdrawalStore)
	wallets := new(mockWalletStore)
	svc := newWithdrawalService(requests, wallets, new(mockGateway))
	ctx := context.Background()
	userID := uuid.New()

	requests.On("CountActiveByUser", ctx, userID).Return(0, nil)
	wallets.On("GetOrCreate", ctx, userID).Return(&models.Wallet{
		UserID:      userID,
		CashBalance: 1000000,
		Status:      models.WalletStatusActive,
	}, nil)

	requests.On("Submit", ctx, mock.AnythingOfType("*models.WithdrawalRequest")).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(*models.WithdrawalRequest)
			assert.Equal(t, int64(500000), req.Amount)
			assert.Equal(t, int64(5000), req.Fee)
			assert.Equal(t, int64(495000), req.NetAmount)
			assert.Equal(t, 4, req.Priority)
			assert.NotNil(t, req.ExpiresAt)
		}).
		Return(&models.WithdrawalRequest{RequestCode: "WD-1-0001", Amount: 500000}, nil)

	saved, err := svc.Submit(ctx, userID, SubmitParams{
		Amount:            500000,
		BankName:          "Vietcombank",
		BankAccountNumber: "0123456789",
		BankAccountName:   "NGUYEN VAN A",
	})
	assert.NoError(t, err)
	assert.Equal(t, "WD-1-0001", saved.RequestCode)
	requests.AssertExpectations(t)
}

func TestWithdrawalService_Submit_AmountLimits(t *testing.T) {
	svc := newWithdrawalService(new(mockWithdrawalStore), new(mockWalletStore), new(mockGateway))
	ctx := context.Background()

	_, err := svc.Submit(ctx, uuid.New(), SubmitParams{Amount: 99999})
	assert.ErrorIs(t, err, ErrAmountBelowMinimum)

	_, err = svc.Submit(ctx, uuid.New(), SubmitParams{Amount: 100000001})
	assert.ErrorIs(t, err, ErrAmountAboveMaximum)
}

func TestWithdrawalService_Submit_TooManyPending(t *testing.T) {
	requests := new(mockWithdrawalStore)
	svc := newWithdrawalService(requests, new(mockWalletStore), new(mockGateway))
	ctx := context.Background()
	userID := uuid.New()

	requests.On("CountActiveByUser", ctx, userID).Return(3, nil)

	_, err := svc.Submit(ctx, userID, SubmitParams{Amount: 500000})
	assert.ErrorIs(t, err, ErrTooManyPending)
}

func TestWithdrawalService_Submit_FallbackBankDetails(t *testing.T) {
	requests := new(mockWithdrawalStore)
	wallets := new(mockWalletStore)
	svc := newWithdrawalService(requests, wallets, new(mockGateway))
	ctx := context.Background()
	userID := uuid.New()

	bankName := "Techcombank"
	accountNumber := "9876543210"
	accountName := "TRAN THI B"
	requests.On("CountActiveByUser", ctx, userID).Return(0, nil)
	wallets.On("GetOrCreate", ctx, userID).Return(&models.Wallet{
		UserID:            userID,
		Status:            models.WalletStatusActive,
		BankName:          &bankName,
		BankAccountNumber: &accountNumber,
		BankAccountName:   &accountName,
	}, nil)
	requests.On("Submit", ctx, mock.AnythingOfType("*models.WithdrawalRequest")).
		Run(func(args mock.Arguments) {
			req := args.Get(1).(*models.WithdrawalRequest)
			assert.Equal(t, "Techcombank", req.BankName)
			assert.Equal(t, "9876543210", req.BankAccountNumber)
		}).
		Return(&models.WithdrawalRequest{}, nil)

	_, err := svc.Submit(ctx, userID, SubmitParams{Amount: 500000})
	assert.NoError(t, err)
}

func TestWithdrawalService_Submit_InvalidAccountNumber(t *testing.T) {
	requests := new(mockWithdrawalStore)
	wallets := new(mockWalletStore)
	svc := newWithdrawalService(requests, wallets, new(mockGateway))
	ctx := context.Background()
	userID := uuid.New()

	requests.On("CountActiveByUser", ctx, userID).Return(0, nil)
	wallets.On("GetOrCreate", ctx, userID).Return(&models.Wallet{
		UserID: userID,
		Status: models.WalletStatusActive,
	}, nil)

	_, err := svc.Submit(ctx, userID, SubmitParams{
		Amount:            500000,
		BankName:          "Vietcombank",
		BankAccountNumber: "not-a-number",
		BankAccountName:   "NGUYEN VAN A",
	})
	assert.ErrorIs(t, err, ErrInvalidBankDetails)
}

func TestWithdrawalService_Submit_NoBankDetails(t *testing.T) {
	requests := new(mockWithdrawalStore)
	wallets := new(mockWalletStore)
	svc := newWithdrawalService(requests, wallets, new(mockGateway))
	ctx := context.Background()
	userID := uuid.New()

	requests.On("CountActiveByUser", ctx, userID).Return(0, nil)
	wallets.On("GetOrCreate", ctx, userID).Return(&models.Wallet{
		UserID: userID,
		Status: models.WalletStatusActive,
	}, nil)

	_, err := svc.Submit(ctx, userID, SubmitParams{Amount: 500000})
	assert.ErrorIs(t, err, ErrBankDetailsRequired)
}

func TestWithdrawalService_Submit_2FARequired(t *testing.T) {
	requests := new(mockWithdrawalStore)
	wallets := new(mockWalletStore)
	svc := newWithdrawalService(requests, wallets, new(mockGateway))
	ctx := context.Background()
	userID := uuid.New()

	requests.On("CountActiveByUser", ctx, userID).Return(0, nil)
	wallets.On("GetOrCreate", ctx, userID).Return(&models.Wallet{
		UserID:     userID,
		Status:     models.WalletStatusActive,
		Require2FA: true,
	}, nil)

	_, err := svc.Submit(ctx, userID, SubmitParams{Amount: 500000})
	assert.ErrorIs(t, err, ErrTwoFARequired)
}

func TestWithdrawalService_Cancel_OwnerOnly(t *testing.T) {
	requests := new(mockWithdrawalStore)
	svc := newWithdrawalService(requests, new(mockWalletStore), new(mockGateway))
	ctx := context.Background()
	id := uuid.New()
	owner := uuid.New()

	requests.On("GetByID", ctx, id).Return(&models.WithdrawalRequest{ID: id, UserID: owner}, nil)

	_, err := svc.Cancel(ctx, id, uuid.New())
	assert.ErrorIs(t, err, ErrNotRequestOwner)
}

func TestWithdrawalService_Process_Success(t *testing.T) {
	requests := new(mockWithdrawalStore)
	gateway := new(mockGateway)
	svc := newWithdrawalService(requests, new(mockWalletStore), gateway)
	ctx := context.Background()
	id := uuid.New()

	processing := &models.WithdrawalRequest{
		ID:                id,
		RequestCode:       "WD-1-0001",
		Status:            models.WithdrawalStatusProcessing,
		Amount:            500000,
		NetAmount:         495000,
		BankName:          "Vietcombank",
		BankAccountNumber: "0123456789",
		BankAccountName:   "NGUYEN VAN A",
	}
	requests.On("MarkProcessing", ctx, id).Return(processing, nil)
	gateway.On("Transfer", ctx, mock.MatchedBy(func(req bank.TransferRequest) bool {
		return req.RequestCode == "WD-1-0001" && req.Amount == 495000
	})).Return(&bank.TransferResult{TransactionID: "BANK-42", Status: "SUCCESS"}, nil)
	requests.On("Complete", ctx, id, "BANK-42").Return(&models.WithdrawalRequest{
		ID:     id,
		Status: models.WithdrawalStatusCompleted,
	}, nil)

	completed, err := svc.Process(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, completed.Status)
	requests.AssertExpectations(t)
	gateway.AssertExpectations(t)
}

func TestWithdrawalService_Process_RetryThenFail(t *testing.T) {
	requests := new(mockWithdrawalStore)
	gateway := new(mockGateway)
	svc := newWithdrawalService(requests, new(mockWalletStore), gateway)
	ctx := context.Background()
	id := uuid.New()

	processing := &models.WithdrawalRequest{
		ID:          id,
		RequestCode: "WD-1-0002",
		Status:      models.WithdrawalStatusProcessing,
		NetAmount:   495000,
	}
	transferErr := errors.New("bank: код ответа 502")
	requests.On("MarkProcessing", ctx, id).Return(processing, nil)
	gateway.On("Transfer", ctx, mock.Anything).Return(nil, transferErr)

	// Первая попытка: счётчик меньше лимита, заявка остаётся в PROCESSING
	requests.On("RecordRetry", ctx, id, transferErr.Error()).
		Return(&models.WithdrawalRequest{ID: id, Status: models.WithdrawalStatusProcessing, RetryCount: 1}, nil).Once()

	updated, err := svc.Process(ctx, id)
	assert.Error(t, err)
	assert.Equal(t, 1, updated.RetryCount)

	// Третья попытка исчерпывает лимит: заявка переводится в FAILED
	requests.On("RecordRetry", ctx, id, transferErr.Error()).
		Return(&models.WithdrawalRequest{ID: id, Status: models.WithdrawalStatusProcessing, RetryCount: 3}, nil).Once()
	requests.On("Fail", ctx, id, mock.AnythingOfType("string")).
		Return(&models.WithdrawalRequest{ID: id, Status: models.WithdrawalStatusFailed}, nil)

	failed, err := svc.Process(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusFailed, failed.Status)
}

func TestWithdrawalService_Process_ResumeProcessing(t *testing.T) {
	requests := new(mockWithdrawalStore)
	gateway := new(mockGateway)
	svc := newWithdrawalService(requests, new(mockWalletStore), gateway)
	ctx := context.Background()
	id := uuid.New()

	// MarkProcessing отклонён: заявка уже в PROCESSING после прошлой попытки
	requests.On("MarkProcessing", ctx, id).Return(nil, models.ErrInvalidStatusTransition)
	requests.On("GetByID", ctx, id).Return(&models.WithdrawalRequest{
		ID:          id,
		RequestCode: "WD-1-0003",
		Status:      models.WithdrawalStatusProcessing,
		NetAmount:   100000,
	}, nil)
	gateway.On("Transfer", ctx, mock.Anything).Return(&bank.TransferResult{TransactionID: "BANK-77"}, nil)
	requests.On("Complete", ctx, id, "BANK-77").Return(&models.WithdrawalRequest{
		ID:     id,
		Status: models.WithdrawalStatusCompleted,
	}, nil)

	completed, err := svc.Process(ctx, id)
	assert.NoError(t, err)
	assert.Equal(t, models.WithdrawalStatusCompleted, completed.Status)
}

func TestWithdrawalService_Reject_RequiresReason(t *testing.T) {
	svc := newWithdrawalService(new(mockWithdrawalStore), new(mockWalletStore), new(mockGateway))

	_, err := svc.Reject(context.Background(), uuid.New(), uuid.New(), "")
	assert.Error(t, err)
}
