package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ignatzorin/wallet-backend/internal/bank"
	"github.com/ignatzorin/wallet-backend/internal/logger"
	"github.com/ignatzorin/wallet-backend/internal/models"
	"github.com/ignatzorin/wallet-backend/internal/repository"
	"github.com/ignatzorin/wallet-backend/internal/validation"
)

var (
	ErrAmountBelowMinimum  = errors.New("сумма вывода меньше минимальной")
	ErrAmountAboveMaximum  = errors.New("сумма вывода больше максимальной")
	ErrTooManyPending      = errors.New("превышен лимит активных заявок на вывод")
	ErrBankDetailsRequired = errors.New("банковские реквизиты не указаны")
	ErrInvalidBankDetails  = errors.New("некорректные банковские реквизиты")
	ErrTwoFARequired       = errors.New("требуется подтверждение 2FA")
	ErrNotRequestOwner     = errors.New("заявка принадлежит другому пользователю")
)

// WithdrawalLimits - правила вывода средств.
type WithdrawalLimits struct {
	MinAmount  int64
	MaxAmount  int64
	FeePercent int64
	FeeMin     int64
	FeeMax     int64
	MaxPending int
	TTL        time.Duration
	RetryLimit int
}

// WithdrawalStore - операции хранилища заявок, нужные сервису.
type WithdrawalStore interface {
	Submit(ctx context.Context, req *models.WithdrawalRequest) (*models.WithdrawalRequest, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	CountActiveByUser(ctx context.Context, userID uuid.UUID) (int, error)
	ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error)
	ListAll(ctx context.Context, filter repository.WithdrawalFilter) ([]models.WithdrawalRequest, error)
	ListExpired(ctx context.Context, now time.Time, limit int) ([]models.WithdrawalRequest, error)
	Approve(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.WithdrawalRequest, error)
	Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.WithdrawalRequest, error)
	Cancel(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	MarkProcessing(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
	Complete(ctx context.Context, id uuid.UUID, bankTransactionID string) (*models.WithdrawalRequest, error)
	RecordRetry(ctx context.Context, id uuid.UUID, errMsg string) (*models.WithdrawalRequest, error)
	Fail(ctx context.Context, id uuid.UUID, errMsg string) (*models.WithdrawalRequest, error)
	Expire(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error)
}

// WithdrawalService управляет жизненным циклом заявок на вывод средств.
type WithdrawalService struct {
	requests WithdrawalStore
	wallets  WalletStore
	pins     *WalletService
	gateway  bank.Gateway
	limits   WithdrawalLimits
}

func NewWithdrawalService(requests WithdrawalStore, wallets WalletStore, pins *WalletService, gateway bank.Gateway, limits WithdrawalLimits) *WithdrawalService {
	return &WithdrawalService{
		requests: requests,
		wallets:  wallets,
		pins:     pins,
		gateway:  gateway,
		limits:   limits,
	}
}

// CalculateFee считает комиссию вывода: процент от суммы с округлением вверх,
// ограниченный минимумом и максимумом.
func (s *WithdrawalService) CalculateFee(amount int64) int64 {
	fee := (amount*s.limits.FeePercent + 99) / 100
	if fee < s.limits.FeeMin {
		fee = s.limits.FeeMin
	}
	if fee > s.limits.FeeMax {
		fee = s.limits.FeeMax
	}
	return fee
}

// SubmitParams - параметры новой заявки на вывод.
type SubmitParams struct {
	Amount            int64
	BankName          string
	BankAccountNumber string
	BankAccountName   string
	BankBranch        string
	UserNotes         string
	Pin               string
	TwoFAVerified     bool
}

// Submit создаёт заявку на вывод: проверяет лимиты, PIN и 2FA,
// замораживает сумму в кошельке.
func (s *WithdrawalService) Submit(ctx context.Context, userID uuid.UUID, params SubmitParams) (*models.WithdrawalRequest, error) {
	if params.Amount < s.limits.MinAmount {
		return nil, ErrAmountBelowMinimum
	}
	if params.Amount > s.limits.MaxAmount {
		return nil, ErrAmountAboveMaximum
	}

	active, err := s.requests.CountActiveByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	if active >= s.limits.MaxPending {
		return nil, ErrTooManyPending
	}

	wallet, err := s.wallets.GetOrCreate(ctx, userID)
	if err != nil {
		return nil, err
	}

	pinVerified := false
	if wallet.TransactionPin != nil {
		if err := s.pins.VerifyPin(wallet, params.Pin); err != nil {
			return nil, err
		}
		pinVerified = true
	}
	if wallet.Require2FA && !params.TwoFAVerified {
		return nil, ErrTwoFARequired
	}

	// Реквизиты из запроса, иначе сохранённые в кошельке.
	bankName := params.BankName
	accountNumber := params.BankAccountNumber
	accountName := params.BankAccountName
	if bankName == "" && wallet.BankName != nil {
		bankName = *wallet.BankName
	}
	if accountNumber == "" && wallet.BankAccountNumber != nil {
		accountNumber = *wallet.BankAccountNumber
	}
	if accountName == "" && wallet.BankAccountName != nil {
		accountName = *wallet.BankAccountName
	}
	if bankName == "" || accountNumber == "" || accountName == "" {
		return nil, ErrBankDetailsRequired
	}
	if err := validation.ValidateBankDetails(bankName, accountNumber, accountName); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBankDetails, err)
	}
	if err := validation.ValidateOptionalNote(params.UserNotes, "комментарий", validation.MaxNotesLength); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBankDetails, err)
	}

	fee := s.CalculateFee(params.Amount)
	expiresAt := time.Now().Add(s.limits.TTL)

	req := &models.WithdrawalRequest{
		RequestCode:       models.GenerateRequestCode(),
		UserID:            userID,
		Amount:            params.Amount,
		Fee:               fee,
		NetAmount:         params.Amount - fee,
		BankName:          bankName,
		BankAccountNumber: accountNumber,
		BankAccountName:   accountName,
		PinVerified:       pinVerified,
		TwoFAVerified:     params.TwoFAVerified,
		Priority:          models.CalculatePriority(params.Amount),
		ExpiresAt:         &expiresAt,
	}
	if params.BankBranch != "" {
		req.BankBranch = &params.BankBranch
	}
	if params.UserNotes != "" {
		req.UserNotes = &params.UserNotes
	}

	saved, err := s.requests.Submit(ctx, req)
	if err != nil {
		return nil, err
	}

	logger.WithComponent("withdrawal").
		WithField("request_code", saved.RequestCode).
		WithField("user_id", userID).
		WithField("amount", saved.Amount).
		Info("Создана заявка на вывод средств")
	return saved, nil
}

// Get возвращает заявку, проверяя принадлежность пользователю.
func (s *WithdrawalService) Get(ctx context.Context, id, userID uuid.UUID) (*models.WithdrawalRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, ErrNotRequestOwner
	}
	return req, nil
}

// GetByID возвращает заявку без проверки владельца, для админки.
func (s *WithdrawalService) GetByID(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	return s.requests.GetByID(ctx, id)
}

// ListByUser возвращает заявки пользователя.
func (s *WithdrawalService) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.WithdrawalRequest, error) {
	return s.requests.ListByUser(ctx, userID, limit, offset)
}

// ListAll возвращает заявки для админки.
func (s *WithdrawalService) ListAll(ctx context.Context, filter repository.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	return s.requests.ListAll(ctx, filter)
}

// Cancel отменяет заявку по инициативе владельца, сумма размораживается.
func (s *WithdrawalService) Cancel(ctx context.Context, id, userID uuid.UUID) (*models.WithdrawalRequest, error) {
	req, err := s.requests.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != userID {
		return nil, ErrNotRequestOwner
	}
	return s.requests.Cancel(ctx, id)
}

// Approve одобряет заявку оператором.
func (s *WithdrawalService) Approve(ctx context.Context, id, adminID uuid.UUID, notes string) (*models.WithdrawalRequest, error) {
	return s.requests.Approve(ctx, id, adminID, notes)
}

// Reject отклоняет заявку оператором, сумма размораживается.
func (s *WithdrawalService) Reject(ctx context.Context, id, adminID uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, fmt.Errorf("withdrawal service: причина отклонения обязательна")
	}
	return s.requests.Reject(ctx, id, adminID, reason)
}

// Process отправляет одобренную заявку в банковский шлюз.
// При успехе заявка завершается, при ошибке фиксируется попытка,
// после исчерпания лимита попыток заявка переводится в FAILED с разморозкой.
func (s *WithdrawalService) Process(ctx context.Context, id uuid.UUID) (*models.WithdrawalRequest, error) {
	req, err := s.requests.MarkProcessing(ctx, id)
	if err != nil {
		if !errors.Is(err, models.ErrInvalidStatusTransition) {
			return nil, err
		}
		// Уже в PROCESSING после неудачной попытки: продолжаем с текущим состоянием.
		req, err = s.requests.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if req.Status != models.WithdrawalStatusProcessing {
			return nil, models.ErrInvalidStatusTransition
		}
	}

	result, transferErr := s.gateway.Transfer(ctx, bank.TransferRequest{
		RequestCode:   req.RequestCode,
		Amount:        req.NetAmount,
		BankName:      req.BankName,
		AccountNumber: req.BankAccountNumber,
		AccountName:   req.BankAccountName,
		Description:   fmt.Sprintf("Вывод средств %s", req.RequestCode),
	})
	if transferErr != nil {
		logger.WithComponent("withdrawal").
			WithField("request_code", req.RequestCode).
			WithError(transferErr).
			Warn("Банковский перевод не выполнен")

		updated, err := s.requests.RecordRetry(ctx, id, transferErr.Error())
		if err != nil {
			return nil, err
		}
		if updated.RetryCount >= s.limits.RetryLimit {
			return s.requests.Fail(ctx, id, fmt.Sprintf("исчерпан лимит попыток: %v", transferErr))
		}
		return updated, transferErr
	}

	completed, err := s.requests.Complete(ctx, id, result.TransactionID)
	if err != nil {
		return nil, err
	}
	logger.WithComponent("withdrawal").
		WithField("request_code", completed.RequestCode).
		WithField("bank_transaction_id", result.TransactionID).
		Info("Вывод средств завершён")
	return completed, nil
}

// Complete фиксирует завершение перевода, выполненного вне шлюза.
func (s *WithdrawalService) Complete(ctx context.Context, id uuid.UUID, bankTransactionID string) (*models.WithdrawalRequest, error) {
	if bankTransactionID == "" {
		return nil, fmt.Errorf("withdrawal service: идентификатор банковской транзакции обязателен")
	}
	return s.requests.Complete(ctx, id, bankTransactionID)
}

// Fail переводит зависшую заявку в FAILED по решению оператора, сумма размораживается.
func (s *WithdrawalService) Fail(ctx context.Context, id uuid.UUID, reason string) (*models.WithdrawalRequest, error) {
	if reason == "" {
		return nil, fmt.Errorf("withdrawal service: причина обязательна")
	}
	return s.requests.Fail(ctx, id, reason)
}
