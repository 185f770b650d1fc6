package models

import (
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func pendingRequest() *WithdrawalRequest {
	return &WithdrawalRequest{
		ID:          uuid.New(),
		RequestCode: GenerateRequestCode(),
		Status:      WithdrawalStatusPending,
	}
}

func TestWithdrawalRequest_ApproveFlow(t *testing.T) {
	r := pendingRequest()
	adminID := uuid.New()

	assert.NoError(t, r.Approve(adminID, "проверено"))
	assert.Equal(t, WithdrawalStatusApproved, r.Status)
	assert.Equal(t, adminID, *r.ApprovedBy)
	assert.NotNil(t, r.ApprovedAt)

	assert.NoError(t, r.MarkProcessing())
	assert.Equal(t, WithdrawalStatusProcessing, r.Status)

	assert.NoError(t, r.Complete("BANK-123"))
	assert.Equal(t, WithdrawalStatusCompleted, r.Status)
	assert.Equal(t, "BANK-123", *r.BankTransactionID)
	assert.NotNil(t, r.CompletedAt)
	assert.True(t, r.IsFinal())
}

func TestWithdrawalRequest_RejectOnlyPending(t *testing.T) {
	r := pendingRequest()
	adminID := uuid.New()

	assert.NoError(t, r.Approve(adminID, ""))
	assert.ErrorIs(t, r.Reject(adminID, "нет"), ErrInvalidStatusTransition)

	r = pendingRequest()
	assert.NoError(t, r.Reject(adminID, "подозрительная операция"))
	assert.Equal(t, WithdrawalStatusRejected, r.Status)
	assert.Equal(t, "подозрительная операция", *r.RejectionReason)
	assert.True(t, r.IsFinal())
}

func TestWithdrawalRequest_CancelWindow(t *testing.T) {
	r := pendingRequest()
	assert.True(t, r.CanCancel())
	assert.NoError(t, r.Cancel())
	assert.Equal(t, WithdrawalStatusCancelled, r.Status)

	r = pendingRequest()
	assert.NoError(t, r.Approve(uuid.New(), ""))
	assert.True(t, r.CanCancel())
	assert.NoError(t, r.Cancel())

	r = pendingRequest()
	assert.NoError(t, r.Approve(uuid.New(), ""))
	assert.NoError(t, r.MarkProcessing())
	assert.False(t, r.CanCancel())
	assert.ErrorIs(t, r.Cancel(), ErrInvalidStatusTransition)
}

func TestWithdrawalRequest_TerminalIsExclusive(t *testing.T) {
	r := pendingRequest()
	assert.NoError(t, r.Cancel())

	adminID := uuid.New()
	assert.ErrorIs(t, r.Approve(adminID, ""), ErrInvalidStatusTransition)
	assert.ErrorIs(t, r.Reject(adminID, "x"), ErrInvalidStatusTransition)
	assert.ErrorIs(t, r.MarkProcessing(), ErrInvalidStatusTransition)
	assert.ErrorIs(t, r.Complete("x"), ErrInvalidStatusTransition)
	assert.ErrorIs(t, r.Expire(), ErrInvalidStatusTransition)
	assert.ErrorIs(t, r.Fail("x"), ErrInvalidStatusTransition)
	assert.Equal(t, WithdrawalStatusCancelled, r.Status)
}

func TestWithdrawalRequest_RetryAndFail(t *testing.T) {
	r := pendingRequest()
	assert.NoError(t, r.Approve(uuid.New(), ""))
	assert.NoError(t, r.MarkProcessing())

	assert.NoError(t, r.RecordRetry("таймаут банка"))
	assert.Equal(t, WithdrawalStatusProcessing, r.Status)
	assert.Equal(t, 1, r.RetryCount)
	assert.NotNil(t, r.LastRetryAt)

	assert.NoError(t, r.RecordRetry("таймаут банка"))
	assert.Equal(t, 2, r.RetryCount)

	assert.NoError(t, r.Fail("исчерпан лимит попыток"))
	assert.Equal(t, WithdrawalStatusFailed, r.Status)
	assert.True(t, r.IsFinal())
}

func TestWithdrawalRequest_Expire(t *testing.T) {
	r := pendingRequest()
	past := time.Now().Add(-time.Hour)
	r.ExpiresAt = &past

	assert.True(t, r.IsExpired(time.Now()))
	assert.NoError(t, r.Expire())
	assert.Equal(t, WithdrawalStatusExpired, r.Status)

	// Одобренная заявка не истекает
	r2 := pendingRequest()
	assert.NoError(t, r2.Approve(uuid.New(), ""))
	assert.ErrorIs(t, r2.Expire(), ErrInvalidStatusTransition)
}

func TestGenerateRequestCode_Format(t *testing.T) {
	code := GenerateRequestCode()
	assert.True(t, strings.HasPrefix(code, "WD-"))
	assert.Len(t, strings.Split(code, "-"), 3)
}

func TestCalculatePriority(t *testing.T) {
	assert.Equal(t, 1, CalculatePriority(10_000_000))
	assert.Equal(t, 2, CalculatePriority(5_000_000))
	assert.Equal(t, 3, CalculatePriority(1_000_000))
	assert.Equal(t, 4, CalculatePriority(500_000))
	assert.Equal(t, 5, CalculatePriority(499_999))
	assert.Equal(t, 5, CalculatePriority(100_000))
}
