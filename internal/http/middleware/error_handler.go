package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/wallet-backend/internal/logger"
	"github.com/ignatzorin/wallet-backend/internal/models"
	"github.com/ignatzorin/wallet-backend/internal/repository"
	"github.com/ignatzorin/wallet-backend/internal/service"
)

// ErrorHandler обрабатывает ошибки централизованно.
// Маскирует внутренние ошибки и возвращает понятные сообщения клиенту.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		// Проверяем, не был ли уже отправлен ответ
		if c.Writer.Written() {
			return
		}

		if len(c.Errors) > 0 {
			err := c.Errors.Last()

			statusCode := http.StatusInternalServerError
			message := "внутренняя ошибка сервера"

			// Логируем ошибку
			if logger.Log != nil {
				logger.Log.WithFields(logrus.Fields{
					"error":  err.Error(),
					"path":   c.Request.URL.Path,
					"method": c.Request.Method,
				}).Error("Request error")
			}

			switch {
			case errors.Is(err.Err, repository.ErrWalletNotFound):
				statusCode = http.StatusNotFound
				message = "кошелёк не найден"
			case errors.Is(err.Err, repository.ErrWithdrawalNotFound):
				statusCode = http.StatusNotFound
				message = "заявка на вывод не найдена"
			case errors.Is(err.Err, repository.ErrTransactionNotFound):
				statusCode = http.StatusNotFound
				message = "транзакция не найдена"
			case errors.Is(err.Err, repository.ErrLockTimeout):
				statusCode = http.StatusServiceUnavailable
				message = "кошелёк занят другой операцией, попробуйте позже"
			case errors.Is(err.Err, models.ErrInvalidStatusTransition):
				statusCode = http.StatusConflict
				message = "недопустимый переход статуса заявки"
			case errors.Is(err.Err, models.ErrInsufficientFunds),
				errors.Is(err.Err, models.ErrInvalidAmount),
				errors.Is(err.Err, models.ErrWalletNotActive),
				errors.Is(err.Err, service.ErrAmountBelowMinimum),
				errors.Is(err.Err, service.ErrAmountAboveMaximum),
				errors.Is(err.Err, service.ErrTooManyPending),
				errors.Is(err.Err, service.ErrBankDetailsRequired),
				errors.Is(err.Err, service.ErrInvalidBankDetails),
				errors.Is(err.Err, service.ErrUnknownCoinPackage):
				statusCode = http.StatusBadRequest
				message = err.Error()
			case errors.Is(err.Err, service.ErrInvalidPin),
				errors.Is(err.Err, service.ErrPinNotSet),
				errors.Is(err.Err, service.ErrTwoFARequired),
				errors.Is(err.Err, service.ErrNotRequestOwner):
				statusCode = http.StatusForbidden
				message = err.Error()
			default:
				if err.Error() != "" {
					// Если ошибка содержит понятное сообщение, используем его,
					// но только если это не внутренняя ошибка
					errStr := err.Error()
					if !containsInternalKeywords(errStr) {
						message = errStr
						if contains(errStr, "неверный") || contains(errStr, "невалид") {
							statusCode = http.StatusBadRequest
						}
					}
				}
			}

			c.JSON(statusCode, gin.H{"error": message})
		}
	}
}

// containsInternalKeywords проверяет, содержит ли строка ключевые слова внутренних ошибок.
func containsInternalKeywords(s string) bool {
	keywords := []string{
		"sql:",
		"database",
		"connection",
		"timeout",
		"internal",
		"panic",
		"runtime",
	}

	for _, keyword := range keywords {
		if contains(s, keyword) {
			return true
		}
	}
	return false
}

// contains проверяет, содержит ли строка подстроку (case-insensitive).
func contains(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}
