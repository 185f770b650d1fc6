package service

import (
	"context"
	"time"

	"github.com/ignatzorin/wallet-backend/internal/logger"
)

const sweepBatchSize = 100

// ExpirySweeper периодически находит просроченные PENDING заявки
// и переводит их в EXPIRED с разморозкой средств.
type ExpirySweeper struct {
	requests WithdrawalStore
	interval time.Duration
}

func NewExpirySweeper(requests WithdrawalStore, interval time.Duration) *ExpirySweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &ExpirySweeper{requests: requests, interval: interval}
}

// Run крутит цикл обработки до отмены контекста.
func (s *ExpirySweeper) Run(ctx context.Context) {
	log := logger.WithComponent("expiry_sweeper")
	log.WithField("interval", s.interval.String()).Info("Обработчик просроченных заявок запущен")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Обработчик просроченных заявок остановлен")
			return
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce обрабатывает один проход. Ошибка по отдельной заявке не прерывает
// проход: конкурирующий переход статуса означает, что заявку уже обработали.
func (s *ExpirySweeper) SweepOnce(ctx context.Context) int {
	log := logger.WithComponent("expiry_sweeper")

	expired, err := s.requests.ListExpired(ctx, time.Now(), sweepBatchSize)
	if err != nil {
		log.WithError(err).Error("Не удалось получить просроченные заявки")
		return 0
	}

	processed := 0
	for _, req := range expired {
		if _, err := s.requests.Expire(ctx, req.ID); err != nil {
			log.WithField("request_code", req.RequestCode).
				WithError(err).
				Warn("Не удалось перевести заявку в EXPIRED")
			continue
		}
		processed++
		log.WithField("request_code", req.RequestCode).
			WithField("amount", req.Amount).
			Info("Просроченная заявка закрыта, средства разморожены")
	}
	return processed
}
