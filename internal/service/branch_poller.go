package service

import (
	"context"
	"fmt"
	"time"

	"story-player/internal/metrics"
	"story-player/internal/models"

	"go.uber.org/zap"
)

const (
	DefaultPollInterval    = time.Second
	DefaultPollMaxAttempts = 90
)

// BranchFetcher - часть клиента бэкенда, нужная поллеру.
type BranchFetcher interface {
	PollBranches(ctx context.Context, sessionID string, checkpoint int) (*models.PollResult, error)
}

// BranchPoller опрашивает бэкенд с фиксированным интервалом, пока варианты
// для контрольной точки не будут готовы. Число попыток ограничено.
type BranchPoller struct {
	fetcher     BranchFetcher
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// NewBranchPoller создает поллер. Нулевые interval/maxAttempts заменяются значениями по умолчанию.
func NewBranchPoller(fetcher BranchFetcher, interval time.Duration, maxAttempts int, logger *zap.Logger) *BranchPoller {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = DefaultPollMaxAttempts
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BranchPoller{
		fetcher:     fetcher,
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger.Named("BranchPoller"),
	}
}

// Wait блокируется до готовности вариантов, отмены ctx или исчерпания попыток.
// Первая попытка делается через interval после вызова: ветки только что запрошены.
// Неудачный опрос считается попыткой и не прерывает ожидание.
func (p *BranchPoller) Wait(ctx context.Context, sessionID string, checkpoint int) ([]models.ChoiceOption, error) {
	log := p.logger.With(zap.String("sessionID", sessionID), zap.Int("checkpoint", checkpoint))
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for attempt := 1; attempt <= p.maxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			log.Debug("Branch polling cancelled", zap.Int("attempt", attempt))
			return nil, ctx.Err()
		case <-ticker.C:
		}

		res, err := p.fetcher.PollBranches(ctx, sessionID, checkpoint)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			metrics.IncBranchPoll("error")
			log.Warn("Branch poll failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if res.Ready {
			metrics.IncBranchPoll("ready")
			log.Debug("Branches ready", zap.Int("attempt", attempt))
			return res.Options, nil
		}
		metrics.IncBranchPoll("pending")
	}

	metrics.IncBranchPollStalled()
	log.Warn("Branch generation stalled", zap.Int("maxAttempts", p.maxAttempts), zap.Duration("interval", p.interval))
	return nil, fmt.Errorf("%w: no branches for checkpoint %d after %d attempts", models.ErrGenerationStalled, checkpoint, p.maxAttempts)
}
