package jobs

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/logger"
)

// RunTicker запускает автовыпуск по таймеру, когда River недоступен (STORAGE_DRIVER=memory).
// Блокирует до отмены ctx.
func RunTicker(ctx context.Context, sweeper Sweeper, interval time.Duration, batch int) {
	if batch <= 0 {
		batch = defaultBatch
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := sweeper.SweepAutoRelease(ctx, time.Now(), batch); err != nil && ctx.Err() == nil {
				logger.WithFields(logrus.Fields{"error": err.Error()}).Error("auto-release sweep failed")
			}
		}
	}
}
