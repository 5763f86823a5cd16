package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/riverqueue/river"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/creator-escrow/internal/logger"
)

const defaultBatch = 100

// AutoReleaseArgs задача периодического автовыпуска.
type AutoReleaseArgs struct {
	Limit int `json:"limit"`
}

func (AutoReleaseArgs) Kind() string { return "escrow.auto_release" }

// Sweeper выпускает средства по бронированиям с истёкшим дедлайном.
type Sweeper interface {
	SweepAutoRelease(ctx context.Context, now time.Time, limit int) (int, error)
}

type AutoReleaseWorker struct {
	river.WorkerDefaults[AutoReleaseArgs]
	sweeper Sweeper
	now     func() time.Time
}

func NewAutoReleaseWorker(sweeper Sweeper) *AutoReleaseWorker {
	return &AutoReleaseWorker{sweeper: sweeper, now: time.Now}
}

func (w *AutoReleaseWorker) Work(ctx context.Context, job *river.Job[AutoReleaseArgs]) error {
	limit := job.Args.Limit
	if limit <= 0 {
		limit = defaultBatch
	}

	released, err := w.sweeper.SweepAutoRelease(ctx, w.now(), limit)
	if err != nil {
		// River повторит задачу; уже выпущенные бронирования повторно не пройдут условие перехода.
		return fmt.Errorf("auto-release sweep: %w", err)
	}
	if released > 0 {
		logger.WithFields(logrus.Fields{"released": released}).Info("auto-release job done")
	}
	return nil
}

// Timeout ограничивает один проход.
func (w *AutoReleaseWorker) Timeout(*river.Job[AutoReleaseArgs]) time.Duration {
	return 2 * time.Minute
}
