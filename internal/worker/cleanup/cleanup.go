// Package cleanup は期限切れセッションの定期削除ジョブを提供する。
// 期限切れのセッションは参照時に無効として扱われるため、
// このジョブはテーブルの肥大化を防ぐためだけに実行する。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// DefaultInterval は削除ジョブの既定の実行間隔。
const DefaultInterval = time.Hour

// SessionPurger は期限切れセッションを一括削除するインターフェース。
// repository.SessionRepositoryが満たす。
type SessionPurger interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// PurgeRecorder は削除件数を記録するインターフェース。
type PurgeRecorder interface {
	RecordSessionsPurged(count int64)
}

// SessionPurgeJob は期限切れセッションの削除ジョブ。
// 冪等で、削除対象がない場合もエラーにならない。
type SessionPurgeJob struct {
	purger   SessionPurger
	logger   *slog.Logger
	recorder PurgeRecorder
	Interval time.Duration
}

// NewSessionPurgeJob は新しいSessionPurgeJobを生成する。
// recorderはnilでもよい。
func NewSessionPurgeJob(purger SessionPurger, logger *slog.Logger, recorder PurgeRecorder) *SessionPurgeJob {
	return &SessionPurgeJob{
		purger:   purger,
		logger:   logger,
		recorder: recorder,
		Interval: DefaultInterval,
	}
}

// Run は期限切れセッションを1回削除する。
func (j *SessionPurgeJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.purger.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッション削除ジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}

	if j.recorder != nil {
		j.recorder.RecordSessionsPurged(deleted)
	}

	j.logger.Info("セッション削除ジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// Start は起動直後に1回実行し、その後Intervalごとに実行する。
// ctxがキャンセルされるまでブロックする。個々の実行の失敗では停止しない。
func (j *SessionPurgeJob) Start(ctx context.Context) {
	interval := j.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}

	_ = j.Run(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("セッション削除ジョブを停止しました")
			return
		case <-ticker.C:
			_ = j.Run(ctx)
		}
	}
}
