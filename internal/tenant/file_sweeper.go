package tenant

import (
	"context"
	"log/slog"
	"time"
)

// ExpiredFileDeleter is the slice of FileStore the sweeper needs.
type ExpiredFileDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// FileSweeper periodically removes expired file records. It replaces
// the per-request probabilistic cleanup a web framework would do with
// a background ticker.
type FileSweeper struct {
	store    ExpiredFileDeleter
	interval time.Duration
	logger   *slog.Logger
}

func NewFileSweeper(store ExpiredFileDeleter, interval time.Duration, logger *slog.Logger) *FileSweeper {
	if interval <= 0 {
		interval = 15 * time.Minute
	}
	return &FileSweeper{store: store, interval: interval, logger: logger}
}

// Run sweeps until the context is cancelled. One sweep runs
// immediately on start.
func (s *FileSweeper) Run(ctx context.Context) {
	s.sweep(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *FileSweeper) sweep(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	n, err := s.store.DeleteExpired(ctx)
	if err != nil {
		s.logger.Error("sweeping expired files", "error", err)
		return
	}
	if n > 0 {
		s.logger.Info("expired files removed", "count", n)
	}
}
