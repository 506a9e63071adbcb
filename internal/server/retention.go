package server

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// CleanupVisitors drops visitor records older than the retention period.
func (s *Server) CleanupVisitors(ctx context.Context) (int64, error) {
	before := s.clock.Now().Add(-s.cfg.VisitorRetention)
	n, err := s.store.CleanupVisitors(ctx, before)
	if err != nil {
		s.log.Error("privacy cleanup failed", zap.Error(err))
		return 0, err
	}
	if n > 0 {
		s.log.Info("privacy cleanup removed visitor records",
			zap.Int64("removed", n),
			zap.Duration("retention", s.cfg.VisitorRetention),
		)
	}
	return n, nil
}

// ScheduleCleanup registers the retention job on CLEANUP_SCHEDULE. The
// caller starts and stops the returned scheduler.
func (s *Server) ScheduleCleanup() (*cron.Cron, error) {
	c := cron.New()
	_, err := c.AddFunc(s.cfg.CleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()
		_, _ = s.CleanupVisitors(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling cleanup %q: %w", s.cfg.CleanupSchedule, err)
	}
	return c, nil
}
