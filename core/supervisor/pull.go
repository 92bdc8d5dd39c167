package supervisor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/m3rciful/weatherbot/core/logger"
)

// runPull drops any webhook and long-polls until ctx is done or a poll fails.
// The first successful poll marks the transport healthy.
func (s *Supervisor) runPull(ctx context.Context, healthy func()) error {
	if err := s.opts.Platform.DeleteWebhook(ctx, s.opts.DropPending); err != nil {
		return fmt.Errorf("delete webhook: %w", err)
	}
	logger.LogEvent(ctx, logger.SUP, slog.LevelInfo, "poll.start",
		slog.Duration("timeout", s.opts.PollTimeout),
		slog.Bool("drop_pending", s.opts.DropPending),
	)

	polled := false
	for {
		updates, err := s.opts.Platform.Updates(ctx, s.offset, s.opts.PollTimeout)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("poll: %w", err)
		}
		if !polled {
			polled = true
			healthy()
		}
		for _, u := range updates {
			if u.ID >= s.offset {
				s.offset = u.ID + 1
			}
			_, _ = s.dispatch(ctx, u, "poll")
		}
		if len(updates) > 0 && logger.ShouldSampleDebug() {
			logger.LogEvent(ctx, logger.SUP, slog.LevelDebug, "poll.batch",
				slog.Int("count", len(updates)),
				slog.Int("offset", s.offset),
			)
		}
	}
}
