package expiry

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"onedesk/backend/internal/logging"
)

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// SweepFunc re-evaluates every open workspace at the given instant.
type SweepFunc func(ctx context.Context, now time.Time)

// Scheduler re-runs the expiry check on a cron spec, since lots drift into
// the window as time passes even when nobody touches the catalog.
type Scheduler struct {
	cron   *cron.Cron
	sweep  SweepFunc
	logger *zap.Logger
}

func NewScheduler(spec string, sweep SweepFunc, logger *zap.Logger) (*Scheduler, error) {
	s := &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithParser(cronParser)),
		sweep:  sweep,
		logger: logging.OrNop(logger).Named("expiry-sweep"),
	}
	if _, err := s.cron.AddFunc(spec, s.run); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to return.
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}

func (s *Scheduler) run() {
	defer func() {
		if err := recover(); err != nil {
			s.logger.Error("expiry sweep panic", zap.Any("error", err))
		}
	}()

	started := time.Now().UTC()
	s.sweep(context.Background(), started)
	s.logger.Debug("expiry sweep done", zap.Duration("took", time.Since(started)))
}
