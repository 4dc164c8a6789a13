package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/Flarenzy/smart-ipam/internal/domain"
	"github.com/robfig/cron/v3"
)

// Scheduler runs discovery over every managed subnet on a cron schedule.
// A run that is still going when the next one is due causes that one to be skipped.
type Scheduler struct {
	schedule cron.Schedule
	service  domain.NetworkService
	reclaim  func(ctx context.Context, now time.Time) (int, error)
	method   string
	persist  bool
	logger   *slog.Logger
}

func parseSchedule(spec string) (cron.Schedule, error) {
	return cron.ParseStandard(spec)
}

func NewScheduler(cfg Config, services *Services, logger *slog.Logger) (*Scheduler, error) {
	schedule, err := parseSchedule(cfg.Schedule)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Scheduler{
		schedule: schedule,
		service:  services.Service,
		method:   cfg.ScheduleMethod,
		persist:  cfg.SchedulePersist,
		logger:   logger,
	}
	if services.Ledger != nil {
		s.reclaim = services.Ledger.ReclaimExpired
	}
	return s, nil
}

// Run blocks until ctx is done and the in-flight run, if any, has returned.
func (s *Scheduler) Run(ctx context.Context) {
	log := cronLogger{logger: s.logger}
	c := cron.New(
		cron.WithLogger(log),
		cron.WithChain(cron.Recover(log), cron.SkipIfStillRunning(log)),
	)
	c.Schedule(s.schedule, cron.FuncJob(func() { s.runOnce(ctx) }))

	c.Start()
	s.logger.InfoContext(ctx, "discovery schedule started", "next", s.schedule.Next(time.Now()).Format(time.RFC3339))
	<-ctx.Done()
	<-c.Stop().Done()
}

func (s *Scheduler) runOnce(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}

	if s.reclaim != nil {
		if n, err := s.reclaim(ctx, time.Now()); err != nil {
			s.logger.ErrorContext(ctx, "reclaim expired allocations failed", "err", err.Error())
		} else if n > 0 {
			s.logger.InfoContext(ctx, "expired allocations reclaimed", "count", n)
		}
	}

	snapshot, err := s.service.Discover(ctx, domain.DiscoverInput{Method: s.method, Persist: s.persist})
	if errors.Is(err, domain.ErrInvalidTarget) {
		s.logger.DebugContext(ctx, "scheduled discovery skipped", "err", err.Error())
		return
	}
	if err != nil {
		return
	}
	if snapshot.Partial {
		return
	}

	if _, err = s.service.CheckConflicts(ctx); err != nil {
		s.logger.ErrorContext(ctx, "scheduled conflict check failed", "err", err.Error())
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "err", err.Error())...)
}
