package service

import (
	"context"

	"github.com/robfig/cron/v3"
	"golang.org/x/sync/errgroup"

	"golang-backtest/config"
	"golang-backtest/internal/repository"
	"golang-backtest/pkg/logger"
	"golang-backtest/pkg/utils"
)

// SchedulerService periodically replays runs flagged as scheduled so their
// stored metrics track fresh market history.
type SchedulerService interface {
	Start(ctx context.Context) error
	Stop()
}

type schedulerService struct {
	cfg             *config.Config
	log             *logger.Logger
	repo            *repository.Repository
	backtestService BacktestService
	cron            *cron.Cron
}

func NewSchedulerService(
	cfg *config.Config,
	log *logger.Logger,
	repo *repository.Repository,
	backtestService BacktestService,
) SchedulerService {
	return &schedulerService{
		cfg:             cfg,
		log:             log,
		repo:            repo,
		backtestService: backtestService,
		cron:            cron.New(),
	}
}

func (s *schedulerService) Start(ctx context.Context) error {
	_, err := s.cron.AddFunc(s.cfg.Scheduler.CronSpec, func() {
		s.runScheduledBacktests(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	s.log.Info("Scheduler started", logger.StringField("cron_spec", s.cfg.Scheduler.CronSpec))
	return nil
}

func (s *schedulerService) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.log.Info("Scheduler stopped")
}

func (s *schedulerService) runScheduledBacktests(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, s.cfg.Scheduler.TimeoutDuration)
	defer cancel()

	runs, err := s.repo.BacktestRepo.ListScheduled(runCtx)
	if err != nil {
		s.log.ErrorContext(runCtx, "Failed to list scheduled backtest runs", logger.ErrorField(err))
		return
	}
	if len(runs) == 0 {
		return
	}

	s.log.InfoContext(runCtx, "Replaying scheduled backtest runs", logger.IntField("count", len(runs)))

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(s.cfg.Scheduler.MaxConcurrency)

	for i := range runs {
		if !utils.ShouldContinue(runCtx, s.log) {
			break
		}
		run := &runs[i]
		g.Go(func() error {
			if err := s.backtestService.RerunStored(gctx, run); err != nil {
				s.log.ErrorContext(gctx, "Scheduled backtest rerun failed",
					logger.Field("run_id", run.ID),
					logger.StringField("strategy", run.Strategy),
					logger.ErrorField(err),
				)
			}
			// Failures stay on the individual run; the cycle continues.
			return nil
		})
	}

	_ = g.Wait()
}
