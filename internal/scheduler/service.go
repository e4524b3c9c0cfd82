// Package scheduler drives watch mode: recurring discover runs over the
// next unprocessed ID block.
package scheduler

import (
	"context"

	"github.com/mikroblog/discussions/internal/config"
	"github.com/mikroblog/discussions/internal/pipeline"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Service schedules discover runs on a cron expression. Each tick asks the
// range tracker for the first untracked block at or after the configured
// start ID and discovers it.
type Service struct {
	config   *config.Config
	pipeline *pipeline.Service
	cron     *cron.Cron
}

// NewService creates a new scheduler service
func NewService(cfg *config.Config, pipelineService *pipeline.Service) *Service {
	return &Service{
		config:   cfg,
		pipeline: pipelineService,
		cron:     cron.New(cron.WithSeconds()),
	}
}

// Start begins the scheduled discovery
func (s *Service) Start() error {
	_, err := s.cron.AddFunc(s.config.WatchSchedule, func() {
		if err := s.RunNextBlock(); err != nil {
			logrus.Errorf("Scheduled discover run failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	logrus.Infof("Scheduler started with schedule %q, block size %d", s.config.WatchSchedule, s.config.WatchBlock)
	return nil
}

// RunNextBlock discovers the next unprocessed ID block. Also called by the
// manual trigger endpoint.
func (s *Service) RunNextBlock() error {
	tracker := s.pipeline.Tracker()
	if err := tracker.Load(); err != nil {
		return err
	}

	start, end := tracker.NextGap(s.config.WatchStartID, s.config.WatchBlock)
	logrus.Infof("Watch tick: discovering block %d-%d", start, end)

	return s.pipeline.Discover(context.Background(), start, end)
}

// Stop stops the scheduler
func (s *Service) Stop() {
	if s.cron != nil {
		s.cron.Stop()
		logrus.Info("Scheduler stopped")
	}
}
