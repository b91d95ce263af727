package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/schoolreach/internal/common"
)

// Scheduler repeats pipeline runs on a cron schedule. A tick that fires while
// the previous run is still going is skipped.
type Scheduler struct {
	app    *App
	cron   *cron.Cron
	job    cron.Job // shared by ticks and RunNow so both honour the skip guard
	logger arbor.ILogger
	ctx    context.Context
}

// NewScheduler creates a scheduler for standard five-field cron expressions
func NewScheduler(app *App, logger arbor.ILogger) *Scheduler {
	cl := cronLogger{logger: logger}
	s := &Scheduler{
		app:    app,
		cron:   cron.New(cron.WithLogger(cl)),
		logger: logger,
	}
	s.job = cron.NewChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)).
		Then(cron.FuncJob(s.runPipeline))
	return s
}

// Start registers the pipeline job and starts the cron loop. Runs use ctx so
// cancelling it stops an in-flight run.
func (s *Scheduler) Start(ctx context.Context, schedule string) error {
	s.ctx = ctx

	id, err := s.cron.AddJob(schedule, s.job)
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", schedule, err)
	}

	s.cron.Start()
	s.logger.Info().
		Str("schedule", schedule).
		Str("next_run", s.cron.Entry(id).Next.Format("2006-01-02 15:04:05")).
		Msg("Pipeline scheduler started")

	return nil
}

// Stop stops the scheduler and waits for a running pipeline to return
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.logger.Info().
		Int64("background_runs", common.GetGoroutineCount()).
		Msg("Pipeline scheduler stopped")
}

// RunNow triggers an immediate run in the background. Ticks that fire while
// it is running are skipped like any other overlapping tick.
func (s *Scheduler) RunNow() {
	s.logger.Info().Msg("Triggering immediate pipeline run")
	common.SafeGo(s.logger, "immediatePipelineRun", s.job.Run)
}

func (s *Scheduler) runPipeline() {
	ctx := s.ctx
	if ctx == nil {
		ctx = context.Background()
	}

	s.logger.Info().Msg("Starting scheduled pipeline run")

	stats, err := s.app.Run(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("Scheduled pipeline run failed")
		return
	}

	s.logger.Info().
		Str("run_id", stats.RunID).
		Int("new_names", stats.NewNames).
		Int("emails_sent", stats.EmailsSent).
		Dur("duration", stats.Duration).
		Msg("Scheduled pipeline run completed")
}

// cronLogger adapts arbor to the cron.Logger interface
type cronLogger struct {
	logger arbor.ILogger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	event := l.logger.Debug()
	if msg == "skip" {
		event = l.logger.Warn()
		msg = "Skipping scheduled run, previous run still in progress"
	}
	event.Str("cron", formatKeysAndValues(keysAndValues)).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Str("cron", formatKeysAndValues(keysAndValues)).Msg(msg)
}

func formatKeysAndValues(keysAndValues []interface{}) string {
	parts := make([]string, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		parts = append(parts, fmt.Sprintf("%v=%v", keysAndValues[i], keysAndValues[i+1]))
	}
	return strings.Join(parts, " ")
}
