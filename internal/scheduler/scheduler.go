// -----------------------------------------------------------------------
// Job Scheduler - bounded-concurrency dispatcher over the durable queue
// -----------------------------------------------------------------------

package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
	"golang.org/x/sync/semaphore"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// PortalRuntime bundles everything a job needs to drive one vendor portal
type PortalRuntime struct {
	Portal      *common.PortalConfig
	Session     interfaces.MasterSession
	Recovery    interfaces.RecoveryCoordinator
	Adapter     interfaces.PortalAdapter
	Filler      interfaces.FormFiller
	Profiles    interfaces.ProfileStore
	Browsers    interfaces.BrowserProvider
	Screenshots interfaces.ScreenshotStore
}

// Scheduler claims pending jobs and runs them with bounded parallelism. Each
// job gets a hard deadline; in-flight jobs found at startup are assumed
// orphaned by a crash and reset before dispatch begins.
type Scheduler struct {
	config     *common.SchedulerConfig
	sessionCfg *common.SessionConfig
	jobs       interfaces.JobStore
	events     interfaces.EventService
	portals    map[string]*PortalRuntime
	sem        *semaphore.Weighted
	cron       *cron.Cron
	logger     arbor.ILogger
	wg         sync.WaitGroup
}

// NewScheduler creates the dispatcher over the given portal runtimes
func NewScheduler(config *common.SchedulerConfig, sessionCfg *common.SessionConfig, jobs interfaces.JobStore, events interfaces.EventService, portals map[string]*PortalRuntime, logger arbor.ILogger) *Scheduler {
	parallel := config.MaxParallel
	if parallel <= 0 {
		parallel = 1
	}
	return &Scheduler{
		config:     config,
		sessionCfg: sessionCfg,
		jobs:       jobs,
		events:     events,
		portals:    portals,
		sem:        semaphore.NewWeighted(int64(parallel)),
		cron:       cron.New(cron.WithSeconds()),
		logger:     logger,
	}
}

// Start resets orphaned jobs, schedules the stuck-job sweep and begins
// dispatching. Returns after the poll loop goroutine is running.
func (s *Scheduler) Start(ctx context.Context) error {
	// Nothing can legitimately be processing before dispatch starts
	reset, err := s.jobs.RecoverStuck(ctx, 0)
	if err != nil {
		return err
	}
	if reset > 0 {
		s.logger.Warn().Int("count", reset).Msg("Reset jobs orphaned by previous run")
	}

	if s.config.StuckSweepSchedule != "" {
		_, err := s.cron.AddFunc(s.config.StuckSweepSchedule, func() {
			n, err := s.jobs.RecoverStuck(ctx, s.config.StuckMaxAgeDuration())
			if err != nil {
				s.logger.Error().Err(err).Msg("Stuck-job sweep failed")
				return
			}
			if n > 0 {
				s.logger.Warn().Int("count", n).Msg("Stuck-job sweep reset jobs")
			}
		})
		if err != nil {
			return err
		}
	}

	// Background freshness probe keeps masters warm between jobs so the first
	// job after a quiet period does not pay the re-check
	if s.sessionCfg.CheckSchedule != "" {
		_, err := s.cron.AddFunc(s.sessionCfg.CheckSchedule, func() {
			s.probeStaleSessions(ctx)
		})
		if err != nil {
			return err
		}
	}

	s.cron.Start()

	common.SafeGoWithContext(ctx, s.logger, "scheduler-poll", func() {
		s.pollLoop(ctx)
	})

	s.logger.Info().
		Int("max_parallel", s.config.MaxParallel).
		Str("job_timeout", s.config.JobTimeoutDuration().String()).
		Msg("Job scheduler started")

	return nil
}

// Stop halts the sweep and waits for in-flight jobs to finish
func (s *Scheduler) Stop() {
	cronCtx := s.cron.Stop()
	<-cronCtx.Done()
	s.wg.Wait()
	s.logger.Info().Msg("Job scheduler stopped")
}

// probeStaleSessions re-checks every master whose freshness horizon has
// passed. A failed probe is only logged; the per-job session gate owns
// recovery so concurrent ladders cannot start from here.
func (s *Scheduler) probeStaleSessions(ctx context.Context) {
	horizon := s.sessionCfg.StaleHorizonDuration()
	for company, runtime := range s.portals {
		if runtime.Session.IsFresh(horizon) {
			continue
		}
		alive, err := runtime.Session.Check(ctx)
		if err != nil {
			s.logger.Warn().Err(err).Str("company", company).Msg("Background session probe failed")
			continue
		}
		if !alive {
			s.logger.Warn().Str("company", company).Msg("Background session probe found master logged out")
		}
	}
}

// pollLoop claims due jobs at each tick until ctx is cancelled
func (s *Scheduler) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(s.config.PollIntervalDuration())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.dispatchDue(ctx)
		}
	}
}

// dispatchDue claims and launches jobs until the queue is drained or all
// worker slots are taken
func (s *Scheduler) dispatchDue(ctx context.Context) {
	for {
		if !s.sem.TryAcquire(1) {
			return
		}

		job, err := s.jobs.ClaimNext(ctx, "")
		if err != nil {
			s.sem.Release(1)
			s.logger.Error().Err(err).Msg("Failed to claim next job")
			return
		}
		if job == nil {
			s.sem.Release(1)
			return
		}

		s.wg.Add(1)
		claimed := job
		common.SafeGo(s.logger, "job-"+claimed.ID, func() {
			defer s.wg.Done()
			defer s.sem.Release(1)
			s.runJob(ctx, claimed)
		})
	}
}

// publish emits a lifecycle event, best-effort
func (s *Scheduler) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish scheduler event")
	}
}

// failJob records a failure outcome, capturing a screenshot when the driver
// is still alive and none was provided by the form routine
func (s *Scheduler) failJob(job *models.Job, runtime *PortalRuntime, driver interfaces.Driver, kind models.FailureKind, message, screenshotRef string) {
	// Status writes and evidence capture must survive the job deadline
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if screenshotRef == "" && driver != nil && runtime != nil && runtime.Screenshots != nil {
		if image, err := driver.Screenshot(ctx); err == nil {
			key := fmt.Sprintf("%s/attempt-%d.png", job.ID, job.Attempts)
			if ref, err := runtime.Screenshots.Upload(ctx, key, image); err == nil {
				screenshotRef = ref
			} else {
				s.logger.Warn().Err(err).Str("job_id", job.ID).Msg("Failed to upload failure screenshot")
			}
		}
	}

	record := models.ErrorRecord{
		Timestamp:     time.Now(),
		AttemptNumber: job.Attempts,
		Message:       message,
		Kind:          string(kind),
		Stage:         string(kind.Stage()),
		ScreenshotRef: screenshotRef,
	}

	if err := s.jobs.Fail(ctx, job.ID, kind, record); err != nil {
		s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to record job failure")
		return
	}

	s.publish(ctx, interfaces.EventJobFailed, map[string]interface{}{
		"job_id":  job.ID,
		"company": job.Company,
		"kind":    string(kind),
		"stage":   string(kind.Stage()),
		"attempt": job.Attempts,
	})
}
