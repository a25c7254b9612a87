package scheduler

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// runJob executes one claimed job end to end: session gate, clone, launch,
// validate, fill, classify. Clone and browser cleanup is unconditional, and a
// panic anywhere in the pipeline records a pre-submission failure rather than
// losing the job.
func (s *Scheduler) runJob(ctx context.Context, job *models.Job) {
	runtime, ok := s.portals[job.Company]
	if !ok {
		s.failJob(job, nil, nil, models.KindPreSubmission, "no portal configured for company "+job.Company, "")
		return
	}

	jobCtx, cancel := context.WithTimeout(ctx, s.config.JobTimeoutDuration())
	defer cancel()

	var driver interfaces.Driver

	defer func() {
		if r := recover(); r != nil {
			stackTrace := common.GetStackTrace()
			s.logger.Error().
				Str("job_id", job.ID).
				Str("panic", fmt.Sprint(r)).
				Str("stack", stackTrace).
				Msg("Job pipeline panicked - writing crash file")
			common.WriteCrashFile(r, stackTrace)
			s.failJob(job, runtime, driver, models.KindPreSubmission, fmt.Sprintf("job pipeline panicked: %v", r), "")
		}
	}()

	s.logger.Info().
		Str("job_id", job.ID).
		Str("company", job.Company).
		Int("attempt", job.Attempts).
		Msg("Job started")

	// Session gate: a stale master is re-probed once; a dead one goes through
	// the recovery ladder (joining any run already in flight) before this job
	// clones its profile.
	if !runtime.Session.IsFresh(s.sessionCfg.StaleHorizonDuration()) {
		alive, err := runtime.Session.Check(jobCtx)
		if err != nil || !alive {
			reason := "master session check reported logged out"
			if err != nil {
				reason = fmt.Sprintf("master session check failed: %v", err)
			}
			if rerr := runtime.Recovery.Recover(jobCtx, reason); rerr != nil {
				s.failWithError(job, runtime, nil, jobCtx, rerr, "master session recovery failed")
				return
			}
		}
	}

	// Clone the master profile. The clone directory is removed on every exit
	// path; a leaked clone would eventually fill the disk.
	cloneDir := filepath.Join(runtime.Portal.CloneRoot, common.NewCloneID(job.ID))
	layout, err := runtime.Profiles.Clone(jobCtx, runtime.Portal.MasterProfilePath, cloneDir)
	if err != nil {
		s.failWithError(job, runtime, nil, jobCtx, err, "profile clone failed")
		return
	}
	defer func() {
		if derr := runtime.Profiles.Delete(cloneDir); derr != nil {
			s.logger.Warn().Err(derr).Str("clone_dir", cloneDir).Msg("Failed to remove clone directory")
		}
	}()

	driver, err = runtime.Browsers.Launch(jobCtx, layout)
	if err != nil {
		s.failWithError(job, runtime, nil, jobCtx, err, "browser launch failed")
		return
	}
	defer func() {
		if serr := driver.Shutdown(); serr != nil {
			s.logger.Warn().Err(serr).Str("job_id", job.ID).Msg("Clone browser shutdown reported error")
		}
	}()

	if err := driver.Navigate(jobCtx, runtime.Adapter.EntryURL()); err != nil {
		s.failWithError(job, runtime, driver, jobCtx, err, "portal navigation failed")
		return
	}

	validity, err := runtime.Adapter.ValidateClone(jobCtx, driver, runtime.Recovery.Recover)
	if err != nil {
		s.failWithError(job, runtime, driver, jobCtx, err, "clone validation failed")
		return
	}
	if validity != models.CloneValid {
		s.failJob(job, runtime, driver, models.KindSessionExpired, "clone session invalid after validation", "")
		return
	}

	result, err := runtime.Filler.Fill(jobCtx, driver, job)
	if err != nil {
		s.failWithError(job, runtime, driver, jobCtx, err, "form routine failed")
		return
	}

	if result.Success {
		doneCtx, doneCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer doneCancel()
		if err := s.jobs.Complete(doneCtx, job.ID); err != nil {
			s.logger.Error().Err(err).Str("job_id", job.ID).Msg("Failed to mark job completed")
			return
		}
		s.logger.Info().
			Str("job_id", job.ID).
			Str("company", job.Company).
			Int("attempts", job.Attempts).
			Msg("Job completed")
		s.publish(doneCtx, interfaces.EventJobCompleted, map[string]interface{}{
			"job_id":  job.ID,
			"company": job.Company,
		})
		return
	}

	// The form routine reported failure with a stage discriminator. Stage is
	// the only thing that decides retriability here.
	kind := models.KindPreSubmission
	if result.Stage == models.StagePostSubmission {
		kind = models.KindPostSubmission
	}
	message := result.Error
	if message == "" {
		message = "form routine reported failure"
	}
	s.failJob(job, runtime, driver, kind, message, result.ScreenshotRef)
}

// failWithError classifies an error from the pipeline and records the
// failure. A job deadline expiry always classifies as a timeout regardless of
// which call surfaced it.
func (s *Scheduler) failWithError(job *models.Job, runtime *PortalRuntime, driver interfaces.Driver, jobCtx context.Context, err error, msg string) {
	kind := models.ClassifyError(err)
	if errors.Is(jobCtx.Err(), context.DeadlineExceeded) {
		kind = models.KindTimeout
	}

	var fe *models.FailureError
	screenshotRef := ""
	if errors.As(err, &fe) {
		screenshotRef = fe.ScreenshotRef
	}

	s.failJob(job, runtime, driver, kind, fmt.Sprintf("%s: %v", msg, err), screenshotRef)
}
