// -----------------------------------------------------------------------
// Ingestion Watcher - change-stream consumer feeding the job queue
// -----------------------------------------------------------------------

package watcher

import (
	"context"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

const (
	reconnectBaseDelay = time.Second
	reconnectMaxDelay  = 30 * time.Second
)

// Service subscribes to the intake collection's change feed and enqueues one
// submission job per inserted document. The watcher never pauses for
// downstream conditions: the queue is durable, so enqueuing during a recovery
// storm is always safe.
type Service struct {
	intake    interfaces.IntakeStore
	jobs      interfaces.JobStore
	events    interfaces.EventService
	companies map[string]bool // Configured portals; documents for others are dropped
	logger    arbor.ILogger
}

// NewService creates an ingestion watcher routing documents to the configured
// companies
func NewService(intake interfaces.IntakeStore, jobs interfaces.JobStore, events interfaces.EventService, companies []string, logger arbor.ILogger) *Service {
	known := make(map[string]bool, len(companies))
	for _, c := range companies {
		known[c] = true
	}
	return &Service{
		intake:    intake,
		jobs:      jobs,
		events:    events,
		companies: known,
		logger:    logger,
	}
}

// Start consumes the change feed until ctx is cancelled, reconnecting with
// exponential backoff on stream errors
func (s *Service) Start(ctx context.Context) {
	s.logger.Info().Msg("Ingestion watcher started")
	delay := reconnectBaseDelay

	for {
		connectedAt := time.Now()
		err := s.intake.Subscribe(ctx, func(doc *models.IntakeDocument) {
			s.handle(ctx, doc)
		})

		if ctx.Err() != nil {
			s.logger.Info().Msg("Ingestion watcher stopped")
			return
		}

		if err != nil {
			s.logger.Warn().Err(err).Msg("Intake change stream dropped, reconnecting")
		} else {
			s.logger.Warn().Msg("Intake change stream ended unexpectedly, reconnecting")
		}

		// A subscription that held for a while earns a fresh backoff
		if time.Since(connectedAt) > reconnectMaxDelay {
			delay = reconnectBaseDelay
		}

		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Ingestion watcher stopped")
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > reconnectMaxDelay {
			delay = reconnectMaxDelay
		}

		s.publish(ctx, interfaces.EventWatcherReconnected, map[string]interface{}{
			"downtime": time.Since(connectedAt).String(),
		})
	}
}

// handle routes one inserted document into the job queue
func (s *Service) handle(ctx context.Context, doc *models.IntakeDocument) {
	if err := doc.Validate(); err != nil {
		s.logger.Warn().Err(err).Str("document_id", doc.ID).Msg("Dropping invalid intake document")
		return
	}

	if !s.companies[doc.Company] {
		s.logger.Warn().
			Str("document_id", doc.ID).
			Str("company", doc.Company).
			Msg("Dropping intake document for unconfigured company")
		return
	}

	jobID, err := s.jobs.Enqueue(ctx, doc)
	if err != nil {
		s.logger.Error().Err(err).
			Str("document_id", doc.ID).
			Msg("Failed to enqueue job for intake document")
		return
	}

	s.publish(ctx, interfaces.EventJobEnqueued, map[string]interface{}{
		"job_id":          jobID,
		"correlation_key": doc.ID,
		"company":         doc.Company,
	})
}

func (s *Service) publish(ctx context.Context, eventType interfaces.EventType, payload map[string]interface{}) {
	if s.events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish watcher event")
	}
}
