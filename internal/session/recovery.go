// -----------------------------------------------------------------------
// Recovery Coordinator - soft/hard/nuclear ladder with single-flight
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// LadderSession exposes the recovery primitives the coordinator escalates
// through. Implemented by Manager.
type LadderSession interface {
	RecoverSoft(ctx context.Context) error
	RecoverHard(ctx context.Context) error
	RecoverNuclear(ctx context.Context) error
}

// Coordinator runs the recovery ladder for one master session. Concurrent
// callers collapse onto a single ladder execution: the first caller becomes
// the leader and the rest wait on the shared outcome. A waiter whose context
// expires detaches and fails its own job; the ladder itself keeps running on
// the coordinator's base context and stops only at process shutdown.
type Coordinator struct {
	mu       sync.Mutex
	inFlight bool
	done     chan struct{}
	outcome  error

	softUsed    int
	hardUsed    int
	nuclearUsed int
	history     []models.RecoveryAttempt

	manager LadderSession
	config  *common.SessionConfig
	events  interfaces.EventService
	logger  arbor.ILogger
	baseCtx context.Context
}

// NewCoordinator creates the recovery coordinator. baseCtx bounds ladder
// execution and should be the process lifetime context.
func NewCoordinator(baseCtx context.Context, manager LadderSession, config *common.SessionConfig, events interfaces.EventService, logger arbor.ILogger) *Coordinator {
	return &Coordinator{
		manager: manager,
		config:  config,
		events:  events,
		logger:  logger,
		baseCtx: baseCtx,
	}
}

// Recover starts a ladder run or joins the one in flight, then waits for its
// outcome. ctx only bounds the wait, never the ladder.
func (c *Coordinator) Recover(ctx context.Context, reason string) error {
	c.mu.Lock()
	if c.inFlight {
		done := c.done
		c.mu.Unlock()
		c.logger.Debug().Str("reason", reason).Msg("Joining in-flight recovery")
		return c.await(ctx, done)
	}

	c.inFlight = true
	done := make(chan struct{})
	c.done = done
	c.outcome = nil
	c.mu.Unlock()

	common.SafeGo(c.logger, "session-recovery", func() {
		result := fmt.Errorf("recovery aborted by panic")
		defer func() {
			// Joiners must be released on every exit path, panics included
			c.mu.Lock()
			c.outcome = result
			c.inFlight = false
			c.mu.Unlock()
			close(done)
		}()
		result = c.runLadder(reason)
	})

	return c.await(ctx, done)
}

// await blocks until the shared outcome is published or ctx expires
func (c *Coordinator) await(ctx context.Context, done chan struct{}) error {
	select {
	case <-done:
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.outcome
	case <-ctx.Done():
		return fmt.Errorf("detached from recovery wait: %w", ctx.Err())
	}
}

// History returns a snapshot of the bounded attempt ring, oldest first
func (c *Coordinator) History() []models.RecoveryAttempt {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]models.RecoveryAttempt, len(c.history))
	copy(out, c.history)
	return out
}

// runLadder consumes the level budgets in order. Any level's success resets
// all counters and ends the run.
func (c *Coordinator) runLadder(reason string) error {
	c.logger.Warn().Str("reason", reason).Msg("Master session recovery started")
	c.publish(interfaces.EventRecoveryStarted, map[string]interface{}{"reason": reason})

	for c.budgetLeft(models.RecoveryLevelSoft) {
		c.consume(models.RecoveryLevelSoft)
		err := c.manager.RecoverSoft(c.baseCtx)
		c.record(models.RecoveryLevelSoft, err, reason)
		if err == nil {
			return c.succeed(models.RecoveryLevelSoft)
		}
		if errors.Is(err, ErrMasterUnresponsive) {
			c.logger.Warn().Msg("Master driver unresponsive, escalating past soft recovery")
			break
		}
	}

	for c.budgetLeft(models.RecoveryLevelHard) {
		c.consume(models.RecoveryLevelHard)
		err := c.manager.RecoverHard(c.baseCtx)
		c.record(models.RecoveryLevelHard, err, reason)
		if err == nil {
			return c.succeed(models.RecoveryLevelHard)
		}
	}

	for c.budgetLeft(models.RecoveryLevelNuclear) {
		c.consume(models.RecoveryLevelNuclear)
		err := c.manager.RecoverNuclear(c.baseCtx)
		c.record(models.RecoveryLevelNuclear, err, reason)
		if err == nil {
			return c.succeed(models.RecoveryLevelNuclear)
		}
	}

	c.logger.Error().Str("reason", reason).Msg("All recovery levels exhausted")

	// The critical hook is delivered synchronously so it cannot be lost to a
	// racing shutdown
	if c.events != nil {
		event := interfaces.Event{
			Type: interfaces.EventRecoveryExhausted,
			Payload: map[string]interface{}{
				"reason":  reason,
				"history": c.History(),
			},
			Timestamp: time.Now(),
		}
		if err := c.events.PublishSync(c.baseCtx, event); err != nil {
			c.logger.Error().Err(err).Msg("Recovery-exhausted hook delivery failed")
		}
	}

	return models.NewFailure(models.KindRecoveryExhausted, "all recovery levels exhausted", nil)
}

func (c *Coordinator) budgetLeft(level models.RecoveryLevel) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch level {
	case models.RecoveryLevelSoft:
		return c.softUsed < c.config.SoftMax
	case models.RecoveryLevelHard:
		return c.hardUsed < c.config.HardMax
	case models.RecoveryLevelNuclear:
		return c.nuclearUsed < c.config.NuclearMax
	}
	return false
}

func (c *Coordinator) consume(level models.RecoveryLevel) {
	c.mu.Lock()
	defer c.mu.Unlock()
	switch level {
	case models.RecoveryLevelSoft:
		c.softUsed++
	case models.RecoveryLevelHard:
		c.hardUsed++
	case models.RecoveryLevelNuclear:
		c.nuclearUsed++
	}
}

// record appends one attempt to the history ring
func (c *Coordinator) record(level models.RecoveryLevel, err error, reason string) {
	attempt := models.RecoveryAttempt{
		Level:     level,
		Success:   err == nil,
		Reason:    reason,
		Timestamp: time.Now(),
	}
	if err != nil {
		attempt.Reason = fmt.Sprintf("%s: %v", reason, err)
		c.logger.Warn().Err(err).Str("level", string(level)).Msg("Recovery level attempt failed")
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, attempt)
	if size := c.config.HistorySize; size > 0 && len(c.history) > size {
		c.history = c.history[len(c.history)-size:]
	}
}

// succeed resets all counters and publishes the success event
func (c *Coordinator) succeed(level models.RecoveryLevel) error {
	c.mu.Lock()
	c.softUsed = 0
	c.hardUsed = 0
	c.nuclearUsed = 0
	c.mu.Unlock()

	c.logger.Info().Str("level", string(level)).Msg("Master session recovered")
	c.publish(interfaces.EventRecoverySucceeded, map[string]interface{}{"level": string(level)})
	return nil
}

func (c *Coordinator) publish(eventType interfaces.EventType, payload map[string]interface{}) {
	if c.events == nil {
		return
	}
	event := interfaces.Event{Type: eventType, Payload: payload, Timestamp: time.Now()}
	if err := c.events.Publish(c.baseCtx, event); err != nil {
		c.logger.Warn().Err(err).Str("event", string(eventType)).Msg("Failed to publish recovery event")
	}
}

var _ interfaces.RecoveryCoordinator = (*Coordinator)(nil)
