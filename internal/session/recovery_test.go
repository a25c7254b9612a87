package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
)

// fakeLadder scripts the outcome of each recovery level
type fakeLadder struct {
	mu           sync.Mutex
	softResults  []error
	hardResults  []error
	nuclearErr   error
	softCalls    int
	hardCalls    int
	nuclearCalls int

	// When set, soft recovery blocks until the channel closes
	softGate chan struct{}
}

func (f *fakeLadder) RecoverSoft(ctx context.Context) error {
	f.mu.Lock()
	gate := f.softGate
	idx := f.softCalls
	f.softCalls++
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if idx < len(f.softResults) {
		return f.softResults[idx]
	}
	return nil
}

func (f *fakeLadder) RecoverHard(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.hardCalls
	f.hardCalls++
	if idx < len(f.hardResults) {
		return f.hardResults[idx]
	}
	return nil
}

func (f *fakeLadder) RecoverNuclear(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nuclearCalls++
	return f.nuclearErr
}

func (f *fakeLadder) calls() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.softCalls, f.hardCalls, f.nuclearCalls
}

func testSessionConfig() *common.SessionConfig {
	return &common.SessionConfig{
		SoftMax:     3,
		HardMax:     2,
		NuclearMax:  1,
		HistorySize: 32,
	}
}

func newTestCoordinator(ladder *fakeLadder, events interfaces.EventService) *Coordinator {
	return NewCoordinator(context.Background(), ladder, testSessionConfig(), events, arbor.NewLogger())
}

func TestRecoverySoftSuccessFirstTry(t *testing.T) {
	ladder := &fakeLadder{}
	c := newTestCoordinator(ladder, nil)

	require.NoError(t, c.Recover(context.Background(), "probe failed"))

	soft, hard, nuclear := ladder.calls()
	assert.Equal(t, 1, soft)
	assert.Equal(t, 0, hard)
	assert.Equal(t, 0, nuclear)

	history := c.History()
	require.Len(t, history, 1)
	assert.Equal(t, models.RecoveryLevelSoft, history[0].Level)
	assert.True(t, history[0].Success)
}

func TestRecoveryEscalatesToNuclear(t *testing.T) {
	boom := errors.New("login rejected")
	ladder := &fakeLadder{
		softResults: []error{boom, boom, boom},
		hardResults: []error{boom, boom},
	}
	c := newTestCoordinator(ladder, nil)

	require.NoError(t, c.Recover(context.Background(), "session expired"))

	soft, hard, nuclear := ladder.calls()
	assert.Equal(t, 3, soft)
	assert.Equal(t, 2, hard)
	assert.Equal(t, 1, nuclear)

	// Six attempts recorded: five failures then the nuclear success
	history := c.History()
	require.Len(t, history, 6)
	assert.Equal(t, models.RecoveryLevelNuclear, history[5].Level)
	assert.True(t, history[5].Success)
	for _, attempt := range history[:5] {
		assert.False(t, attempt.Success)
	}

	// Success resets all budgets: another soft attempt is available
	require.NoError(t, c.Recover(context.Background(), "again"))
	soft, _, _ = ladder.calls()
	assert.Equal(t, 4, soft)
}

func TestRecoveryUnresponsiveMasterSkipsSoftBudget(t *testing.T) {
	boom := errors.New("relaunch failed")
	ladder := &fakeLadder{
		softResults: []error{ErrMasterUnresponsive},
		hardResults: []error{boom},
	}
	c := newTestCoordinator(ladder, nil)

	require.NoError(t, c.Recover(context.Background(), "driver dead"))

	soft, hard, _ := ladder.calls()
	assert.Equal(t, 1, soft, "unresponsive driver must not burn the remaining soft budget")
	assert.Equal(t, 2, hard)
}

func TestRecoveryExhaustionSurfacesAndPersists(t *testing.T) {
	boom := errors.New("portal down")
	ladder := &fakeLadder{
		softResults: []error{boom, boom, boom},
		hardResults: []error{boom, boom},
		nuclearErr:  boom,
	}

	exhausted := make(chan interfaces.Event, 1)
	bus := &captureBus{events: exhausted}
	c := newTestCoordinator(ladder, bus)

	err := c.Recover(context.Background(), "everything broken")
	require.Error(t, err)

	var fe *models.FailureError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, models.KindRecoveryExhausted, fe.Kind)

	select {
	case event := <-exhausted:
		assert.Equal(t, interfaces.EventRecoveryExhausted, event.Type)
	case <-time.After(time.Second):
		t.Fatal("recovery-exhausted hook was not delivered")
	}

	// Budgets stay consumed: the next call fails immediately without new
	// level attempts
	soft, hard, nuclear := ladder.calls()
	err = c.Recover(context.Background(), "still broken")
	require.Error(t, err)
	soft2, hard2, nuclear2 := ladder.calls()
	assert.Equal(t, soft, soft2)
	assert.Equal(t, hard, hard2)
	assert.Equal(t, nuclear, nuclear2)
}

func TestRecoveryConcurrentCallersCollapse(t *testing.T) {
	ladder := &fakeLadder{softGate: make(chan struct{})}
	c := newTestCoordinator(ladder, nil)

	const callers = 8
	var wg sync.WaitGroup
	var successes atomic.Int32

	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Recover(context.Background(), "stampede"); err == nil {
				successes.Add(1)
			}
		}()
	}

	// Let every caller reach the coordinator before releasing the ladder
	time.Sleep(100 * time.Millisecond)
	close(ladder.softGate)
	wg.Wait()

	soft, hard, nuclear := ladder.calls()
	assert.Equal(t, 1, soft, "concurrent callers must collapse onto one ladder run")
	assert.Equal(t, 0, hard)
	assert.Equal(t, 0, nuclear)
	assert.Equal(t, int32(callers), successes.Load())
}

func TestRecoveryJoinerDetachesOnDeadline(t *testing.T) {
	ladder := &fakeLadder{softGate: make(chan struct{})}
	c := newTestCoordinator(ladder, nil)

	leaderDone := make(chan error, 1)
	go func() {
		leaderDone <- c.Recover(context.Background(), "slow recovery")
	}()

	time.Sleep(50 * time.Millisecond)

	joinerCtx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := c.Recover(joinerCtx, "joining")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The detached joiner must not have aborted the run
	close(ladder.softGate)
	select {
	case err := <-leaderDone:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("leader never finished after joiner detached")
	}
}

// captureBus forwards published events to a channel
type captureBus struct {
	events chan interfaces.Event
}

func (b *captureBus) Subscribe(interfaces.EventType, interfaces.EventHandler) error { return nil }

func (b *captureBus) Publish(ctx context.Context, event interfaces.Event) error {
	select {
	case b.events <- event:
	default:
	}
	return nil
}

func (b *captureBus) PublishSync(ctx context.Context, event interfaces.Event) error {
	return b.Publish(ctx, event)
}

func (b *captureBus) Close() error { return nil }
