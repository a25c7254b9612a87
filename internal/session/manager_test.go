package session

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/models"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/profile"
)

// stubDriver is a no-op browser driver
type stubDriver struct {
	mu        sync.Mutex
	navigated []string
	shutdowns int
	urlErr    error
}

func (d *stubDriver) Navigate(ctx context.Context, url string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *stubDriver) Find(ctx context.Context, selector string) (bool, error) { return false, nil }
func (d *stubDriver) SetValue(ctx context.Context, selector, value string) error { return nil }
func (d *stubDriver) Click(ctx context.Context, selector string) error           { return nil }
func (d *stubDriver) Text(ctx context.Context, selector string) (string, error)  { return "", nil }
func (d *stubDriver) Screenshot(ctx context.Context) ([]byte, error)             { return []byte{1}, nil }
func (d *stubDriver) ScreenshotElement(ctx context.Context, selector string) ([]byte, error) {
	return []byte{1}, nil
}

func (d *stubDriver) CurrentURL(ctx context.Context) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.urlErr != nil {
		return "", d.urlErr
	}
	return "https://portal.example/dashboard", nil
}

func (d *stubDriver) Sleep(ctx context.Context, duration time.Duration) error { return nil }

func (d *stubDriver) Shutdown() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.shutdowns++
	return nil
}

// stubProvider hands out stub drivers and counts launches
type stubProvider struct {
	mu       sync.Mutex
	launches int
	drivers  []*stubDriver
	err      error
}

func (p *stubProvider) Launch(ctx context.Context, layout interfaces.ProfileLayout) (interfaces.Driver, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return nil, p.err
	}
	p.launches++
	driver := &stubDriver{}
	p.drivers = append(p.drivers, driver)
	return driver, nil
}

// stubAdapter scripts probe and login outcomes
type stubAdapter struct {
	mu         sync.Mutex
	loggedIn   []bool // Consumed per IsLoggedIn call; last value repeats
	loginOK    bool
	loginErr   error
	loginCalls int
	probeCalls int
}

func (a *stubAdapter) IsLoggedIn(ctx context.Context, driver interfaces.Driver) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.probeCalls++
	if len(a.loggedIn) == 0 {
		return false, nil
	}
	result := a.loggedIn[0]
	if len(a.loggedIn) > 1 {
		a.loggedIn = a.loggedIn[1:]
	}
	return result, nil
}

func (a *stubAdapter) PerformLogin(ctx context.Context, driver interfaces.Driver) (bool, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loginCalls++
	return a.loginOK, a.loginErr
}

func (a *stubAdapter) ValidateClone(ctx context.Context, driver interfaces.Driver, recover interfaces.RecoverFunc) (models.CloneValidity, error) {
	return models.CloneValid, nil
}

func (a *stubAdapter) EntryURL() string { return "https://portal.example/" }

func testPortalConfig(t *testing.T) *common.PortalConfig {
	t.Helper()
	return &common.PortalConfig{
		Company:           "rayal",
		EntryURL:          "https://portal.example/",
		DashboardURL:      "https://portal.example/dashboard",
		Username:          "user",
		Password:          "pass",
		MasterProfilePath: filepath.Join(t.TempDir(), "master"),
		CloneRoot:         t.TempDir(),
	}
}

func newTestManager(t *testing.T, adapter *stubAdapter, provider *stubProvider) *Manager {
	t.Helper()
	cfg := testPortalConfig(t)
	require.NoError(t, os.MkdirAll(cfg.MasterProfilePath, 0755))
	profiles := profile.NewStore(0, arbor.NewLogger())
	return NewManager(cfg, adapter, provider, profiles, testSessionConfig(), arbor.NewLogger())
}

func TestInitializeLogsInWhenSessionMissing(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{false, true}, loginOK: true}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	require.NoError(t, mgr.Initialize(context.Background()))
	assert.Equal(t, 1, provider.launches)
	assert.Equal(t, 1, adapter.loginCalls)
	assert.True(t, mgr.IsFresh(time.Minute))

	// Second Initialize is a no-op on a live session
	require.NoError(t, mgr.Initialize(context.Background()))
	assert.Equal(t, 1, provider.launches)
}

func TestInitializeFailsWhenLoginRejected(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{false}, loginOK: false}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	assert.Error(t, mgr.Initialize(context.Background()))
	assert.False(t, mgr.IsFresh(time.Minute))
}

func TestIsFreshExpiresWithHorizon(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{true}}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	require.NoError(t, mgr.Initialize(context.Background()))
	assert.True(t, mgr.IsFresh(time.Minute))

	time.Sleep(20 * time.Millisecond)
	assert.False(t, mgr.IsFresh(10*time.Millisecond), "stale active must read as not fresh")

	// A check refreshes the horizon
	alive, err := mgr.Check(context.Background())
	require.NoError(t, err)
	assert.True(t, alive)
	assert.True(t, mgr.IsFresh(time.Minute))
}

func TestRecoverHardRelaunchesBrowser(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{true}}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.RecoverHard(context.Background()))

	assert.Equal(t, 2, provider.launches)
	assert.Equal(t, 1, provider.drivers[0].shutdowns)
	assert.True(t, mgr.IsFresh(time.Minute))
}

func TestRecoverSoftUnresponsiveDriver(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{true}}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	require.NoError(t, mgr.Initialize(context.Background()))
	provider.drivers[0].urlErr = errors.New("connection refused")

	err := mgr.RecoverSoft(context.Background())
	assert.ErrorIs(t, err, ErrMasterUnresponsive)
}

func TestRecoverNuclearDiscardsProfileOnSuccess(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{true, false, true}, loginOK: true}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	cookieFile := filepath.Join(mgr.portal.MasterProfilePath, "Cookies")
	require.NoError(t, os.WriteFile(cookieFile, []byte("stale"), 0644))

	require.NoError(t, mgr.Initialize(context.Background()))
	require.NoError(t, mgr.RecoverNuclear(context.Background()))

	// The old profile was moved aside and then discarded
	_, err := os.Stat(cookieFile)
	assert.True(t, os.IsNotExist(err))

	parent := filepath.Dir(mgr.portal.MasterProfilePath)
	entries, err := os.ReadDir(parent)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.NotContains(t, entry.Name(), "backup", "stale backup should be removed after success")
	}
}

func TestRecoverNuclearRestoresBackupOnLoginFailure(t *testing.T) {
	adapter := &stubAdapter{loggedIn: []bool{true, false}, loginOK: false}
	provider := &stubProvider{}
	mgr := newTestManager(t, adapter, provider)

	cookieFile := filepath.Join(mgr.portal.MasterProfilePath, "Cookies")
	require.NoError(t, os.WriteFile(cookieFile, []byte("precious"), 0644))

	require.NoError(t, mgr.Initialize(context.Background()))

	err := mgr.RecoverNuclear(context.Background())
	require.Error(t, err)

	// The original profile contents must be back in place
	data, rerr := os.ReadFile(cookieFile)
	require.NoError(t, rerr)
	assert.Equal(t, "precious", string(data))
}
