// -----------------------------------------------------------------------
// Master Session Manager - owns the long-lived authenticated browser
// -----------------------------------------------------------------------

package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
)

// Manager keeps one authenticated browser alive on the master profile
// directory. Clones for job workers are taken from that directory while the
// master browser keeps running; Chrome tolerates this because clones never
// write back.
type Manager struct {
	mu            sync.Mutex
	driver        interfaces.Driver
	active        bool
	lastCheckedAt time.Time

	portal   *common.PortalConfig
	adapter  interfaces.PortalAdapter
	browsers interfaces.BrowserProvider
	profiles interfaces.ProfileStore
	config   *common.SessionConfig
	logger   arbor.ILogger
}

// NewManager creates a master session manager for one portal
func NewManager(portal *common.PortalConfig, adapter interfaces.PortalAdapter, browsers interfaces.BrowserProvider, profiles interfaces.ProfileStore, config *common.SessionConfig, logger arbor.ILogger) *Manager {
	return &Manager{
		portal:   portal,
		adapter:  adapter,
		browsers: browsers,
		profiles: profiles,
		config:   config,
		logger:   logger,
	}
}

// masterLayout describes the master profile directory on disk
func (m *Manager) masterLayout() interfaces.ProfileLayout {
	return interfaces.ProfileLayout{
		UserDataDir:   m.portal.MasterProfilePath,
		ProfileSubdir: "Default",
		FullPath:      filepath.Join(m.portal.MasterProfilePath, "Default"),
	}
}

// Initialize launches the master browser and establishes a logged-in session.
// Idempotent: a live, logged-in master is left untouched.
func (m *Manager) Initialize(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.driver != nil && m.active {
		return nil
	}

	return m.establishLocked(ctx)
}

// establishLocked launches (if needed) and logs in the master driver. Caller
// holds m.mu.
func (m *Manager) establishLocked(ctx context.Context) error {
	if m.driver == nil {
		driver, err := m.browsers.Launch(ctx, m.masterLayout())
		if err != nil {
			return fmt.Errorf("failed to launch master browser: %w", err)
		}
		m.driver = driver
		m.logger.Info().Str("company", m.portal.Company).Msg("Master browser launched")
	}

	if err := m.driver.Navigate(ctx, m.adapter.EntryURL()); err != nil {
		return fmt.Errorf("failed to navigate master to portal entry: %w", err)
	}

	loggedIn, err := m.adapter.IsLoggedIn(ctx, m.driver)
	if err != nil {
		return fmt.Errorf("master session probe failed: %w", err)
	}

	if !loggedIn {
		ok, err := m.adapter.PerformLogin(ctx, m.driver)
		if err != nil {
			return fmt.Errorf("master login failed: %w", err)
		}
		if !ok {
			return fmt.Errorf("portal rejected master login")
		}
	}

	m.active = true
	m.lastCheckedAt = time.Now()
	m.logger.Info().Str("company", m.portal.Company).Msg("Master session established")
	return nil
}

// Check probes the live master session and refreshes the freshness timestamp.
// The probe navigates to the dashboard first so a silent server-side logout
// shows up as a redirect to the login page.
func (m *Manager) Check(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.driver == nil {
		m.active = false
		return false, fmt.Errorf("master browser is not running")
	}

	checkCtx, cancel := context.WithTimeout(ctx, m.config.CheckTimeoutDuration())
	defer cancel()

	if err := m.driver.Navigate(checkCtx, m.portal.DashboardURL); err != nil {
		m.active = false
		return false, fmt.Errorf("master session check navigation failed: %w", err)
	}

	loggedIn, err := m.adapter.IsLoggedIn(checkCtx, m.driver)
	if err != nil {
		m.active = false
		return false, fmt.Errorf("master session check probe failed: %w", err)
	}

	m.active = loggedIn
	m.lastCheckedAt = time.Now()

	m.logger.Debug().
		Str("company", m.portal.Company).
		Bool("active", loggedIn).
		Msg("Master session checked")

	return loggedIn, nil
}

// IsFresh reports whether the session was seen active within the horizon. A
// stale true is deliberately reported as false so callers re-probe.
func (m *Manager) IsFresh(horizon time.Duration) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active && time.Since(m.lastCheckedAt) <= horizon
}

// Shutdown releases the master browser. Safe to call repeatedly.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownLocked()
}

func (m *Manager) shutdownLocked() {
	if m.driver == nil {
		return
	}
	if err := m.driver.Shutdown(); err != nil {
		m.logger.Warn().Err(err).Str("company", m.portal.Company).Msg("Master browser shutdown reported error")
	}
	m.driver = nil
	m.active = false
}

// ---------------------------------------------------------------------
// Recovery primitives used by the coordinator ladder
// ---------------------------------------------------------------------

// ErrMasterUnresponsive marks a master driver that no longer answers even
// cheap calls. The recovery ladder skips straight to a relaunch when it sees
// this.
var ErrMasterUnresponsive = errors.New("master browser unresponsive")

// RecoverSoft re-authenticates on the already-running master browser. The
// driver is probed with a cheap call first; a dead driver cannot be soft
// recovered.
func (m *Manager) RecoverSoft(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.driver == nil {
		return ErrMasterUnresponsive
	}

	probeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := m.driver.CurrentURL(probeCtx); err != nil {
		m.active = false
		return fmt.Errorf("%w: %v", ErrMasterUnresponsive, err)
	}

	if err := m.driver.Navigate(ctx, m.adapter.EntryURL()); err != nil {
		m.active = false
		return fmt.Errorf("soft recovery navigation failed: %w", err)
	}

	ok, err := m.adapter.PerformLogin(ctx, m.driver)
	if err != nil {
		m.active = false
		return fmt.Errorf("soft recovery login failed: %w", err)
	}
	if !ok {
		m.active = false
		return fmt.Errorf("portal rejected soft recovery login")
	}

	m.active = true
	m.lastCheckedAt = time.Now()
	return nil
}

// RecoverHard tears the master browser down and relaunches it on the same
// profile directory, then re-establishes the session.
func (m *Manager) RecoverHard(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownLocked()
	return m.establishLocked(ctx)
}

// RecoverNuclear discards the master profile directory itself: the current
// profile is moved aside as a backup, the browser is relaunched on an empty
// directory and a fresh login performed. If that fresh login fails the backup
// is restored so the next ladder run starts from known state rather than an
// empty profile.
func (m *Manager) RecoverNuclear(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.shutdownLocked()

	backupPath, err := m.profiles.Backup(m.portal.MasterProfilePath)
	if err != nil {
		return fmt.Errorf("failed to back up master profile: %w", err)
	}

	m.logger.Warn().
		Str("company", m.portal.Company).
		Str("backup", backupPath).
		Msg("Master profile moved aside for nuclear recovery")

	if err := m.establishLocked(ctx); err != nil {
		m.logger.Error().Err(err).
			Str("company", m.portal.Company).
			Msg("Fresh login after profile reset failed, restoring backup")

		m.shutdownLocked()
		if derr := m.profiles.Delete(m.portal.MasterProfilePath); derr != nil {
			m.logger.Warn().Err(derr).Msg("Failed to clear fresh profile before restore")
		}
		if rerr := m.profiles.Restore(backupPath, m.portal.MasterProfilePath); rerr != nil {
			m.logger.Error().Err(rerr).
				Str("backup", backupPath).
				Msg("Failed to restore master profile backup")
		}
		return fmt.Errorf("nuclear recovery fresh login failed: %w", err)
	}

	// Fresh session is live, the old profile is no longer needed
	if err := m.profiles.Delete(backupPath); err != nil {
		m.logger.Warn().Err(err).Str("backup", backupPath).Msg("Failed to remove stale profile backup")
	}

	return nil
}

var _ interfaces.MasterSession = (*Manager)(nil)
