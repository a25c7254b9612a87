// -----------------------------------------------------------------------
// Application - dependency wiring and lifecycle
// -----------------------------------------------------------------------

package app

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/browser"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/common"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/handlers"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/interfaces"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/portal"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/profile"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/scheduler"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/services/blobs"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/services/events"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/services/ocr"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/session"
	storagebadger "github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/storage/badger"
	"github.com/LamynaalsTechnologies/Rayal-policy-form-automation-sub001/internal/watcher"
)

// App holds every wired component and owns their lifecycle
type App struct {
	Config *common.Config
	Logger arbor.ILogger

	ctx       context.Context
	cancelCtx context.CancelFunc

	// Storage
	DB          *storagebadger.BadgerDB
	JobStore    interfaces.JobStore
	IntakeStore interfaces.IntakeStore

	// Shared services
	EventService interfaces.EventService
	Profiles     interfaces.ProfileStore
	Browsers     interfaces.BrowserProvider
	OCRService   interfaces.OCRService
	Screenshots  interfaces.ScreenshotStore

	// Per-portal supervisors, keyed by company
	Sessions   map[string]*session.Manager
	Recoveries map[string]interfaces.RecoveryCoordinator
	Runtimes   map[string]*scheduler.PortalRuntime

	// Orchestration
	Scheduler *scheduler.Scheduler
	Watcher   *watcher.Service

	// HTTP handlers
	JobHandler    *handlers.JobHandler
	StatusHandler *handlers.StatusHandler
	IntakeHandler *handlers.IntakeHandler
}

// New initializes the application with all dependencies. Nothing is started
// yet; Start launches the master sessions and background loops.
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	if len(cfg.Portals) == 0 {
		return nil, fmt.Errorf("at least one portal must be configured")
	}

	ctx, cancel := context.WithCancel(context.Background())
	app := &App{
		Config:    cfg,
		Logger:    logger,
		ctx:       ctx,
		cancelCtx: cancel,
	}

	if err := app.initStorage(); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := app.initServices(); err != nil {
		cancel()
		app.DB.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initPortals()
	app.initHandlers()

	return app, nil
}

func (a *App) initStorage() error {
	db, err := storagebadger.NewBadgerDB(a.Logger, &a.Config.Storage.Badger)
	if err != nil {
		return err
	}
	a.DB = db
	a.JobStore = storagebadger.NewJobStorage(db, &a.Config.Scheduler, a.Logger)
	a.IntakeStore = storagebadger.NewIntakeStorage(db, a.Config.Storage.Badger.IntakePrefix, a.Logger)
	return nil
}

func (a *App) initServices() error {
	a.EventService = events.NewService(a.Logger)

	// Default critical hook: an exhausted recovery ladder means no further
	// automatic repair will happen for that portal
	if err := a.EventService.Subscribe(interfaces.EventRecoveryExhausted, func(ctx context.Context, event interfaces.Event) error {
		a.Logger.Error().
			Str("reason", fmt.Sprint(event.Payload["reason"])).
			Msg("Recovery ladder exhausted, operator intervention required")
		return nil
	}); err != nil {
		return err
	}
	a.Profiles = profile.NewStore(a.Config.Browser.CloneSkipSize, a.Logger)
	a.Browsers = browser.NewProvider(a.Config.Browser, a.Logger)

	ocrService, err := ocr.NewGeminiService(&a.Config.OCR, a.Logger)
	if err != nil {
		return err
	}
	a.OCRService = ocrService

	switch a.Config.Screenshots.Backend {
	case "gcs":
		store, err := blobs.NewGCSStore(a.ctx, a.Config.Screenshots.Bucket, a.Logger)
		if err != nil {
			return err
		}
		a.Screenshots = store
	default:
		store, err := blobs.NewFileStore(a.Config.Screenshots.Dir, a.Logger)
		if err != nil {
			return err
		}
		a.Screenshots = store
	}

	return nil
}

// initPortals builds the supervisor chain for each configured portal
func (a *App) initPortals() {
	a.Sessions = make(map[string]*session.Manager, len(a.Config.Portals))
	a.Recoveries = make(map[string]interfaces.RecoveryCoordinator, len(a.Config.Portals))
	a.Runtimes = make(map[string]*scheduler.PortalRuntime, len(a.Config.Portals))

	companies := make([]string, 0, len(a.Config.Portals))
	for i := range a.Config.Portals {
		portalCfg := &a.Config.Portals[i]
		companies = append(companies, portalCfg.Company)

		adapter := portal.NewAdapter(portalCfg, portal.DefaultSelectors(), a.OCRService, a.Config.OCR.RateLimitDuration(), a.Logger)
		filler := portal.NewFormFiller(portal.DefaultFormSelectors(), a.Logger)

		mgr := session.NewManager(portalCfg, adapter, a.Browsers, a.Profiles, &a.Config.Session, a.Logger)
		coordinator := session.NewCoordinator(a.ctx, mgr, &a.Config.Session, a.EventService, a.Logger)

		a.Sessions[portalCfg.Company] = mgr
		a.Recoveries[portalCfg.Company] = coordinator
		a.Runtimes[portalCfg.Company] = &scheduler.PortalRuntime{
			Portal:      portalCfg,
			Session:     mgr,
			Recovery:    coordinator,
			Adapter:     adapter,
			Filler:      filler,
			Profiles:    a.Profiles,
			Browsers:    a.Browsers,
			Screenshots: a.Screenshots,
		}
	}

	a.Scheduler = scheduler.NewScheduler(&a.Config.Scheduler, &a.Config.Session, a.JobStore, a.EventService, a.Runtimes, a.Logger)
	a.Watcher = watcher.NewService(a.IntakeStore, a.JobStore, a.EventService, companies, a.Logger)
}

func (a *App) initHandlers() {
	a.JobHandler = handlers.NewJobHandler(a.JobStore, a.Logger)
	a.StatusHandler = handlers.NewStatusHandler(a.Recoveries, a.Logger)
	a.IntakeHandler = handlers.NewIntakeHandler(a.IntakeStore, a.Logger)
}

// Start establishes every portal's master session, then launches the watcher
// and scheduler. A portal whose master cannot log in is fatal: running
// without it would silently strand that company's jobs.
func (a *App) Start() error {
	for company, mgr := range a.Sessions {
		a.Logger.Info().Str("company", company).Msg("Establishing master session")
		if err := mgr.Initialize(a.ctx); err != nil {
			return fmt.Errorf("failed to establish master session for %s: %w", company, err)
		}
	}

	common.SafeGoWithContext(a.ctx, a.Logger, "ingestion-watcher", func() {
		a.Watcher.Start(a.ctx)
	})

	if err := a.Scheduler.Start(a.ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	a.Logger.Info().Int("portals", len(a.Sessions)).Msg("Application started")
	return nil
}

// Close stops background work and releases every resource, in reverse
// dependency order
func (a *App) Close() {
	a.cancelCtx()

	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}

	for company, mgr := range a.Sessions {
		a.Logger.Debug().Str("company", company).Msg("Shutting down master session")
		mgr.Shutdown()
	}

	if a.EventService != nil {
		a.EventService.Close()
	}

	if closer, ok := a.Screenshots.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Screenshot store close reported error")
		}
	}

	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Database close reported error")
		}
	}

	a.Logger.Info().Msg("Application stopped")
}
