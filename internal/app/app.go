package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/voicenote/internal/common"
	"github.com/ternarybob/voicenote/internal/handlers"
	"github.com/ternarybob/voicenote/internal/interfaces"
	"github.com/ternarybob/voicenote/internal/jobs"
	"github.com/ternarybob/voicenote/internal/mcp"
	"github.com/ternarybob/voicenote/internal/pipeline"
	"github.com/ternarybob/voicenote/internal/services/events"
	"github.com/ternarybob/voicenote/internal/services/export"
	"github.com/ternarybob/voicenote/internal/services/janitor"
	"github.com/ternarybob/voicenote/internal/services/llm"
	"github.com/ternarybob/voicenote/internal/services/notes"
	"github.com/ternarybob/voicenote/internal/storage"
)

const defaultShutdownTimeout = 30 * time.Second

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Event-driven services
	EventService interfaces.EventService

	// Pipeline stages
	Acquirer    *pipeline.Acquirer
	Transcriber *pipeline.Transcriber
	LLM         *llm.ProviderFactory
	Synthesizer *notes.Synthesizer

	// Job supervision
	Registry     *jobs.Registry
	Orchestrator *jobs.Orchestrator
	JobService   *jobs.Service

	// Supporting services
	Janitor  *janitor.Janitor // Nil when disabled
	Exporter *export.Service

	// MCP endpoint
	MCPServer *mcp.Server

	// HTTP handlers
	APIHandler      *handlers.APIHandler
	JobHandler      *handlers.JobHandler
	WSHandler       *handlers.WebSocketHandler
	EventSubscriber *handlers.EventSubscriber
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize database
	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// Event bus first so every service can publish
	app.EventService = events.NewService(app.Logger)
	if err := events.SubscribeLoggerToAllEvents(app.EventService, app.Logger); err != nil {
		app.Logger.Warn().Err(err).Msg("Failed to subscribe event logger")
	}

	// Initialize services
	if err := app.initServices(); err != nil {
		app.Close()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Initialize handlers
	app.initHandlers()

	logger.Info().
		Str("llm_provider", string(cfg.LLM.DefaultProvider)).
		Bool("janitor_enabled", app.Janitor != nil).
		Bool("reconcile_on_startup", cfg.Jobs.ReconcileOnStartup).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer (Badger)
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", "badger").
		Str("path", a.Config.Storage.Badger.Path).
		Msg("Storage layer initialized")

	return nil
}

// initServices initializes all business services in dependency order:
// pipeline stages, the LLM provider and synthesizer, then the job
// supervisor that drives them.
func (a *App) initServices() error {
	cfg := a.Config

	// 1. Pipeline stages
	runner := pipeline.NewExecRunner(a.Logger)
	scraper := pipeline.NewPageScraper(common.ParseDuration(cfg.Pipeline.MetadataTimeout, 30*time.Second), a.Logger)
	a.Acquirer = pipeline.NewAcquirer(cfg, runner, scraper, a.Logger)
	a.Transcriber = pipeline.NewTranscriber(cfg, runner, a.Logger)

	// 2. Note generation
	a.LLM = llm.NewProviderFactory(&cfg.Gemini, &cfg.Claude, &cfg.LLM, a.Logger)
	a.Synthesizer = notes.NewSynthesizerFromConfig(a.LLM, cfg, a.Logger)

	// 3. Job supervision. The orchestrator and the service share one registry.
	a.Registry = jobs.NewRegistry()
	a.Orchestrator = jobs.NewOrchestrator(
		a.StorageManager,
		a.Acquirer,
		a.Transcriber,
		a.Synthesizer,
		a.Registry,
		a.EventService,
		a.Logger,
	)
	a.JobService = jobs.NewService(
		a.StorageManager,
		a.Orchestrator,
		a.Registry,
		jobs.NewSourceValidator(cfg.Pipeline.AllowedExtensions),
		a.EventService,
		a.Logger,
	)
	a.JobService.SetListLimit(cfg.Jobs.ListLimit)

	if cfg.Jobs.ReconcileOnStartup {
		reconciled, err := a.JobService.ReconcileOrphans(context.Background())
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to reconcile orphaned jobs")
		} else {
			a.Logger.Info().Int("reconciled", reconciled).Msg("Orphaned jobs reconciled")
		}
	}

	// 4. Artifact janitor
	if cfg.Janitor.Enabled {
		a.Janitor = janitor.NewJanitor(cfg, a.JobService, a.Logger)
		if err := a.Janitor.Start(); err != nil {
			return fmt.Errorf("failed to start janitor: %w", err)
		}
	}

	// 5. Exports and MCP
	a.Exporter = export.NewService(a.Logger)
	a.MCPServer = mcp.NewServer(a.JobService, a.Logger)

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.JobService, a.Logger)
	a.JobHandler = handlers.NewJobHandler(
		a.JobService,
		a.Exporter,
		a.Config.Storage.Filesystem.UploadDir,
		a.Config.MaxUploadBytes(),
		a.Logger,
	)
	a.WSHandler = handlers.NewWebSocketHandler(a.Logger)
	a.EventSubscriber = handlers.NewEventSubscriber(a.WSHandler, a.EventService, a.Logger, &a.Config.WebSocket)
}

// Close stops job workers, then the supporting services, then storage.
// The HTTP server must already be shut down.
func (a *App) Close() error {
	var errs []error

	if a.JobService != nil {
		timeout := common.ParseDuration(a.Config.Jobs.ShutdownTimeout, defaultShutdownTimeout)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		if err := a.JobService.Shutdown(ctx); err != nil {
			a.Logger.Warn().Err(err).Dur("timeout", timeout).Msg("Job workers did not stop in time")
		}
		cancel()
	}

	if a.Janitor != nil {
		a.Janitor.Stop()
		a.Logger.Info().Msg("Janitor stopped")
	}

	if a.EventSubscriber != nil {
		a.EventSubscriber.Close()
	}

	if a.LLM != nil {
		if err := a.LLM.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close LLM provider")
		}
	}

	// Close event service
	if a.EventService != nil {
		if err := a.EventService.Close(); err != nil {
			a.Logger.Warn().Err(err).Msg("Failed to close event service")
		}
	}

	// Close storage
	if a.StorageManager != nil {
		if err := a.StorageManager.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close storage: %w", err))
		} else {
			a.Logger.Info().Msg("Storage closed")
		}
	}

	return errors.Join(errs...)
}
