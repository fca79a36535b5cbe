package app

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/storyagent/internal/common"
	"github.com/ternarybob/storyagent/internal/handlers"
	"github.com/ternarybob/storyagent/internal/interfaces"
	"github.com/ternarybob/storyagent/internal/services/llm"
	"github.com/ternarybob/storyagent/internal/services/story"
	"github.com/ternarybob/storyagent/internal/storage"
	"github.com/ternarybob/storyagent/internal/worker"
)

// App holds all application components and dependencies
type App struct {
	Config         *common.Config
	Logger         arbor.ILogger
	StorageManager interfaces.StorageManager

	// Services
	LLMService   interfaces.GroundedSearchService
	StoryService *story.Service
	WorkerPool   *worker.WorkerPool

	// HTTP handlers
	APIHandler     *handlers.APIHandler
	StoryHandler   *handlers.StoryHandler
	JobLogHandler  *handlers.JobLogHandler
	ProfileHandler *handlers.ProfileHandler
}

// New initializes the application with all dependencies
func New(cfg *common.Config, logger arbor.ILogger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	if err := app.initDatabase(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := app.initServices(); err != nil {
		app.closeStorage()
		return nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	app.initHandlers()

	logger.Info().
		Str("storage", cfg.Storage.Type).
		Str("model", cfg.Gemini.Model).
		Msg("Application initialization complete")

	return app, nil
}

// initDatabase initializes the storage layer selected by storage.type
func (a *App) initDatabase() error {
	storageManager, err := storage.NewStorageManager(a.Logger, a.Config)
	if err != nil {
		return fmt.Errorf("failed to create storage manager: %w", err)
	}

	a.StorageManager = storageManager
	a.Logger.Debug().
		Str("storage", a.Config.Storage.Type).
		Msg("Storage layer initialized")
	return nil
}

// initServices initializes the model client and the story worker.
// The Gemini key is resolved per call, so a key saved through /api/profile
// takes effect without a restart.
func (a *App) initServices() error {
	a.LLMService = llm.NewGeminiService(
		&a.Config.Gemini,
		a.StorageManager.KeyValueStorage(),
		a.Logger,
	)

	storyService, err := story.NewService(
		a.StorageManager.AgentStoryStorage(),
		a.StorageManager.JobLogStorage(),
		a.LLMService,
		a.Config,
		a.Logger,
	)
	if err != nil {
		return fmt.Errorf("failed to create story service: %w", err)
	}
	a.StoryService = storyService

	a.WorkerPool = worker.NewWorkerPool(
		a.StoryService,
		a.Logger,
		a.Config.Story.Workers,
		a.Config.Story.QueueSize,
	)
	a.WorkerPool.Start()

	return nil
}

// initHandlers initializes all HTTP handlers
func (a *App) initHandlers() {
	a.APIHandler = handlers.NewAPIHandler(a.Logger)
	a.StoryHandler = handlers.NewStoryHandler(
		a.StoryService,
		a.WorkerPool,
		a.StorageManager.AgentStoryStorage(),
		&a.Config.Story,
		a.Logger,
	)
	a.JobLogHandler = handlers.NewJobLogHandler(a.StorageManager.JobLogStorage(), a.Logger)
	a.ProfileHandler = handlers.NewProfileHandler(a.StorageManager.KeyValueStorage(), a.Logger)
}

// Close drains queued analyses, then closes storage
func (a *App) Close() error {
	if a.WorkerPool != nil {
		timeout := common.ParseDurationOr(a.Config.Story.ShutdownTimeout, 2*time.Minute)
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		err := a.WorkerPool.Stop(ctx)
		cancel()
		if err != nil {
			a.Logger.Warn().Err(err).Msg("Closing storage with analyses still running")
		}
	}

	if err := a.closeStorage(); err != nil {
		return err
	}
	a.Logger.Info().Msg("Storage closed")
	return nil
}

func (a *App) closeStorage() error {
	if a.StorageManager == nil {
		return nil
	}
	if err := a.StorageManager.Close(); err != nil {
		return fmt.Errorf("failed to close storage: %w", err)
	}
	a.StorageManager = nil
	return nil
}
