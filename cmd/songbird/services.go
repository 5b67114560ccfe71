package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"songbird/internal/audio"
	"songbird/internal/chat/telegram"
	"songbird/internal/core"
	"songbird/internal/extract"
	"songbird/internal/flood"
	httpserver "songbird/internal/http"
	"songbird/internal/library"
	"songbird/internal/llm"
	"songbird/internal/recognize"
	"songbird/internal/store"
	"songbird/internal/workerpool"
	"songbird/internal/workspace"
	"songbird/pkg/oembed"
	"songbird/pkg/platform"
)

const workspaceSweepInterval = 10 * time.Minute

// pipeline holds the resolution stack shared by the bot and the one-shot commands.
type pipeline struct {
	pool         *workerpool.Pool
	metrics      *httpserver.Metrics
	workspaces   *workspace.Manager
	repository   *store.Repository
	orchestrator *core.Orchestrator
}

func (p *pipeline) close() {
	if err := p.repository.Close(); err != nil {
		logger.Warn("Failed to close repository", zap.Error(err))
	}
}

type services struct {
	*pipeline
	floodgate  *flood.Floodgate
	dispatcher *core.Dispatcher
	httpServer *httpserver.Server
}

func initializeServices(ctx context.Context) (*services, error) {
	p, err := buildPipeline(ctx)
	if err != nil {
		return nil, err
	}

	floodgate := flood.New(config.App.FloodLimitPerMinute)
	p.metrics.TrackActiveUsers(func() int { return floodgate.GetStats().ActiveUsers })

	frontend := telegram.NewFrontend(&telegram.Config{
		BotToken: config.Telegram.BotToken,
		GroupID:  config.Telegram.GroupID,
		Enabled:  config.Telegram.Enabled,
	}, logger.Named("telegram"))

	dispatcher := core.NewDispatcher(config, frontend, p.orchestrator, p.workspaces, p.repository, floodgate, logger)
	httpServer := httpserver.NewServer(&config.Server, p.metrics, p.repository, logger.Named("http"))

	return &services{
		pipeline:   p,
		floodgate:  floodgate,
		dispatcher: dispatcher,
		httpServer: httpServer,
	}, nil
}

// buildPipeline wires storage, extraction and recognition into an orchestrator.
func buildPipeline(ctx context.Context) (*pipeline, error) {
	pool := workerpool.New(config.Extract.MaxConcurrentDownloads)
	metrics := httpserver.NewMetrics(pool.InUse)

	workspaces, err := workspace.NewManager(workspace.Config{
		Root:          config.Extract.WorkspaceRoot,
		MaxAge:        config.Extract.WorkspaceMaxAge,
		SweepInterval: workspaceSweepInterval,
		OnSweep:       metrics.RecordWorkspaceSweep,
	}, logger.Named("workspace"))
	if err != nil {
		return nil, fmt.Errorf("failed to create workspace manager: %w", err)
	}

	repository, err := store.Open(ctx, config.Database.Driver, config.Database.DSN, logger.Named("store"))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	components := core.Components{
		Classify:   platform.Classify,
		Songs:      repository,
		Workspaces: workspaces,
		Metrics:    metrics,
	}

	if err := wireLibrary(ctx, &components); err != nil {
		_ = repository.Close()
		return nil, err
	}

	runner := audio.ExecRunner{}
	tools := audio.NewTools(runner, pool, config.Extract.FFmpegPath, config.Extract.FFprobePath, logger.Named("audio"))
	components.Audio = tools

	downloader := extract.NewDownloader(extract.DownloaderConfig{
		YtDlpPath: config.Extract.YtDlpPath,
		Timeout:   config.Extract.DownloadTimeout,
	}, runner, pool, tools, metrics, logger.Named("extract"))

	youtube := extract.NewYouTubeBackend(downloader)
	components.Extractors = extract.NewRegistry(
		youtube,
		extract.NewTikTokBackend(downloader, extract.NewRedirector(logger.Named("redirect")), logger.Named("tiktok")),
		extract.NewInstagramBackend(downloader),
	)
	components.Searcher = extract.NewSearchBackend(config.Extract.YtDlpPath, runner, pool, youtube, logger.Named("search"))

	components.Recognizer = recognize.NewRecognizer(
		recognize.Config{RatePerSecond: config.Recognition.RatePerSec},
		recognize.NewAudDClient(config.Recognition.APIURL, config.Recognition.APIToken),
		recognize.NewLRUCache(config.Recognition.CacheSize, config.Recognition.CacheTTL),
		pool,
		metrics,
		logger.Named("recognize"),
	)

	components.Captions = oembed.NewClient()

	provider, err := llm.NewProvider(&config.LLM, logger.Named("llm"))
	if err != nil {
		_ = repository.Close()
		return nil, fmt.Errorf("failed to create LLM provider: %w", err)
	}
	if provider.Enabled() {
		components.Guesser = provider
	}

	return &pipeline{
		pool:         pool,
		metrics:      metrics,
		workspaces:   workspaces,
		repository:   repository,
		orchestrator: core.NewOrchestrator(config, components, logger.Named("orchestrator")),
	}, nil
}

func wireLibrary(ctx context.Context, components *core.Components) error {
	if config.Library.S3Endpoint != "" {
		objects, err := library.NewObjectLibrary(ctx, library.ObjectConfig{
			Endpoint:  config.Library.S3Endpoint,
			Bucket:    config.Library.S3Bucket,
			AccessKey: config.Library.S3AccessKey,
			SecretKey: config.Library.S3SecretKey,
			UseSSL:    config.Library.S3UseSSL,
			Region:    config.Library.S3Region,
		}, logger.Named("library"))
		if err != nil {
			return fmt.Errorf("failed to create object library: %w", err)
		}
		components.Library = objects
		return nil
	}

	if config.Library.Dir == "" {
		return nil
	}

	disk, err := library.NewDiskLibrary(config.Library.Dir, logger.Named("library"))
	if err != nil {
		return fmt.Errorf("failed to create library: %w", err)
	}
	components.Library = disk
	return nil
}

func runServices(ctx context.Context, svcs *services) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return svcs.workspaces.Run(gCtx)
	})

	g.Go(func() error {
		return svcs.floodgate.Run(gCtx)
	})

	g.Go(func() error {
		return svcs.httpServer.Start(gCtx)
	})

	g.Go(func() error {
		return svcs.dispatcher.Start(gCtx)
	})

	logger.Info("Songbird started successfully",
		zap.String("server", fmt.Sprintf("%s:%d", config.Server.Host, config.Server.Port)),
		zap.Int("workers", svcs.pool.Size()))

	if err := g.Wait(); err != nil && ctx.Err() == nil {
		logger.Error("Service error", zap.Error(err))
		return err
	}

	logger.Info("Songbird stopped")
	return nil
}
