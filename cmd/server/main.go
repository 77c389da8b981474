package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medassist/internal/config"
	"medassist/internal/core"
	"medassist/internal/db"
	httpserver "medassist/internal/http"
	"medassist/internal/llm"
	"medassist/internal/logger"
	"medassist/internal/memory"
	"medassist/internal/rag"
	"medassist/internal/tools"
)

// version is set at build time.
var version = "dev"

const embeddingCacheTTL = 24 * time.Hour

func main() {
	rootCmd := &cobra.Command{
		Use:     "medassist",
		Short:   "Medical question answering service",
		Version: version,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat HTTP service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}

	indexCmd := &cobra.Command{
		Use:   "index",
		Short: "Manage the retrieval index",
	}
	indexCmd.AddCommand(&cobra.Command{
		Use:   "build",
		Short: "Rebuild the retrieval index from the documents directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIndexBuild(cmd.Context())
		},
	})

	toolCmd := &cobra.Command{
		Use:   "toolserver",
		Short: "Serve the facility and drug lookup tools on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			catalog, err := tools.DefaultCatalog()
			if err != nil {
				return err
			}
			tools.Version = version
			return tools.ServeStdio(tools.NewServer(catalog))
		},
	}

	rootCmd.AddCommand(serveCmd, indexCmd, toolCmd)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	store, closeStore, err := openStore(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeStore()

	index, closeCache, err := newIndex(cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()
	if err := index.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize retrieval index: %w", err)
	}

	client := llm.NewOpenAIClient(llm.Options{
		APIKey:       cfg.OpenAIKey,
		BaseURL:      cfg.OpenAIBaseURL,
		ChatModel:    cfg.ChatModel,
		SummaryModel: cfg.SummaryModel,
		JSONMode:     true,
	})

	command, args, err := toolCommand(cfg)
	if err != nil {
		return err
	}
	gateway := tools.NewGateway(tools.StdioConnector(command, args, os.Environ()), cfg.ToolTimeout, log)

	history := memory.NewManager(store, core.NewSummarizer(client), cfg.ModelTimeout, log)
	reasoner := core.NewReasoner(client, store, cfg.ModelTimeout, log)
	pipeline := core.NewOrchestrator(history, index, reasoner, gateway, cfg.TopK, log)
	assistant := core.NewAssistant(store, pipeline, log)

	srv := &http.Server{
		Addr:              ":" + strconv.Itoa(cfg.Port),
		Handler:           httpserver.NewServer(assistant, store, gateway, log),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("listening", "addr", srv.Addr, "chunks", index.Len())
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func runIndexBuild(ctx context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	index, closeCache, err := newIndex(cfg, log)
	if err != nil {
		return err
	}
	defer closeCache()
	if err := index.Build(ctx); err != nil {
		return fmt.Errorf("build retrieval index: %w", err)
	}
	fmt.Printf("indexed %d chunks into %s\n", index.Len(), cfg.IndexPath)
	return nil
}

func openStore(ctx context.Context, cfg *config.Config, log *logger.Logger) (core.Store, func(), error) {
	driver, dsn, err := cfg.Database()
	if err != nil {
		return nil, nil, err
	}
	if driver == db.DriverMemory {
		log.Warn("conversation history is kept in memory only")
		return db.NewMemoryStore(), func() {}, nil
	}

	conn, err := db.Open(ctx, driver, dsn)
	if err != nil {
		return nil, nil, err
	}
	var notifier *db.Notifier
	if driver == db.DriverPostgres && cfg.NotifyChannel != "" {
		notifier = db.NewNotifier(conn, cfg.NotifyChannel)
	}
	repo := db.NewRepository(conn, driver, notifier, log)
	return repo, func() { conn.Close() }, nil
}

func newIndex(cfg *config.Config, log *logger.Logger) (*rag.Index, func(), error) {
	opts := rag.Options{DocsDir: cfg.DocsDir, Path: cfg.IndexPath}
	closeCache := func() {}
	if cfg.RedisURL != "" {
		cache, err := rag.NewRedisCache(cfg.RedisURL, embeddingCacheTTL)
		if err != nil {
			return nil, nil, err
		}
		opts.Cache = cache
		closeCache = func() { cache.Close() }
	}
	embedder := llm.NewOpenAIEmbedder(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	return rag.NewIndex(embedder, opts, log), closeCache, nil
}

// toolCommand returns the tool server command line, defaulting to this
// binary's toolserver subcommand.
func toolCommand(cfg *config.Config) (string, []string, error) {
	if cfg.ToolServerCommand != "" {
		return cfg.ToolServerCommand, cfg.ToolServerArgs, nil
	}
	self, err := os.Executable()
	if err != nil {
		return "", nil, fmt.Errorf("locate tool server binary: %w", err)
	}
	return self, []string{"toolserver"}, nil
}
