package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/wingleeio/chat-zeron/internal/api"
	"github.com/wingleeio/chat-zeron/internal/blob"
	"github.com/wingleeio/chat-zeron/internal/config"
	"github.com/wingleeio/chat-zeron/internal/database"
	"github.com/wingleeio/chat-zeron/internal/imagegen"
	"github.com/wingleeio/chat-zeron/internal/llm"
	"github.com/wingleeio/chat-zeron/internal/log"
	"github.com/wingleeio/chat-zeron/internal/research"
	"github.com/wingleeio/chat-zeron/internal/store"
	"github.com/wingleeio/chat-zeron/internal/stream"
	"github.com/wingleeio/chat-zeron/internal/tools"
	"github.com/wingleeio/chat-zeron/internal/turn"
	"github.com/wingleeio/chat-zeron/internal/websearch"
)

// Server timeouts. WriteTimeout covers SSE streaming, so it is generous.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 5 * time.Minute
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe()
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := log.New(log.Config{Level: parseLevel(cfg.Log.Level), JSON: cfg.Log.JSON})
	logger.Info("starting server", "version", Version)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := database.Migrate(cfg.Postgres.URL); err != nil {
		return fmt.Errorf("migrating database: %w", err)
	}
	pool, err := database.Open(ctx, cfg.Postgres.URL)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer pool.Close()
	st := store.New(pool, logger)

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	defer rdb.Close()
	publisher := stream.NewPublisher(rdb, cfg.Stream.StaleAfter, logger)
	if err := publisher.Ping(ctx); err != nil {
		return fmt.Errorf("connecting to redis: %w", err)
	}

	llmClient, err := llm.NewClient(ctx, cfg.AI.GeminiAPIKey, logger)
	if err != nil {
		return fmt.Errorf("initializing model client: %w", err)
	}

	var blobs blob.Store
	if cfg.Blob.Bucket != "" {
		blobs, err = blob.NewS3(ctx, blob.S3Config{
			Endpoint:  cfg.Blob.Endpoint,
			Region:    cfg.Blob.Region,
			Bucket:    cfg.Blob.Bucket,
			AccessKey: cfg.Blob.AccessKey,
			SecretKey: cfg.Blob.SecretKey,
		})
		if err != nil {
			return fmt.Errorf("initializing blob store: %w", err)
		}
	} else {
		logger.Warn("no blob bucket configured, generated images are kept in memory")
		blobs = blob.NewMemory()
	}
	images, err := imagegen.New(ctx, cfg.AI.GeminiAPIKey, cfg.AI.ImageModel, blobs, logger)
	if err != nil {
		return fmt.Errorf("initializing image generation: %w", err)
	}

	searcher := websearch.NewClient(cfg.Search.Endpoint, cfg.Search.APIKey, nil, logger)
	extractor := websearch.NewExtractor(nil, logger)

	guard := &tools.CreditGuard{
		FreeLimit:    cfg.Credits.FreeLimit,
		PremiumLimit: cfg.Credits.PremiumLimit,
	}
	agent, err := research.New(research.Config{
		Genkit:    llmClient.Instance(),
		Searcher:  searcher,
		Fetcher:   extractor,
		ModelName: cfg.AI.ResearchModel,
		Logger:    logger,
	})
	if err != nil {
		return fmt.Errorf("initializing research agent: %w", err)
	}
	registry, err := tools.NewRegistry(tools.Config{
		Genkit:   llmClient.Instance(),
		Searcher: searcher,
		Images:   images,
		Research: agent.Run,
		Guard:    guard,
		Costs: tools.Costs{
			Search:   cfg.Credits.SearchCost,
			Image:    cfg.Credits.ImageCost,
			Research: cfg.Credits.ResearchCost,
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("initializing tool registry: %w", err)
	}

	controller, err := turn.New(turn.Config{
		Store:            st,
		Publisher:        publisher,
		Generator:        llmClient,
		Tools:            registry,
		Guard:            guard,
		Blobs:            blobs,
		Temperature:      cfg.AI.Temperature,
		MaxTurns:         cfg.AI.MaxTurns,
		TitleModel:       cfg.AI.TitleModel,
		CancelPollFrames: cfg.Stream.CancelPollFrames,
		Logger:           logger,
	})
	if err != nil {
		return fmt.Errorf("initializing turn controller: %w", err)
	}
	defer controller.Close()

	apiServer, err := api.NewServer(api.Config{
		Turns:    controller,
		Streams:  publisher,
		Store:    st,
		Resolver: api.HeaderResolver{Header: "X-User-ID"},
		DB:       st,
		Cache:    publisher,
		Logger:   logger,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           apiServer,
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("HTTP server ready", "addr", cfg.Server.Addr)
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
