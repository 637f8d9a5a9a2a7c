package main

import (
	"context"
	stderrors "errors"
	"fmt"
	"hobby-relay/auth"
	"hobby-relay/contract"
	"hobby-relay/infrastructure/websocket"
	"hobby-relay/moderation"
	"hobby-relay/observability"
	"hobby-relay/repositories"
	"hobby-relay/runtime"
	"hobby-relay/runtime/workers"
	"hobby-relay/services"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/blugelabs/bluge"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component and blocks until a signal or a server error.
// Deferred cleanups close the stores after the workers are stopped.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Message log (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	messageRepository, err := repositories.NewMessageRepository(db, log)
	if err != nil {
		return err
	}
	defer func() { _ = messageRepository.Close() }()

	// 3. Search index (Bluge)
	searchIndex, closeIndex, err := openSearchIndex(config.BlugeFilepath, log)
	if err != nil {
		return fmt.Errorf("search index opening failed: %w", err)
	}
	defer closeIndex()

	// 4. Topic filter
	filter, err := loadTopicFilter(config.BannedTopics, log)
	if err != nil {
		return err
	}

	// 5. Supervision, dispatch & metrics
	registry := runtime.NewRegistry()
	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetrics(promRegistry, registry)
	health := observability.NewHealthMonitor(log, registry, config.HealthInterval)

	sup := workers.NewSupervisor(log, config.RestartInterval)
	dispatcher := runtime.NewDispatcher(log, sup, registry, messageRepository, searchIndex, metrics,
		config.NumberOfShards, config.ShardBufferSize, config.StorageTimeout)
	dispatcher.SetLangConfidence(config.LangConfidence)
	dispatcher.Add(health, workers.NewChannelCapacityWorker(log, dispatcher.Queues(), metrics, config.HealthInterval))

	chatService := services.NewChatService(log, dispatcher, registry, messageRepository, searchIndex, filter, metrics,
		services.ChatConfig{
			ReplayLimit:      config.ReplayLimit,
			HistoryLimit:     config.HistoryLimit,
			MaxMessageLength: config.MaxMessageLength,
			FilterMessages:   config.FilterMessages,
			StorageTimeout:   config.StorageTimeout,
		})

	var verifier *auth.Verifier
	if config.TokenSecret != "" {
		verifier = auth.NewVerifier(config.TokenSecret)
		log.Info("Handshake tokens required")
	}

	// 6. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Start(ctx)
		close(dispatcherDone)
	}()

	// 7. HTTP Server
	chatServer := websocket.NewChatServer(log, chatService, verifier, health, promRegistry, metrics,
		strings.Split(config.AllowedOrigins, ","),
		websocket.SessionConfig{
			BufferSize:        config.ConnectionBufferSize,
			WriteWait:         config.WriteWait,
			PongWait:          config.PongWait,
			MaxMessageSize:    config.MaxMessageSize,
			RateLimitBurst:    config.RateLimitBurst,
			RateLimitInterval: config.RateLimitInterval,
		})

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{
		Addr:              address,
		Handler:           chatServer.Routes(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting relay", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	var runErr error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case runErr = <-errChan:
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown error", "error", err)
	}
	chatServer.CloseSessions()
	dispatcher.Stop()
	<-dispatcherDone
	log.Info("Program stopped cleanly")

	return runErr
}

// openSearchIndex opens Bluge on disk, or in memory when path is empty.
func openSearchIndex(path string, log *slog.Logger) (contract.ISearchIndex, func(), error) {
	config := bluge.InMemoryOnlyConfig()
	if path != "" {
		config = bluge.DefaultConfig(path)
	}
	writer, err := bluge.OpenWriter(config)
	if err != nil {
		return nil, nil, err
	}
	closeIndex := func() {
		log.Info("Closing search index...")
		_ = writer.Close()
	}
	return repositories.NewSearchIndex(writer, log), closeIndex, nil
}

// loadTopicFilter uses BANNED_TOPICS when set, the embedded lists otherwise.
func loadTopicFilter(bannedTopics string, log *slog.Logger) (*moderation.TopicFilter, error) {
	topics := moderation.ParseTopics(bannedTopics)
	if len(topics) == 0 {
		data, err := moderation.NewDefaultTopicLoader().LoadAll("topics")
		if err != nil {
			return nil, fmt.Errorf("topic loading failed: %w", err)
		}
		log.Info(fmt.Sprintf("%d topic files loaded [%s]", len(data.Lists), strings.Join(data.Lists, ",")))
		topics = data.Words
	}
	filter, err := moderation.NewTopicFilter(topics)
	if err != nil {
		return nil, err
	}
	log.Info(fmt.Sprintf("%d banned topics loaded", len(filter.Topics())))
	return filter, nil
}
