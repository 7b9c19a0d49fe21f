package main

import (
	"chat-sync/auth"
	"chat-sync/infrastructure/websocket"
	"chat-sync/moderation"
	"chat-sync/repositories"
	"chat-sync/runtime"
	"chat-sync/runtime/workers"
	"context"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run wires every component, serves until a signal arrives and shuts down
// in reverse order. Deferred cleanups run before main exits.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	scope, err := config.scope()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	replacement, err := config.replacement()
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	tokens, err := auth.NewTokens(config.JWTSecret)
	if err != nil {
		return fmt.Errorf("config error: %w", err)
	}

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Moderation
	censored, err := moderation.NewEmbeddedLoader().LoadAll("censored")
	if err != nil {
		return fmt.Errorf("censored words loading failed: %w", err)
	}
	log.Info(fmt.Sprintf("%d censored files loaded [%s]", len(censored.Languages), strings.Join(censored.Languages, ",")),
		"words", len(censored.Words))
	moderator, err := moderation.NewModerator(censored.Words, replacement, log)
	if err != nil {
		return fmt.Errorf("moderator build failed: %w", err)
	}

	// 4. Supervision & Orchestration
	registry := runtime.NewRegistry()
	orchestrator := runtime.NewOrchestrator(
		log,
		workers.NewSupervisor(log, config.RestartInterval),
		registry,
		repositories.NewMessageRepository(db, log, &config.LimitMessages),
		repositories.NewMembershipRepository(db, log),
		moderator,
		runtime.Settings{
			NumWorkers:        config.NumberOfWorkers,
			PersistBufferSize: config.PersistBufferSize,
			TypingTimeout:     config.TypingTimeout,
			PresenceScope:     scope,
			MaxContentLength:  config.MaxContentLength,
		},
	)
	orchestrator.Add(workers.NewStatsWorker(log, registry, config.StatsInterval))

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	orchestratorDone := make(chan struct{})
	go func() {
		defer close(orchestratorDone)
		_ = orchestrator.Start(ctx)
	}()

	// 6. Websocket Server
	transport := websocket.NewServer(ctx, log, orchestrator, tokens, websocket.Settings{
		SendBufferSize: config.ConnectionBufferSize,
		MaxMessageSize: config.MaxMessageSize,
		WriteTimeout:   config.WriteTimeout,
		PongTimeout:    config.PongTimeout,
		AllowedOrigins: config.origins(),
	})
	server := &http.Server{
		Addr:              config.address(),
		Handler:           transport.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting websocket server", "address", server.Addr, "presence_scope", scope, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !stderrors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 7. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		orchestrator.Stop()
		<-orchestratorDone
		return err
	}

	// 8. Final Cleanup: stop accepting, close sockets, drain persistence
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn("HTTP server shutdown incomplete", "error", err)
	}
	transport.Shutdown()
	orchestrator.Stop()
	<-orchestratorDone
	log.Info("Program stopped cleanly")

	return nil
}
