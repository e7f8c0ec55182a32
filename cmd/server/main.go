package main

import (
	"chat-dm/auth"
	"chat-dm/infrastructure/api"
	"chat-dm/infrastructure/websocket"
	"chat-dm/internal"
	"chat-dm/repositories"
	"chat-dm/runtime"
	"chat-dm/runtime/workers"
	"chat-dm/services"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
)

// Exit codes to provide meaningful status to the operating system or service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Server terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of exiting lets every defer (database close first) run.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	logger := logs.GetLoggerFromString(config.LogLevel)

	ctx := context.Background()

	// 2. Database (BadgerDB)
	db, err := badger.Open(buildBadgerOpts(config, logger, ctx))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		logger.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	if logger.Enabled(ctx, slog.LevelDebug) {
		endpoint := "/inspect"
		logger.Info("Debug Badger inspector available", "url", fmt.Sprintf("http://localhost:%d%s", config.DebugPort, endpoint))
		database.StartDebugServer(db, config.DebugPort, endpoint, RecordMapper)
	}

	// 3. Core: repositories, identity, presence and routing
	userRepository := repositories.NewUserRepository(db)
	messageRepository := repositories.NewMessageRepository(db, logger, config.LimitMessages)

	tokens := auth.NewTokenIssuer(config.JWTSecret, config.AuthTokenDuration)
	authenticator := auth.NewAuthenticator(tokens, userRepository, config.AuthTimeout)

	registry := runtime.NewRegistry()
	broadcaster := runtime.NewBroadcaster(registry, logger, config.DeliveryTimeout)
	router := runtime.NewRouter(userRepository, messageRepository, broadcaster, logger,
		config.PersistenceTimeout, config.MaxContentLength)
	sessions := runtime.NewSessionManager(authenticator, registry, broadcaster, router, userRepository,
		logger, config.PresenceTimeout)

	authService := services.NewAuthService(userRepository, tokens, registry, sessions)
	messageService := services.NewMessageService(messageRepository, router)

	// 4. Transports
	wsServer := websocket.NewServer(sessions, logger, config.Origins(), config.ConnectionBufferSize, config.DeliveryTimeout)
	handler := api.NewRouter(logger, authService, messageService, authenticator, wsServer, config.Origins())

	httpServer := workers.NewHTTPServer(config.Address(), handler, logger, config.ShutdownTimeout)
	httpServer.RegisterOnShutdown(wsServer.CloseAll)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Supervision
	sup := workers.NewSupervisor(logger, config.RestartInterval).
		Add(
			httpServer,
			workers.NewHealthServer(logger, config.HealthAddress()),
			workers.NewPresenceReconciler(sessions, logger, config.ReconcileInterval),
		)
	sup.Run(ctx)

	// 7. Final Cleanup (Graceful Shutdown)
	// Every websocket session must release its presence before badger closes.
	logger.Info("Shutting down gracefully...")
	wsServer.CloseAll()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), config.ShutdownTimeout)
	defer cancel()
	if err := wsServer.Wait(shutdownCtx); err != nil {
		logger.Warn("Websocket sessions still open at shutdown", "error", err)
	}
	logger.Info("Program stopped cleanly")

	return exitOK, nil
}

func buildBadgerOpts(config internal.Config, logger *slog.Logger, ctx context.Context) badger.Options {
	options := badger.DefaultOptions(config.BadgerFilepath)

	if logger.Enabled(ctx, slog.LevelDebug) {
		options = options.WithLoggingLevel(badger.DEBUG).
			WithBypassLockGuard(true)
	} else {
		options = options.WithLoggingLevel(badger.WARNING)
	}

	return options
}

// RecordMapper labels users and messages in the debug inspector.
func RecordMapper(key string, val []byte) database.InspectRow {
	row := database.DefaultMapper(key, val)
	row.Type, row.Detail = repositories.Describe(key, val)
	return row
}
