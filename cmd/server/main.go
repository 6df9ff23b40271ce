package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/joho/godotenv"

	"bumpfeed/auth"
	"bumpfeed/directory"
	"bumpfeed/domain"
	"bumpfeed/domain/event"
	"bumpfeed/engagement"
	"bumpfeed/internal"
	"bumpfeed/observability"
	"bumpfeed/repositories"
	"bumpfeed/runtime"
	"bumpfeed/runtime/workers"
	"bumpfeed/server"
	"bumpfeed/transport"
	"bumpfeed/warmth"
)

// Exit codes to provide meaningful status to the operating system or
// service manager (e.g., systemd).
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// The main function acts as a thin wrapper. Its only responsibility
	// is to call run() and handle the OS exit code.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Engagement engine terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting. This pattern is preferred over calling
// os.Exit or panic directly because it ensures all defers (like the
// database close) execute, and it decouples initialization from the
// entry point for testability.
func run() (int, error) {
	// 1. Configuration & logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := internal.LoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).WithLoggingLevel(badger.WARNING))
	if err != nil {
		return exitRuntime, fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		// Defer ensures the database lock is released and buffers are
		// flushed before run() returns.
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories, directory & scoring
	activityRepo := repositories.NewActivityRepository(db, log, config.ActivityRetention)
	warmthRepo := repositories.NewWarmthHistoryRepository(db, log)
	familyDirectory := directory.NewHTTPDirectory(log, config.DirectoryBaseURL, config.DirectoryTimeout)

	classifier, err := warmth.NewKeywordClassifier(warmth.DefaultLexicons())
	if err != nil {
		return exitRuntime, fmt.Errorf("classifier build failed: %w", err)
	}
	scorerTuning := warmth.DefaultTuning()
	scorerTuning.Window = config.WarmthWindow
	scorerTuning.CacheTTL = config.WarmthCacheTTL
	scorer := warmth.NewScorer(log, scorerTuning, classifier, warmthRepo)

	// 4. Engines
	events := make(chan event.Outbound, config.EventBufferSize)
	comments := engagement.NewCommentEngine(log, domain.DefaultCommentTuning(), familyDirectory, events)
	reactions := engagement.NewReactionProcessor(log, domain.DefaultReactionTuning(),
		config.DedupWindow, familyDirectory, comments, events)

	// 5. Runtime: registry, dispatcher, router, hub
	monitoring := observability.NewMonitoring(log)
	registry := runtime.NewRegistry()
	dispatcher := runtime.NewDispatcher(log, registry, monitoring, config.SinkTimeout)
	authorizer := directory.NewAuthorizer(log, familyDirectory)
	router := runtime.NewRouter(log, registry, dispatcher, authorizer, reactions, comments, activityRepo, events)

	supervisor := workers.NewSupervisor(log)
	hub := runtime.NewHub(log, registry, dispatcher, supervisor, router, reactions, comments,
		scorer, familyDirectory, activityRepo, events, monitoring, runtime.HubTimings{
			HeartbeatInterval: config.HeartbeatInterval,
			CleanupInterval:   config.CleanupInterval,
			StaleTimeout:      config.StaleTimeout,
			TypingWindow:      config.TypingWindow,
		})

	// 6. Context & signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go hub.Start(ctx)
	defer hub.Stop()

	// 7. HTTP edge
	verifier := auth.NewVerifier([]byte(config.JWTSecret), config.JWTIssuer)
	wsHandler := transport.NewHandler(log, hub, verifier, config.InstanceID, config.ConnectionBufferSize)
	httpServer := server.New(log, hub, reactions, registry, verifier, monitoring, wsHandler)

	addr := fmt.Sprintf("%s:%d", config.Host, config.Port)
	if err := httpServer.Run(ctx, addr, config.ShutdownDeadline); err != nil {
		return exitRuntime, err
	}

	log.Info("Program stopped cleanly")
	return exitOK, nil
}
