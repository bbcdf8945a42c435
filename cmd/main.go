package main

import (
	"chat-relay/auth"
	"chat-relay/gateway"
	"chat-relay/internal"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"chat-relay/sink"
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
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

// run initializes all components, manages the server lifecycle, and
// centralizes error reporting. This pattern is preferred over calling
// os.Exit or panic directly because:
// 1. It ensures all 'defer' statements (like database cleanup) are executed
//    before the program exits.
// 2. It improves testability by decoupling initialization from the entry
//    point.
// 3. It provides a structured way to handle graceful shutdowns for the
//    HTTP server and background workers.
func run() error {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Database (BadgerDB)
	db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
		WithLoggingLevel(badger.WARNING))
	if err != nil {
		return fmt.Errorf("database opening failed: %w", err)
	}
	defer func() {
		log.Info("Closing BadgerDB...")
		_ = db.Close()
	}()

	// 3. Repositories & Registries
	messageRepository := repositories.NewMessageRepository(db, log)
	membershipRepository := repositories.NewMembershipRepository(db, log)
	conversationRepository := repositories.NewConversationRepository(db, log)
	presence := runtime.NewPresence()
	router := runtime.NewRouter()

	// 4. Supervision & Orchestration
	sup := workers.NewSupervisor(log, config.RestartInterval)
	orchestrator := runtime.NewOrchestrator(log, sup, presence, router,
		membershipRepository, messageRepository, conversationRepository,
		config.BufferSize, config.SinkTimeout)
	orchestrator.Add(sink.NewTelemetry(log))
	sup.Add(workers.NewHeartbeatWorker(log, config.HeartbeatInterval, orchestrator.Stats))

	syncService := services.NewSyncService(membershipRepository, messageRepository,
		config.SyncBatchSize, log)
	chatService := services.NewChatService(orchestrator, syncService, membershipRepository)

	// 5. Context & Signals
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 6. Start the Engine
	if err = orchestrator.Start(ctx); err != nil {
		return fmt.Errorf("orchestrator failed to start: %w", err)
	}

	// 7. Gateway & HTTP server
	verifier := auth.NewVerifier([]byte(config.JWTSecret))
	ws := gateway.NewGateway(log, verifier, chatService,
		config.ConnectionBufferSize, config.WriteTimeout, config.PingInterval)

	mux := http.NewServeMux()
	mux.Handle("/ws", ws.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if config.DebugPort > 0 {
		internal.StartDebugServer(db, config.DebugPort, "/inspect",
			MessageMapper, orchestrator.Stats)
		log.Info("Debug inspector started", "port", config.DebugPort)
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: mux}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting gateway", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("http server error: %w", err)
		}
	}()

	// 8. Wait for Stop or Error
	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	// 9. Final Cleanup
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	orchestrator.Stop()
	log.Info("Program stopped cleanly")

	return nil
}
