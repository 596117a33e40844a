// The demo binary wires the whole stack together: Postgres event log, NATS
// readiness signal, single-host router, and OpenTelemetry observability. It
// then walks one customer profile through its lifecycle.
package main

import (
	"context"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/entitykit/entity-lifecycle-go/eventlog/oteladapters"
	"github.com/entitykit/entity-lifecycle-go/eventlog/postgresengine"
	"github.com/entitykit/entity-lifecycle-go/example/config"
	"github.com/entitykit/entity-lifecycle-go/example/demo"
	"github.com/entitykit/entity-lifecycle-go/example/profile"
	"github.com/entitykit/entity-lifecycle-go/lifecycle"
	"github.com/entitykit/entity-lifecycle-go/projection/natssignal"
	"github.com/entitykit/entity-lifecycle-go/routing"
)

const shutdownGrace = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	providers, err := config.NewObservability(ctx, cfg.ServiceName, cfg.OTLPEndpoint)
	if err != nil {
		log.Fatalf("Failed to set up observability: %v", err)
	}
	defer func() {
		if shutdownErr := providers.Shutdown(); shutdownErr != nil {
			log.Printf("Observability shutdown failed: %v", shutdownErr)
		}
	}()

	contextualLogger := oteladapters.NewSlogBridgeLogger(cfg.ServiceName)
	metricsCollector := oteladapters.NewMetricsCollector(otel.Meter(cfg.ServiceName))
	tracingCollector := oteladapters.NewTracingCollector(otel.Tracer(cfg.ServiceName))

	pool, err := config.NewPGXPool(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer pool.Close()

	eventLog, err := postgresengine.NewEventLogFromPGXPool(pool,
		postgresengine.WithEventsTableName(cfg.EventsTable),
		postgresengine.WithSnapshotsTableName(cfg.SnapshotsTable),
		postgresengine.WithContextualLogger(contextualLogger),
		postgresengine.WithMetrics(metricsCollector),
		postgresengine.WithTracing(tracingCollector),
	)
	if err != nil {
		log.Fatalf("Failed to create event log: %v", err)
	}

	readySignal, err := natssignal.Connect(cfg.NATSURL)
	if err != nil {
		log.Fatalf("Failed to connect to NATS: %v", err)
	}
	defer readySignal.Close()

	router, err := routing.NewSingleHostRouter(eventLog,
		routing.WithControllerOptions(
			lifecycle.WithIdleWindow(cfg.IdleWindow),
			lifecycle.WithConsistencyWaitTimeout(cfg.ConsistencyWaitTimeout),
			lifecycle.WithProjectionWaiter(readySignal),
			lifecycle.WithContextualLogger(contextualLogger),
			lifecycle.WithMetrics(metricsCollector),
			lifecycle.WithTracing(tracingCollector),
		),
	)
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	kind := profile.BuildKindWithSnapshotThreshold(cfg.SnapshotThreshold)
	if registerErr := router.RegisterKind(kind); registerErr != nil {
		log.Fatalf("Failed to register entity kind: %v", registerErr)
	}

	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	projector := demo.NewEmailProjector(eventLog, kind, readySignal, logger)

	profileID := "demo-profile-1"
	go projector.Watch(ctx, profileID)

	runScenario(ctx, router, kind, logger, profileID)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if shutdownErr := router.Shutdown(shutdownCtx); shutdownErr != nil {
		log.Printf("Router shutdown failed: %v", shutdownErr)
	}
}

func runScenario(
	ctx context.Context,
	router *routing.SingleHostRouter,
	kind profile.Kind,
	logger *slog.Logger,
	profileID string,
) {
	entityType := kind.EntityType()

	response := router.Execute(ctx, entityType, profileID, profile.RegisterProfile{
		ProfileID:    profileID,
		DisplayName:  "Ada Lovelace",
		EmailAddress: "ada@example.com",
	})
	logResponse(logger, "register profile", response.Err)

	response = router.Execute(ctx, entityType, profileID, profile.ChangeDisplayName{
		ProfileID:   profileID,
		DisplayName: "Countess of Lovelace",
	})
	logResponse(logger, "change display name", response.Err)

	// Answered only after the projector has published readiness for the token.
	response = router.Execute(ctx, entityType, profileID, profile.ChangeEmail{
		ProfileID:    profileID,
		EmailAddress: "countess@example.com",
	})
	logResponse(logger, "change email", response.Err)

	response = router.GetState(ctx, entityType, profileID)
	if state, ok := response.State.(profile.State); ok {
		logger.Info("current state",
			"display_name", state.DisplayName,
			"email", state.EmailAddress)
	}

	response = router.MarkAsDeleted(ctx, entityType, profileID)
	logResponse(logger, "delete profile", response.Err)
}

func logResponse(logger *slog.Logger, action string, err error) {
	if err != nil {
		logger.Error(action+" failed", "error", err)
		return
	}

	logger.Info(action + " succeeded")
}
