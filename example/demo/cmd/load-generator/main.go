package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/entitykit/entity-lifecycle-go/eventlog/oteladapters"
	"github.com/entitykit/entity-lifecycle-go/eventlog/postgresengine"
	"github.com/entitykit/entity-lifecycle-go/example/config"
	"github.com/entitykit/entity-lifecycle-go/example/profile"
	"github.com/entitykit/entity-lifecycle-go/lifecycle"
	"github.com/entitykit/entity-lifecycle-go/routing"
)

const (
	defaultRate            = 30
	defaultProfilePool     = 500
	defaultIdleWindowSec   = 10
	defaultScenarioWeights = "20,70,10" // registration, mutation, deletion
	shutdownGrace          = 10 * time.Second
)

// Config holds the load generator settings parsed from flags.
type Config struct {
	Rate                 int
	ProfilePoolSize      int
	IdleWindowSec        int
	ScenarioWeights      []int
	ObservabilityEnabled bool
}

func main() {
	cfg := parseFlags()

	envCfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	pool, err := config.NewPGXPool(ctx, envCfg.PostgresDSN)
	if err != nil {
		log.Fatalf("Failed to create pgx pool: %v", err)
	}
	defer pool.Close()

	var logOptions []postgresengine.Option
	if cfg.ObservabilityEnabled {
		providers, obsErr := config.NewObservability(ctx, "entity-lifecycle-load-generator", envCfg.OTLPEndpoint)
		if obsErr != nil {
			log.Fatalf("Failed to set up observability: %v", obsErr)
		}
		defer func() {
			if shutdownErr := providers.Shutdown(); shutdownErr != nil {
				log.Printf("Observability shutdown failed: %v", shutdownErr)
			}
		}()

		logOptions = append(logOptions,
			postgresengine.WithContextualLogger(oteladapters.NewSlogBridgeLogger("entity-lifecycle-load-generator")),
			postgresengine.WithMetrics(oteladapters.NewMetricsCollector(otel.Meter("entity-lifecycle-load-generator"))),
			postgresengine.WithTracing(oteladapters.NewTracingCollector(otel.Tracer("entity-lifecycle-load-generator"))),
		)
	}

	eventLog, err := postgresengine.NewEventLogFromPGXPool(pool, logOptions...)
	if err != nil {
		log.Fatalf("Failed to create event log: %v", err)
	}

	// A short idle window keeps passivation and recovery in the hot path,
	// which is exactly the machinery this generator is meant to exercise.
	router, err := routing.NewSingleHostRouter(eventLog,
		routing.WithControllerOptions(
			lifecycle.WithIdleWindow(time.Duration(cfg.IdleWindowSec)*time.Second),
		),
	)
	if err != nil {
		log.Fatalf("Failed to create router: %v", err)
	}

	if err = router.RegisterKind(profile.BuildKind()); err != nil {
		log.Fatalf("Failed to register profile kind: %v", err)
	}

	loadGen := NewLoadGenerator(router, cfg)

	errChan := make(chan error, 1)
	go func() {
		if startErr := loadGen.Start(ctx); startErr != nil {
			errChan <- fmt.Errorf("load generator failed: %w", startErr)
		}
	}()

	log.Printf("Entity lifecycle load generator started")
	log.Printf("Configuration: rate=%d req/s, profile_pool=%d, idle_window=%ds, scenario_weights=%v",
		cfg.Rate, cfg.ProfilePoolSize, cfg.IdleWindowSec, cfg.ScenarioWeights)
	log.Printf("Press Ctrl+C to stop...")

	select {
	case sig := <-sigChan:
		log.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()
	case err = <-errChan:
		log.Printf("Error occurred: %v", err)
		cancel()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer shutdownCancel()

	if err = loadGen.Stop(shutdownCtx); err != nil {
		log.Printf("Error during load generator shutdown: %v", err)
	}

	if err = router.Shutdown(shutdownCtx); err != nil {
		log.Printf("Error during router shutdown: %v", err)
	}

	log.Printf("Load generator stopped")
}

func parseFlags() Config {
	var (
		rate            = flag.Int("rate", defaultRate, "Requests per second")
		profilePool     = flag.Int("profile-pool", defaultProfilePool, "Number of distinct profile identifiers to cycle through")
		idleWindow      = flag.Int("idle-window", defaultIdleWindowSec, "Controller idle window in seconds before passivation")
		scenarioWeights = flag.String("scenario-weights", defaultScenarioWeights, "Comma-separated weights for registration,mutation,deletion scenarios")
		observability   = flag.Bool("observability-enabled", false, "Enable OpenTelemetry observability")
	)

	flag.Parse()

	weights, err := parseScenarioWeights(*scenarioWeights)
	if err != nil {
		log.Fatalf("Invalid scenario weights '%s': %v", *scenarioWeights, err)
	}

	if *rate <= 0 {
		log.Fatalf("Rate must be positive, got %d", *rate)
	}

	if *profilePool <= 0 {
		log.Fatalf("Profile pool size must be positive, got %d", *profilePool)
	}

	return Config{
		Rate:                 *rate,
		ProfilePoolSize:      *profilePool,
		IdleWindowSec:        *idleWindow,
		ScenarioWeights:      weights,
		ObservabilityEnabled: *observability,
	}
}

func parseScenarioWeights(weightsStr string) ([]int, error) {
	parts := strings.Split(weightsStr, ",")
	if len(parts) != 3 {
		return nil, fmt.Errorf("expected 3 weights, got %d", len(parts))
	}

	weights := make([]int, 3)
	total := 0
	for i, part := range parts {
		weight, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid weight '%s': %w", part, err)
		}
		if weight < 0 || weight > 100 {
			return nil, fmt.Errorf("weight %d out of range [0, 100]", weight)
		}
		weights[i] = weight
		total += weight
	}

	if total != 100 {
		return nil, fmt.Errorf("weights must sum to 100, got %d", total)
	}

	return weights, nil
}
