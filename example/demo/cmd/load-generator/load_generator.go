// Package main implements a load generator driving profile lifecycle
// commands through the single-host router at a configurable request rate.
package main

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/entitykit/entity-lifecycle-go/example/profile"
	"github.com/entitykit/entity-lifecycle-go/routing"
)

const scenarioTimeout = 5 * time.Second

// LoadGenerator delivers weighted profile scenarios through the router at a
// configured rate. Each scenario picks one entity from a bounded pool, so
// instances keep being reused, passivated, and recovered while the run lasts.
type LoadGenerator struct {
	router *routing.SingleHostRouter
	config Config

	ticker   *time.Ticker
	stopChan chan struct{}
	wg       sync.WaitGroup

	mu           sync.RWMutex
	requestCount int64
	errorCount   int64
	startTime    time.Time
}

// NewLoadGenerator creates a LoadGenerator delivering to the given router.
func NewLoadGenerator(router *routing.SingleHostRouter, config Config) *LoadGenerator {
	return &LoadGenerator{
		router:   router,
		config:   config,
		stopChan: make(chan struct{}),
	}
}

// Start begins load generation with the configured request rate. It runs
// until the context is cancelled or Stop is called.
func (lg *LoadGenerator) Start(ctx context.Context) error {
	lg.mu.Lock()
	lg.startTime = time.Now()
	lg.requestCount = 0
	lg.errorCount = 0
	lg.mu.Unlock()

	interval := time.Second / time.Duration(lg.config.Rate)
	lg.ticker = time.NewTicker(interval)
	defer lg.ticker.Stop()

	log.Printf("Load generator starting with %d requests/second (interval: %v), initial goroutines: %d",
		lg.config.Rate, interval, runtime.NumGoroutine())

	lg.wg.Add(1)
	go lg.statsReporter(ctx)

	for {
		select {
		case <-ctx.Done():
			log.Printf("Load generator stopping due to context cancellation")
			return ctx.Err()

		case <-lg.stopChan:
			log.Printf("Load generator stopping due to stop signal")
			return nil

		case <-lg.ticker.C:
			lg.wg.Add(1)
			go lg.executeScenario(ctx)
		}
	}
}

// Stop gracefully shuts down the load generator.
func (lg *LoadGenerator) Stop(ctx context.Context) error {
	close(lg.stopChan)

	done := make(chan struct{})
	go func() {
		lg.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lg.logStats("Final stats")
		return nil
	case <-ctx.Done():
		lg.logStats("Final stats")
		return fmt.Errorf("shutdown timeout exceeded")
	}
}

func (lg *LoadGenerator) executeScenario(ctx context.Context) {
	defer lg.wg.Done()

	scenario := lg.selectScenario()

	var err error
	switch scenario {
	case "registration":
		err = lg.runRegistrationScenario(ctx)
	case "mutation":
		err = lg.runMutationScenario(ctx)
	default:
		err = lg.runDeletionScenario(ctx)
	}

	lg.mu.Lock()
	lg.requestCount++
	if err != nil {
		lg.errorCount++
		log.Printf("Scenario error (%s): %v", scenario, err)
	}
	lg.mu.Unlock()
}

// selectScenario chooses a scenario type based on the configured weights
// for registration, mutation, and deletion.
func (lg *LoadGenerator) selectScenario() string {
	r := rand.Intn(100) //nolint:gosec // Test tooling - weak random is acceptable

	if r < lg.config.ScenarioWeights[0] {
		return "registration"
	}

	if r < lg.config.ScenarioWeights[0]+lg.config.ScenarioWeights[1] {
		return "mutation"
	}

	return "deletion"
}

// runRegistrationScenario registers a profile from the pool. Re-registering a
// live profile is answered idempotently, so repeated hits are fine.
func (lg *LoadGenerator) runRegistrationScenario(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	profileID := lg.randomProfileID()

	response := lg.router.Execute(opCtx, profile.EntityTypeName, profileID, profile.RegisterProfile{
		ProfileID:    profileID,
		DisplayName:  fmt.Sprintf("Load Profile %s", profileID),
		EmailAddress: fmt.Sprintf("%s@load.example.com", profileID),
	})

	return response.Err
}

// runMutationScenario changes the display name or email address of a profile
// from the pool. Hitting an uninitialized or deleted profile produces a
// phase-rejection no-op, which is a valid response, not an error.
func (lg *LoadGenerator) runMutationScenario(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	profileID := lg.randomProfileID()

	if rand.Intn(2) == 0 { //nolint:gosec // Test tooling - weak random is acceptable
		response := lg.router.Execute(opCtx, profile.EntityTypeName, profileID, profile.ChangeDisplayName{
			ProfileID:   profileID,
			DisplayName: fmt.Sprintf("Load Profile %s rev %d", profileID, rand.Intn(1000)), //nolint:gosec
		})

		return response.Err
	}

	response := lg.router.Execute(opCtx, profile.EntityTypeName, profileID, profile.ChangeEmail{
		ProfileID:    profileID,
		EmailAddress: fmt.Sprintf("%s+%d@load.example.com", profileID, rand.Intn(1000)), //nolint:gosec
	})

	return response.Err
}

// runDeletionScenario marks a profile from the pool as deleted. Deleting an
// uninitialized or already deleted profile is an idempotent no-op.
func (lg *LoadGenerator) runDeletionScenario(ctx context.Context) error {
	opCtx, cancel := context.WithTimeout(ctx, scenarioTimeout)
	defer cancel()

	response := lg.router.MarkAsDeleted(opCtx, profile.EntityTypeName, lg.randomProfileID())

	return response.Err
}

func (lg *LoadGenerator) randomProfileID() string {
	profileNum := rand.Intn(lg.config.ProfilePoolSize) + 1 //nolint:gosec // Test tooling - weak random is acceptable
	return fmt.Sprintf("load-profile-%d", profileNum)
}

// statsReporter logs throughput statistics periodically.
func (lg *LoadGenerator) statsReporter(ctx context.Context) {
	defer lg.wg.Done()

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-lg.stopChan:
			return
		case <-ticker.C:
			lg.logStats("Stats")
		}
	}
}

func (lg *LoadGenerator) logStats(prefix string) {
	lg.mu.RLock()
	duration := time.Since(lg.startTime)
	requests := lg.requestCount
	errors := lg.errorCount
	lg.mu.RUnlock()

	if duration <= 0 || requests == 0 {
		return
	}

	rps := float64(requests) / duration.Seconds()
	errorRate := float64(errors) / float64(requests) * 100
	log.Printf("%s: %d requests in %v (%.1f req/s), %d errors (%.1f%%), %d goroutines",
		prefix, requests, duration.Truncate(time.Second), rps, errors, errorRate, runtime.NumGoroutine())
}
