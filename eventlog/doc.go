// Package eventlog defines the data types and contracts for the append-only,
// per-entity event log with optional snapshot records.
//
// The types in this package are built on scalars and JSON so they stay
// completely agnostic of the domain event and entity state implementations in
// client code. Storage engines (see the postgresengine and memoryengine
// subpackages) persist and query these types; the lifecycle package consumes
// them during recovery and command processing.
//
// The package also declares the dependency-free observability interfaces
// (Logger, ContextualLogger, MetricsCollector, TracingCollector) that all
// components of this module share. Adapters for OpenTelemetry and Prometheus
// live in the oteladapters and promadapters subpackages.
package eventlog
