// Package entity contains the pure, deterministic core of the entity
// lifecycle manager: typed entity state derived by event replay, the
// lifecycle phase model, the command-admissibility gate, and the Kind
// capability set that concrete entity types implement.
//
// Nothing in this package performs I/O. State derivation (ApplyEvent) and
// command decisions (Decide) are pure functions over values; the lifecycle
// package drives them against the event log.
package entity
