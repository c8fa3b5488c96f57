// Package poolsight tracks the runtime lifecycle of pooled and non-pooled
// reusable resource instances and derives health, efficiency, and leak
// metrics from that lifecycle.
//
// The hard problem it solves: a pooled resource's logical use (one rental
// cycle) does not align with its physical lifetime (one construction-to-
// destruction span). One physical instance serves many rentals, and the
// only reliable signals are framework events that fire at inconsistent
// granularity. Poolsight deduplicates creation events, correlates rentals,
// classifies every disposal as expected overflow or genuine leak, and
// aggregates everything into lock-free per-type counters served as
// immutable snapshots.
//
// See pkg/tracker for the engine, internal/ingest for the host event
// boundary, and pkg/export for the prometheus/JSON surfaces.
package poolsight
