// Package tracker implements the lifecycle tracking and classification
// engine for pooled and non-pooled reusable resource instances.
//
// A pooled resource's logical use (one rental cycle) does not align with
// its physical lifetime (one construction-to-destruction span): one
// physical instance serves many rentals, and the host framework's events
// fire at inconsistent granularity. The engine reconciles that gap with
// three mechanisms:
//
//   - first-seen deduplication of construction events, so pool reuse does
//     not inflate physical creation counts
//   - a rental correlator that collapses the many per-operation events of
//     one rental cycle into exactly one rent notification
//   - a disposal classifier that decides, per destroyed instance, whether
//     the destruction was expected pool-overflow behavior or a genuine leak
//
// All write-path operations are non-blocking: counter mutations are atomic
// single-word operations, and only the bounded activity log holds a narrow
// mutex around its fixed-size buffer. Events referencing unknown instances
// are tolerated; they mutate nothing except a per-type anomaly counter.
// Readers only ever see immutable snapshots.
package tracker
