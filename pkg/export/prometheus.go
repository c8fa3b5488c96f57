// Package export publishes the lifecycle tracker's snapshots over
// pull-based surfaces: a prometheus collector and a JSON debug endpoint.
// Both poll the tracker's read API on demand and never touch mutable
// engine state.
package export

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/poolsight/poolsight/pkg/pperrors"
	"github.com/poolsight/poolsight/pkg/tracker"
)

// Snapshotter is the read surface the exporter polls. The Tracker
// satisfies it.
type Snapshotter interface {
	Snapshots() tracker.SnapshotSet
}

// Collector exposes one gauge or counter per snapshot field, labeled by
// resource type name. It implements prometheus.Collector; each scrape
// pulls fresh immutable snapshots, so the collector holds no state of its
// own.
type Collector struct {
	source Snapshotter

	// pooled
	creations         *prometheus.Desc
	disposals         *prometheus.Desc
	rents             *prometheus.Desc
	returns           *prometheus.Desc
	overflowDisposals *prometheus.Desc
	overflowCreations *prometheus.Desc
	leaked            *prometheus.Desc
	ignoredEvents     *prometheus.Desc
	inPool            *prometheus.Desc
	activeRentals     *prometheus.Desc
	utilization       *prometheus.Desc
	reuseRatio        *prometheus.Desc
	returnRate        *prometheus.Desc
	rentalSeconds     *prometheus.Desc

	// standard
	stdCreations      *prometheus.Desc
	stdDisposals      *prometheus.Desc
	stdPotentialLeaks *prometheus.Desc
	stdLifetime       *prometheus.Desc
}

// NewCollector creates a collector reading from source, with all metric
// names prefixed by namespace.
func NewCollector(namespace string, source Snapshotter) (*Collector, error) {
	if source == nil {
		return nil, pperrors.New(pperrors.ErrorTypeValidation, "snapshot source cannot be nil")
	}
	if namespace == "" {
		return nil, pperrors.New(pperrors.ErrorTypeConfig, "metric namespace cannot be empty")
	}

	typeLabel := []string{"type"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "pooled", name), help, labels, nil)
	}
	stdDesc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "standard", name), help, labels, nil)
	}

	return &Collector{
		source: source,

		creations:         desc("creations_total", "Physical instance creations", typeLabel),
		disposals:         desc("disposals_total", "Physical instance disposals", typeLabel),
		rents:             desc("rents_total", "Rental cycles started", typeLabel),
		returns:           desc("returns_total", "Clean returns to the pool", typeLabel),
		overflowDisposals: desc("overflow_disposals_total", "Disposals classified as pool overflow", typeLabel),
		overflowCreations: desc("overflow_creations_total", "Instances created beyond pool capacity", typeLabel),
		leaked:            desc("leaked_total", "Instances destroyed without a recognized return path", typeLabel),
		ignoredEvents:     desc("ignored_events_total", "Events referencing unknown instances", typeLabel),
		inPool:            desc("in_pool", "Physical instances currently alive", typeLabel),
		activeRentals:     desc("active_rentals", "Rentals not yet closed by any path", typeLabel),
		utilization:       desc("utilization", "Live instances as a fraction of configured capacity", typeLabel),
		reuseRatio:        desc("reuse_ratio", "Rentals per physical creation", typeLabel),
		returnRate:        desc("return_rate", "Fraction of rentals that returned cleanly", typeLabel),
		rentalSeconds:     desc("rental_duration_seconds", "Rental duration statistics", []string{"type", "stat"}),

		stdCreations:      stdDesc("creations_total", "Standard instance creations", typeLabel),
		stdDisposals:      stdDesc("disposals_total", "Standard instance disposals", typeLabel),
		stdPotentialLeaks: stdDesc("potential_leaks", "Standard instances created but not yet disposed", typeLabel),
		stdLifetime:       stdDesc("lifetime_seconds", "Standard instance lifetime statistics", []string{"type", "stat"}),
	}, nil
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.creations, c.disposals, c.rents, c.returns,
		c.overflowDisposals, c.overflowCreations, c.leaked, c.ignoredEvents,
		c.inPool, c.activeRentals, c.utilization, c.reuseRatio, c.returnRate,
		c.rentalSeconds,
		c.stdCreations, c.stdDisposals, c.stdPotentialLeaks, c.stdLifetime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector. Each call takes fresh
// snapshots, so scrape-to-scrape consistency matches the engine's
// eventual-consistency model.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	set := c.source.Snapshots()

	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	for name, s := range set.Pooled {
		counter(c.creations, s.Creations, name)
		counter(c.disposals, s.Disposals, name)
		counter(c.rents, s.Rents, name)
		counter(c.returns, s.Returns, name)
		counter(c.overflowDisposals, s.OverflowDisposals, name)
		counter(c.overflowCreations, s.OverflowCreations, name)
		counter(c.leaked, s.Leaked, name)
		counter(c.ignoredEvents, s.IgnoredEvents, name)

		gauge(c.inPool, float64(s.InPool()), name)
		gauge(c.activeRentals, float64(s.ActiveRentals()), name)
		gauge(c.utilization, s.Utilization(), name)
		gauge(c.reuseRatio, s.ReuseRatio(), name)
		gauge(c.returnRate, s.ReturnRate(), name)

		gauge(c.rentalSeconds, s.RentalDuration.Min.Seconds(), name, "min")
		gauge(c.rentalSeconds, s.RentalDuration.Avg().Seconds(), name, "avg")
		gauge(c.rentalSeconds, s.RentalDuration.Max.Seconds(), name, "max")
	}

	for name, s := range set.Standard {
		counter(c.stdCreations, s.Creations, name)
		counter(c.stdDisposals, s.Disposals, name)
		gauge(c.stdPotentialLeaks, float64(s.PotentialLeaks()), name)

		gauge(c.stdLifetime, s.Lifetime.Min.Seconds(), name, "min")
		gauge(c.stdLifetime, s.Lifetime.Avg().Seconds(), name, "avg")
		gauge(c.stdLifetime, s.Lifetime.Max.Seconds(), name, "max")
	}
}
