package tracker

import (
	"time"
)

// Health classifies a pooled type's leak posture. It is a pure function
// of the leaked count, evaluated lazily from a snapshot.
type Health string

const (
	// HealthHealthy means no leaked instance was ever observed.
	HealthHealthy Health = "healthy"
	// HealthWarning means a small number of leaks were observed.
	HealthWarning Health = "warning"
	// HealthLeaking means leaks are frequent enough to indicate a real
	// resource management defect in the host.
	HealthLeaking Health = "leaking"
)

// leakWarningCeiling is the highest leaked count still reported as a
// warning rather than outright leaking.
const leakWarningCeiling = 9

// DurationSnapshot is a point-in-time copy of a running duration
// accumulator. Min and Max are zero when no sample was ever observed.
type DurationSnapshot struct {
	Total   time.Duration `json:"total"`
	Min     time.Duration `json:"min"`
	Max     time.Duration `json:"max"`
	Samples int64         `json:"samples"`
}

// Avg returns the mean observed duration, zero if there are no samples.
func (d DurationSnapshot) Avg() time.Duration {
	if d.Samples == 0 {
		return 0
	}
	return time.Duration(int64(d.Total) / d.Samples)
}

// PooledSnapshot is an immutable point-in-time copy of one pooled type's
// counters. Derived values are computed fresh from the raw counters at
// read time and never stored, so consumers cannot observe stale derived
// state. Raw counters may be momentarily inconsistent with each other
// across a concurrent write; every derived value clamps at zero so a torn
// read never surfaces a negative.
type PooledSnapshot struct {
	TypeName          string           `json:"type_name"`
	MaxPoolSize       int64            `json:"max_pool_size"`
	Creations         int64            `json:"creations"`
	Disposals         int64            `json:"disposals"`
	Rents             int64            `json:"rents"`
	Returns           int64            `json:"returns"`
	OverflowDisposals int64            `json:"overflow_disposals"`
	OverflowCreations int64            `json:"overflow_creations"`
	Leaked            int64            `json:"leaked"`
	IgnoredEvents     int64            `json:"ignored_events"`
	RentalDuration    DurationSnapshot `json:"rental_duration"`
	LastUpdated       time.Time        `json:"last_updated"`
}

// InPool returns the number of physical instances currently alive.
func (s PooledSnapshot) InPool() int64 {
	return clampNonNegative(s.Creations - s.Disposals)
}

// ActiveRentals returns the number of rentals not yet closed by a return,
// an overflow disposal, or a leak.
func (s PooledSnapshot) ActiveRentals() int64 {
	return clampNonNegative(s.Rents - s.Returns - s.OverflowDisposals - s.Leaked)
}

// Utilization returns live instances as a fraction of configured
// capacity.
func (s PooledSnapshot) Utilization() float64 {
	if s.MaxPoolSize <= 0 {
		return 0
	}
	return float64(s.InPool()) / float64(s.MaxPoolSize)
}

// ReuseRatio returns rentals per physical creation; higher means the pool
// is doing its job.
func (s PooledSnapshot) ReuseRatio() float64 {
	if s.Creations == 0 {
		return 0
	}
	return float64(s.Rents) / float64(s.Creations)
}

// ReturnRate returns the fraction of rentals that completed a clean
// return.
func (s PooledSnapshot) ReturnRate() float64 {
	if s.Rents == 0 {
		return 0
	}
	return float64(s.Returns) / float64(s.Rents)
}

// Health classifies the type's leak posture from the leaked count.
func (s PooledSnapshot) Health() Health {
	switch {
	case s.Leaked == 0:
		return HealthHealthy
	case s.Leaked <= leakWarningCeiling:
		return HealthWarning
	default:
		return HealthLeaking
	}
}

// StandardSnapshot is an immutable point-in-time copy of one non-pooled
// type's counters.
type StandardSnapshot struct {
	TypeName      string           `json:"type_name"`
	Creations     int64            `json:"creations"`
	Disposals     int64            `json:"disposals"`
	IgnoredEvents int64            `json:"ignored_events"`
	Lifetime      DurationSnapshot `json:"lifetime"`
	LastUpdated   time.Time        `json:"last_updated"`
}

// PotentialLeaks returns the number of standard instances created but not
// yet disposed. For short-lived standard resources a persistently growing
// value points at missing disposals.
func (s StandardSnapshot) PotentialLeaks() int64 {
	return clampNonNegative(s.Creations - s.Disposals)
}

// SnapshotSet is the result of snapshotting every tracked type at once.
type SnapshotSet struct {
	Pooled   map[string]PooledSnapshot   `json:"pooled"`
	Standard map[string]StandardSnapshot `json:"standard"`
}

func clampNonNegative(v int64) int64 {
	if v < 0 {
		return 0
	}
	return v
}
