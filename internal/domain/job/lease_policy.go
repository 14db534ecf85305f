package job

import (
	"errors"
	"math"
	"time"
)

// ErrInvalidDefaultLease indicates the configured default lease duration is not positive.
var ErrInvalidDefaultLease = errors.New("default lease must be positive")

// LeaseSource identifies how a lease duration was resolved.
type LeaseSource string

const (
	// LeaseSourceExplicit means the caller supplied a usable duration.
	LeaseSourceExplicit LeaseSource = "explicit"
	// LeaseSourceDefault means the policy fell back to its configured default.
	LeaseSourceDefault LeaseSource = "default"
	// LeaseSourceClamped means the request was raised to the one-second floor.
	LeaseSourceClamped LeaseSource = "clamped"
)

// LeaseDecision is the resolved lease for one reservation or heartbeat. The
// queue stores leases as whole seconds, so Seconds is what reaches SQL.
type LeaseDecision struct {
	Seconds   int
	Source    LeaseSource
	Requested time.Duration
}

// UsedDefault reports whether the policy fell back to the default lease.
func (d LeaseDecision) UsedDefault() bool { return d.Source == LeaseSourceDefault }

// Clamped reports whether the request was raised to the minimum lease.
func (d LeaseDecision) Clamped() bool { return d.Source == LeaseSourceClamped }

// LeasePolicy translates caller-supplied lease durations into the whole-second
// leases the job queue works with. Probe workers pass short leases, sweep and
// pipeline workers long ones; zero means "use the configured default".
type LeasePolicy struct {
	defaultLease time.Duration
}

// NewLeasePolicy constructs a LeasePolicy around the given default.
func NewLeasePolicy(defaultLease time.Duration) (*LeasePolicy, error) {
	if defaultLease <= 0 {
		return nil, ErrInvalidDefaultLease
	}
	return &LeasePolicy{defaultLease: defaultLease}, nil
}

// Default returns the configured default lease duration.
func (p *LeasePolicy) Default() time.Duration {
	if p == nil {
		return 0
	}
	return p.defaultLease
}

// Resolve turns a requested duration into a lease decision. Zero requests take
// the default; sub-second and negative requests clamp to one second so a lease
// can never expire before the reserving UPDATE commits.
func (p *LeasePolicy) Resolve(request time.Duration) LeaseDecision {
	if p == nil {
		return LeaseDecision{Source: LeaseSourceDefault, Requested: request}
	}
	if request == 0 {
		seconds, _ := clampSeconds(p.defaultLease)
		return LeaseDecision{Seconds: seconds, Source: LeaseSourceDefault, Requested: request}
	}
	if request < 0 {
		return LeaseDecision{Seconds: 1, Source: LeaseSourceClamped, Requested: request}
	}

	seconds, clamped := clampSeconds(request)
	source := LeaseSourceExplicit
	if clamped {
		source = LeaseSourceClamped
	}
	return LeaseDecision{Seconds: seconds, Source: source, Requested: request}
}

// clampSeconds converts to whole seconds within [1, math.MaxInt].
func clampSeconds(d time.Duration) (int, bool) {
	seconds := int64(d / time.Second)
	switch {
	case seconds <= 0:
		return 1, true
	case seconds > int64(math.MaxInt):
		return math.MaxInt, true
	default:
		return int(seconds), false
	}
}
