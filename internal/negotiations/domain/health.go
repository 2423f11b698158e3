package domain

import "time"

// HealthStatus is the traffic-light summary shown on the operator dashboard.
type HealthStatus string

const (
	HealthGreen  HealthStatus = "green"
	HealthYellow HealthStatus = "yellow"
	HealthRed    HealthStatus = "red"
)

// HealthInput carries everything health evaluation looks at. Thresholds
// come from operator settings so tightening them re-scores the whole board
// on the next sweep.
type HealthInput struct {
	Stage               Stage
	LastActivityAt      time.Time
	HasThreadDivergence bool
	HasToolFailure      bool
	StaleHours          int
	StalledHours        int
	Now                 time.Time
}

// HealthResult is the evaluated status plus the flags that fed it.
type HealthResult struct {
	Status    HealthStatus
	IsStale   bool
	IsStalled bool
}

// EvaluateHealth scores a negotiation. Rules apply first-match-wins: tool
// failures and thread divergence are red regardless of recency, then the
// stalled threshold, then the stale threshold. Post-booking and terminal
// stages are always green since silence after a locked-in slot is expected.
func EvaluateHealth(in HealthInput) HealthResult {
	if IsPostBooking(in.Stage) {
		return HealthResult{Status: HealthGreen}
	}
	if in.HasToolFailure || in.HasThreadDivergence {
		return HealthResult{Status: HealthRed}
	}
	idle := in.Now.Sub(in.LastActivityAt)
	if idle > time.Duration(in.StalledHours)*time.Hour {
		return HealthResult{Status: HealthRed, IsStale: true, IsStalled: true}
	}
	if idle > time.Duration(in.StaleHours)*time.Hour {
		return HealthResult{Status: HealthYellow, IsStale: true}
	}
	return HealthResult{Status: HealthGreen}
}
