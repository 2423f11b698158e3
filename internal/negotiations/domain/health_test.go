package domain

import (
	"testing"
	"time"
)

func TestEvaluateHealth(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	base := HealthInput{
		Stage:        StageAwaitingProviderAvailability,
		StaleHours:   24,
		StalledHours: 72,
		Now:          now,
	}

	tests := []struct {
		name   string
		mutate func(in *HealthInput)
		want   HealthResult
	}{
		{
			name:   "recent activity is green",
			mutate: func(in *HealthInput) { in.LastActivityAt = now.Add(-2 * time.Hour) },
			want:   HealthResult{Status: HealthGreen},
		},
		{
			name:   "past stale threshold is yellow",
			mutate: func(in *HealthInput) { in.LastActivityAt = now.Add(-30 * time.Hour) },
			want:   HealthResult{Status: HealthYellow, IsStale: true},
		},
		{
			name:   "exactly at stale threshold stays green",
			mutate: func(in *HealthInput) { in.LastActivityAt = now.Add(-24 * time.Hour) },
			want:   HealthResult{Status: HealthGreen},
		},
		{
			name:   "past stalled threshold is red and stalled",
			mutate: func(in *HealthInput) { in.LastActivityAt = now.Add(-80 * time.Hour) },
			want:   HealthResult{Status: HealthRed, IsStale: true, IsStalled: true},
		},
		{
			name: "tool failure is red regardless of recency",
			mutate: func(in *HealthInput) {
				in.LastActivityAt = now.Add(-time.Minute)
				in.HasToolFailure = true
			},
			want: HealthResult{Status: HealthRed},
		},
		{
			name: "thread divergence is red regardless of recency",
			mutate: func(in *HealthInput) {
				in.LastActivityAt = now.Add(-time.Minute)
				in.HasThreadDivergence = true
			},
			want: HealthResult{Status: HealthRed},
		},
		{
			name: "tool failure beats stalled in the result flags",
			mutate: func(in *HealthInput) {
				in.LastActivityAt = now.Add(-100 * time.Hour)
				in.HasToolFailure = true
			},
			want: HealthResult{Status: HealthRed},
		},
		{
			name: "post-booking stage is green even when silent for days",
			mutate: func(in *HealthInput) {
				in.Stage = StageSessionHeld
				in.LastActivityAt = now.Add(-200 * time.Hour)
			},
			want: HealthResult{Status: HealthGreen},
		},
		{
			name: "post-booking stage is green even with a tool failure",
			mutate: func(in *HealthInput) {
				in.Stage = StageCompleted
				in.HasToolFailure = true
			},
			want: HealthResult{Status: HealthGreen},
		},
		{
			name: "cancelled is green",
			mutate: func(in *HealthInput) {
				in.Stage = StageCancelled
				in.LastActivityAt = now.Add(-500 * time.Hour)
			},
			want: HealthResult{Status: HealthGreen},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := base
			tt.mutate(&in)
			got := EvaluateHealth(in)
			if got != tt.want {
				t.Errorf("EvaluateHealth() = %+v, want %+v", got, tt.want)
			}
		})
	}
}
