// Package transport defines the request and response shapes for runtime
// settings.
package transport

import "concierge_backend/internal/settings/repository"

type UpdateSettingsRequest struct {
	StaleHours    *int `json:"staleHours" binding:"omitempty,min=1,max=720"`
	StalledHours  *int `json:"stalledHours" binding:"omitempty,min=1,max=2160"`
	RetentionDays *int `json:"retentionDays" binding:"omitempty,min=1,max=3650"`
}

type SettingsResponse struct {
	StaleHours    int `json:"staleHours"`
	StalledHours  int `json:"stalledHours"`
	RetentionDays int `json:"retentionDays"`
}

func ToSettingsResponse(s repository.Settings) SettingsResponse {
	return SettingsResponse{
		StaleHours:    s.StaleHours,
		StalledHours:  s.StalledHours,
		RetentionDays: s.RetentionDays,
	}
}
