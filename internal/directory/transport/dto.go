// Package transport defines the request and response shapes for the
// provider directory API.
package transport

import (
	"time"

	"github.com/google/uuid"

	"concierge_backend/internal/directory/repository"
)

type CreateProviderRequest struct {
	Name      string  `json:"name" binding:"required,min=1,max=200"`
	Email     string  `json:"email" binding:"required,email"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	Specialty *string `json:"specialty" binding:"omitempty,max=200"`
	Timezone  string  `json:"timezone" binding:"omitempty,max=64"`
}

type UpdateProviderRequest struct {
	Name      *string `json:"name" binding:"omitempty,min=1,max=200"`
	Email     *string `json:"email" binding:"omitempty,email"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	Specialty *string `json:"specialty" binding:"omitempty,max=200"`
	Timezone  *string `json:"timezone" binding:"omitempty,max=64"`
	IsActive  *bool   `json:"isActive"`
}

type ProviderResponse struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Phone     *string   `json:"phone,omitempty"`
	Specialty *string   `json:"specialty,omitempty"`
	Timezone  string    `json:"timezone"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func ToProviderResponse(p repository.Provider) ProviderResponse {
	return ProviderResponse{
		ID:        p.ID,
		Name:      p.Name,
		Email:     p.Email,
		Phone:     p.Phone,
		Specialty: p.Specialty,
		Timezone:  p.Timezone,
		IsActive:  p.IsActive,
		CreatedAt: p.CreatedAt,
		UpdatedAt: p.UpdatedAt,
	}
}
