package dto

import "time"

type SubmitIntakeRequest struct {
	Fields map[string]interface{} `json:"fields" validate:"required,min=1"`
}

type ProfileResponse struct {
	Status         string                 `json:"status"`
	IntakeComplete bool                   `json:"intake_complete"`
	Fields         map[string]interface{} `json:"fields,omitempty"`
	UpdatedAt      *time.Time             `json:"updated_at,omitempty"`
}
