// Package domain defines the application and API key records mirrored from the backend.
package domain

import "time"

// Status is the activation state shared by applications and API keys.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
)

// Settings holds the per-application CAPTCHA service settings.
type Settings struct {
	Model          string `json:"model"`
	NoiseLevel     string `json:"noiseLevel"`
	HeuristicLevel string `json:"heuristicLevel"`
}

// Usage holds per-application verification counters.
type Usage struct {
	Today int `json:"today"`
	Week  int `json:"week"`
	Month int `json:"month"`
}

// App is a registered application owning zero or more API keys.
type App struct {
	ID          string    `json:"id"`
	Name        string    `json:"appName"`
	Description string    `json:"description"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"createdAt,omitzero"`
	Settings    Settings  `json:"settings"`
	Usage       Usage     `json:"usage"`
}
