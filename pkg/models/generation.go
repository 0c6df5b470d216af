package models

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// GenerationRequest describes one image generation attempt
type GenerationRequest struct {
	Prompt     string
	APIKey     string
	Style      Style
	Resolution Resolution
	RequestID  string // correlation id for logs only
}

// StyledPrompt returns the prompt sent to the provider
func (r GenerationRequest) StyledPrompt() string {
	return r.Style.OrDefault().Apply(r.Prompt)
}

// Destination describes where the output of a generation must land
type Destination struct {
	ResponseURL string // empty for event-triggered generations
	ChannelID   string
	TeamID      string
	UserID      string
	ThreadTS    string
}

// NewGenerationRequest builds a request from the prompt and the team settings
func NewGenerationRequest(prompt string, cfg TenantConfig) GenerationRequest {
	return GenerationRequest{
		Prompt:     prompt,
		APIKey:     cfg.GenerationAPIKey,
		Style:      cfg.Style.OrDefault(),
		Resolution: cfg.Resolution.OrDefault(),
		RequestID:  NewRequestID(),
	}
}

// NewRequestID mints a correlation id for one generation attempt
func NewRequestID() string {
	return "req-" + generateULID()
}

// generateULID generates a ULID string for unique identifiers
func generateULID() string {
	id, _ := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	return id.String()
}
