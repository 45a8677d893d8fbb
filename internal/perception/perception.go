// Package perception is the boundary to the service that turns raw captures
// into embeddings and liveness/anti-spoof features. Nothing in this module
// decodes images.
package perception

import (
	"context"

	"facegate/internal/biometric/antispoof"
	"facegate/internal/biometric/liveness"
)

type Capture struct {
	Image       []byte
	ContentType string
}

type Extraction struct {
	Embedding []float64          `json:"embedding"`
	Liveness  liveness.Features  `json:"liveness"`
	AntiSpoof antispoof.Features `json:"anti_spoof"`
	ModelID   string             `json:"model_id,omitempty"`
}

type Provider interface {
	Extract(ctx context.Context, capture Capture) (*Extraction, error)
}
