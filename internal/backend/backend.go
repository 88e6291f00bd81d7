// Package backend defines the interface to external model-serving endpoints
// and the adapters that implement it.
package backend

import (
	"context"

	"github.com/storyloom/orchestrator/internal/domain"
)

// Request is one generation call to a backend.
type Request struct {
	ItemID   string           `json:"item_id"`
	Field    domain.FieldType `json:"field"`
	Prompt   string           `json:"prompt"`
	Metadata map[string]any   `json:"metadata,omitempty"`
}

// Response is a backend's generation result.
type Response struct {
	Text       string `json:"text"`
	Model      string `json:"model,omitempty"`
	TokensUsed int    `json:"tokens_used,omitempty"`
}

// Backend is one model-serving endpoint. Implementations must be safe for
// concurrent use; Generate must honor ctx cancellation and deadlines.
type Backend interface {
	ID() string
	Generate(ctx context.Context, req *Request) (*Response, error)
}

// Directory resolves backend ids from routing decisions to live clients.
type Directory interface {
	Lookup(id string) (Backend, bool)
}

// StaticDirectory is a fixed id-to-backend map.
type StaticDirectory map[string]Backend

// Lookup implements Directory.
func (d StaticDirectory) Lookup(id string) (Backend, bool) {
	b, ok := d[id]
	return b, ok
}
