package history

import (
	"time"

	"github.com/google/uuid"
)

// Run is one finished extraction job, as stored in extraction_runs.
type Run struct {
	ID        uuid.UUID      `json:"id"`
	UserID    string         `json:"user_id"`
	Source    string         `json:"source"`
	SourceID  string         `json:"source_id"`
	Status    string         `json:"status"`
	Layers    map[string]int `json:"layers"`
	Error     string         `json:"error,omitempty"`
	TraceID   string         `json:"trace_id,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// ListParams holds pagination and filtering parameters for run queries.
type ListParams struct {
	Status   string
	Source   string
	SourceID string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// DefaultListParams returns sensible defaults.
func DefaultListParams() ListParams {
	return ListParams{
		Page:     1,
		PageSize: 20,
	}
}
