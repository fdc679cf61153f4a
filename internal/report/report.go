// Package report turns per-event pipeline outcomes into the NDJSON records
// the command writes back to the caller.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/crimson-sun/beacon/internal/pipeline"
)

// Status values carried on an Outcome.
const (
	StatusProcessed = "processed"
	StatusCancelled = "cancelled"
	StatusFailed    = "failed"
)

// Outcome is one event's processing verdict.
type Outcome struct {
	EventID      string `json:"event_id"`
	StackID      string `json:"stack_id,omitempty"`
	SessionID    string `json:"session_id,omitempty"`
	Status       string `json:"status"`
	IsNew        bool   `json:"is_new,omitempty"`
	IsRegression bool   `json:"is_regression,omitempty"`
	Error        string `json:"error,omitempty"`
}

// FromContext maps a pipeline context onto its reportable outcome.
func FromContext(c *pipeline.Context) Outcome {
	o := Outcome{
		EventID:      c.Event.ID,
		StackID:      c.Event.StackID,
		SessionID:    c.Event.SessionID,
		IsNew:        c.IsNew,
		IsRegression: c.IsRegression,
	}
	switch {
	case c.HasError():
		o.Status = StatusFailed
		o.Error = c.Err.Error()
	case c.IsCancelled:
		o.Status = StatusCancelled
	default:
		o.Status = StatusProcessed
	}
	return o
}

// Writer streams outcomes as NDJSON.
type Writer struct {
	enc *json.Encoder
}

// NewWriter creates a Writer over w, optionally pretty-printing each record.
func NewWriter(w io.Writer, pretty bool) *Writer {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return &Writer{enc: enc}
}

// Stdout creates a Writer on standard output.
func Stdout(pretty bool) *Writer {
	return NewWriter(os.Stdout, pretty)
}

// WriteBatch reports every context of a processed batch in order.
func (w *Writer) WriteBatch(contexts []*pipeline.Context) error {
	for _, c := range contexts {
		if err := w.enc.Encode(FromContext(c)); err != nil {
			return fmt.Errorf("write outcome: %w", err)
		}
	}
	return nil
}
