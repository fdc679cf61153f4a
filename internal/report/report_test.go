package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/crimson-sun/beacon/internal/model"
	"github.com/crimson-sun/beacon/internal/pipeline"
)

func ctxFor(id string) *pipeline.Context {
	return pipeline.NewContext(&model.Event{ID: id, StackID: "stack1"})
}

func TestFromContext(t *testing.T) {
	processed := ctxFor("ev1")
	processed.IsProcessed = true
	processed.IsNew = true

	cancelled := ctxFor("ev2")
	cancelled.Cancel()

	failed := ctxFor("ev3")
	failed.SetError(errors.New("boom"))

	tests := []struct {
		c      *pipeline.Context
		status string
		errMsg string
	}{
		{processed, StatusProcessed, ""},
		{cancelled, StatusCancelled, ""},
		{failed, StatusFailed, "boom"},
	}
	for _, tt := range tests {
		o := FromContext(tt.c)
		if o.Status != tt.status {
			t.Fatalf("event %s: expected status %q, got %q", o.EventID, tt.status, o.Status)
		}
		if o.Error != tt.errMsg {
			t.Fatalf("event %s: expected error %q, got %q", o.EventID, tt.errMsg, o.Error)
		}
	}
	if o := FromContext(processed); !o.IsNew {
		t.Fatal("IsNew must carry through")
	}
}

func TestWriteBatchNDJSON(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, false)

	a := ctxFor("ev1")
	a.IsProcessed = true
	b := ctxFor("ev2")
	b.Cancel()

	if err := w.WriteBatch([]*pipeline.Context{a, b}); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 NDJSON lines, got %d: %s", len(lines), buf.String())
	}
	var o Outcome
	if err := json.Unmarshal([]byte(lines[1]), &o); err != nil {
		t.Fatalf("invalid NDJSON line: %v", err)
	}
	if o.EventID != "ev2" || o.Status != StatusCancelled {
		t.Fatalf("unexpected outcome: %+v", o)
	}
}
