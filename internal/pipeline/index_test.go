package pipeline

import (
	"testing"
	"time"

	"github.com/crimson-sun/beacon/internal/model"
)

func TestIndexDataTypedSuffixes(t *testing.T) {
	ev := logEvent(0, "app", "checkout")
	ev.Data = map[string]any{
		"plan":      "enterprise",
		"seats":     float64(25),
		"trial":     true,
		"renews":    "2026-04-01T00:00:00Z",
		"latency":   "18.5",
		"active":    "false",
		"shouting":  "TRUE",
		"attempt":   "1",
		"grade":     "t",
		"World":     "folded",
		"@internal": "never indexed",
	}

	indexEventData(ev)

	want := map[string]any{
		"plan-s":    "enterprise",
		"seats-n":   float64(25),
		"trial-b":   true,
		"renews-d":  time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		"latency-n": 18.5,
		"active-b":  false,
		// Only spelled-out literals are booleans; ParseBool inputs like
		// "1" and "t" keep their numeric or textual shape.
		"shouting-b": true,
		"attempt-n":  float64(1),
		"grade-s":    "t",
		"world-s":    "folded",
	}
	if len(ev.Idx) != len(want) {
		t.Fatalf("expected %d index fields, got %v", len(want), ev.Idx)
	}
	for field, value := range want {
		got, ok := ev.Idx[field]
		if !ok {
			t.Fatalf("missing index field %q in %v", field, ev.Idx)
		}
		if tm, isTime := value.(time.Time); isTime {
			if !tm.Equal(got.(time.Time)) {
				t.Fatalf("field %q: expected %v, got %v", field, value, got)
			}
			continue
		}
		if got != value {
			t.Fatalf("field %q: expected %v (%T), got %v (%T)", field, value, value, got, got)
		}
	}
}

func TestIndexDataDropsUnusableKeys(t *testing.T) {
	ev := logEvent(0, "app", "checkout")
	ev.Data = map[string]any{
		"1stparty":  "starts with a digit",
		"has space": "inner whitespace",
		"source":    "reserved",
		"tags":      "reserved",
		"":          "empty",
		"nested":    map[string]any{"a": 1},
		"list":      []any{1, 2},
	}

	indexEventData(ev)
	if len(ev.Idx) != 0 {
		t.Fatalf("expected nothing indexed, got %v", ev.Idx)
	}
}

func TestIndexDataReferences(t *testing.T) {
	ev := logEvent(0, "app", "checkout")
	ev.Data = map[string]any{
		model.RefKeyPrefix + "order": "ord_8841",
	}
	ev.SetSessionID("12345678")

	indexEventData(ev)
	if got := ev.Idx["order-r"]; got != "ord_8841" {
		t.Fatalf("expected reference field, got %v", ev.Idx)
	}
	if got := ev.Idx["session-r"]; got != "12345678" {
		t.Fatalf("session id mirror must index as a reference, got %v", ev.Idx)
	}
}

func TestIndexDataRunsInPipeline(t *testing.T) {
	p, _ := newTestPipeline()
	ev := logEvent(0, "app", "checkout")
	ev.Data = map[string]any{"plan": "free"}
	run(t, p, ev)
	if got := ev.Idx["plan-s"]; got != "free" {
		t.Fatalf("pipeline must index custom data, got %v", ev.Idx)
	}
}
