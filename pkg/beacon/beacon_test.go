package beacon

import (
	"context"
	"testing"
	"time"
)

func newTestBeacon(t *testing.T) *Beacon {
	t.Helper()
	b, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { b.Close() })
	return b
}

func TestProcessErrorEvent(t *testing.T) {
	b := newTestBeacon(t)

	outcomes, err := b.Process(context.Background(), []Event{{
		OrganizationID: "org1",
		ProjectID:      "proj1",
		Type:           "error",
		Date:           time.Now(),
		Error:          &ErrorDetails{Kind: "NullReferenceException", Message: "boom"},
	}})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if len(outcomes) != 1 {
		t.Fatalf("expected 1 outcome, got %d", len(outcomes))
	}
	o := outcomes[0]
	if o.Status != StatusProcessed {
		t.Fatalf("expected processed, got %q (%s)", o.Status, o.Error)
	}
	if o.StackID == "" || !o.IsNew {
		t.Fatalf("first occurrence must open a stack: %+v", o)
	}
}

func TestProcessSharesStacksAcrossCalls(t *testing.T) {
	b := newTestBeacon(t)
	ev := Event{
		ProjectID: "proj1",
		Type:      "error",
		Error:     &ErrorDetails{Kind: "TimeoutException", Message: "slow"},
	}

	first, err := b.ProcessOne(context.Background(), ev)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	second, err := b.ProcessOne(context.Background(), ev)
	if err != nil {
		t.Fatalf("ProcessOne: %v", err)
	}
	if second.IsNew {
		t.Fatal("second occurrence must not open a new stack")
	}
	if second.StackID != first.StackID {
		t.Fatalf("expected stack %q, got %q", first.StackID, second.StackID)
	}
}

func TestProcessSessionActivity(t *testing.T) {
	b := newTestBeacon(t)
	now := time.Now()

	outcomes, err := b.Process(context.Background(), []Event{
		{ProjectID: "proj1", Type: "log", Date: now, UserIdentity: "eric", Message: "click"},
		{ProjectID: "proj1", Type: "session-end", Date: now.Add(10 * time.Second), UserIdentity: "eric"},
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	// A synthetic session start joins the outcomes.
	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	if outcomes[0].SessionID == "" || outcomes[0].SessionID != outcomes[1].SessionID {
		t.Fatalf("activity must share a session id: %+v", outcomes[:2])
	}
}

func TestProcessGrouped(t *testing.T) {
	b := newTestBeacon(t)
	var events []Event
	for _, project := range []string{"proj1", "proj2", "proj3"} {
		events = append(events,
			Event{ProjectID: project, Type: "log", Source: "app", Message: "started"},
			Event{ProjectID: project, Type: "log", Source: "app", Message: "stopped"},
		)
	}

	groups, err := b.ProcessGrouped(context.Background(), events)
	if err != nil {
		t.Fatalf("ProcessGrouped: %v", err)
	}
	if len(groups) != 3 {
		t.Fatalf("expected 3 project groups, got %d", len(groups))
	}
	for _, outcomes := range groups {
		for _, o := range outcomes {
			if o.Status != StatusProcessed {
				t.Fatalf("expected all processed, got %+v", o)
			}
		}
	}
}

func TestValidateQueryFacade(t *testing.T) {
	res := ValidateQuery(TreeInfo{Valid: true, Fields: []string{"stack_id"}})
	if !res.Valid || res.UsesPremiumFeatures {
		t.Fatalf("unexpected result: %+v", res)
	}
	res = ValidateAggregations(TreeInfo{Valid: true, MaxDepth: 5})
	if res.Valid || res.Message != "aggregation max depth exceeded" {
		t.Fatalf("unexpected result: %+v", res)
	}
}

func TestNewUnknownDriver(t *testing.T) {
	if _, err := New(WithDriver("etcd")); err == nil {
		t.Fatal("expected error for unknown driver, got nil")
	}
}
