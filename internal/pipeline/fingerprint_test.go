package pipeline

import (
	"testing"

	"github.com/crimson-sun/beacon/internal/model"
)

func TestFingerprintLocationWins(t *testing.T) {
	a := errorEvent(0, "NullReferenceException", "object reference not set")
	a.Error.Location = "Core.Billing.Invoice.Total"
	b := errorEvent(0, "NullReferenceException", "completely different wording")
	b.Error.Location = "Core.Billing.Invoice.Total"

	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("same kind and location must share a fingerprint")
	}

	c := errorEvent(0, "NullReferenceException", "object reference not set")
	c.Error.Location = "Core.Billing.Invoice.Subtotal"
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("different locations must not share a fingerprint")
	}
}

func TestFingerprintNormalizedMessage(t *testing.T) {
	a := errorEvent(0, "SocketException", "connection to 10.0.0.17:5432 refused")
	b := errorEvent(0, "SocketException", "Connection to 10.0.4.201:6379 REFUSED")
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("messages differing only in numbers and casing must collapse")
	}

	c := errorEvent(0, "SocketException", "handshake at 0xDEADBEEF timed out")
	d := errorEvent(0, "SocketException", "handshake at 0x1F33 timed out")
	if Fingerprint(c) != Fingerprint(d) {
		t.Fatalf("hex addresses must be stripped before hashing")
	}
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("different normalized messages must not collapse")
	}
}

func TestFingerprintGlobalCollapse(t *testing.T) {
	// Errors with no kind, no message and no location all land in one
	// catch-all stack.
	a := &model.Event{ProjectID: "proj1", Type: model.TypeError, Error: &model.ErrorDetails{}}
	b := &model.Event{ProjectID: "proj1", Type: model.TypeError}
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("detail-free errors must collapse into the global stack")
	}

	// A message consisting only of volatile content normalizes away.
	c := errorEvent(0, "", "500 404 0x2A")
	c.Error = &model.ErrorDetails{}
	c.Message = "500 404 0x2A"
	if Fingerprint(c) != Fingerprint(a) {
		t.Fatalf("message that normalizes to nothing must fall through to global")
	}
}

func TestFingerprintNonErrorTypes(t *testing.T) {
	a := logEvent(0, "billing", "invoice created")
	b := logEvent(0, "billing", "invoice created")
	if Fingerprint(a) != Fingerprint(b) {
		t.Fatalf("identical log events must share a fingerprint")
	}
	c := logEvent(0, "billing", "invoice deleted")
	if Fingerprint(a) == Fingerprint(c) {
		t.Fatalf("different messages must not share a fingerprint")
	}
	d := logEvent(0, "shipping", "invoice created")
	if Fingerprint(a) == Fingerprint(d) {
		t.Fatalf("different sources must not share a fingerprint")
	}
}
