package logevent

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"
)

var t0 = time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC)

func mustEvent(t *testing.T, message, source string, opts ...Option) Event {
	t.Helper()
	e, err := New(message, source, t0, LevelError, opts...)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return e
}

func TestNewRejectsBlankFields(t *testing.T) {
	if _, err := New("  ", "svc", t0, LevelError); !errors.Is(err, ErrMissingMessage) {
		t.Fatalf("blank message: got %v, want ErrMissingMessage", err)
	}
	if _, err := New("boom", "", t0, LevelError); !errors.Is(err, ErrMissingSource) {
		t.Fatalf("blank source: got %v, want ErrMissingSource", err)
	}
}

func TestAccessorsReturnCopies(t *testing.T) {
	attrs := map[string]string{"k": "v"}
	e := mustEvent(t, "boom", "svc", WithAttributes(attrs))

	attrs["k"] = "changed"
	if v, _ := e.Attribute("k"); v != "v" {
		t.Fatalf("constructor did not copy attributes, got %q", v)
	}

	got := e.Attributes()
	got["k"] = "mutated"
	if v, _ := e.Attribute("k"); v != "v" {
		t.Fatalf("accessor leaked internal map, got %q", v)
	}
}

func TestWithLevelLeavesOriginal(t *testing.T) {
	e := mustEvent(t, "boom", "svc")
	raised := e.WithLevel(LevelCritical)
	if e.Level() != LevelError {
		t.Fatalf("original level changed to %v", e.Level())
	}
	if raised.Level() != LevelCritical {
		t.Fatalf("copy level = %v, want Critical", raised.Level())
	}
}

func TestFingerprintModes(t *testing.T) {
	a := mustEvent(t, "boom", "svc", WithTrace("t1", "s1"))
	b, err := New("boom", "svc", t0.Add(time.Second), LevelError, WithTrace("t1", "s1"))
	if err != nil {
		t.Fatal(err)
	}

	if a.Fingerprint(FingerprintExact) == b.Fingerprint(FingerprintExact) {
		t.Fatal("exact fingerprints should differ when timestamps differ")
	}
	if a.Fingerprint(FingerprintTemplate) != b.Fingerprint(FingerprintTemplate) {
		t.Fatal("template fingerprints should ignore the timestamp")
	}
	if len(a.Fingerprint(FingerprintExact)) != 64 {
		t.Fatalf("fingerprint should be 64 hex chars, got %d", len(a.Fingerprint(FingerprintExact)))
	}

	c := mustEvent(t, "boom", "svc", WithTrace("t2", "s1"))
	if a.Fingerprint(FingerprintTemplate) == c.Fingerprint(FingerprintTemplate) {
		t.Fatal("fingerprint should include the trace id")
	}
}

func TestJSONUsesCamelCase(t *testing.T) {
	e := mustEvent(t, "conn refused to db", "orders",
		WithTemplate("conn refused to %s"),
		WithTrace("abc", "def"),
		WithResourceAttributes(map[string]string{"service.name": "orders"}),
	)

	b, err := json.Marshal(e)
	if err != nil {
		t.Fatal(err)
	}
	s := string(b)
	for _, want := range []string{`"messageTemplate":"conn refused to %s"`, `"traceId":"abc"`, `"level":"Error"`, `"resourceAttributes"`} {
		if !strings.Contains(s, want) {
			t.Errorf("JSON %s missing %s", s, want)
		}
	}

	var back Event
	if err := json.Unmarshal(b, &back); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if back.Message() != e.Message() || back.Level() != e.Level() || !back.Timestamp().Equal(e.Timestamp()) {
		t.Fatalf("round trip mismatch: %+v vs %+v", back, e)
	}
	if back.Fingerprint(FingerprintExact) != e.Fingerprint(FingerprintExact) {
		t.Fatal("round trip changed the fingerprint")
	}
}

func TestUnmarshalRevalidates(t *testing.T) {
	var e Event
	err := json.Unmarshal([]byte(`{"message":"","source":"svc","level":"Error"}`), &e)
	if !errors.Is(err, ErrMissingMessage) {
		t.Fatalf("got %v, want ErrMissingMessage", err)
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  Level
	}{
		{"trace", LevelTrace},
		{"Debug", LevelDebug},
		{"info", LevelInformation},
		{"Information", LevelInformation},
		{"WARN", LevelWarning},
		{"warning", LevelWarning},
		{"error", LevelError},
		{"fatal", LevelCritical},
		{"Critical", LevelCritical},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.input)
		if err != nil {
			t.Errorf("ParseLevel(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
		}
	}
	if _, err := ParseLevel("loud"); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestLevelOrdering(t *testing.T) {
	order := []Level{LevelTrace, LevelDebug, LevelInformation, LevelWarning, LevelError, LevelCritical}
	for i := 1; i < len(order); i++ {
		if !(order[i-1] < order[i]) {
			t.Fatalf("%v should be below %v", order[i-1], order[i])
		}
	}
}
