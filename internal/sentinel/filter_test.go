package sentinel

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

func newEvent(t *testing.T, msg string, level logevent.Level, opts ...logevent.Option) logevent.Event {
	t.Helper()
	ev, err := logevent.New(msg, "orders", time.Now(), level, opts...)
	if err != nil {
		t.Fatal(err)
	}
	return ev
}

func ticket(status tracker.Status, data map[string]string) tracker.WorkItem {
	sd := make(map[string]json.RawMessage, len(data))
	for k, v := range data {
		sd[k] = ToJSONValue(v)
	}
	return tracker.WorkItem{Status: status, SourceLabel: tracker.SourceSentinel, SourceData: sd}
}

func TestFilter_Accept(t *testing.T) {
	f := NewFilter(DefaultConfig(), nil, nil)
	openTmpl := ticket(tracker.StatusNew, map[string]string{"messageTemplate": "conn refused to %s"})
	closedTmpl := ticket(tracker.StatusDone, map[string]string{"messageTemplate": "conn refused to %s"})
	openMsg := ticket(tracker.StatusInProgress, map[string]string{"message": "disk full"})

	tmpl := logevent.WithTemplate("conn refused to %s")
	tests := []struct {
		name     string
		event    logevent.Event
		existing []tracker.WorkItem
		want     bool
	}{
		{"below minimum", newEvent(t, "hello", logevent.LevelInformation), nil, false},
		{"at minimum", newEvent(t, "hello", logevent.LevelWarning), nil, true},
		{"open ticket same template", newEvent(t, "conn refused to db-2", logevent.LevelError, tmpl), []tracker.WorkItem{openTmpl}, false},
		{"closed ticket same template", newEvent(t, "conn refused to db-2", logevent.LevelError, tmpl), []tracker.WorkItem{closedTmpl}, true},
		{"different template", newEvent(t, "timeout", logevent.LevelError, logevent.WithTemplate("timeout after %d ms")), []tracker.WorkItem{openTmpl}, true},
		{"no template same message", newEvent(t, "disk full", logevent.LevelCritical), []tracker.WorkItem{openMsg}, false},
		{"no template other message", newEvent(t, "disk nearly full", logevent.LevelCritical), []tracker.WorkItem{openMsg}, true},
		{"template does not match on message", newEvent(t, "disk full", logevent.LevelError, tmpl), []tracker.WorkItem{openMsg}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Accept(tt.event, tt.existing); got != tt.want {
				t.Fatalf("Accept = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestFilter_Evaluate(t *testing.T) {
	ctx := context.Background()
	mem := tracker.NewMemory()
	f := NewFilter(DefaultConfig(), mem.Projects(), mem.WorkItems())
	ev := newEvent(t, "conn refused to db-1", logevent.LevelError, logevent.WithTemplate("conn refused to %s"))

	ok, err := f.Evaluate(ctx, ev)
	if err != nil || !ok {
		t.Fatalf("missing project should accept: %v %v", ok, err)
	}

	p, _ := mem.Projects().Create(ctx, tracker.CreateProjectRequest{Title: DefaultProjectName})
	_, err = mem.WorkItems().Create(ctx, p.ID, tracker.CreateWorkItemRequest{
		Title:      "Sentinel Alert #1",
		SourceData: map[string]json.RawMessage{"messageTemplate": ToJSONValue("conn refused to %s")},
	})
	if err != nil {
		t.Fatal(err)
	}

	ok, err = f.Evaluate(ctx, ev)
	if err != nil || ok {
		t.Fatalf("open ticket should suppress: %v %v", ok, err)
	}
}
