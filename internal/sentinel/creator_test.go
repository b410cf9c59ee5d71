package sentinel

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/logging"
	"github.com/LukasLeindals/ergonaut/internal/tracker"
)

func TestPriorityFor(t *testing.T) {
	tests := []struct {
		level logevent.Level
		want  tracker.Priority
	}{
		{logevent.LevelCritical, tracker.PriorityHigh},
		{logevent.LevelError, tracker.PriorityHigh},
		{logevent.LevelWarning, tracker.PriorityMedium},
		{logevent.LevelInformation, tracker.PriorityLow},
		{logevent.LevelDebug, tracker.PriorityLow},
		{logevent.LevelTrace, tracker.PriorityLow},
	}
	for _, tt := range tests {
		got := PriorityFor(tt.level)
		if got == nil || *got != tt.want {
			t.Errorf("PriorityFor(%v) = %v, want %v", tt.level, got, tt.want)
		}
	}
	if got := PriorityFor(logevent.Level(42)); got != nil {
		t.Errorf("unknown level should have no priority, got %v", *got)
	}
}

func TestNextTitle(t *testing.T) {
	s := func(title string) tracker.WorkItem {
		return tracker.WorkItem{Title: title, SourceLabel: tracker.SourceSentinel}
	}
	local := tracker.WorkItem{Title: "Fix login #99", SourceLabel: tracker.SourceLocal}

	tests := []struct {
		name  string
		items []tracker.WorkItem
		want  string
	}{
		{"empty", nil, "Sentinel Alert #1"},
		{"only local items", []tracker.WorkItem{local}, "Sentinel Alert #1"},
		{"last sentinel wins", []tracker.WorkItem{s("Sentinel Alert #7"), local, s("Sentinel Alert #3")}, "Sentinel Alert #4"},
		{"unparseable suffix counts", []tracker.WorkItem{s("Sentinel Alert #1"), s("renamed by hand")}, "Sentinel Alert #3"},
	}
	for _, tt := range tests {
		if got := nextTitle(tt.items); got != tt.want {
			t.Errorf("%s: nextTitle = %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestToJSONValue(t *testing.T) {
	tests := map[string]string{
		"42":              `42`,
		"-1.5e3":          `-1.5e3`,
		"true":            `true`,
		"null":            `null`,
		`{"a":1}`:         `{"a":1}`,
		`[1,"x"]`:         `[1,"x"]`,
		"hello":           `"hello"`,
		"":                `""`,
		"conn refused %s": `"conn refused %s"`,
		`"quoted"`:        `"\"quoted\""`,
		"{broken":         `"{broken"`,
	}
	for in, want := range tests {
		if got := string(ToJSONValue(in)); got != want {
			t.Errorf("ToJSONValue(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestCreator_Create(t *testing.T) {
	ctx := context.Background()
	mem := tracker.NewMemory()
	c := NewCreator(DefaultConfig(), mem.Projects(), mem.WorkItems(), logging.Discard())

	ev := newEvent(t, "conn refused to db-1", logevent.LevelError,
		logevent.WithTemplate("conn refused to %s"),
		logevent.WithResourceAttributes(map[string]string{"service.name": "orders", "replicas": "3"}),
		logevent.WithAttributes(map[string]string{"service.name": "override", "retry": "true"}),
	)

	first, err := c.Create(ctx, ev)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Title != "Sentinel Alert #1" || first.Status != tracker.StatusNew || first.SourceLabel != tracker.SourceSentinel {
		t.Fatalf("work item = %+v", first)
	}
	if first.Priority == nil || *first.Priority != tracker.PriorityHigh {
		t.Fatalf("priority = %v", first.Priority)
	}
	if first.Description != "conn refused to db-1" {
		t.Fatalf("description = %q", first.Description)
	}
	if tmpl, _ := first.SourceString("messageTemplate"); tmpl != "conn refused to %s" {
		t.Fatalf("template = %q", tmpl)
	}
	if string(first.SourceData["replicas"]) != "3" || string(first.SourceData["retry"]) != "true" {
		t.Fatalf("typed attributes: %s %s", first.SourceData["replicas"], first.SourceData["retry"])
	}
	if name, _ := first.SourceString("service.name"); name != "override" {
		t.Fatalf("record attributes should override resource attributes, got %q", name)
	}
	var level string
	if err := json.Unmarshal(first.SourceData["level"], &level); err != nil || level != "Error" {
		t.Fatalf("level = %q, %v", level, err)
	}

	project, err := mem.Projects().GetByName(ctx, DefaultProjectName)
	if err != nil {
		t.Fatal("project should be auto-created")
	}
	if project.SourceLabel != tracker.SourceSentinel || project.Description != "Auto-created project for Sentinel log events." {
		t.Fatalf("project = %+v", project)
	}

	second, err := c.Create(ctx, newEvent(t, "other", logevent.LevelWarning))
	if err != nil {
		t.Fatal(err)
	}
	if second.Title != "Sentinel Alert #2" {
		t.Fatalf("second title = %q", second.Title)
	}
	if *second.Priority != tracker.PriorityMedium {
		t.Fatalf("second priority = %v", *second.Priority)
	}

	all, _ := mem.Projects().List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected one project, got %d", len(all))
	}
}
