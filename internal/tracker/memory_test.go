package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
)

func TestMemoryProjectLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()

	if _, err := m.Projects().GetByName(ctx, "Sentinel"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	p, err := m.Projects().Create(ctx, CreateProjectRequest{Title: "Sentinel", SourceLabel: SourceSentinel})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	again, err := m.Projects().Create(ctx, CreateProjectRequest{Title: "sentinel"})
	if err != nil {
		t.Fatalf("second Create: %v", err)
	}
	if again.ID != p.ID {
		t.Fatal("creating a duplicate title should return the existing project")
	}

	got, err := m.Projects().GetByName(ctx, "SENTINEL")
	if err != nil || got.ID != p.ID {
		t.Fatalf("GetByName: got %v, %v", got, err)
	}

	all, _ := m.Projects().List(ctx)
	if len(all) != 1 {
		t.Fatalf("expected 1 project, got %d", len(all))
	}
}

func TestMemoryWorkItems(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	p, _ := m.Projects().Create(ctx, CreateProjectRequest{Title: "Sentinel"})

	if _, err := m.WorkItems().Create(ctx, uuid.New(), CreateWorkItemRequest{Title: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("create in unknown project: got %v", err)
	}

	first, err := m.WorkItems().Create(ctx, p.ID, CreateWorkItemRequest{
		Title:      "Sentinel Alert #1",
		SourceData: map[string]json.RawMessage{"message": json.RawMessage(`"boom"`)},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if first.Status != StatusNew {
		t.Fatalf("default status = %q, want New", first.Status)
	}
	if msg, ok := first.SourceString("message"); !ok || msg != "boom" {
		t.Fatalf("SourceString = %q, %v", msg, ok)
	}

	second, _ := m.WorkItems().Create(ctx, p.ID, CreateWorkItemRequest{Title: "Sentinel Alert #2", Status: StatusDone})

	items, err := m.WorkItems().List(ctx, p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 || items[0].ID != first.ID || items[1].ID != second.ID {
		t.Fatalf("List should preserve creation order, got %+v", items)
	}

	if err := m.WorkItems().Delete(ctx, p.ID, first.ID); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := m.WorkItems().Get(ctx, p.ID, first.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Get after delete: %v", err)
	}
	if got, err := m.WorkItems().Get(ctx, p.ID, second.ID); err != nil || !got.Status.Closed() {
		t.Fatalf("Get second: %+v, %v", got, err)
	}
}
