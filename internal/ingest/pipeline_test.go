package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
	"github.com/LukasLeindals/ergonaut/internal/logging"
	"github.com/LukasLeindals/ergonaut/internal/otlp"
)

type fakePublisher struct {
	publishFn func(ctx context.Context, events []logevent.Event) error
	batches   [][]logevent.Event
}

func (f *fakePublisher) Publish(ctx context.Context, events []logevent.Event) error {
	f.batches = append(f.batches, events)
	if f.publishFn != nil {
		return f.publishFn(ctx, events)
	}
	return nil
}

const scenarioPayload = `{
  "resourceLogs": [{
    "resource": {"attributes": [{"key": "service.name", "value": {"stringValue": "orders"}}]},
    "scopeLogs": [{
      "logRecords": [{
        "timeUnixNano": "1700000000000000000",
        "severityNumber": 9,
        "severityText": "Information",
        "body": {"stringValue": "Test log message"},
        "attributes": [{"key": "logger.name", "value": {"stringValue": "Telemetry.Logger"}}]
      }]
    }]
  }]
}`

func jsonContext() otlp.ParseContext {
	return otlp.ParseContext{Format: otlp.FormatJSON, Source: "test"}
}

func TestIngest_Scenario(t *testing.T) {
	pub := &fakePublisher{}
	p := NewPipeline(pub, logging.Discard(), nil)

	res := p.Ingest(context.Background(), []byte(scenarioPayload), jsonContext())
	if !res.Success || res.Accepted() != 1 {
		t.Fatalf("result = %+v", res)
	}
	ev := res.Events[0]
	if ev.Message() != "Test log message" || ev.Source() != "Telemetry.Logger" || ev.Level() != logevent.LevelInformation {
		t.Fatalf("event = %q/%q/%v", ev.Message(), ev.Source(), ev.Level())
	}
	if len(pub.batches) != 1 || len(pub.batches[0]) != 1 {
		t.Fatalf("expected one published batch of one event, got %v", pub.batches)
	}
}

func TestIngest_EmptyPayload(t *testing.T) {
	pub := &fakePublisher{}
	res := NewPipeline(pub, logging.Discard(), nil).Ingest(context.Background(), nil, jsonContext())
	if res.Success || len(res.Errors) != 1 || res.Errors[0] != "Payload is empty." {
		t.Fatalf("result = %+v", res)
	}
	if len(pub.batches) != 0 {
		t.Fatal("nothing should be published")
	}
}

func TestIngest_ParseFailure(t *testing.T) {
	res := NewPipeline(&fakePublisher{}, logging.Discard(), nil).Ingest(context.Background(), []byte("nope"), jsonContext())
	var pe *otlp.ParseError
	if res.Success || !errors.As(res.Err, &pe) {
		t.Fatalf("result = %+v", res)
	}
}

func TestIngest_AllDroppedIsSuccess(t *testing.T) {
	payload := `{"resourceLogs":[{"scopeLogs":[{"logRecords":[{"severityNumber":13}]}]}]}`
	pub := &fakePublisher{}
	res := NewPipeline(pub, logging.Discard(), nil).Ingest(context.Background(), []byte(payload), jsonContext())
	if !res.Success || res.Accepted() != 0 || res.Dropped != 1 || len(res.Warnings) != 1 {
		t.Fatalf("result = %+v", res)
	}
	if len(pub.batches) != 0 {
		t.Fatal("an empty batch should not be published")
	}
}

func TestIngest_PublishFailure(t *testing.T) {
	boom := errors.New("broker down")
	pub := &fakePublisher{publishFn: func(context.Context, []logevent.Event) error { return boom }}
	res := NewPipeline(pub, logging.Discard(), nil).Ingest(context.Background(), []byte(scenarioPayload), jsonContext())
	if res.Success || !errors.Is(res.Err, ErrPublish) || !errors.Is(res.Err, boom) {
		t.Fatalf("result = %+v", res)
	}
	if res.Accepted() != 0 {
		t.Fatal("failed results carry no events")
	}
}

func TestMultiPublisher(t *testing.T) {
	boom := errors.New("boom")
	a := &fakePublisher{}
	b := &fakePublisher{publishFn: func(context.Context, []logevent.Event) error { return boom }}
	c := &fakePublisher{}

	ev, err := logevent.New("m", "s", time.Now(), logevent.LevelError)
	if err != nil {
		t.Fatal(err)
	}
	err = MultiPublisher{a, b, c}.Publish(context.Background(), []logevent.Event{ev})
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(a.batches) != 1 || len(c.batches) != 1 {
		t.Fatal("every publisher should receive the batch")
	}
}
