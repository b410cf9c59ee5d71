package logevent

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"maps"
	"strings"
	"time"
)

var (
	ErrMissingMessage = errors.New("log event message is required")
	ErrMissingSource  = errors.New("log event source is required")
)

// FingerprintMode selects which fields participate in Event.Fingerprint.
type FingerprintMode int

const (
	// FingerprintExact includes the timestamp, so only re-deliveries of the
	// same occurrence collide.
	FingerprintExact FingerprintMode = iota
	// FingerprintTemplate leaves the timestamp out, so every occurrence of
	// the same message from the same source and trace collides.
	FingerprintTemplate
)

// Event is the canonical, flattened form of one telemetry log record.
//
// Event is a value type. Its fields are unexported and the accessors for
// map fields return copies, so a received Event cannot be changed by its
// sender after the fact. The With* methods return modified copies.
type Event struct {
	message            string
	source             string
	timestamp          time.Time
	level              Level
	messageTemplate    string
	traceID            string
	spanID             string
	attributes         map[string]string
	resourceAttributes map[string]string
	scopeAttributes    map[string]string
	metadata           map[string]any
}

// Option sets an optional field on a new Event.
type Option func(*Event)

func WithTemplate(template string) Option {
	return func(e *Event) { e.messageTemplate = template }
}

func WithTrace(traceID, spanID string) Option {
	return func(e *Event) {
		e.traceID = traceID
		e.spanID = spanID
	}
}

func WithAttributes(attrs map[string]string) Option {
	return func(e *Event) { e.attributes = maps.Clone(attrs) }
}

func WithResourceAttributes(attrs map[string]string) Option {
	return func(e *Event) { e.resourceAttributes = maps.Clone(attrs) }
}

func WithScopeAttributes(attrs map[string]string) Option {
	return func(e *Event) { e.scopeAttributes = maps.Clone(attrs) }
}

func WithMetadata(md map[string]any) Option {
	return func(e *Event) { e.metadata = maps.Clone(md) }
}

// New validates and builds an Event. Message and source must be non-blank.
func New(message, source string, ts time.Time, level Level, opts ...Option) (Event, error) {
	if strings.TrimSpace(message) == "" {
		return Event{}, ErrMissingMessage
	}
	if strings.TrimSpace(source) == "" {
		return Event{}, ErrMissingSource
	}
	e := Event{
		message:   message,
		source:    source,
		timestamp: ts.UTC(),
		level:     level,
	}
	for _, opt := range opts {
		opt(&e)
	}
	return e, nil
}

func (e Event) Message() string         { return e.message }
func (e Event) Source() string          { return e.source }
func (e Event) Timestamp() time.Time    { return e.timestamp }
func (e Event) Level() Level            { return e.level }
func (e Event) MessageTemplate() string { return e.messageTemplate }
func (e Event) TraceID() string         { return e.traceID }
func (e Event) SpanID() string          { return e.spanID }

func (e Event) Attributes() map[string]string         { return maps.Clone(e.attributes) }
func (e Event) ResourceAttributes() map[string]string { return maps.Clone(e.resourceAttributes) }
func (e Event) ScopeAttributes() map[string]string    { return maps.Clone(e.scopeAttributes) }
func (e Event) Metadata() map[string]any              { return maps.Clone(e.metadata) }

// Attribute looks up a record attribute without copying the map.
func (e Event) Attribute(key string) (string, bool) {
	v, ok := e.attributes[key]
	return v, ok
}

// WithLevel returns a copy of e at a different level.
func (e Event) WithLevel(level Level) Event {
	e.level = level
	return e
}

// WithMessageTemplate returns a copy of e carrying template.
func (e Event) WithMessageTemplate(template string) Event {
	e.messageTemplate = template
	return e
}

// Fingerprint returns hex(SHA-256) over source, message, trace id, span id
// and, in exact mode, the timestamp, joined by "__".
func (e Event) Fingerprint(mode FingerprintMode) string {
	parts := []string{e.source, e.message, e.traceID, e.spanID}
	if mode == FingerprintExact {
		parts = append(parts, e.timestamp.UTC().Format(time.RFC3339Nano))
	}
	sum := sha256.Sum256([]byte(strings.Join(parts, "__")))
	return hex.EncodeToString(sum[:])
}

// wireEvent is the JSON shape of an Event: camelCase, level by name.
type wireEvent struct {
	Message            string            `json:"message"`
	Source             string            `json:"source"`
	Timestamp          time.Time         `json:"timestamp"`
	Level              Level             `json:"level"`
	MessageTemplate    string            `json:"messageTemplate,omitempty"`
	TraceID            string            `json:"traceId,omitempty"`
	SpanID             string            `json:"spanId,omitempty"`
	Attributes         map[string]string `json:"attributes,omitempty"`
	ResourceAttributes map[string]string `json:"resourceAttributes,omitempty"`
	ScopeAttributes    map[string]string `json:"scopeAttributes,omitempty"`
	Metadata           map[string]any    `json:"metadata,omitempty"`
}

func (e Event) MarshalJSON() ([]byte, error) {
	return json.Marshal(wireEvent{
		Message:            e.message,
		Source:             e.source,
		Timestamp:          e.timestamp,
		Level:              e.level,
		MessageTemplate:    e.messageTemplate,
		TraceID:            e.traceID,
		SpanID:             e.spanID,
		Attributes:         e.attributes,
		ResourceAttributes: e.resourceAttributes,
		ScopeAttributes:    e.scopeAttributes,
		Metadata:           e.metadata,
	})
}

// UnmarshalJSON decodes and re-validates an Event.
func (e *Event) UnmarshalJSON(data []byte) error {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	decoded, err := New(w.Message, w.Source, w.Timestamp, w.Level,
		WithTemplate(w.MessageTemplate),
		WithTrace(w.TraceID, w.SpanID),
		WithAttributes(w.Attributes),
		WithResourceAttributes(w.ResourceAttributes),
		WithScopeAttributes(w.ScopeAttributes),
		WithMetadata(w.Metadata),
	)
	if err != nil {
		return err
	}
	*e = decoded
	return nil
}
