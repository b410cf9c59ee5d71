package otlp

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	commonpb "go.opentelemetry.io/proto/otlp/common/v1"
	logspb "go.opentelemetry.io/proto/otlp/logs/v1"
	resourcepb "go.opentelemetry.io/proto/otlp/resource/v1"
	"golang.org/x/text/cases"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

const (
	defaultServiceName = "unknown-service"
	templateKey        = "messagetemplate"

	attrLoggerName       = "logger.name"
	attrServiceName      = "service.name"
	attrServiceNamespace = "service.namespace"
	attrScopeName        = "scope.name"
	attrScopeVersion     = "scope.version"
)

// Transformation is the outcome of flattening one export request.
type Transformation struct {
	Events   []logevent.Event
	Dropped  int
	Warnings []string
}

// Adapter flattens resource, scope and record groups into log events.
type Adapter struct {
	now func() time.Time
}

func NewAdapter() *Adapter {
	return &Adapter{now: time.Now}
}

// Transform converts every record in req. Records that yield a blank message
// are dropped and reported as warnings; the rest of the batch continues.
// Cancellation is checked between records.
func (a *Adapter) Transform(ctx context.Context, req *collogspb.ExportLogsServiceRequest) (Transformation, error) {
	var out Transformation
	for _, rl := range req.GetResourceLogs() {
		resource := rl.GetResource()
		source := serviceSource(resource)
		resourceAttrs := flatten(resource.GetAttributes())

		for _, sl := range rl.GetScopeLogs() {
			scopeAttrs := scopeAttributes(sl.GetScope())

			for _, rec := range sl.GetLogRecords() {
				if err := ctx.Err(); err != nil {
					return out, err
				}
				ev, ok := a.convert(rec, source, resourceAttrs, scopeAttrs)
				if !ok {
					out.Dropped++
					out.Warnings = append(out.Warnings,
						fmt.Sprintf("Dropped OTLP log record (severity: %s).", severityLabel(rec)))
					continue
				}
				out.Events = append(out.Events, ev)
			}
		}
	}
	return out, nil
}

func (a *Adapter) convert(rec *logspb.LogRecord, defaultSource string, resourceAttrs, scopeAttrs map[string]string) (logevent.Event, bool) {
	message := bodyText(rec)
	if strings.TrimSpace(message) == "" {
		return logevent.Event{}, false
	}

	source := defaultSource
	if name, ok := stringAttr(rec.GetAttributes(), attrLoggerName); ok && strings.TrimSpace(name) != "" {
		source = name
	}

	opts := []logevent.Option{
		logevent.WithAttributes(flatten(rec.GetAttributes())),
		logevent.WithResourceAttributes(resourceAttrs),
		logevent.WithScopeAttributes(scopeAttrs),
		logevent.WithTrace(hexID(rec.GetTraceId()), hexID(rec.GetSpanId())),
		logevent.WithMetadata(recordMetadata(rec)),
	}
	if tmpl := a.template(rec.GetAttributes()); tmpl != "" {
		opts = append(opts, logevent.WithTemplate(tmpl))
	}

	ev, err := logevent.New(message, source, a.timestamp(rec), MapSeverity(int32(rec.GetSeverityNumber())), opts...)
	if err != nil {
		return logevent.Event{}, false
	}
	return ev, true
}

func (a *Adapter) timestamp(rec *logspb.LogRecord) time.Time {
	if ts := rec.GetTimeUnixNano(); ts != 0 {
		return time.Unix(0, int64(ts)).UTC()
	}
	if ts := rec.GetObservedTimeUnixNano(); ts != 0 {
		return time.Unix(0, int64(ts)).UTC()
	}
	return a.now().UTC()
}

// template finds the message template attribute under any spelling that
// folds to "messagetemplate" once "_" and "." are removed.
func (a *Adapter) template(attrs []*commonpb.KeyValue) string {
	// A Caser keeps state between calls, so each lookup gets its own.
	fold := cases.Fold()
	for _, kv := range attrs {
		if normalizeKey(fold, kv.GetKey()) != templateKey {
			continue
		}
		if v := render(kv.GetValue()); strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

var keySeparators = strings.NewReplacer("_", "", ".", "")

func normalizeKey(fold cases.Caser, key string) string {
	return keySeparators.Replace(fold.String(key))
}

// MapSeverity maps an OTLP severity number onto a canonical level. Each level
// spans four numbers; anything outside 1..24 is Information.
func MapSeverity(n int32) logevent.Level {
	switch {
	case n >= 1 && n <= 4:
		return logevent.LevelTrace
	case n >= 5 && n <= 8:
		return logevent.LevelDebug
	case n >= 9 && n <= 12:
		return logevent.LevelInformation
	case n >= 13 && n <= 16:
		return logevent.LevelWarning
	case n >= 17 && n <= 20:
		return logevent.LevelError
	case n >= 21 && n <= 24:
		return logevent.LevelCritical
	default:
		return logevent.LevelInformation
	}
}

func severityLabel(rec *logspb.LogRecord) string {
	if rec.GetSeverityText() != "" {
		return rec.GetSeverityText()
	}
	return rec.GetSeverityNumber().String()
}

func serviceSource(res *resourcepb.Resource) string {
	attrs := res.GetAttributes()
	name, _ := stringAttr(attrs, attrServiceName)
	if strings.TrimSpace(name) == "" {
		return defaultServiceName
	}
	if ns, _ := stringAttr(attrs, attrServiceNamespace); strings.TrimSpace(ns) != "" {
		return ns + "." + name
	}
	return name
}

func scopeAttributes(scope *commonpb.InstrumentationScope) map[string]string {
	attrs := flatten(scope.GetAttributes())
	if scope.GetName() != "" || scope.GetVersion() != "" {
		if attrs == nil {
			attrs = make(map[string]string, 2)
		}
		if scope.GetName() != "" {
			attrs[attrScopeName] = scope.GetName()
		}
		if scope.GetVersion() != "" {
			attrs[attrScopeVersion] = scope.GetVersion()
		}
	}
	return attrs
}

func recordMetadata(rec *logspb.LogRecord) map[string]any {
	md := make(map[string]any)
	if rec.GetSeverityText() != "" {
		md["severityText"] = rec.GetSeverityText()
	}
	if ts := rec.GetObservedTimeUnixNano(); ts != 0 {
		md["observedTimestamp"] = time.Unix(0, int64(ts)).UTC().Format(time.RFC3339Nano)
	}
	if rec.GetFlags() != 0 {
		md["flags"] = rec.GetFlags()
	}
	if rec.GetDroppedAttributesCount() != 0 {
		md["droppedAttributesCount"] = rec.GetDroppedAttributesCount()
	}
	if len(md) == 0 {
		return nil
	}
	return md
}

func hexID(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return hex.EncodeToString(b)
}

func stringAttr(attrs []*commonpb.KeyValue, key string) (string, bool) {
	for _, kv := range attrs {
		if kv.GetKey() == key {
			return render(kv.GetValue()), true
		}
	}
	return "", false
}

func flatten(attrs []*commonpb.KeyValue) map[string]string {
	if len(attrs) == 0 {
		return nil
	}
	out := make(map[string]string, len(attrs))
	for _, kv := range attrs {
		out[kv.GetKey()] = render(kv.GetValue())
	}
	return out
}

// bodyText renders the record body. A missing body, or a structured body
// that cannot be rendered, falls back to the severity text.
func bodyText(rec *logspb.LogRecord) string {
	body := rec.GetBody()
	switch body.GetValue().(type) {
	case nil:
		return rec.GetSeverityText()
	case *commonpb.AnyValue_ArrayValue, *commonpb.AnyValue_KvlistValue:
		if s := render(body); s != "" {
			return s
		}
		return rec.GetSeverityText()
	default:
		return render(body)
	}
}

// render turns an AnyValue into text. Scalars use their plain form; arrays
// and key/value lists become JSON.
func render(v *commonpb.AnyValue) string {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return strconv.FormatBool(val.BoolValue)
	case *commonpb.AnyValue_IntValue:
		return strconv.FormatInt(val.IntValue, 10)
	case *commonpb.AnyValue_DoubleValue:
		return strconv.FormatFloat(val.DoubleValue, 'g', -1, 64)
	case *commonpb.AnyValue_BytesValue:
		return base64.StdEncoding.EncodeToString(val.BytesValue)
	case *commonpb.AnyValue_ArrayValue, *commonpb.AnyValue_KvlistValue:
		b, err := json.Marshal(native(v))
		if err != nil {
			return ""
		}
		return string(b)
	default:
		return ""
	}
}

func native(v *commonpb.AnyValue) any {
	switch val := v.GetValue().(type) {
	case *commonpb.AnyValue_StringValue:
		return val.StringValue
	case *commonpb.AnyValue_BoolValue:
		return val.BoolValue
	case *commonpb.AnyValue_IntValue:
		return val.IntValue
	case *commonpb.AnyValue_DoubleValue:
		return val.DoubleValue
	case *commonpb.AnyValue_BytesValue:
		return val.BytesValue
	case *commonpb.AnyValue_ArrayValue:
		values := val.ArrayValue.GetValues()
		out := make([]any, 0, len(values))
		for _, item := range values {
			out = append(out, native(item))
		}
		return out
	case *commonpb.AnyValue_KvlistValue:
		pairs := val.KvlistValue.GetValues()
		out := make(map[string]any, len(pairs))
		for _, kv := range pairs {
			out[kv.GetKey()] = native(kv.GetValue())
		}
		return out
	default:
		return nil
	}
}
