package sentinel

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/LukasLeindals/ergonaut/internal/logevent"
)

// ToJSONValue keeps s as raw JSON when it is a JSON number, boolean, null,
// object or array, and encodes it as a JSON string otherwise.
func ToJSONValue(s string) json.RawMessage {
	trimmed := strings.TrimSpace(s)
	if trimmed != "" && !strings.HasPrefix(trimmed, `"`) && json.Valid([]byte(trimmed)) {
		return json.RawMessage(trimmed)
	}
	b, _ := json.Marshal(s)
	return b
}

// sourceData builds a work item's source data. Resource, scope and record
// attributes are layered in that order, then the event fields.
func sourceData(e logevent.Event, fingerprint string) map[string]json.RawMessage {
	out := make(map[string]json.RawMessage)
	for _, attrs := range []map[string]string{e.ResourceAttributes(), e.ScopeAttributes(), e.Attributes()} {
		for k, v := range attrs {
			out[k] = ToJSONValue(v)
		}
	}

	str := func(key, value string) {
		if value == "" {
			return
		}
		b, _ := json.Marshal(value)
		out[key] = b
	}
	str(keyMessageTemplate, e.MessageTemplate())
	str(keyMessage, e.Message())
	str("source", e.Source())
	str("level", e.Level().String())
	str("fingerprint", fingerprint)
	str("traceId", e.TraceID())
	str("spanId", e.SpanID())
	str("timestamp", e.Timestamp().Format(time.RFC3339Nano))
	return out
}
