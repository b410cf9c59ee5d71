// Package otlp decodes OTLP/HTTP log export payloads and flattens them into
// log events.
package otlp

import (
	"errors"
	"fmt"
	"strings"

	collogspb "go.opentelemetry.io/proto/otlp/collector/logs/v1"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/proto"
)

// Format is the wire encoding of an export payload.
type Format int

const (
	FormatProtobuf Format = iota
	FormatJSON
)

const (
	ContentTypeProtobuf = "application/x-protobuf"
	ContentTypeJSON     = "application/json"
)

func (f Format) String() string {
	if f == FormatJSON {
		return "json"
	}
	return "protobuf"
}

// ContentType is the media type responses in this format are sent with.
func (f Format) ContentType() string {
	if f == FormatJSON {
		return ContentTypeJSON
	}
	return ContentTypeProtobuf
}

// ResolveFormat picks JSON when the content type mentions "json" in any case
// and the binary protobuf encoding otherwise.
func ResolveFormat(contentType string) Format {
	if strings.Contains(strings.ToLower(contentType), "json") {
		return FormatJSON
	}
	return FormatProtobuf
}

// ParseContext describes where a payload came from.
type ParseContext struct {
	Format  Format
	Source  string
	Headers map[string]string
}

var ErrEmptyPayload = errors.New("otlp: empty payload")

// ParseError is returned for every payload that cannot be decoded. Errors
// holds the human readable reasons.
type ParseError struct {
	Errors []string
	err    error
}

func (e *ParseError) Error() string { return strings.Join(e.Errors, "; ") }
func (e *ParseError) Unwrap() error { return e.err }

// Parse decodes payload in the format named by pc.
func Parse(payload []byte, pc ParseContext) (*collogspb.ExportLogsServiceRequest, error) {
	if len(payload) == 0 {
		return nil, &ParseError{Errors: []string{"Payload is empty."}, err: ErrEmptyPayload}
	}

	req := &collogspb.ExportLogsServiceRequest{}
	var err error
	switch pc.Format {
	case FormatJSON:
		err = protojson.UnmarshalOptions{DiscardUnknown: true}.Unmarshal(payload, req)
	default:
		err = proto.Unmarshal(payload, req)
	}
	if err != nil {
		return nil, &ParseError{
			Errors: []string{fmt.Sprintf("Invalid OTLP payload: %v", err)},
			err:    err,
		}
	}
	return req, nil
}

// EncodeResponse renders the empty acknowledgement for a request sent in f.
func EncodeResponse(f Format) ([]byte, string, error) {
	resp := &collogspb.ExportLogsServiceResponse{}
	var (
		body []byte
		err  error
	)
	if f == FormatJSON {
		body, err = protojson.Marshal(resp)
	} else {
		body, err = proto.Marshal(resp)
	}
	if err != nil {
		return nil, "", fmt.Errorf("encode export response: %w", err)
	}
	return body, f.ContentType(), nil
}
