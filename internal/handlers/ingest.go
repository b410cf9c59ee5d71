package handlers

import (
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/klauspost/compress/gzip"

	"github.com/LukasLeindals/ergonaut/internal/auth"
	"github.com/LukasLeindals/ergonaut/internal/ingest"
	"github.com/LukasLeindals/ergonaut/internal/otlp"
)

// MaxBodyBytes bounds an ingest body, after decompression.
const MaxBodyBytes = 8 << 20

var errBodyTooLarge = errors.New("request body too large")

// RegisterIngestRoutes registers the OTLP/HTTP log endpoint.
//
// POST /ingest/logs (and the OTLP default path /v1/logs)
// - Content-Type application/json selects OTLP JSON, anything else protobuf
// - Content-Encoding gzip is decoded
// - 200 with an empty ExportLogsServiceResponse, even if records were dropped
// - 400 for empty or undecodable payloads, 503 when events cannot be handed on
func RegisterIngestRoutes(r gin.IRoutes, p *ingest.Pipeline, logger *slog.Logger) {
	h := func(c *gin.Context) {
		format := otlp.ResolveFormat(c.ContentType())

		payload, err := readBody(c)
		switch {
		case errors.Is(err, errBodyTooLarge):
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "payload too large"})
			return
		case err != nil:
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTLP payload.", "details": []string{err.Error()}})
			return
		}
		if len(payload) == 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Payload is required."})
			return
		}

		res := p.Ingest(c.Request.Context(), payload, otlp.ParseContext{
			Format: format,
			Source: c.ClientIP(),
			Headers: map[string]string{
				"user-agent":    c.GetHeader("User-Agent"),
				"auth-scheme":   auth.Scheme(c),
				"content-type":  c.ContentType(),
				"otlp-endpoint": c.FullPath(),
			},
		})
		if !res.Success {
			if errors.Is(res.Err, ingest.ErrPublish) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "event transport unavailable"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid OTLP payload.", "details": res.Errors})
			return
		}

		logger.Debug("ingested otlp logs",
			"format", format.String(),
			"accepted", res.Accepted(),
			"dropped", res.Dropped)

		body, contentType, err := otlp.EncodeResponse(format)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "encode response failed"})
			return
		}
		c.Data(http.StatusOK, contentType, body)
	}

	r.POST("/ingest/logs", h)
	r.POST("/v1/logs", h)
}

// readBody returns the request body, gunzipped when the client says so, and
// fails once more than MaxBodyBytes would be read.
func readBody(c *gin.Context) ([]byte, error) {
	var body io.Reader = http.MaxBytesReader(c.Writer, c.Request.Body, MaxBodyBytes)

	if strings.EqualFold(strings.TrimSpace(c.GetHeader("Content-Encoding")), "gzip") {
		zr, err := gzip.NewReader(body)
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		body = zr
	}

	data, err := io.ReadAll(io.LimitReader(body, MaxBodyBytes+1))
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return nil, errBodyTooLarge
	}
	if err != nil {
		return nil, err
	}
	if len(data) > MaxBodyBytes {
		return nil, errBodyTooLarge
	}
	return data, nil
}
