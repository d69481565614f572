package api

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/david/holiday-watch/internal/monitor"
	"github.com/labstack/echo/v4"
	"github.com/xeipuuv/gojsonschema"
)

const maxPreviewBody = 64 << 10

const previewOptionProps = `
	"providers": {"type": "array", "items": {"type": "string", "minLength": 1}, "maxItems": 20},
	"limit": {"type": "integer", "minimum": 1, "maximum": 200},
	"sort_by": {"type": "string", "enum": ["price", "date"]}`

const intentSchema = `{
	"type": "object",
	"required": ["adults", "date_start", "nights_min"],
	"properties": {
		"adults": {"type": "integer", "minimum": 1, "maximum": 20},
		"children": {"type": "integer", "minimum": 0, "maximum": 20},
		"date_start": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"date_end": {"type": "string", "pattern": "^\\d{4}-\\d{2}-\\d{2}$"},
		"nights_min": {"type": "integer", "minimum": 1, "maximum": 28},
		"nights_max": {"type": "integer", "minimum": 1, "maximum": 28},
		"pets": {"type": "boolean"},
		"min_bedrooms": {"type": "integer", "minimum": 0, "maximum": 10},
		"accommodation_type": {"type": "string"},
		"peak_tolerance": {"type": "string", "enum": ["avoid", "ok", ""]},
		"region": {"type": "string"},
		"park_ids": {"type": "array", "items": {"type": "string"}}
	}
}`

var (
	profilePreviewSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"additionalProperties": false,
	"properties": {` + previewOptionProps + `
	}
}`)

	adhocPreviewSchema = gojsonschema.NewStringLoader(`{
	"type": "object",
	"additionalProperties": false,
	"required": ["intent"],
	"properties": {` + previewOptionProps + `,
	"intent": ` + intentSchema + `
	}
}`)
)

// decodePreviewRequest validates the body against schema before decoding
// it. An empty body is an empty object.
func decodePreviewRequest(c echo.Context, schema gojsonschema.JSONLoader) (monitor.PreviewRequest, error) {
	var req monitor.PreviewRequest

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxPreviewBody))
	if err != nil {
		return req, fmt.Errorf("read body: %w", err)
	}
	if strings.TrimSpace(string(body)) == "" {
		body = []byte("{}")
	}

	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(body))
	if err != nil {
		return req, fmt.Errorf("invalid JSON: %w", err)
	}
	if !result.Valid() {
		errs := make([]string, len(result.Errors()))
		for i, desc := range result.Errors() {
			errs[i] = desc.String()
		}
		return req, fmt.Errorf("validation failed: %s", strings.Join(errs, "; "))
	}

	if err := json.Unmarshal(body, &req); err != nil {
		return req, fmt.Errorf("decode body: %w", err)
	}
	return req, nil
}
