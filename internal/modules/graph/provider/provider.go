// Package provider retrieves the measurement records the graph plots.
package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/Redpill-Linpro/hegemone-client/internal/modules/measurements/types"
)

var (
	// ErrFetch covers transport errors, non-2xx responses and undecodable bodies.
	ErrFetch = errors.New("measurement fetch failed")
	// ErrValidation reports a record that does not match the measurement schema.
	ErrValidation = errors.New("invalid measurement record")
)

// maxBodyBytes bounds a single fetch response.
const maxBodyBytes = 32 << 20

// ValidationError identifies the first malformed record in a response.
type ValidationError struct {
	Index  int
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: record %d: %s %s", ErrValidation, e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

type Response struct {
	Data []types.Measurement `json:"data"`
}

// DataProvider retrieves every measurement record in one call.
type DataProvider interface {
	FetchAll(ctx context.Context) (Response, error)
}

type HTTPProvider struct {
	url    string
	client *http.Client
}

func NewHTTPProvider(url string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		url:    url,
		client: &http.Client{Timeout: timeout},
	}
}

func (p *HTTPProvider) FetchAll(ctx context.Context) (Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		return Response{}, fmt.Errorf("%w: build request: %w", ErrFetch, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return Response{}, fmt.Errorf("%w: %w", ErrFetch, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Response{}, fmt.Errorf("%w: GET %s: status %d: %s",
			ErrFetch, p.url, resp.StatusCode, bytes.TrimSpace(snippet))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes+1))
	if err != nil {
		return Response{}, fmt.Errorf("%w: read body: %w", ErrFetch, err)
	}
	if len(body) > maxBodyBytes {
		return Response{}, fmt.Errorf("%w: response exceeds %d bytes", ErrFetch, maxBodyBytes)
	}
	return Decode(body)
}

// record holds the plotted fields as pointers so missing ones are detectable.
// Everything else is kept raw and decoded best effort.
type record struct {
	DateTime      *string         `json:"date_time"`
	SoilTemp      *float64        `json:"soil_temp"`
	AmbientTemp   *float64        `json:"ambient_temp"`
	DeviceID      json.RawMessage `json:"device_id"`
	MoistureLevel json.RawMessage `json:"moisture_level"`
	Light         json.RawMessage `json:"light_measurement"`
}

// Decode parses a response body that is either a bare JSON array of records
// or an object carrying them under "data". Records keep their order.
func Decode(body []byte) (Response, error) {
	raw, err := splitRecords(body)
	if err != nil {
		return Response{}, err
	}

	out := make([]types.Measurement, 0, len(raw))
	for i, msg := range raw {
		m, err := decodeRecord(i, msg)
		if err != nil {
			return Response{}, err
		}
		out = append(out, m)
	}
	return Response{Data: out}, nil
}

func splitRecords(body []byte) ([]json.RawMessage, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("%w: empty response body", ErrFetch)
	}

	var raw []json.RawMessage
	switch trimmed[0] {
	case '[':
		if err := json.Unmarshal(trimmed, &raw); err != nil {
			return nil, fmt.Errorf("%w: decode records: %w", ErrFetch, err)
		}
	case '{':
		var envelope struct {
			Data *[]json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(trimmed, &envelope); err != nil {
			return nil, fmt.Errorf("%w: decode response: %w", ErrFetch, err)
		}
		if envelope.Data == nil {
			return nil, fmt.Errorf("%w: response has no data array", ErrFetch)
		}
		raw = *envelope.Data
	default:
		return nil, fmt.Errorf("%w: response is not a JSON array or object", ErrFetch)
	}
	return raw, nil
}

func decodeRecord(i int, msg json.RawMessage) (types.Measurement, error) {
	var r record
	if err := json.Unmarshal(msg, &r); err != nil {
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			field := typeErr.Field
			if field == "" {
				field = "record"
			}
			return types.Measurement{}, &ValidationError{Index: i, Field: field, Reason: "has type " + typeErr.Value}
		}
		return types.Measurement{}, &ValidationError{Index: i, Field: "record", Reason: err.Error()}
	}

	switch {
	case r.DateTime == nil || *r.DateTime == "":
		return types.Measurement{}, &ValidationError{Index: i, Field: "date_time", Reason: "is missing"}
	case r.SoilTemp == nil:
		return types.Measurement{}, &ValidationError{Index: i, Field: "soil_temp", Reason: "is missing"}
	case r.AmbientTemp == nil:
		return types.Measurement{}, &ValidationError{Index: i, Field: "ambient_temp", Reason: "is missing"}
	}

	m := types.Measurement{
		DateTime:    *r.DateTime,
		SoilTemp:    *r.SoilTemp,
		AmbientTemp: *r.AmbientTemp,
	}
	optional(r.DeviceID, &m.DeviceID)
	optional(r.MoistureLevel, &m.MoistureLevel)
	optional(r.Light, &m.Light)
	return m, nil
}

// optional decodes an extra the chart never plots. A value of the wrong
// shape leaves dst at its zero value instead of failing the record.
func optional[T any](raw json.RawMessage, dst *T) {
	if len(raw) == 0 {
		return
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return
	}
	*dst = v
}
