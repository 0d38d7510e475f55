package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// Sample is one decoded heart-rate or contraction data point.
// Params: integer unix seconds and numeric value.
// Returns: immutable point appended to stream buffers.
type Sample struct {
	TimeSec int64   `json:"time_sec"`
	Value   float64 `json:"value"`
}

type rawSample struct {
	TimeSec *json.Number `json:"time_sec"`
	Value   *float64     `json:"value"`
}

// DecodeSample decodes and validates one sample payload.
// Params: JSON document bytes.
// Returns: validated sample or decode/validation error.
func DecodeSample(raw []byte) (Sample, error) {
	var body rawSample
	if err := json.Unmarshal(raw, &body); err != nil {
		return Sample{}, fmt.Errorf("decode sample: %w", err)
	}
	if body.TimeSec == nil {
		return Sample{}, errors.New("time_sec is required")
	}
	seconds, err := wholeSeconds(*body.TimeSec)
	if err != nil {
		return Sample{}, fmt.Errorf("time_sec: %w", err)
	}
	if body.Value == nil {
		return Sample{}, errors.New("value is required")
	}
	if math.IsNaN(*body.Value) || math.IsInf(*body.Value, 0) {
		return Sample{}, errors.New("value must be finite")
	}
	return Sample{TimeSec: seconds, Value: *body.Value}, nil
}

// wholeSeconds accepts integer or fractional JSON numbers and truncates to seconds.
func wholeSeconds(number json.Number) (int64, error) {
	if value, err := number.Int64(); err == nil {
		return value, nil
	}
	value, err := number.Float64()
	if err != nil {
		return 0, err
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, errors.New("must be finite")
	}
	return int64(value), nil
}
