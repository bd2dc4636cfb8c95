package domain

import (
	"bytes"
	"encoding/json"
	"math"
)

// TimeResults holds a segment's raw segmentTimeResults attribute. Upstream
// files carry it either as a JSON array or as a string that encodes one;
// Decode normalizes both.
type TimeResults struct {
	raw json.RawMessage
}

// RawTimeResults wraps an attribute value exactly as read from a file.
func RawTimeResults(b []byte) TimeResults {
	return TimeResults{raw: append(json.RawMessage(nil), b...)}
}

// StructuredTimeResults wraps an already decoded list.
func StructuredTimeResults(list []TimeSetResult) TimeResults {
	b, err := json.Marshal(list)
	if err != nil {
		return TimeResults{}
	}
	return TimeResults{raw: b}
}

// EncodedTimeResults wraps a list serialized into a JSON string, the way some
// exporters write the attribute.
func EncodedTimeResults(list []TimeSetResult) TimeResults {
	inner, err := json.Marshal(list)
	if err != nil {
		return TimeResults{}
	}
	outer, _ := json.Marshal(string(inner))
	return TimeResults{raw: outer}
}

// UnmarshalJSON records the raw value; decoding is deferred to Decode.
func (t *TimeResults) UnmarshalJSON(b []byte) error {
	t.raw = append(t.raw[:0], b...)
	return nil
}

// MarshalJSON writes the raw value back out.
func (t TimeResults) MarshalJSON() ([]byte, error) {
	if len(t.raw) == 0 {
		return []byte("null"), nil
	}
	return t.raw, nil
}

// IsZero reports whether the attribute was absent.
func (t TimeResults) IsZero() bool { return len(t.raw) == 0 }

// Decode returns the structured list. ok is false when the value is missing,
// unparseable, not a list, or empty. Entries that are not objects, and entry
// fields that are not numbers, decode as zero values.
func (t TimeResults) Decode() (list []TimeSetResult, ok bool) {
	raw := bytes.TrimSpace(t.raw)
	if len(raw) == 0 {
		return nil, false
	}
	if raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, false
		}
		raw = bytes.TrimSpace([]byte(s))
	}
	if len(raw) == 0 || raw[0] != '[' {
		return nil, false
	}

	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil || len(items) == 0 {
		return nil, false
	}
	list = make([]TimeSetResult, len(items))
	for i, item := range items {
		var fields map[string]any
		if err := json.Unmarshal(item, &fields); err != nil {
			continue
		}
		list[i] = timeSetFromFields(fields)
	}
	return list, true
}

func timeSetFromFields(f map[string]any) TimeSetResult {
	r := TimeSetResult{
		SampleSize:           number(f["sampleSize"]),
		AverageSpeed:         number(f["averageSpeed"]),
		MedianSpeed:          number(f["medianSpeed"]),
		HarmonicAverageSpeed: number(f["harmonicAverageSpeed"]),
		AverageTravelTime:    number(f["averageTravelTime"]),
		TimeSet:              -1,
	}
	if ts, ok := f["timeSet"].(float64); ok && ts == math.Trunc(ts) {
		r.TimeSet = int(ts)
	}
	return r
}

// number returns v as a finite float64, or 0.
func number(v any) float64 {
	f, ok := v.(float64)
	if !ok || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
