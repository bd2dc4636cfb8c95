package stats

import (
	"testing"

	"github.com/WessleyAI/roadwise/engine/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func ptr(f float64) *float64 { return &f }

func row(distance float64, limit *float64, results ...domain.TimeSetResult) domain.SegmentRow {
	return domain.SegmentRow{
		Distance:   distance,
		SpeedLimit: limit,
		Results:    domain.StructuredTimeResults(results),
	}
}

func TestAggregate_WeightedMeans(t *testing.T) {
	rows := []domain.SegmentRow{
		row(1200, ptr(80), domain.TimeSetResult{TimeSet: 4, SampleSize: 10, AverageSpeed: 60, MedianSpeed: 58, HarmonicAverageSpeed: 55, AverageTravelTime: 72}),
		row(800, ptr(100), domain.TimeSetResult{TimeSet: 4, SampleSize: 30, AverageSpeed: 90, MedianSpeed: 92, HarmonicAverageSpeed: 85, AverageTravelTime: 32}),
		row(500, nil, domain.TimeSetResult{TimeSet: 4, SampleSize: 20, AverageSpeed: 40, MedianSpeed: 41, HarmonicAverageSpeed: 38, AverageTravelTime: 45}),
	}
	s := Aggregate("Test Rd", "Jan 2023", rows)
	require.False(t, s.NoData)

	w := []float64{10, 30, 20}
	assert.InDelta(t, stat.Mean([]float64{80, 100, 0}, w), s.AvgSpeedLimit, 1e-9)
	assert.InDelta(t, stat.Mean([]float64{60, 90, 40}, w), s.AvgSpeed, 1e-9)
	assert.InDelta(t, stat.Mean([]float64{58, 92, 41}, w), s.MedianSpeed, 1e-9)
	assert.InDelta(t, stat.Mean([]float64{55, 85, 38}, w), s.HarmonicSpeed, 1e-9)
	assert.InDelta(t, stat.Mean([]float64{72, 32, 45}, w), s.AvgTravelTimeSec, 1e-9)
	assert.InDelta(t, 2.5, s.TotalDistanceKM, 1e-12)
	assert.Equal(t, 60.0, s.TotalSamples)
	assert.Equal(t, 3, s.SegmentCount)
	assert.Equal(t, "Test Rd,Jan 2023", s.Key())
}

func TestAggregate_SkippedRowsDoNotCountDistance(t *testing.T) {
	rows := []domain.SegmentRow{
		row(1000, ptr(60), domain.TimeSetResult{TimeSet: 4, SampleSize: 5, AverageSpeed: 50}),
		{Distance: 7000},                                                      // no results attribute
		{Distance: 7000, Results: domain.RawTimeResults([]byte(`[]`))},        // empty list
		{Distance: 7000, Results: domain.RawTimeResults([]byte(`"garbage"`))}, // undecodable
		row(7000, ptr(60), domain.TimeSetResult{TimeSet: 4, SampleSize: 0, AverageSpeed: 99}),
		row(7000, ptr(60), domain.TimeSetResult{TimeSet: 4, SampleSize: -3, AverageSpeed: 99}),
	}
	s := Aggregate("Test Rd", "Jan 2023", rows)
	require.False(t, s.NoData)
	assert.InDelta(t, 1.0, s.TotalDistanceKM, 1e-12)
	assert.Equal(t, 1, s.SegmentCount)
	assert.Equal(t, 5.0, s.TotalSamples)
	assert.Equal(t, 50.0, s.AvgSpeed)
}

func TestAggregate_NoDataMarker(t *testing.T) {
	cases := map[string][]domain.SegmentRow{
		"no rows":      nil,
		"all empty":    {{Distance: 10}, {Distance: 20, Results: domain.RawTimeResults([]byte(`[]`))}},
		"zero samples": {row(10, nil, domain.TimeSetResult{TimeSet: 4, SampleSize: 0})},
		"non-numeric":  {{Distance: 10, Results: domain.RawTimeResults([]byte(`[{"timeSet":4,"sampleSize":"12"}]`))}},
	}
	for name, rows := range cases {
		s := Aggregate("Test Rd", "Jan 2022", rows)
		assert.True(t, s.NoData, name)
		assert.Equal(t, domain.NoDataReason, s.Reason, name)
		assert.Zero(t, s.AvgSpeed, name)
	}
}

func TestRepresentative_PrefersTimeSet4(t *testing.T) {
	results := []domain.TimeSetResult{
		{TimeSet: 1, SampleSize: 100, AverageSpeed: 20},
		{TimeSet: 4, SampleSize: 10, AverageSpeed: 60},
		{TimeSet: 4, SampleSize: 99, AverageSpeed: 70},
	}
	assert.Equal(t, 60.0, Representative(results).AverageSpeed)

	fallback := []domain.TimeSetResult{
		{TimeSet: 2, SampleSize: 7, AverageSpeed: 33},
		{TimeSet: 3, SampleSize: 8, AverageSpeed: 44},
	}
	assert.Equal(t, 33.0, Representative(fallback).AverageSpeed)
}

func TestAggregate_FallbackRepresentativeSkipsOnZeroSamples(t *testing.T) {
	// First entry is the representative and has no samples; the later one
	// with samples is not considered.
	rows := []domain.SegmentRow{
		row(100, nil,
			domain.TimeSetResult{TimeSet: 1, SampleSize: 0},
			domain.TimeSetResult{TimeSet: 2, SampleSize: 50, AverageSpeed: 80}),
	}
	assert.True(t, Aggregate("R", "V", rows).NoData)
}

func TestAggregate_EncodedResults(t *testing.T) {
	rows := []domain.SegmentRow{{
		Distance: 1500,
		Results:  domain.EncodedTimeResults([]domain.TimeSetResult{{TimeSet: 4, SampleSize: 10, AverageSpeed: 60}}),
	}}
	s := Aggregate("Test Rd", "Jan 2023", rows)
	assert.Equal(t, 60.0, s.AvgSpeed)
	assert.Zero(t, s.AvgSpeedLimit)
}

func TestFormat(t *testing.T) {
	s := domain.RoadSummary{
		Road: "Test Rd", Version: "Jan 2023",
		TotalDistanceKM: 2.5, SegmentCount: 3, TotalSamples: 60,
		AvgSpeedLimit: 80, AvgSpeed: 71.666666, MedianSpeed: 70.04,
		HarmonicSpeed: 66, AvgTravelTimeSec: 42.123,
	}
	want := "📍 Road: Test Rd (Jan 2023)\n" +
		"- 📏 Total Distance: 2.50 km\n" +
		"- 🚘 Segments: 3\n" +
		"- 🧪 Total Samples: 60\n" +
		"- 🚦 Speed Limit: 80.0 km/h\n" +
		"- 📊 Typical Avg Speed: 71.7 km/h\n" +
		"- 📈 Median Speed: 70.0 km/h\n" +
		"- 🧮 Harmonic Speed: 66.0 km/h\n" +
		"- ⏱️ Avg Travel Time: 42.12 sec"
	assert.Equal(t, want, Format(s))

	assert.Equal(t, "📍 Road: Test Rd (Jan 2022)\nNo valid data found.", Format(domain.NoDataSummary("Test Rd", "Jan 2022")))
}
