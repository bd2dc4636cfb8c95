// Package domain defines the core road, segment and summary types shared by
// the Roadwise engine, and the validation gate at pipeline entry points.
package domain

// NoDataReason is the marker reason attached to summaries whose rows exist
// but carry no usable samples.
const NoDataReason = "no valid data"

// RepresentativeTimeSet is the time bucket preferred when a segment carries
// several results.
const RepresentativeTimeSet = 4

// RoadVersionRecord is one discovered data file: a dated snapshot of a road.
// Path is the uniqueness key.
type RoadVersionRecord struct {
	Road    string `json:"road"`
	Version string `json:"version"`
	Path    string `json:"path"`
}

// SegmentRow is one traffic-measurement record of a road version. Rows with
// a null geometry never reach this type.
type SegmentRow struct {
	Distance   float64     `json:"distance"`
	SpeedLimit *float64    `json:"speedLimit,omitempty"`
	Results    TimeResults `json:"segmentTimeResults"`
}

// TimeSetResult is the statistics of a segment for one time bucket.
type TimeSetResult struct {
	TimeSet              int     `json:"timeSet"`
	SampleSize           float64 `json:"sampleSize"`
	AverageSpeed         float64 `json:"averageSpeed"`
	MedianSpeed          float64 `json:"medianSpeed"`
	HarmonicAverageSpeed float64 `json:"harmonicAverageSpeed"`
	AverageTravelTime    float64 `json:"averageTravelTime"`
}

// RoadSummary is the weighted aggregate of one road version. When NoData is
// set only Road, Version and Reason are meaningful.
type RoadSummary struct {
	Road             string  `json:"road"`
	Version          string  `json:"version"`
	TotalDistanceKM  float64 `json:"total_distance_km,omitempty"`
	SegmentCount     int     `json:"segment_count,omitempty"`
	TotalSamples     float64 `json:"total_samples,omitempty"`
	AvgSpeedLimit    float64 `json:"avg_speed_limit,omitempty"`
	AvgSpeed         float64 `json:"avg_speed,omitempty"`
	MedianSpeed      float64 `json:"median_speed,omitempty"`
	HarmonicSpeed    float64 `json:"harmonic_speed,omitempty"`
	AvgTravelTimeSec float64 `json:"avg_travel_time_sec,omitempty"`
	NoData           bool    `json:"no_data,omitempty"`
	Reason           string  `json:"reason,omitempty"`
}

// Key returns the "<road>,<version>" key used in prompt context mappings.
func (s RoadSummary) Key() string { return SummaryKey(s.Road, s.Version) }

// SummaryKey joins a road name and version label.
func SummaryKey(road, version string) string { return road + "," + version }

// NoDataSummary builds the marker summary for a road version.
func NoDataSummary(road, version string) RoadSummary {
	return RoadSummary{Road: road, Version: version, NoData: true, Reason: NoDataReason}
}

// EmbeddingIndexEntry is one road name and its embedding vector.
type EmbeddingIndexEntry struct {
	Road   string    `json:"road"`
	Vector []float32 `json:"vector"`
}

// Question is a user question entering the answer pipeline.
type Question struct {
	Text     string `json:"text"`
	Versions bool   `json:"versions"`
}
