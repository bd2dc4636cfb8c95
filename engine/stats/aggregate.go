// Package stats computes weighted traffic summaries for a road version from
// its segment rows.
package stats

import (
	"math"

	"github.com/WessleyAI/roadwise/engine/domain"
)

// accumulator holds the running sums of one road version.
type accumulator struct {
	distance      float64
	samples       float64
	segments      int
	speedLimit    float64
	avgSpeed      float64
	medianSpeed   float64
	harmonicSpeed float64
	travelTime    float64
}

// Aggregate summarizes rows into a RoadSummary weighted by sample size.
//
// A row is skipped, distance included, when its time results are missing,
// malformed or empty, or when its representative result has no positive
// sample size. If every row is skipped the no-data marker is returned.
func Aggregate(road, version string, rows []domain.SegmentRow) domain.RoadSummary {
	var acc accumulator
	for _, row := range rows {
		acc.add(row)
	}
	return acc.summary(road, version)
}

func (a *accumulator) add(row domain.SegmentRow) {
	results, ok := row.Results.Decode()
	if !ok {
		return
	}
	rep := Representative(results)
	w := rep.SampleSize
	if !(w > 0) || math.IsInf(w, 0) {
		return
	}

	var limit float64
	if row.SpeedLimit != nil {
		limit = *row.SpeedLimit
	}
	a.speedLimit += limit * w
	a.avgSpeed += rep.AverageSpeed * w
	a.medianSpeed += rep.MedianSpeed * w
	a.harmonicSpeed += rep.HarmonicAverageSpeed * w
	a.travelTime += rep.AverageTravelTime * w

	a.distance += row.Distance
	a.samples += w
	a.segments++
}

func (a *accumulator) summary(road, version string) domain.RoadSummary {
	if a.samples == 0 {
		return domain.NoDataSummary(road, version)
	}
	return domain.RoadSummary{
		Road:             road,
		Version:          version,
		TotalDistanceKM:  a.distance / 1000,
		SegmentCount:     a.segments,
		TotalSamples:     a.samples,
		AvgSpeedLimit:    a.speedLimit / a.samples,
		AvgSpeed:         a.avgSpeed / a.samples,
		MedianSpeed:      a.medianSpeed / a.samples,
		HarmonicSpeed:    a.harmonicSpeed / a.samples,
		AvgTravelTimeSec: a.travelTime / a.samples,
	}
}

// Representative picks the first result of the preferred time set, falling
// back to the first result. results must be non-empty.
func Representative(results []domain.TimeSetResult) domain.TimeSetResult {
	for _, r := range results {
		if r.TimeSet == domain.RepresentativeTimeSet {
			return r
		}
	}
	return results[0]
}
