package stats

import (
	"strconv"
	"strings"

	"github.com/WessleyAI/roadwise/engine/domain"
)

// Format renders a summary as the text block placed into prompts. Numbers
// are formatted with strconv so the output does not depend on locale.
func Format(s domain.RoadSummary) string {
	var b strings.Builder
	b.WriteString("📍 Road: ")
	b.WriteString(s.Road)
	b.WriteString(" (")
	b.WriteString(s.Version)
	b.WriteString(")\n")

	if s.NoData {
		b.WriteString("No valid data found.")
		return b.String()
	}

	line := func(label, value, unit string) {
		b.WriteString("- ")
		b.WriteString(label)
		b.WriteString(": ")
		b.WriteString(value)
		if unit != "" {
			b.WriteByte(' ')
			b.WriteString(unit)
		}
		b.WriteByte('\n')
	}
	line("📏 Total Distance", fixed(s.TotalDistanceKM, 2), "km")
	line("🚘 Segments", strconv.Itoa(s.SegmentCount), "")
	line("🧪 Total Samples", strconv.FormatFloat(s.TotalSamples, 'f', -1, 64), "")
	line("🚦 Speed Limit", fixed(s.AvgSpeedLimit, 1), "km/h")
	line("📊 Typical Avg Speed", fixed(s.AvgSpeed, 1), "km/h")
	line("📈 Median Speed", fixed(s.MedianSpeed, 1), "km/h")
	line("🧮 Harmonic Speed", fixed(s.HarmonicSpeed, 1), "km/h")
	line("⏱️ Avg Travel Time", fixed(s.AvgTravelTimeSec, 2), "sec")
	return strings.TrimRight(b.String(), "\n")
}

func fixed(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
