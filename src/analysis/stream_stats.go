package analysis

import (
	"math"

	"finboard/src/models"
)

// -----------------------------------------------------------------------------

// ComputeStreamStats calculates rolling-window statistics over the current
// bar ring for display widgets. Computed on demand, never cached.
func ComputeStreamStats(bars []models.MOHLCVBar, marketOpen bool) models.MStreamStats {
	stats := models.MStreamStats{MarketOpen: marketOpen}
	if len(bars) == 0 {
		return stats
	}

	high := -1.0
	low := math.MaxFloat64
	sumClose := 0.0
	totalVol := 0.0

	for _, b := range bars {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
		sumClose += b.Close
		totalVol += b.Volume
	}

	first := bars[0]
	last := bars[len(bars)-1]

	stats.BarCount = len(bars)
	stats.High = high
	stats.Low = low
	stats.AvgClose = sumClose / float64(len(bars))
	stats.TotalVolume = totalVol
	stats.SpanSeconds = (last.Timestamp - first.Timestamp) / 1000
	stats.Change = last.Close - first.Close
	stats.ChangePercent = CalculateChangePercent(last.Close, first.Close)

	return stats
}

// -----------------------------------------------------------------------------

// CalculateChangePercent calculates percentage change.
func CalculateChangePercent(current, previous float64) float64 {
	if previous == 0 {
		return 0.0
	}
	return (current - previous) / previous
}
