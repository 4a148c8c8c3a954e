package analysis

import (
	"testing"

	"finboard/src/models"
)

func TestComputeStreamStats(t *testing.T) {
	bars := []models.MOHLCVBar{
		{High: 105, Low: 99, Close: 100, Volume: 10, Timestamp: 1700000000000},
		{High: 110, Low: 101, Close: 108, Volume: 20, Timestamp: 1700000001000},
		{High: 107, Low: 95, Close: 98, Volume: 5, Timestamp: 1700000003000},
	}

	stats := ComputeStreamStats(bars, true)

	if stats.BarCount != 3 {
		t.Errorf("count = %d, want 3", stats.BarCount)
	}
	if stats.High != 110 {
		t.Errorf("high = %v, want 110", stats.High)
	}
	if stats.Low != 95 {
		t.Errorf("low = %v, want 95", stats.Low)
	}
	if stats.AvgClose != 102 {
		t.Errorf("avgClose = %v, want 102", stats.AvgClose)
	}
	if stats.TotalVolume != 35 {
		t.Errorf("volume = %v, want 35", stats.TotalVolume)
	}
	if stats.SpanSeconds != 3 {
		t.Errorf("span = %v, want 3", stats.SpanSeconds)
	}
	if stats.Change != -2 {
		t.Errorf("change = %v, want close-to-close -2", stats.Change)
	}
	if stats.ChangePercent != -0.02 {
		t.Errorf("changePercent = %v, want -0.02", stats.ChangePercent)
	}
	if !stats.MarketOpen {
		t.Errorf("marketOpen flag lost")
	}
}

func TestComputeStreamStatsEmpty(t *testing.T) {
	stats := ComputeStreamStats(nil, false)

	if stats.BarCount != 0 || stats.High != 0 || stats.TotalVolume != 0 {
		t.Errorf("empty ring should yield zero stats, got %+v", stats)
	}
}

func TestCalculateChangePercent(t *testing.T) {
	if got := CalculateChangePercent(110, 100); got != 0.1 {
		t.Errorf("change = %v, want 0.1", got)
	}
	if got := CalculateChangePercent(100, 0); got != 0 {
		t.Errorf("zero previous should yield 0, got %v", got)
	}
}
