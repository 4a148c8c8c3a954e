package schema

import (
	"testing"

	"finboard/src/models"
)

func TestMatchSourceKeyPolicy(t *testing.T) {
	keys := []string{"1. open", "close", "previousClose", "volume24h"}

	cases := []struct {
		target string
		want   string
		ok     bool
	}{
		{"close", "close", true},       // exact beats suffix ("previousClose")
		{"open", "1. open", true},      // case-insensitive suffix
		{"volume", "volume24h", true},  // substring fallback
		{"rank", "", false},
	}

	for _, c := range cases {
		got, ok := MatchSourceKey(c.target, keys)
		if ok != c.ok || got != c.want {
			t.Errorf("MatchSourceKey(%q) = (%q, %v), want (%q, %v)", c.target, got, ok, c.want, c.ok)
		}
	}
}

func TestGenerateMappingFromRecords(t *testing.T) {
	raw := decode(t, `{"data": [
		{"date": "2024-01-01", "1. open": "100.5", "4. close": "101.0", "volume": 5000}
	]}`)
	cls := models.MClassification{
		Type:     models.StructureTimeSeries,
		DataPath: []string{"data"},
		IsArray:  true,
	}

	mapping := GenerateMapping(raw, cls)

	if mapping["date"] != "date" {
		t.Errorf("date mapping = %q, want date", mapping["date"])
	}
	if mapping["open"] != "1. open" {
		t.Errorf("open mapping = %q, want '1. open'", mapping["open"])
	}
	if mapping["close"] != "4. close" {
		t.Errorf("close mapping = %q, want '4. close'", mapping["close"])
	}
	if mapping["volume"] != "volume" {
		t.Errorf("volume mapping = %q, want volume", mapping["volume"])
	}
}

func TestGenerateMappingDateKeyed(t *testing.T) {
	raw := decode(t, `{"series": {
		"2024-01-01": {"1. open": "100", "4. close": "101"},
		"2024-01-02": {"1. open": "101", "4. close": "102"},
		"2024-01-03": {"1. open": "102", "4. close": "103"},
		"2024-01-04": {"1. open": "103", "4. close": "104"},
		"2024-01-05": {"1. open": "104", "4. close": "105"},
		"2024-01-06": {"1. open": "105", "4. close": "106"}
	}}`)
	cls := models.MClassification{
		Type:     models.StructureTimeSeries,
		DataPath: []string{"series"},
	}

	mapping := GenerateMapping(raw, cls)

	if mapping["date"] != models.DateKeySegment {
		t.Errorf("date-keyed mapping should bind date to %s, got %q", models.DateKeySegment, mapping["date"])
	}
	if mapping["open"] != "1. open" {
		t.Errorf("open mapping = %q, want '1. open'", mapping["open"])
	}
}

func TestNavigatePath(t *testing.T) {
	raw := decode(t, `{"a": {"b": {"c": 42}}}`)

	v := NavigatePath(raw, []string{"a", "b", "c"})
	if v != 42.0 {
		t.Errorf("NavigatePath = %v, want 42", v)
	}
	if NavigatePath(raw, []string{"a", "missing"}) != nil {
		t.Errorf("missing segment should resolve to nil")
	}
	if NavigatePath(raw, nil) == nil {
		t.Errorf("empty path should return the value unchanged")
	}
}
