package schema

import (
	"sort"
	"strings"

	"finboard/src/models"
)

// -----------------------------------------------------------------------------
// Key Heuristics
// -----------------------------------------------------------------------------

var ohlcvMarkers = []string{"open", "high", "low", "close", "volume"}
var dateMarkers = []string{"date", "time", "timestamp", "datetime"}
var trendingMarkers = []string{"rank", "change", "percent", "score", "trending"}

// -----------------------------------------------------------------------------

// hasOHLCVKeys reports whether at least two distinct OHLCV names appear among
// the keys. One match alone (e.g. a lone "volume") is too weak a signal.
func hasOHLCVKeys(keys []string) bool {
	found := make(map[string]bool)
	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, m := range ohlcvMarkers {
			if strings.Contains(lower, m) {
				found[m] = true
			}
		}
	}
	return len(found) >= 2
}

// -----------------------------------------------------------------------------

func hasDateLikeKey(keys []string) bool {
	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, m := range dateMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

// -----------------------------------------------------------------------------

func hasTrendingKeys(keys []string) bool {
	for _, k := range keys {
		lower := strings.ToLower(k)
		for _, m := range trendingMarkers {
			if strings.Contains(lower, m) {
				return true
			}
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// isPivotedRecord detects the one-series-per-metric upstream shape: records
// carrying a metric name and a values list of [date, value] tuples.
func isPivotedRecord(rec map[string]interface{}) bool {
	_, hasMetric := rec["metric"]
	_, hasValues := rec["values"]
	return hasMetric && hasValues
}

// -----------------------------------------------------------------------------

func mapKeys(m map[string]interface{}) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// -----------------------------------------------------------------------------
// Classifier
// -----------------------------------------------------------------------------

// Classify tags raw JSON with its structure kind and the navigation path to
// the data-bearing substructure. Classification is structural (key-name
// heuristics), never provider-specific; the mapper's fuzzy matching absorbs
// naming drift downstream.
func Classify(raw interface{}, schema *models.MSchema) models.MClassification {
	// Root-level array of records.
	if arr, ok := raw.([]interface{}); ok {
		return classifyArray(arr, nil)
	}

	obj, ok := raw.(map[string]interface{})
	if !ok {
		return models.MClassification{Type: models.StructureUnknown}
	}

	// (a) time_series one level down: a nested array of dated OHLCV records,
	// a nested date-keyed map, or a nested pivoted dataset list.
	for _, k := range mapKeys(obj) {
		if IsMetadataField(k) {
			continue
		}
		switch v := obj[k].(type) {
		case []interface{}:
			if cls := classifyArray(v, []string{k}); cls.Type != models.StructureUnknown {
				return cls
			}
		case map[string]interface{}:
			if IsDateKeyedMap(v) {
				if entry, ok := firstDateEntry(v); ok && hasOHLCVKeys(mapKeys(entry)) {
					return models.MClassification{
						Type:     models.StructureTimeSeries,
						DataPath: []string{k},
						IsArray:  false,
					}
				}
			}
		}
	}

	// (b) flat quote: the payload itself exposes OHLCV-like keys, no array.
	if hasOHLCVKeys(mapKeys(obj)) {
		return models.MClassification{Type: models.StructureQuote}
	}

	return models.MClassification{Type: models.StructureUnknown}
}

// -----------------------------------------------------------------------------

func classifyArray(arr []interface{}, path []string) models.MClassification {
	if len(arr) == 0 {
		return models.MClassification{Type: models.StructureUnknown, DataPath: path}
	}

	rec, ok := arr[0].(map[string]interface{})
	if !ok {
		return models.MClassification{Type: models.StructureUnknown, DataPath: path}
	}

	keys := mapKeys(rec)

	if isPivotedRecord(rec) {
		return models.MClassification{Type: models.StructureTimeSeries, DataPath: path, IsArray: true}
	}
	if hasOHLCVKeys(keys) && hasDateLikeKey(keys) {
		return models.MClassification{Type: models.StructureTimeSeries, DataPath: path, IsArray: true}
	}
	// (c) trending list: elements carry rank/change-like keys.
	if hasTrendingKeys(keys) {
		return models.MClassification{Type: models.StructureTrending, DataPath: path, IsArray: true}
	}

	return models.MClassification{Type: models.StructureUnknown, DataPath: path}
}

// -----------------------------------------------------------------------------

// firstDateEntry returns the record under the lexicographically first date
// key of a date-keyed map.
func firstDateEntry(obj map[string]interface{}) (map[string]interface{}, bool) {
	keys := sortedKeys(obj)
	for _, k := range keys {
		if datePattern.MatchString(k) {
			entry, ok := obj[k].(map[string]interface{})
			return entry, ok
		}
	}
	return nil, false
}
