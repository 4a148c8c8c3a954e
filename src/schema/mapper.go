package schema

import (
	"strings"

	"finboard/src/models"
)

// -----------------------------------------------------------------------------
// Canonical Vocabulary
// -----------------------------------------------------------------------------

// The fixed set of canonical target fields, in mapping priority order.
var canonicalFields = []string{
	"symbol", "name", "date", "time", "timestamp",
	"open", "high", "low", "close", "volume",
	"price", "change", "changePercent", "rank",
}

// -----------------------------------------------------------------------------
// Mapper
// -----------------------------------------------------------------------------

// GenerateMapping derives target -> source-path associations for the record
// shape the classification points at. Matching policy, applied in order:
// exact key, case-insensitive suffix (so "1. open" serves canonical "open"),
// case-insensitive substring. Candidate keys are tried in sorted order so the
// first-match-wins rule is deterministic per payload.
func GenerateMapping(raw interface{}, cls models.MClassification) models.MMappingTemplate {
	mapping := make(models.MMappingTemplate)

	rec, dateKeyed := sampleRecord(raw, cls)
	if rec == nil {
		return mapping
	}

	// A date-keyed map has no date field inside its records; the traversal
	// key itself is the date.
	if dateKeyed {
		mapping["date"] = models.DateKeySegment
	}

	keys := mapKeys(rec)
	for _, target := range canonicalFields {
		if _, done := mapping[target]; done {
			continue
		}
		if src, ok := MatchSourceKey(target, keys); ok {
			mapping[target] = src
		}
	}

	return mapping
}

// -----------------------------------------------------------------------------

// MatchSourceKey applies the exact / suffix / substring policy against the
// candidate keys, which must already be in deterministic order.
func MatchSourceKey(target string, keys []string) (string, bool) {
	lowerTarget := strings.ToLower(target)

	for _, k := range keys {
		if k == target {
			return k, true
		}
	}
	for _, k := range keys {
		if strings.HasSuffix(strings.ToLower(k), lowerTarget) {
			return k, true
		}
	}
	for _, k := range keys {
		if strings.Contains(strings.ToLower(k), lowerTarget) {
			return k, true
		}
	}
	return "", false
}

// -----------------------------------------------------------------------------

// sampleRecord navigates the classification's data path and returns one
// representative record to derive the mapping from. The bool result reports
// date-keyed traversal.
func sampleRecord(raw interface{}, cls models.MClassification) (map[string]interface{}, bool) {
	node := NavigatePath(raw, cls.DataPath)
	if node == nil {
		return nil, false
	}

	switch v := node.(type) {
	case []interface{}:
		if len(v) == 0 {
			return nil, false
		}
		rec, _ := v[0].(map[string]interface{})
		return rec, false
	case map[string]interface{}:
		if IsDateKeyedMap(v) {
			entry, ok := firstDateEntry(v)
			if !ok {
				return nil, false
			}
			return entry, true
		}
		return v, false
	default:
		return nil, false
	}
}

// -----------------------------------------------------------------------------

// NavigatePath descends raw JSON along object keys. An empty path returns the
// value unchanged; a missing segment returns nil.
func NavigatePath(raw interface{}, path []string) interface{} {
	node := raw
	for _, seg := range path {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil
		}
		node, ok = obj[seg]
		if !ok {
			return nil
		}
	}
	return node
}
