package transform

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"finboard/src/logger"
	"finboard/src/models"
	"finboard/src/schema"

	"github.com/google/uuid"
)

// -----------------------------------------------------------------------------
// Transformer
// -----------------------------------------------------------------------------

// Transformer applies a mapping template to raw payloads, producing the
// canonical tabular dataset every view adapter consumes.
type Transformer struct {
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewTransformer(log *logger.Logger) *Transformer {
	return &Transformer{Logger: log}
}

// -----------------------------------------------------------------------------

// Transform builds a canonical dataset from a classified payload. Any failure
// during structural navigation surfaces as a TRANSFORMATION_ERROR result with
// zero record counts; it never propagates as a panic to the caller.
func (t *Transformer) Transform(raw interface{}, mapping models.MMappingTemplate, cls models.MClassification, title, source string) (result models.MTransformResult) {
	defer func() {
		if r := recover(); r != nil {
			t.Logger.Error("transform failed for %s: %v", source, r)
			result = models.MTransformResult{
				Success:      false,
				ErrorCode:    models.ErrCodeTransformation,
				ErrorMessage: fmt.Sprintf("%v", r),
			}
		}
	}()

	var rows []models.MRow

	switch cls.Type {
	case models.StructureTimeSeries:
		rows = t.timeSeriesRows(raw, mapping, cls)
	case models.StructureQuote:
		rec, ok := raw.(map[string]interface{})
		if !ok {
			panic("quote payload is not an object")
		}
		rows = []models.MRow{ExtractFields(rec, mapping)}
	case models.StructureTrending:
		rows = t.trendingRows(raw, mapping, cls)
	default:
		panic(fmt.Sprintf("unsupported classification type %q", cls.Type))
	}

	dataset := &models.MCanonicalDataset{
		ID:           uuid.NewString(),
		Title:        title,
		DataType:     cls.Type,
		Columns:      deriveColumns(rows),
		Rows:         rows,
		TotalRecords: len(rows),
		Source:       source,
		GeneratedAt:  time.Now().UnixMilli(),
	}

	return models.MTransformResult{
		Success:           true,
		Dataset:           dataset,
		ProcessedRecords:  len(rows),
		SuccessfulRecords: len(rows),
	}
}

// -----------------------------------------------------------------------------
// time_series Strategy
// -----------------------------------------------------------------------------

func (t *Transformer) timeSeriesRows(raw interface{}, mapping models.MMappingTemplate, cls models.MClassification) []models.MRow {
	node := schema.NavigatePath(raw, cls.DataPath)

	switch v := node.(type) {
	case map[string]interface{}:
		return dateKeyedRows(v, mapping)
	case []interface{}:
		if len(v) > 0 {
			if rec, ok := v[0].(map[string]interface{}); ok {
				if _, pivoted := rec["values"]; pivoted {
					if _, hasMetric := rec["metric"]; hasMetric {
						return pivotRows(v)
					}
				}
			}
		}
		return recordRows(v, mapping)
	default:
		panic("time series data path resolved to a non-iterable value")
	}
}

// -----------------------------------------------------------------------------

// dateKeyedRows iterates a date-keyed map in ascending date order, stamping
// date and timestamp from the entry key.
func dateKeyedRows(obj map[string]interface{}, mapping models.MMappingTemplate) []models.MRow {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := make([]models.MRow, 0, len(keys))
	for _, k := range keys {
		rec, ok := obj[k].(map[string]interface{})
		if !ok {
			continue
		}
		row := ExtractFields(rec, mapping)
		row["date"] = k
		if ts, err := time.Parse("2006-01-02", k); err == nil {
			row["timestamp"] = float64(ts.UnixMilli())
		}
		rows = append(rows, row)
	}
	return rows
}

// -----------------------------------------------------------------------------

func recordRows(arr []interface{}, mapping models.MMappingTemplate) []models.MRow {
	rows := make([]models.MRow, 0, len(arr))
	for _, item := range arr {
		rec, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		rows = append(rows, ExtractFields(rec, mapping))
	}
	return rows
}

// -----------------------------------------------------------------------------

// pivotRows handles the one-series-per-metric upstream shape: each record
// carries a metric name and a values list of [date, value] tuples. Output is
// one row per distinct date, merging every metric's value for that date, so
// rows align across metrics for charting and tabulation.
func pivotRows(arr []interface{}) []models.MRow {
	byDate := make(map[string]models.MRow)
	var dateOrder []string

	for _, item := range arr {
		rec, ok := item.(map[string]interface{})
		if !ok {
			continue
		}
		metric, _ := rec["metric"].(string)
		if metric == "" {
			continue
		}
		metric = strings.ToLower(metric)

		values, _ := rec["values"].([]interface{})
		for _, v := range values {
			tuple, ok := v.([]interface{})
			if !ok || len(tuple) < 2 {
				continue
			}
			date, ok := tuple[0].(string)
			if !ok {
				continue
			}
			row, seen := byDate[date]
			if !seen {
				row = models.MRow{"date": date}
				byDate[date] = row
				dateOrder = append(dateOrder, date)
			}
			row[metric] = CoerceValue(tuple[1])
		}
	}

	rows := make([]models.MRow, 0, len(dateOrder))
	for _, date := range dateOrder {
		rows = append(rows, byDate[date])
	}
	return rows
}

// -----------------------------------------------------------------------------
// trending Strategy
// -----------------------------------------------------------------------------

func (t *Transformer) trendingRows(raw interface{}, mapping models.MMappingTemplate, cls models.MClassification) []models.MRow {
	node := schema.NavigatePath(raw, cls.DataPath)
	arr, ok := node.([]interface{})
	if !ok {
		panic("trending data path resolved to a non-array value")
	}
	return recordRows(arr, mapping)
}

// -----------------------------------------------------------------------------
// Field Extraction
// -----------------------------------------------------------------------------

// ExtractFields resolves each mapped path against a record, falling back to
// the mapper's fuzzy policy when the exact path is absent, and coercing
// numeric-looking strings to numbers.
func ExtractFields(rec map[string]interface{}, mapping models.MMappingTemplate) models.MRow {
	row := make(models.MRow)

	// Deterministic target iteration
	targets := make([]string, 0, len(mapping))
	for target := range mapping {
		targets = append(targets, target)
	}
	sort.Strings(targets)

	keys := make([]string, 0, len(rec))
	for k := range rec {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, target := range targets {
		path := mapping[target]
		if path == models.DateKeySegment {
			continue // stamped by the date-keyed iteration
		}

		if v, ok := resolvePath(rec, path); ok {
			row[target] = CoerceValue(v)
			continue
		}
		if src, ok := schema.MatchSourceKey(target, keys); ok {
			row[target] = CoerceValue(rec[src])
		}
	}

	return row
}

// -----------------------------------------------------------------------------

// resolvePath tries the path as a literal key first (source keys like
// "1. open" contain dots), then as a dot-notation descent.
func resolvePath(rec map[string]interface{}, path string) (interface{}, bool) {
	if v, ok := rec[path]; ok {
		return v, true
	}

	var node interface{} = rec
	for _, seg := range strings.Split(path, ".") {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = obj[seg]
		if !ok {
			return nil, false
		}
	}
	return node, true
}

// -----------------------------------------------------------------------------

// CoerceValue converts numeric-looking strings to float64 and leaves every
// other value untouched.
func CoerceValue(v interface{}) interface{} {
	s, ok := v.(string)
	if !ok {
		return v
	}
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return v
	}
	if n, err := strconv.ParseFloat(trimmed, 64); err == nil {
		return n
	}
	return v
}

// -----------------------------------------------------------------------------
// Column Derivation
// -----------------------------------------------------------------------------

// deriveColumns computes the column set from the union of keys actually
// present across rows, because pivoted metric names are unknown until rows
// are built. A date column is always guaranteed first.
func deriveColumns(rows []models.MRow) []models.MColumn {
	var order []string
	seen := make(map[string]bool)

	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if !seen[k] {
				seen[k] = true
				order = append(order, k)
			}
		}
	}

	if !seen["date"] {
		order = append(order, "date")
	}
	// date first, everything else in first-seen order
	sort.SliceStable(order, func(i, j int) bool {
		return order[i] == "date" && order[j] != "date"
	})

	columns := make([]models.MColumn, 0, len(order))
	for _, key := range order {
		colType := columnType(key, firstNonNull(rows, key))
		columns = append(columns, models.MColumn{
			Key:        key,
			Label:      columnLabel(key),
			Type:       colType,
			Align:      columnAlign(colType),
			Sortable:   true,
			Filterable: colType == models.FieldTypeString || colType == models.FieldTypeDate,
		})
	}
	return columns
}

// -----------------------------------------------------------------------------

func firstNonNull(rows []models.MRow, key string) interface{} {
	for _, row := range rows {
		if v, ok := row[key]; ok && v != nil {
			return v
		}
	}
	return nil
}

// -----------------------------------------------------------------------------

// columnType infers a column's semantic type from key-name hints first, then
// from its first non-null sample value.
func columnType(key string, sample interface{}) string {
	lower := strings.ToLower(key)

	switch {
	case strings.Contains(lower, "percent") || strings.HasSuffix(lower, "change"):
		return models.FieldTypePercentage
	case strings.Contains(lower, "date") || strings.Contains(lower, "time"):
		return models.FieldTypeDate
	case strings.Contains(lower, "price") || strings.Contains(lower, "open") ||
		strings.Contains(lower, "close") || strings.Contains(lower, "high") ||
		strings.Contains(lower, "low"):
		return models.FieldTypeCurrency
	}

	switch s := sample.(type) {
	case float64:
		return models.FieldTypeNumber
	case bool:
		return models.FieldTypeBoolean
	case string:
		return schema.InferStringType(key, s)
	default:
		return models.FieldTypeString
	}
}

// -----------------------------------------------------------------------------

func columnAlign(colType string) string {
	switch colType {
	case models.FieldTypeNumber, models.FieldTypeCurrency, models.FieldTypePercentage:
		return models.AlignRight
	case models.FieldTypeDate, models.FieldTypeDatetime, models.FieldTypeTimestamp:
		return models.AlignCenter
	default:
		return models.AlignLeft
	}
}

// -----------------------------------------------------------------------------

func columnLabel(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}
