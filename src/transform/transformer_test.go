package transform

import (
	"encoding/json"
	"testing"

	"finboard/src/logger"
	"finboard/src/models"
	"finboard/src/schema"
)

func testTransformer() *Transformer {
	return NewTransformer(logger.NewLogger("ERROR", "test"))
}

// pipeline runs infer -> classify -> map -> transform, the way the dataset
// endpoint drives it.
func pipeline(t *testing.T, payload string) models.MTransformResult {
	t.Helper()

	var raw interface{}
	if err := json.Unmarshal([]byte(payload), &raw); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}

	inf := schema.NewInferencer(logger.NewLogger("ERROR", "test"))
	sch := inf.Infer(raw)
	cls := schema.Classify(raw, sch)
	mapping := schema.GenerateMapping(raw, cls)
	return testTransformer().Transform(raw, mapping, cls, "test", "unit")
}

// -----------------------------------------------------------------------------

func TestTransformTimeSeriesRecords(t *testing.T) {
	result := pipeline(t, `{"data": [
		{"date": "2024-01-01", "open": 100, "close": 105},
		{"date": "2024-01-02", "open": 105, "close": 110}
	]}`)

	if !result.Success {
		t.Fatalf("transform failed: %s", result.ErrorMessage)
	}

	ds := result.Dataset
	if ds.TotalRecords != 2 || len(ds.Rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(ds.Rows))
	}
	if ds.DataType != models.StructureTimeSeries {
		t.Errorf("data type = %q, want time_series", ds.DataType)
	}

	// Input order preserved
	if ds.Rows[0]["date"] != "2024-01-01" || ds.Rows[1]["date"] != "2024-01-02" {
		t.Errorf("dates out of order: %v, %v", ds.Rows[0]["date"], ds.Rows[1]["date"])
	}

	if len(ds.Columns) == 0 || ds.Columns[0].Key != "date" {
		t.Errorf("first column should be date, got %+v", ds.Columns)
	}
}

func TestTransformPivotedSeries(t *testing.T) {
	result := pipeline(t, `{"data": [
		{"metric": "open", "values": [["2024-01-01", "100"], ["2024-01-02", "105"]]},
		{"metric": "close", "values": [["2024-01-01", "105"], ["2024-01-02", "110"]]}
	]}`)

	if !result.Success {
		t.Fatalf("transform failed: %s", result.ErrorMessage)
	}

	rows := result.Dataset.Rows
	if len(rows) != 2 {
		t.Fatalf("rows = %d, want 2", len(rows))
	}

	first := rows[0]
	if first["date"] != "2024-01-01" {
		t.Fatalf("first row date = %v", first["date"])
	}
	if first["open"] != 100.0 {
		t.Errorf("open = %v (%T), want 100 as a number", first["open"], first["open"])
	}
	if first["close"] != 105.0 {
		t.Errorf("close = %v (%T), want 105 as a number", first["close"], first["close"])
	}
}

func TestTransformDateKeyedMap(t *testing.T) {
	result := pipeline(t, `{"Time Series (Daily)": {
		"2024-01-03": {"1. open": "102", "4. close": "103"},
		"2024-01-01": {"1. open": "100", "4. close": "101"},
		"2024-01-02": {"1. open": "101", "4. close": "102"},
		"2024-01-04": {"1. open": "103", "4. close": "104"},
		"2024-01-05": {"1. open": "104", "4. close": "105"},
		"2024-01-06": {"1. open": "105", "4. close": "106"}
	}}`)

	if !result.Success {
		t.Fatalf("transform failed: %s", result.ErrorMessage)
	}

	rows := result.Dataset.Rows
	if len(rows) != 6 {
		t.Fatalf("rows = %d, want 6", len(rows))
	}
	// Ascending date order regardless of map iteration
	if rows[0]["date"] != "2024-01-01" || rows[5]["date"] != "2024-01-06" {
		t.Errorf("rows not date-ordered: first %v last %v", rows[0]["date"], rows[5]["date"])
	}
	if rows[0]["open"] != 100.0 {
		t.Errorf("open = %v (%T), want coerced number 100", rows[0]["open"], rows[0]["open"])
	}
	if _, ok := rows[0]["timestamp"].(float64); !ok {
		t.Errorf("date-keyed rows should stamp a numeric timestamp, got %T", rows[0]["timestamp"])
	}
}

func TestTransformQuote(t *testing.T) {
	result := pipeline(t, `{"symbol": "AAPL", "open": 100.5, "high": 105, "low": 99, "price": "104.25"}`)

	if !result.Success {
		t.Fatalf("transform failed: %s", result.ErrorMessage)
	}

	rows := result.Dataset.Rows
	if len(rows) != 1 {
		t.Fatalf("quote should produce exactly one row, got %d", len(rows))
	}
	if rows[0]["symbol"] != "AAPL" {
		t.Errorf("symbol = %v", rows[0]["symbol"])
	}
	if rows[0]["price"] != 104.25 {
		t.Errorf("price = %v (%T), want coerced 104.25", rows[0]["price"], rows[0]["price"])
	}
}

func TestTransformUnknownIsStructuredFailure(t *testing.T) {
	result := pipeline(t, `{"foo": "bar"}`)

	if result.Success {
		t.Fatalf("unknown structure should fail")
	}
	if result.ErrorCode != models.ErrCodeTransformation {
		t.Errorf("error code = %q, want %q", result.ErrorCode, models.ErrCodeTransformation)
	}
	if result.ProcessedRecords != 0 || result.SuccessfulRecords != 0 {
		t.Errorf("failure result must carry zero record counts")
	}
	if result.Dataset != nil {
		t.Errorf("failure result must not carry a dataset")
	}
}

func TestExtractFieldsFuzzyFallback(t *testing.T) {
	rec := map[string]interface{}{"1. open": "100.5"}
	mapping := models.MMappingTemplate{"open": "open"}

	row := ExtractFields(rec, mapping)

	if row["open"] != 100.5 {
		t.Errorf("open = %v (%T), want numeric 100.5 via fuzzy fallback", row["open"], row["open"])
	}
}

func TestCoerceValue(t *testing.T) {
	if CoerceValue("100.5") != 100.5 {
		t.Errorf("numeric string should coerce")
	}
	if CoerceValue("hello") != "hello" {
		t.Errorf("non-numeric string should pass through")
	}
	if CoerceValue(42.0) != 42.0 {
		t.Errorf("numbers pass through untouched")
	}
	if CoerceValue("  7 ") != 7.0 {
		t.Errorf("whitespace-trimmed numeric string should coerce")
	}
}
