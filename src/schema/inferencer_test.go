package schema

import (
	"encoding/json"
	"testing"

	"finboard/src/logger"
	"finboard/src/models"
)

func testInferencer() *Inferencer {
	return NewInferencer(logger.NewLogger("ERROR", "test"))
}

func decode(t *testing.T, s string) interface{} {
	t.Helper()
	var v interface{}
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("bad test payload: %v", err)
	}
	return v
}

// -----------------------------------------------------------------------------

func TestInferStringTypeOrder(t *testing.T) {
	cases := []struct {
		name  string
		value string
		want  string
	}{
		{"change", "5.2%", models.FieldTypePercentage},
		{"updated", "2024-01-01 12:30:00", models.FieldTypeDatetime},
		{"day", "2024-01-01", models.FieldTypeDate},
		{"ts", "1704067200", models.FieldTypeTimestamp},
		{"ts_ms", "1704067200000", models.FieldTypeTimestamp},
		{"1. open", "100.5", models.FieldTypeCurrency},
		{"count", "42", models.FieldTypeNumber},
		{"note", "hello", models.FieldTypeString},
	}

	for _, c := range cases {
		if got := InferStringType(c.name, c.value); got != c.want {
			t.Errorf("InferStringType(%q, %q) = %q, want %q", c.name, c.value, got, c.want)
		}
	}
}

func TestInferTupleArray(t *testing.T) {
	raw := decode(t, `[["2024-01-01", 100], ["2024-01-02", 105], ["2024-01-03", 110]]`)

	schema := testInferencer().Infer(raw)

	if schema.Root.Type != models.FieldTypeArray {
		t.Fatalf("root type = %q, want array", schema.Root.Type)
	}
	if len(schema.Root.Elements) != 2 {
		t.Fatalf("tuple width = %d, want 2", len(schema.Root.Elements))
	}
	if schema.Root.Elements[0].Type != models.FieldTypeDate {
		t.Errorf("position 0 type = %q, want date", schema.Root.Elements[0].Type)
	}
	if schema.Root.Elements[1].Type != models.FieldTypeNumber {
		t.Errorf("position 1 type = %q, want number", schema.Root.Elements[1].Type)
	}
}

func TestInferTupleDegradesOnDisagreement(t *testing.T) {
	raw := decode(t, `[["2024-01-01", 100], ["2024-01-02", "n/a"]]`)

	schema := testInferencer().Infer(raw)

	if len(schema.Root.Elements) != 2 {
		t.Fatalf("tuple width = %d, want 2", len(schema.Root.Elements))
	}
	if schema.Root.Elements[1].Type != models.FieldTypeObject {
		t.Errorf("disagreeing position type = %q, want object", schema.Root.Elements[1].Type)
	}
}

func TestInferMixedLengthArraysAreNotTuples(t *testing.T) {
	raw := decode(t, `[["2024-01-01", 100], ["2024-01-02", 105, 1]]`)

	schema := testInferencer().Infer(raw)

	if schema.Root.Elements != nil {
		t.Errorf("mixed-length arrays should not infer tuple positions")
	}
	if schema.Root.Element == nil {
		t.Errorf("expected first-element inference for non-tuple array")
	}
}

func TestIsDateKeyedMap(t *testing.T) {
	obj := map[string]interface{}{}
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04", "2024-01-05"} {
		obj[d] = map[string]interface{}{"close": 1.0}
	}

	// Exactly 5 keys is below the threshold
	if IsDateKeyedMap(obj) {
		t.Errorf("5-key map should not be date-keyed")
	}

	obj["2024-01-06"] = map[string]interface{}{"close": 1.0}
	if !IsDateKeyedMap(obj) {
		t.Errorf("6 all-date keys should be date-keyed")
	}

	// Majority rule: add non-date keys until dates are no longer a majority
	for _, k := range []string{"a", "b", "c", "d", "e", "f"} {
		obj[k] = 1.0
	}
	if IsDateKeyedMap(obj) {
		t.Errorf("map without a date-key majority should not be date-keyed")
	}
}

func TestInferDateKeyedMapField(t *testing.T) {
	raw := decode(t, `{
		"Meta Data": {"2. Symbol": "IBM"},
		"Time Series (Daily)": {
			"2024-01-01": {"1. open": "100.0", "4. close": "101.0"},
			"2024-01-02": {"1. open": "101.0", "4. close": "102.0"},
			"2024-01-03": {"1. open": "102.0", "4. close": "103.0"},
			"2024-01-04": {"1. open": "103.0", "4. close": "104.0"},
			"2024-01-05": {"1. open": "104.0", "4. close": "105.0"},
			"2024-01-06": {"1. open": "105.0", "4. close": "106.0"}
		}
	}`)

	schema := testInferencer().Infer(raw)

	if len(schema.Metadata) != 1 || schema.Metadata[0].Name != "Meta Data" {
		t.Fatalf("metadata split failed: %+v", schema.Metadata)
	}
	if len(schema.Fields) != 1 {
		t.Fatalf("data fields = %d, want 1", len(schema.Fields))
	}

	series := schema.Fields[0]
	if len(series.Fields) != 1 || series.Fields[0].Name != models.DateKeySegment {
		t.Errorf("date-keyed map should infer a single %s entry field, got %+v",
			models.DateKeySegment, series.Fields)
	}
}

func TestIsMetadataField(t *testing.T) {
	for _, name := range []string{"Meta Data", "Information", "status", "3. Last Refreshed"} {
		if !IsMetadataField(name) {
			t.Errorf("%q should be metadata", name)
		}
	}
	for _, name := range []string{"data", "results", "Time Series (Daily)"} {
		if IsMetadataField(name) {
			t.Errorf("%q should not be metadata", name)
		}
	}
}
