package schema

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"finboard/src/logger"
	"finboard/src/models"
)

// -----------------------------------------------------------------------------
// Pattern Tables
// -----------------------------------------------------------------------------

var (
	datePattern      = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	datetimePattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}[ T]\d{2}:\d{2}(:\d{2})?`)
	timestampPattern = regexp.MustCompile(`^(\d{10}|\d{13})$`)
	percentPattern   = regexp.MustCompile(`^-?\d+(\.\d+)?\s*%$`)
	numericPattern   = regexp.MustCompile(`^-?\d+(\.\d+)?$`)
)

// Field names containing any of these substrings are treated as payload
// metadata (preamble/version blocks) and separated from data fields.
var metadataMarkers = []string{
	"meta", "information", "status", "version",
	"timezone", "last refreshed", "note", "copyright",
}

// Field names containing any of these substrings mark numeric strings as
// currency values.
var priceNameMarkers = []string{"price", "open", "close", "high", "low"}

// Tuple detection samples at most this many elements of an array-of-arrays.
const tupleSampleSize = 10

// A date-keyed map needs more than this many keys, a majority of them dates.
const dateKeyedMinKeys = 5

// -----------------------------------------------------------------------------
// Inferencer
// -----------------------------------------------------------------------------

// Inferencer walks arbitrary decoded JSON and produces a structural schema.
// Inference is pure; the logger is only consulted at Debug level.
type Inferencer struct {
	Logger *logger.Logger
}

// -----------------------------------------------------------------------------

func NewInferencer(log *logger.Logger) *Inferencer {
	return &Inferencer{Logger: log}
}

// -----------------------------------------------------------------------------

// Infer produces the schema for one payload shape. Non-object, non-array
// roots yield a minimal scalar schema rather than an error.
func (inf *Inferencer) Infer(value interface{}) *models.MSchema {
	root := inf.inferValue("", value)

	schema := &models.MSchema{Root: root}

	if root.Type == models.FieldTypeObject {
		for _, f := range root.Fields {
			if IsMetadataField(f.Name) {
				schema.Metadata = append(schema.Metadata, f)
			} else {
				schema.Fields = append(schema.Fields, f)
			}
		}
	}

	return schema
}

// -----------------------------------------------------------------------------

// inferValue is the single recursive visitor over the JSON value sum type.
func (inf *Inferencer) inferValue(name string, value interface{}) models.MFieldSchema {
	switch v := value.(type) {
	case nil:
		return models.MFieldSchema{Name: name, Type: models.FieldTypeNull, Nullable: true}
	case bool:
		return models.MFieldSchema{Name: name, Type: models.FieldTypeBoolean}
	case float64:
		return models.MFieldSchema{Name: name, Type: models.FieldTypeNumber}
	case string:
		return models.MFieldSchema{Name: name, Type: InferStringType(name, v)}
	case map[string]interface{}:
		return inf.inferObject(name, v)
	case []interface{}:
		return inf.inferArray(name, v)
	default:
		return models.MFieldSchema{Name: name, Type: models.FieldTypeObject}
	}
}

// -----------------------------------------------------------------------------

func (inf *Inferencer) inferObject(name string, obj map[string]interface{}) models.MFieldSchema {
	keys := sortedKeys(obj)

	// Date-keyed map detection: a large object whose keys are mostly dates is
	// an implicit time-indexed array, inferred once from the first entry.
	if IsDateKeyedMap(obj) {
		entry := inf.inferValue(models.DateKeySegment, obj[keys[0]])
		return models.MFieldSchema{
			Name:        name,
			Type:        models.FieldTypeObject,
			Description: fmt.Sprintf("date-keyed map of %d entries", len(keys)),
			Fields:      []models.MFieldSchema{entry},
		}
	}

	field := models.MFieldSchema{Name: name, Type: models.FieldTypeObject}
	for _, k := range keys {
		field.Fields = append(field.Fields, inf.inferValue(k, obj[k]))
	}
	return field
}

// -----------------------------------------------------------------------------

func (inf *Inferencer) inferArray(name string, arr []interface{}) models.MFieldSchema {
	field := models.MFieldSchema{Name: name, Type: models.FieldTypeArray}
	if len(arr) == 0 {
		return field
	}

	// Tuple detection: elements that are themselves equal-length arrays encode
	// positional fields like [date, value] rather than a homogeneous list.
	if positions, ok := tupleShape(arr); ok {
		field.Elements = make([]models.MFieldSchema, len(positions))
		for i, samples := range positions {
			field.Elements[i] = inf.tuplePositionType(i, samples)
		}
		return field
	}

	// Otherwise only the first element is inspected.
	elem := inf.inferValue("", arr[0])
	field.Element = &elem
	return field
}

// -----------------------------------------------------------------------------

// tupleShape samples up to tupleSampleSize elements; it reports a tuple only
// when every sampled element is an array of the same length, returning the
// sampled values grouped by position.
func tupleShape(arr []interface{}) ([][]interface{}, bool) {
	n := len(arr)
	if n > tupleSampleSize {
		n = tupleSampleSize
	}

	width := -1
	for i := 0; i < n; i++ {
		inner, ok := arr[i].([]interface{})
		if !ok {
			return nil, false
		}
		if width == -1 {
			width = len(inner)
		} else if len(inner) != width {
			return nil, false
		}
	}
	if width <= 0 {
		return nil, false
	}

	positions := make([][]interface{}, width)
	for i := 0; i < n; i++ {
		inner := arr[i].([]interface{})
		for p := 0; p < width; p++ {
			positions[p] = append(positions[p], inner[p])
		}
	}
	return positions, true
}

// -----------------------------------------------------------------------------

// tuplePositionType fixes a position's type when all samples agree, degrading
// to a generic object type otherwise.
func (inf *Inferencer) tuplePositionType(pos int, samples []interface{}) models.MFieldSchema {
	name := fmt.Sprintf("%d", pos)
	agreed := ""
	for _, s := range samples {
		t := inf.inferValue(name, s).Type
		if agreed == "" {
			agreed = t
		} else if t != agreed {
			return models.MFieldSchema{Name: name, Type: models.FieldTypeObject}
		}
	}
	return models.MFieldSchema{Name: name, Type: agreed}
}

// -----------------------------------------------------------------------------
// Scalar String Typing
// -----------------------------------------------------------------------------

// InferStringType applies the detection order: percentage, datetime, date,
// unix timestamp, currency (numeric string under a price-like name), plain
// numeric string, string.
func InferStringType(name, s string) string {
	switch {
	case percentPattern.MatchString(s):
		return models.FieldTypePercentage
	case datetimePattern.MatchString(s):
		return models.FieldTypeDatetime
	case datePattern.MatchString(s):
		return models.FieldTypeDate
	case timestampPattern.MatchString(s):
		return models.FieldTypeTimestamp
	case numericPattern.MatchString(s) && isPriceName(name):
		return models.FieldTypeCurrency
	case numericPattern.MatchString(s):
		return models.FieldTypeNumber
	default:
		return models.FieldTypeString
	}
}

// -----------------------------------------------------------------------------

func isPriceName(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range priceNameMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// IsMetadataField reports whether a field name marks payload metadata.
func IsMetadataField(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range metadataMarkers {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}

// -----------------------------------------------------------------------------

// IsDateKeyedMap reports whether an object acts as an implicit date-indexed
// array: more than dateKeyedMinKeys keys with a majority matching YYYY-MM-DD.
func IsDateKeyedMap(obj map[string]interface{}) bool {
	if len(obj) <= dateKeyedMinKeys {
		return false
	}
	dated := 0
	for k := range obj {
		if datePattern.MatchString(k) {
			dated++
		}
	}
	return dated*2 > len(obj)
}

// -----------------------------------------------------------------------------

func sortedKeys(obj map[string]interface{}) []string {
	keys := make([]string, 0, len(obj))
	for k := range obj {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
