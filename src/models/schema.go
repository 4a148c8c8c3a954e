package models

// -----------------------------------------------------------------------------
// Inferred Schema
// -----------------------------------------------------------------------------

// Semantic field types produced by schema inference.
const (
	FieldTypeString     = "string"
	FieldTypeNumber     = "number"
	FieldTypeBoolean    = "boolean"
	FieldTypeDate       = "date"
	FieldTypeDatetime   = "datetime"
	FieldTypeTimestamp  = "timestamp"
	FieldTypeCurrency   = "currency"
	FieldTypePercentage = "percentage"
	FieldTypeArray      = "array"
	FieldTypeObject     = "object"
	FieldTypeNull       = "null"
)

// MFieldSchema describes one field of an upstream payload.
type MFieldSchema struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	Nullable    bool           `json:"nullable"`
	Description string         `json:"description,omitempty"`
	Fields      []MFieldSchema `json:"fields,omitempty"`   // object shape
	Elements    []MFieldSchema `json:"elements,omitempty"` // tuple positions
	Element     *MFieldSchema  `json:"element,omitempty"`  // homogeneous array element
}

// MSchema is the structural description of one payload shape.
type MSchema struct {
	Root     MFieldSchema   `json:"root"`
	Fields   []MFieldSchema `json:"fields"`
	Metadata []MFieldSchema `json:"metadata"`
}

// -----------------------------------------------------------------------------
// Classification
// -----------------------------------------------------------------------------

// Structure kinds a payload can classify into.
const (
	StructureTimeSeries = "time_series"
	StructureQuote      = "quote"
	StructureTrending   = "trending"
	StructureUnknown    = "unknown"
)

// DateKeySegment is the pseudo path segment marking a date-keyed object
// traversed as an implicit array.
const DateKeySegment = "[DATE]"

// MClassification tags a payload with its structure kind and the path to the
// data-bearing substructure.
type MClassification struct {
	Type     string   `json:"type"`
	DataPath []string `json:"data_path"`
	IsArray  bool     `json:"is_array"`
}

// MMappingTemplate maps canonical field name -> source path (dot notation).
type MMappingTemplate map[string]string
