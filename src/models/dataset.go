package models

// -----------------------------------------------------------------------------
// Canonical Dataset (the single shape every view adapter consumes)
// -----------------------------------------------------------------------------

// Column alignments.
const (
	AlignLeft   = "left"
	AlignCenter = "center"
	AlignRight  = "right"
)

// MColumn is one ordered column definition.
type MColumn struct {
	Key        string `json:"key"`
	Label      string `json:"label"`
	Type       string `json:"type"` // semantic type, see schema.go
	Align      string `json:"align"`
	Sortable   bool   `json:"sortable"`
	Filterable bool   `json:"filterable"`
}

// MRow maps column key -> coerced value.
type MRow map[string]interface{}

// MCanonicalDataset is the tabular result of the transformation pipeline.
type MCanonicalDataset struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	DataType     string    `json:"data_type"`
	Columns      []MColumn `json:"columns"`
	Rows         []MRow    `json:"rows"`
	TotalRecords int       `json:"total_records"`
	Source       string    `json:"source"`
	GeneratedAt  int64     `json:"generated_at"`
}

// -----------------------------------------------------------------------------
// Transformation Result
// -----------------------------------------------------------------------------

// Error codes surfaced by the transform boundary.
const (
	ErrCodeTransformation = "TRANSFORMATION_ERROR"
)

// MTransformResult is returned as data, never thrown past the transform
// boundary, so batch pipelines can continue past one failure.
type MTransformResult struct {
	Success           bool               `json:"success"`
	Dataset           *MCanonicalDataset `json:"dataset,omitempty"`
	ProcessedRecords  int                `json:"processed_records"`
	SuccessfulRecords int                `json:"successful_records"`
	ErrorCode         string             `json:"error_code,omitempty"`
	ErrorMessage      string             `json:"error_message,omitempty"`
}
