package models

import "time"

// RawBatch is the undecoded content of one source file: the header row and
// the data rows exactly as read. Schema validation runs against this form
// before any decoding or transformation.
type RawBatch struct {
	BatchID    string     `json:"batch_id"`
	SourceFile string     `json:"source_file"`
	BatchDate  time.Time  `json:"batch_date"`
	Columns    []string   `json:"columns"`
	Rows       [][]string `json:"rows"`
}

// ColumnIndex returns the position of a column in the header, or -1
func (rb *RawBatch) ColumnIndex(name string) int {
	for i, c := range rb.Columns {
		if c == name {
			return i
		}
	}
	return -1
}
