package model

import "maps"

// RowID is the store-assigned identity of a row.
//
// IDs are strictly increasing in insert order and are never reused or
// reassigned, even across a Clear. Scan order is ascending RowID, which makes
// it stable for the lifetime of a dataset.
type RowID uint64

// Row is a single record: an opaque mapping of column name to string value
// plus its store identity.
type Row struct {
	ID   RowID
	Data map[string]string
}

// Clone returns a deep copy of the row. The data map is copied so the clone
// can be mutated without aliasing the original.
func (r Row) Clone() Row {
	return Row{ID: r.ID, Data: maps.Clone(r.Data)}
}

// TableMeta is the singleton metadata record describing the current dataset.
//
// It is overwritten wholesale on import completion and never partially
// updated mid-import: observing a TableMeta means the matching import
// finished successfully.
type TableMeta struct {
	// Columns is the ordered column-name list as observed in the header row.
	Columns []string `json:"columns"`
	// RowCount is the total number of rows written by the import.
	RowCount uint64 `json:"rowCount"`
}

// EqualIdentity reports whether two metadata records describe the same
// dataset shape (same columns in the same order, same row count).
func (m TableMeta) EqualIdentity(other TableMeta) bool {
	if m.RowCount != other.RowCount || len(m.Columns) != len(other.Columns) {
		return false
	}
	for i, c := range m.Columns {
		if other.Columns[i] != c {
			return false
		}
	}
	return true
}
