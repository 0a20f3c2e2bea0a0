// Package codec centralizes value encoding for persisted row data.
//
// Codec selection is a compatibility boundary: snapshots and WAL files record
// the codec name in their header, and opening an existing file selects the
// codec by that name. Changing the default only affects newly-created files.
package codec

// Codec encodes/decodes values.
// Implementations must be safe for concurrent use.
type Codec interface {
	Marshal(v any) ([]byte, error)
	Unmarshal(data []byte, v any) error
	Name() string
}

// ByName returns a built-in codec by its stable name.
func ByName(name string) (Codec, bool) {
	switch name {
	case "json":
		return JSON{}, true
	case "go-json":
		return GoJSON{}, true
	default:
		return nil, false
	}
}

// Default is the codec used for newly-created files.
var Default Codec = GoJSON{}
