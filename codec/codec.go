// Package codec centralizes payload and metadata encoding.
//
// Codec selection is a compatibility boundary: snapshots record the codec
// name in their header so persisted bytes are always decoded by the codec
// that produced them.
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
	default:
		return nil, false
	}
}

// Default is the codec used for newly persisted data.
var Default Codec = JSON{}
