// Package metadata provides metadata storage and filtering for hybrid vector
// search, backed by roaring bitmaps for fast candidate-set intersection.
package metadata

// Metadata is an arbitrary JSON-like document attached to a vector.
type Metadata map[string]any

// Clone returns a shallow copy of the document. Values are shared; callers
// that mutate nested values must copy them.
func (m Metadata) Clone() Metadata {
	if m == nil {
		return nil
	}
	c := make(Metadata, len(m))
	for k, v := range m {
		c[k] = v
	}
	return c
}
