package metadata

import (
	"bytes"
	"encoding/gob"
	"fmt"
	"strconv"

	"github.com/RoaringBitmap/roaring/v2"
)

// Store keeps per-vector metadata together with an inverted index of roaring
// bitmaps, so equality filters resolve to candidate ID sets without scanning
// every document.
//
// Like the vector indexes, the store is single-writer with concurrent
// readers; the caller provides the exclusion.
type Store struct {
	docs     map[uint32]Metadata
	inverted map[string]*roaring.Bitmap
}

// NewStore creates an empty metadata store.
func NewStore() *Store {
	return &Store{
		docs:     make(map[uint32]Metadata),
		inverted: make(map[string]*roaring.Bitmap),
	}
}

// Set attaches a document to an ID, replacing any previous document.
func (s *Store) Set(id uint32, doc Metadata) {
	if prev, ok := s.docs[id]; ok {
		s.unindex(id, prev)
	}
	if doc == nil {
		delete(s.docs, id)
		return
	}

	s.docs[id] = doc.Clone()
	s.index(id, doc)
}

// Get returns the document for an ID.
func (s *Store) Get(id uint32) (Metadata, bool) {
	doc, ok := s.docs[id]
	return doc, ok
}

// Len returns the number of documents in the store.
func (s *Store) Len() int { return len(s.docs) }

func (s *Store) index(id uint32, doc Metadata) {
	for k, v := range doc {
		term, ok := termKey(k, v)
		if !ok {
			continue
		}
		bm := s.inverted[term]
		if bm == nil {
			bm = roaring.New()
			s.inverted[term] = bm
		}
		bm.Add(id)
	}
}

func (s *Store) unindex(id uint32, doc Metadata) {
	for k, v := range doc {
		term, ok := termKey(k, v)
		if !ok {
			continue
		}
		if bm := s.inverted[term]; bm != nil {
			bm.Remove(id)
			if bm.IsEmpty() {
				delete(s.inverted, term)
			}
		}
	}
}

// Candidates resolves the equality filters of a set to a bitmap of matching
// IDs by intersecting inverted-index postings. It returns ok=false when the
// set contains no indexable filter, meaning every ID is still a candidate.
func (s *Store) Candidates(fs FilterSet) (*roaring.Bitmap, bool) {
	var acc *roaring.Bitmap

	for _, f := range fs.Filters {
		if !indexable(f) {
			continue
		}

		var bm *roaring.Bitmap
		switch f.Operator {
		case OpEqual:
			term, _ := termKey(f.Key, f.Value)
			bm = s.postings(term)
		case OpIn:
			bm = roaring.New()
			for _, v := range f.Values {
				term, _ := termKey(f.Key, v)
				bm.Or(s.postings(term))
			}
		}

		if acc == nil {
			acc = bm.Clone()
		} else {
			acc.And(bm)
		}
		if acc.IsEmpty() {
			return acc, true
		}
	}

	if acc == nil {
		return nil, false
	}
	return acc, true
}

func (s *Store) postings(term string) *roaring.Bitmap {
	if bm := s.inverted[term]; bm != nil {
		return bm
	}
	return roaring.New()
}

// Predicate builds a per-ID acceptance function for the filter set, suitable
// as a search filter. Equality and membership filters are answered from the
// inverted index; the remaining filters fall back to document evaluation.
func (s *Store) Predicate(fs FilterSet) func(id uint32) bool {
	if len(fs.Filters) == 0 {
		return nil
	}

	candidates, narrowed := s.Candidates(fs)

	var residual []Filter
	for _, f := range fs.Filters {
		if indexable(f) {
			continue
		}
		residual = append(residual, f)
	}

	return func(id uint32) bool {
		if narrowed && !candidates.Contains(id) {
			return false
		}
		if len(residual) == 0 {
			return true
		}
		doc, ok := s.docs[id]
		if !ok {
			return false
		}
		return FilterSet{Filters: residual}.Matches(doc)
	}
}

// indexable reports whether a filter can be answered entirely from the
// inverted index.
func indexable(f Filter) bool {
	switch f.Operator {
	case OpEqual:
		_, ok := termKey(f.Key, f.Value)
		return ok
	case OpIn:
		for _, v := range f.Values {
			if _, ok := termKey(f.Key, v); !ok {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// termKey canonicalizes a key/value pair into an inverted-index term.
// Only scalar values are indexable.
func termKey(key string, value any) (string, bool) {
	var repr string
	switch v := value.(type) {
	case string:
		repr = "s:" + v
	case bool:
		repr = "b:" + strconv.FormatBool(v)
	default:
		f, ok := toFloat(value)
		if !ok {
			return "", false
		}
		repr = "n:" + strconv.FormatFloat(f, 'g', -1, 64)
	}
	return key + "\x00" + repr, true
}

// GobEncode implements gob.GobEncoder. Only the documents are encoded; the
// inverted index is rebuilt on decode.
func (s *Store) GobEncode() ([]byte, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(s.docs); err != nil {
		return nil, fmt.Errorf("metadata: encode store: %w", err)
	}
	return buf.Bytes(), nil
}

// GobDecode implements gob.GobDecoder.
func (s *Store) GobDecode(data []byte) error {
	docs := make(map[uint32]Metadata)
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&docs); err != nil {
		return fmt.Errorf("metadata: decode store: %w", err)
	}

	s.docs = docs
	s.inverted = make(map[string]*roaring.Bitmap)
	for id, doc := range docs {
		s.index(id, doc)
	}
	return nil
}
