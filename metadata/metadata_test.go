package metadata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClone(t *testing.T) {
	var nilDoc Metadata
	assert.Nil(t, nilDoc.Clone())

	doc := Metadata{"color": "red", "size": 3}
	c := doc.Clone()
	c["color"] = "blue"

	assert.Equal(t, "red", doc["color"])
	assert.Equal(t, "blue", c["color"])
}

func TestFilterMatches(t *testing.T) {
	doc := Metadata{
		"color": "red",
		"size":  3,
		"ratio": 0.5,
		"name":  "padded widget",
	}

	tests := []struct {
		name   string
		filter Filter
		want   bool
	}{
		{"eq string", Eq("color", "red"), true},
		{"eq string miss", Eq("color", "blue"), false},
		{"eq missing key", Eq("nope", "red"), false},
		{"ne", Ne("color", "blue"), true},
		{"ne missing key", Ne("nope", "red"), false},
		{"eq int vs float", Eq("size", 3.0), true},
		{"eq float", Eq("ratio", 0.5), true},
		{"in hit", In("color", "green", "red"), true},
		{"in miss", In("color", "green", "blue"), false},
		{"in empty", In("color"), false},
		{"contains", Contains("name", "widget"), true},
		{"contains miss", Contains("name", "gadget"), false},
		{"contains non-string", Contains("size", "3"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.filter.Matches(doc))
		})
	}
}

func TestFilterSet(t *testing.T) {
	doc := Metadata{"color": "red", "size": 3}

	assert.True(t, FilterSet{}.Matches(doc))
	assert.True(t, FilterSet{Filters: []Filter{Eq("color", "red"), Eq("size", 3)}}.Matches(doc))
	assert.False(t, FilterSet{Filters: []Filter{Eq("color", "red"), Eq("size", 4)}}.Matches(doc))
}

func TestStore(t *testing.T) {
	s := NewStore()

	s.Set(0, Metadata{"color": "red", "size": 1})
	s.Set(1, Metadata{"color": "blue", "size": 1})
	s.Set(2, Metadata{"color": "red", "size": 2})
	require.Equal(t, 3, s.Len())

	doc, ok := s.Get(1)
	require.True(t, ok)
	assert.Equal(t, "blue", doc["color"])

	_, ok = s.Get(99)
	assert.False(t, ok)

	t.Run("candidates", func(t *testing.T) {
		bm, narrowed := s.Candidates(FilterSet{Filters: []Filter{Eq("color", "red")}})
		require.True(t, narrowed)
		assert.ElementsMatch(t, []uint32{0, 2}, bm.ToArray())

		bm, narrowed = s.Candidates(FilterSet{Filters: []Filter{Eq("color", "red"), Eq("size", 1)}})
		require.True(t, narrowed)
		assert.Equal(t, []uint32{0}, bm.ToArray())

		bm, narrowed = s.Candidates(FilterSet{Filters: []Filter{In("color", "red", "blue")}})
		require.True(t, narrowed)
		assert.ElementsMatch(t, []uint32{0, 1, 2}, bm.ToArray())

		_, narrowed = s.Candidates(FilterSet{Filters: []Filter{Contains("color", "r")}})
		assert.False(t, narrowed)
	})

	t.Run("predicate", func(t *testing.T) {
		assert.Nil(t, s.Predicate(FilterSet{}))

		pred := s.Predicate(FilterSet{Filters: []Filter{Eq("color", "red")}})
		require.NotNil(t, pred)
		assert.True(t, pred(0))
		assert.False(t, pred(1))
		assert.True(t, pred(2))

		pred = s.Predicate(FilterSet{Filters: []Filter{Eq("color", "red"), Contains("color", "re")}})
		require.NotNil(t, pred)
		assert.True(t, pred(0))
		assert.False(t, pred(1))
	})

	t.Run("replace reindexes", func(t *testing.T) {
		s.Set(0, Metadata{"color": "green"})

		bm, narrowed := s.Candidates(FilterSet{Filters: []Filter{Eq("color", "red")}})
		require.True(t, narrowed)
		assert.Equal(t, []uint32{2}, bm.ToArray())
	})
}

func TestStoreGob(t *testing.T) {
	s := NewStore()
	s.Set(3, Metadata{"color": "red", "size": 7.0})
	s.Set(9, Metadata{"color": "blue"})

	data, err := s.GobEncode()
	require.NoError(t, err)

	restored := NewStore()
	require.NoError(t, restored.GobDecode(data))

	require.Equal(t, 2, restored.Len())
	doc, ok := restored.Get(3)
	require.True(t, ok)
	assert.Equal(t, "red", doc["color"])

	bm, narrowed := restored.Candidates(FilterSet{Filters: []Filter{Eq("color", "blue")}})
	require.True(t, narrowed)
	assert.Equal(t, []uint32{9}, bm.ToArray())
}
