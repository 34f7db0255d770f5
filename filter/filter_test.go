package filter

import (
	"encoding/json"
	"testing"

	"github.com/oracle/coherence-js-client-sub001/encoding"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilters_EqualFiltersSerializeEqually(t *testing.T) {
	for _, format := range encoding.Formats() {
		ser, err := encoding.Lookup(format)
		require.NoError(t, err)

		a, err := ser.Serialize(And(Greater("price", 10), Not(Equal("status", "closed"))))
		require.NoError(t, err, format)
		b, err := ser.Serialize(And(Greater("price", 10), Not(Equal("status", "closed"))))
		require.NoError(t, err, format)
		assert.Equal(t, a, b, format)

		c, err := ser.Serialize(And(Greater("price", 11), Not(Equal("status", "closed"))))
		require.NoError(t, err, format)
		assert.NotEqual(t, a, c, format)
	}
}

func TestFilters_JSONShape(t *testing.T) {
	raw, err := json.Marshal(Events(Inserted|Deleted, Less("qty", 5)))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	assert.Equal(t, "filter.MapEventFilter", doc["@class"])
	assert.Equal(t, float64(5), doc["mask"])

	inner := doc["filter"].(map[string]any)
	assert.Equal(t, "filter.LessFilter", inner["@class"])
	assert.Equal(t, "qty", inner["extractor"].(map[string]any)["name"])
}

func TestEvents_NilFilterOmitted(t *testing.T) {
	raw, err := json.Marshal(Events(All, nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"@class":"filter.MapEventFilter","mask":7}`, string(raw))
}

func TestEventMask_String(t *testing.T) {
	assert.Equal(t, "inserted|updated|deleted", All.String())
	assert.Equal(t, "inserted|deleted", KeySet.String())
	assert.Equal(t, "none", EventMask(0).String())
}

func TestFilterClass(t *testing.T) {
	filters := []Filter{Always(), Equal("a", 1), NotEqual("a", 1), Greater("a", 1), Less("a", 1), And(), Or(), Not(Always()), Events(All, nil)}
	for _, f := range filters {
		assert.NotEmpty(t, f.FilterClass())
	}
	assert.Equal(t, "filter.AnyFilter", Or(Always()).FilterClass())
}
