// Package filter provides the serializable filters used to scope map
// listeners. Filters are plain values: equal filters serialize to equal bytes
// and therefore share one server registration.
package filter

// Filter is any filter the cluster can evaluate against a cache entry
type Filter interface {
	FilterClass() string
}

// Extractor names the entry attribute a comparison reads
type Extractor struct {
	Class string `json:"@class" msgpack:"@class" cbor:"@class"`
	Name  string `json:"name" msgpack:"name" cbor:"name"`
}

// Field extracts the named property of the entry value.
func Field(name string) Extractor {
	return Extractor{Class: "extractor.UniversalExtractor", Name: name}
}

// AlwaysFilter matches every entry
type AlwaysFilter struct {
	Class string `json:"@class" msgpack:"@class" cbor:"@class"`
}

func (f AlwaysFilter) FilterClass() string { return f.Class }

// Always returns a filter matching every entry.
func Always() AlwaysFilter {
	return AlwaysFilter{Class: "filter.AlwaysFilter"}
}

// ComparisonFilter compares an extracted attribute with a constant
type ComparisonFilter struct {
	Class     string    `json:"@class" msgpack:"@class" cbor:"@class"`
	Extractor Extractor `json:"extractor" msgpack:"extractor" cbor:"extractor"`
	Value     any       `json:"value" msgpack:"value" cbor:"value"`
}

func (f ComparisonFilter) FilterClass() string { return f.Class }

func comparison(class, field string, value any) ComparisonFilter {
	return ComparisonFilter{Class: class, Extractor: Field(field), Value: value}
}

// Equal matches entries whose field equals value.
func Equal(field string, value any) ComparisonFilter {
	return comparison("filter.EqualsFilter", field, value)
}

// NotEqual matches entries whose field differs from value.
func NotEqual(field string, value any) ComparisonFilter {
	return comparison("filter.NotEqualsFilter", field, value)
}

// Greater matches entries whose field is greater than value.
func Greater(field string, value any) ComparisonFilter {
	return comparison("filter.GreaterFilter", field, value)
}

// Less matches entries whose field is less than value.
func Less(field string, value any) ComparisonFilter {
	return comparison("filter.LessFilter", field, value)
}

// LogicalFilter combines filters
type LogicalFilter struct {
	Class   string   `json:"@class" msgpack:"@class" cbor:"@class"`
	Filters []Filter `json:"filters" msgpack:"filters" cbor:"filters"`
}

func (f LogicalFilter) FilterClass() string { return f.Class }

// And matches entries matching every filter.
func And(filters ...Filter) LogicalFilter {
	return LogicalFilter{Class: "filter.AllFilter", Filters: filters}
}

// Or matches entries matching at least one filter.
func Or(filters ...Filter) LogicalFilter {
	return LogicalFilter{Class: "filter.AnyFilter", Filters: filters}
}

// NotFilter negates a filter
type NotFilter struct {
	Class  string `json:"@class" msgpack:"@class" cbor:"@class"`
	Filter Filter `json:"filter" msgpack:"filter" cbor:"filter"`
}

func (f NotFilter) FilterClass() string { return f.Class }

// Not matches entries not matching f.
func Not(f Filter) NotFilter {
	return NotFilter{Class: "filter.NotFilter", Filter: f}
}
