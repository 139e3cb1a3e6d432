package identity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrUnsupportedAttributeValue indicates an attribute value has a type the container cannot hold.
	ErrUnsupportedAttributeValue = errors.New("identity: unsupported attribute value type")
	// ErrEmptyAttributeName indicates an attribute was declared without a name.
	ErrEmptyAttributeName = errors.New("identity: attribute name is empty")
)

// Named is an attribute value identified only by its name.
type Named string

// Attribute is one name/value pair. Values are string, bool, int or Named.
type Attribute struct {
	Name  string
	Value any
}

// AttributeContainer is a read-only set of attributes.
type AttributeContainer interface {
	Attributes() []Attribute
	Get(name string) (any, bool)
	Len() int
}

// Attributes is an immutable AttributeContainer kept sorted by name.
type Attributes struct {
	entries []Attribute
}

// EmptyAttributes holds no attributes.
var EmptyAttributes = Attributes{}

// NewAttributes builds a container from attrs. A later attribute replaces an
// earlier one with the same name. Integer kinds are normalized to int.
func NewAttributes(attrs ...Attribute) (Attributes, error) {
	byName := make(map[string]any, len(attrs))
	for _, attr := range attrs {
		if attr.Name == "" {
			return Attributes{}, ErrEmptyAttributeName
		}
		value, err := normalizeAttributeValue(attr.Value)
		if err != nil {
			return Attributes{}, fmt.Errorf("attribute %q: %w", attr.Name, err)
		}
		byName[attr.Name] = value
	}

	entries := make([]Attribute, 0, len(byName))
	for name, value := range byName {
		entries = append(entries, Attribute{Name: name, Value: value})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return Attributes{entries: entries}, nil
}

// With returns a copy of a with name set to value.
func (a Attributes) With(name string, value any) (Attributes, error) {
	attrs := make([]Attribute, 0, len(a.entries)+1)
	attrs = append(attrs, a.entries...)
	attrs = append(attrs, Attribute{Name: name, Value: value})
	return NewAttributes(attrs...)
}

// Attributes returns a copy of the entries in name order.
func (a Attributes) Attributes() []Attribute {
	out := make([]Attribute, len(a.entries))
	copy(out, a.entries)
	return out
}

// Get returns the value stored under name.
func (a Attributes) Get(name string) (any, bool) {
	idx := sort.Search(len(a.entries), func(i int) bool { return a.entries[i].Name >= name })
	if idx < len(a.entries) && a.entries[idx].Name == name {
		return a.entries[idx].Value, true
	}
	return nil, false
}

func (a Attributes) Len() int { return len(a.entries) }

func (a Attributes) String() string {
	parts := make([]string, 0, len(a.entries))
	for _, e := range a.entries {
		parts = append(parts, fmt.Sprintf("%s=%v", e.Name, e.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// AttributesEqual compares two containers entry by entry.
func AttributesEqual(a, b AttributeContainer) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if a.Len() != b.Len() {
		return false
	}
	for _, attr := range a.Attributes() {
		other, ok := b.Get(attr.Name)
		if !ok || other != attr.Value {
			return false
		}
	}
	return true
}

func normalizeAttributeValue(v any) (any, error) {
	switch value := v.(type) {
	case string, bool, int, Named:
		return value, nil
	case int8:
		return int(value), nil
	case int16:
		return int(value), nil
	case int32:
		return int(value), nil
	case int64:
		return int(value), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedAttributeValue, v)
	}
}
