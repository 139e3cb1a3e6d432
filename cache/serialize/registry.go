package serialize

import (
	"fmt"
	"reflect"
)

// TypeSpec describes the declared type a serializer is registered for, together
// with the predicate deciding which query types it covers.
type TypeSpec struct {
	name  string
	typ   reflect.Type
	match func(reflect.Type) bool
}

// SpecFor returns the spec for T. When T is an interface the spec covers every
// type implementing it; otherwise it covers T exactly.
func SpecFor[T any]() TypeSpec {
	return SpecOf(reflect.TypeFor[T]())
}

// SpecOf is the reflect.Type form of SpecFor.
func SpecOf(t reflect.Type) TypeSpec {
	if t == nil {
		return TypeSpec{}
	}
	return TypeSpec{name: typeName(t), typ: t, match: assignableTo(t)}
}

// typeName qualifies named types with their full import path so that types
// from different packages sharing a package name stay distinct.
func typeName(t reflect.Type) string {
	if t.PkgPath() != "" && t.Name() != "" {
		return t.PkgPath() + "." + t.Name()
	}
	return t.String()
}

// SpecMatching returns a spec with a custom match predicate.
func SpecMatching(name string, t reflect.Type, match func(reflect.Type) bool) TypeSpec {
	return TypeSpec{name: name, typ: t, match: match}
}

// Name returns the display name recorded alongside encoded payloads.
func (s TypeSpec) Name() string { return s.name }

// Type returns the declared type.
func (s TypeSpec) Type() reflect.Type { return s.typ }

// Matches reports whether q is the declared type or one of the types it covers.
func (s TypeSpec) Matches(q reflect.Type) bool {
	if q == nil || s.match == nil {
		return false
	}
	return s.match(q)
}

// IsZero reports whether the spec was left uninitialized.
func (s TypeSpec) IsZero() bool {
	return s.name == "" || s.match == nil
}

func (s TypeSpec) String() string { return s.name }

func assignableTo(declared reflect.Type) func(reflect.Type) bool {
	return func(q reflect.Type) bool {
		if q == declared {
			return true
		}
		if declared.Kind() == reflect.Interface {
			return q.Implements(declared)
		}
		return false
	}
}

type registration struct {
	spec       TypeSpec
	serializer Serializer
}

// Builder collects registrations during bootstrap. It is not safe for concurrent use.
type Builder struct {
	entries []registration
	frozen  bool
}

// NewBuilder constructs an empty Builder.
func NewBuilder() *Builder {
	return &Builder{}
}

// Register appends a spec/serializer pair. Registration order is the resolution
// order: the earliest matching registration wins.
func (b *Builder) Register(spec TypeSpec, serializer Serializer) error {
	if b.frozen {
		return ErrRegistryFrozen
	}
	if spec.IsZero() {
		return ErrInvalidSpec
	}
	if serializer == nil {
		return fmt.Errorf("%w: spec %s", ErrNilSerializer, spec.name)
	}
	b.entries = append(b.entries, registration{spec: spec, serializer: serializer})
	return nil
}

// Freeze ends bootstrap and returns the read-only Registry. Later calls to
// Register fail with ErrRegistryFrozen.
func (b *Builder) Freeze() *Registry {
	b.frozen = true
	entries := make([]registration, len(b.entries))
	copy(entries, b.entries)
	return &Registry{entries: entries}
}

// Registry answers serializer lookups. It is immutable and safe for concurrent use.
type Registry struct {
	entries []registration
}

// Resolve returns the first registered spec matching t.
func (r *Registry) Resolve(t reflect.Type) (TypeSpec, bool) {
	if e, ok := r.lookup(t); ok {
		return e.spec, true
	}
	return TypeSpec{}, false
}

// CanSerialize reports whether any registered spec matches t.
func (r *Registry) CanSerialize(t reflect.Type) bool {
	_, ok := r.lookup(t)
	return ok
}

// CanSerializeValue reports whether the dynamic type of v is serializable.
func (r *Registry) CanSerializeValue(v any) bool {
	return r.CanSerialize(reflect.TypeOf(v))
}

// Build returns the serializer to use for t, or an error matching
// ErrUnsupportedType when nothing matches.
func (r *Registry) Build(t reflect.Type) (Serializer, error) {
	e, ok := r.lookup(t)
	if !ok {
		return nil, unsupported(t)
	}
	return e.serializer, nil
}

// BuildFor is the generic form of Registry.Build.
func BuildFor[T any](r *Registry) (Serializer, error) {
	return r.Build(reflect.TypeFor[T]())
}

// Encode writes value using the serializer resolved from its dynamic type.
func (r *Registry) Encode(enc Encoder, value any) error {
	s, err := r.Build(reflect.TypeOf(value))
	if err != nil {
		return err
	}
	return s.Write(enc, value)
}

// Decode reads a value using the serializer resolved for t.
func (r *Registry) Decode(dec Decoder, t reflect.Type) (any, error) {
	s, err := r.Build(t)
	if err != nil {
		return nil, err
	}
	return s.Read(dec)
}

// Specs returns the registered specs in registration order.
func (r *Registry) Specs() []TypeSpec {
	specs := make([]TypeSpec, 0, len(r.entries))
	for _, e := range r.entries {
		specs = append(specs, e.spec)
	}
	return specs
}

func (r *Registry) lookup(t reflect.Type) (registration, bool) {
	if t == nil {
		return registration{}, false
	}
	for _, e := range r.entries {
		if e.spec.Matches(t) {
			return e, true
		}
	}
	return registration{}, false
}

func unsupported(t reflect.Type) error {
	if t == nil {
		return fmt.Errorf("%w: <nil>", ErrUnsupportedType)
	}
	return fmt.Errorf("%w: %s", ErrUnsupportedType, t)
}
