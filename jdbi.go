// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package jdbi

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
	"sync"

	"github.com/rigoleto/jdbi/internal/cache"
	"github.com/rigoleto/jdbi/internal/propinfo"
	"github.com/rigoleto/jdbi/internal/qualifier"
	"github.com/rigoleto/jdbi/internal/typeres"
)

// Marker is an opaque tag attached to a property accessor. The core only
// ever tests marker membership; the meaning of a marker belongs to the codec
// factory that recognizes it.
type Marker = qualifier.Marker

// QualifiedType is a base Go type plus the set of markers attached to the
// accessors it was discovered on. Codecs are selected by qualified type.
type QualifiedType = qualifier.Qualified

// Property is a named, typed, gettable attribute of a record type.
type Property = propinfo.Property

// Table is the immutable property table of a concrete type.
type Table = propinfo.Table

// Builder accumulates named property writes and finalizes them into an
// instance. Builders are single-owner and must not be shared across
// goroutines.
type Builder = propinfo.Builder

// Definition describes a possibly generic record definition for the type
// resolver. See [NewDefinition].
type Definition = typeres.Definition

// TypeExpr is the declared type of a property in a [Definition]: a concrete
// type ([ConcreteType]) or a reference to a type parameter ([Param]).
type TypeExpr = typeres.Expr

// The markers recognized by the built-in codec factories. They are
// registered as qualifying on every new registry.
const (
	// NonNull marks a property whose column must never read as NULL.
	NonNull Marker = "nonnull"
	// ByName marks an enum property stored as its constant name.
	ByName Marker = "byname"
	// ByOrdinal marks an enum property stored as its constant position.
	ByOrdinal Marker = "byordinal"
)

// NewDefinition returns a generic record definition with the given name and
// ordered type parameters, for use with [WithDefinition].
func NewDefinition(name string, params ...string) *Definition {
	return typeres.NewDefinition(name, params...)
}

// Param returns the type expression referencing a type parameter of the
// definition it is declared on.
func Param(name string) TypeExpr {
	return typeres.Param(name)
}

// ConcreteType returns the type expression for the concrete type of sample.
func ConcreteType(sample any) TypeExpr {
	return typeres.Concrete(reflect.TypeOf(sample))
}

// TypeOf returns the qualified type of sample with the given markers, for
// looking up codecs with [Registry.Codec].
func TypeOf(sample any, markers ...Marker) QualifiedType {
	return qualifier.Qualify(reflect.TypeOf(sample), qualifier.NewSet(markers...))
}

// variant is the discovery shape a type was registered with.
type variant int8

const (
	directVariant variant = iota
	immutableVariant
	modifiableVariant
)

func (v variant) String() string {
	switch v {
	case directVariant:
		return "direct-mutation"
	case immutableVariant:
		return "immutable"
	case modifiableVariant:
		return "modifiable"
	}
	return fmt.Sprintf("unknown variant %d", int8(v))
}

// registration records which variant applies to a type, plus the record spec
// for the builder-based variants.
type registration struct {
	variant variant
	spec    propinfo.RecordSpec
}

// Registry owns all discovery state: the per-variant property table caches,
// the qualifier resolver and its cache, the codec factories and the enum
// constants. Registrations should complete before the registry is shared;
// the caches are append-only and live until the registry is discarded.
type Registry struct {
	markers  *qualifier.Registry
	resolver *qualifier.Resolver

	mutex     sync.RWMutex
	types     map[reflect.Type]*registration
	factories []Factory
	enums     map[reflect.Type]*enumInfo

	// One property table cache per discovery variant, so differently shaped
	// types can never collide on a cache key.
	directTables     *cache.Cache[reflect.Type, *propinfo.Table]
	immutableTables  *cache.Cache[reflect.Type, *propinfo.Table]
	modifiableTables *cache.Cache[reflect.Type, *propinfo.Table]

	// enumNames memoizes by-name enum matches per (enum type, queried text).
	enumNames *cache.Cache[enumNameKey, reflect.Value]
}

// NewRegistry returns a registry with the built-in markers registered as
// qualifying and no types, factories or enums.
func NewRegistry() *Registry {
	markers := qualifier.NewRegistry()
	markers.Qualify(NonNull, ByName, ByOrdinal)
	return &Registry{
		markers:          markers,
		resolver:         qualifier.NewResolver(markers),
		types:            map[reflect.Type]*registration{},
		enums:            map[reflect.Type]*enumInfo{},
		directTables:     cache.New[reflect.Type, *propinfo.Table](),
		immutableTables:  cache.New[reflect.Type, *propinfo.Table](),
		modifiableTables: cache.New[reflect.Type, *propinfo.Table](),
		enumNames:        cache.New[enumNameKey, reflect.Value](),
	}
}

// Qualify registers marker names as qualifying. Markers must be qualified
// before the types carrying them are first discovered: qualifier sets are
// cached on first computation and never refreshed.
func (r *Registry) Qualify(markers ...Marker) {
	r.markers.Qualify(markers...)
}

func (r *Registry) config() propinfo.Config {
	return propinfo.Config{Markers: r.markers, Resolver: r.resolver}
}

// RegisterStruct registers plain struct types as direct-mutation records.
// Their properties are the exported fields carrying `db` tags.
func (r *Registry) RegisterStruct(samples ...any) error {
	for _, sample := range samples {
		t := reflect.TypeOf(sample)
		if t == nil {
			return fmt.Errorf("need struct, got nil")
		}
		if t.Kind() == reflect.Pointer {
			t = t.Elem()
		}
		if t.Kind() != reflect.Struct {
			return fmt.Errorf("need struct, got %s", t.Kind())
		}
		if t.Name() == "" {
			return fmt.Errorf("cannot use anonymous struct")
		}
		if err := r.register(t, &registration{variant: directVariant}); err != nil {
			return err
		}
	}
	return nil
}

// RegisterImmutable registers an immutable record: defn must be a nil
// pointer to the read-only interface definition, e.g. (*Train)(nil), and
// newBuilder must construct a fresh builder for it.
func (r *Registry) RegisterImmutable(defn any, newBuilder func() any, options ...RegisterOption) error {
	return r.registerRecord(immutableVariant, defn, newBuilder, options)
}

// RegisterModifiable registers a partially-settable record: defn is the
// read-only interface definition and construct must return a fresh live
// instance of the mutable implementation.
func (r *Registry) RegisterModifiable(defn any, construct func() any, options ...RegisterOption) error {
	return r.registerRecord(modifiableVariant, defn, construct, options)
}

func (r *Registry) registerRecord(v variant, defn any, construct func() any, options []RegisterOption) error {
	t, err := defnType(defn)
	if err != nil {
		return err
	}
	if construct == nil {
		return fmt.Errorf("need constructor for %s, got nil", t.String())
	}
	reg := &registration{
		variant: v,
		spec: propinfo.RecordSpec{
			Defn:    t,
			New:     construct,
			Markers: map[string][]qualifier.Marker{},
		},
	}
	for _, option := range options {
		if err := option(reg); err != nil {
			return err
		}
	}
	return r.register(t, reg)
}

func defnType(defn any) (reflect.Type, error) {
	t := reflect.TypeOf(defn)
	if t == nil {
		return nil, fmt.Errorf("need pointer to interface definition, got nil")
	}
	if t.Kind() != reflect.Pointer || t.Elem().Kind() != reflect.Interface {
		return nil, fmt.Errorf("need pointer to interface definition, got %s", t.String())
	}
	return t.Elem(), nil
}

func (r *Registry) register(t reflect.Type, reg *registration) error {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if prev, ok := r.types[t]; ok {
		return fmt.Errorf("type %q already registered as %s record", t.String(), prev.variant)
	}
	r.types[t] = reg
	return nil
}

// RegisterOption customizes a record registration.
type RegisterOption func(*registration) error

// WithMarkers attaches marker names to a property of the record being
// registered. Interface definitions cannot carry tags, so markers for the
// builder-based variants are declared here.
func WithMarkers(property string, markers ...Marker) RegisterOption {
	return func(reg *registration) error {
		reg.spec.Markers[property] = append(reg.spec.Markers[property], markers...)
		return nil
	}
}

// WithDefinition attaches a generic definition and the concrete type
// arguments of this registration. Discovery resolves each declared property
// type against the arguments and cross-checks it with the accessor
// signature.
func WithDefinition(def *Definition, argSamples ...any) RegisterOption {
	return func(reg *registration) error {
		args := make([]reflect.Type, len(argSamples))
		for i, sample := range argSamples {
			t := reflect.TypeOf(sample)
			if t == nil {
				return fmt.Errorf("nil type argument sample for definition %q", def.Name())
			}
			args[i] = t
		}
		reg.spec.Definition = def
		reg.spec.Args = args
		return nil
	}
}

// Properties returns the property table of the registered type of sample,
// discovering and caching it on first request. The table for a given
// concrete type is computed once, is immutable, and is shared by every
// caller thereafter.
func (r *Registry) Properties(sample any) (*Table, error) {
	t, reg, err := r.lookupType(sample)
	if err != nil {
		return nil, err
	}
	switch reg.variant {
	case immutableVariant:
		return r.immutableTables.GetOrCompute(t, func() (*propinfo.Table, error) {
			return propinfo.Immutable(reg.spec, r.config())
		})
	case modifiableVariant:
		return r.modifiableTables.GetOrCompute(t, func() (*propinfo.Table, error) {
			return propinfo.Modifiable(reg.spec, r.config())
		})
	}
	return r.directTables.GetOrCompute(t, func() (*propinfo.Table, error) {
		return propinfo.Struct(t, r.config())
	})
}

// Builder returns a fresh builder for one construction of the registered
// type of sample.
func (r *Registry) Builder(sample any) (Builder, error) {
	table, err := r.Properties(sample)
	if err != nil {
		return nil, err
	}
	return table.Builder()
}

// lookupType normalizes a type sample and finds its registration.
func (r *Registry) lookupType(sample any) (reflect.Type, *registration, error) {
	t := reflect.TypeOf(sample)
	if t == nil {
		return nil, nil, fmt.Errorf("need registered type sample, got nil")
	}
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	r.mutex.RLock()
	reg, ok := r.types[t]
	r.mutex.RUnlock()
	if !ok {
		return nil, nil, r.typeMissingError(t)
	}
	return t, reg, nil
}

// typeMissingError names the missing type and the types that are registered.
func (r *Registry) typeMissingError(t reflect.Type) error {
	r.mutex.RLock()
	names := make([]string, 0, len(r.types))
	for registered := range r.types {
		names = append(names, registered.String())
	}
	r.mutex.RUnlock()
	if len(names) == 0 {
		return fmt.Errorf("type %q not registered", t.String())
	}
	// Sort for consistent error messages.
	sort.Strings(names)
	// "%s" is used instead of %q to correctly print double quotes within the
	// joined string.
	return fmt.Errorf(`type %q not registered (have "%s")`, t.String(), strings.Join(names, `", "`))
}
