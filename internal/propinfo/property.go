// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package propinfo

import (
	"fmt"
	"reflect"
	"sort"
	"strings"

	"github.com/rigoleto/jdbi/internal/qualifier"
)

// Config carries the registry collaborators the discovery strategies depend
// on: the qualifier resolver and the registry of qualifying marker names.
type Config struct {
	Markers  *qualifier.Registry
	Resolver *qualifier.Resolver
}

// Property is a named, typed, gettable attribute of a record type. A
// property is immutable once discovered and uniquely identified by its name
// within the owning type's table.
type Property struct {
	name string
	typ  qualifier.Qualified

	// get, set and isSet are the accessor handles captured at discovery
	// time. They are never replaced after the property is published.
	get   func(instance reflect.Value) (reflect.Value, error)
	set   func(target reflect.Value, value any) error
	isSet func(instance reflect.Value) (bool, error)
}

// Name returns the property name.
func (p *Property) Name() string {
	return p.name
}

// Type returns the qualified type of the property.
func (p *Property) Type() qualifier.Qualified {
	return p.typ
}

// Get reads the property from an instance of the owning type. present is
// false when the property was never set on the instance; an absent property
// reads as absence, not as the type's zero value.
func (p *Property) Get(instance any) (value any, present bool, err error) {
	v := reflect.ValueOf(instance)
	if !v.IsValid() {
		return nil, false, fmt.Errorf("cannot read property %q: got nil instance", p.name)
	}
	set, err := p.isSet(v)
	if err != nil {
		return nil, false, err
	}
	if !set {
		return nil, false, nil
	}
	out, err := p.get(v)
	if err != nil {
		return nil, false, err
	}
	return out.Interface(), true, nil
}

// alwaysSet is the is-set predicate of properties that cannot be absent.
func alwaysSet(reflect.Value) (bool, error) {
	return true, nil
}

// Table is the immutable property table of a concrete type. It is built once
// per concrete type and shared by every caller thereafter; only the data of
// the instances it reads and writes changes across construction calls.
type Table struct {
	typ        reflect.Type
	properties map[string]*Property
	names      []string
	newBuilder func() (Builder, error)
}

// Type returns the concrete type the table was discovered for.
func (t *Table) Type() reflect.Type {
	return t.typ
}

// Names returns the property names sorted alphabetically.
func (t *Table) Names() []string {
	return t.names
}

// Properties returns all properties of the table, ordered by name.
func (t *Table) Properties() []*Property {
	properties := make([]*Property, len(t.names))
	for i, name := range t.names {
		properties[i] = t.properties[name]
	}
	return properties
}

// Lookup returns the named property, if the table has one.
func (t *Table) Lookup(name string) (*Property, bool) {
	p, ok := t.properties[name]
	return p, ok
}

// Property returns the named property. An unknown name is an error naming
// the property and the properties the type does have.
func (t *Table) Property(name string) (*Property, error) {
	p, ok := t.properties[name]
	if !ok {
		if len(t.names) == 0 {
			return nil, fmt.Errorf("type %q has no property %q", t.typ.String(), name)
		}
		// "%s" is used instead of %q to correctly print double quotes within
		// the joined string.
		return nil, fmt.Errorf(`type %q has no property %q (have "%s")`,
			t.typ.String(), name, strings.Join(t.names, `", "`))
	}
	return p, nil
}

// Builder returns a fresh builder for one construction of the table's type.
// Builders are single-owner: they must not be shared across goroutines.
func (t *Table) Builder() (Builder, error) {
	return t.newBuilder()
}

// Builder accumulates named property writes and finalizes them into an
// instance of the owning table's type. Set fails if the name is not a known
// property or the value is incompatible with the property's declared type.
// Build fails if the target shape's completion invariant is unmet, and
// otherwise returns the finished instance.
type Builder interface {
	Set(name string, value any) error
	Build() (any, error)
}

// newTable assembles a table from discovered properties.
func newTable(typ reflect.Type, properties map[string]*Property, newBuilder func(*Table) (Builder, error)) *Table {
	names := make([]string, 0, len(properties))
	for name := range properties {
		names = append(names, name)
	}
	sort.Strings(names)
	t := &Table{typ: typ, properties: properties, names: names}
	t.newBuilder = func() (Builder, error) { return newBuilder(t) }
	return t
}

// coerce converts a builder-supplied value into a reflect.Value assignable
// to want. A nil value is permitted for types that can hold nil.
func coerce(value any, want reflect.Type, property string, owner reflect.Type) (reflect.Value, error) {
	if value == nil {
		switch want.Kind() {
		case reflect.Pointer, reflect.Interface, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
			return reflect.Zero(want), nil
		}
		return reflect.Value{}, fmt.Errorf("cannot set property %q of %s: need %s, got nil",
			property, owner.String(), want.String())
	}
	v := reflect.ValueOf(value)
	if !v.Type().AssignableTo(want) {
		return reflect.Value{}, fmt.Errorf("cannot set property %q of %s: need %s, got %s",
			property, owner.String(), want.String(), v.Type().String())
	}
	return v, nil
}
