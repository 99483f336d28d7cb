// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package propinfo

import (
	"fmt"
	"reflect"

	"github.com/rigoleto/jdbi/internal/qualifier"
)

// Struct discovers the properties of a direct-mutation record: a struct type
// whose tagged exported fields are its properties. Construction instantiates
// the struct and writes each set property straight into the live instance.
func Struct(t reflect.Type, cfg Config) (*Table, error) {
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot discover properties: need struct, got %s", t.Kind())
	}

	properties := map[string]*Property{}
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		// Fields without a "db" tag are not properties.
		tag := field.Tag.Get("db")
		if tag == "" {
			continue
		}
		if !field.IsExported() {
			return nil, fmt.Errorf("field %q of struct %s not exported", field.Name, t.Name())
		}

		name, omitEmpty, candidates, err := parseTag(tag, cfg.Markers)
		if err != nil {
			return nil, fmt.Errorf("cannot parse tag for field %s.%s: %s", t.Name(), field.Name, err)
		}
		if dupe, ok := properties[name]; ok {
			return nil, fmt.Errorf("struct %s has two fields tagged %q", t.Name(), dupe.name)
		}

		markers := cfg.Resolver.Qualifiers(qualifier.Element{
			Key:        t.String() + "." + field.Name,
			Candidates: candidates,
		})

		index := i
		p := &Property{
			name: name,
			typ:  qualifier.Qualify(field.Type, markers),
			get: func(v reflect.Value) (reflect.Value, error) {
				v, err := structInstance(v, t, name)
				if err != nil {
					return reflect.Value{}, err
				}
				return v.Field(index), nil
			},
			set: func(target reflect.Value, value any) error {
				v, err := coerce(value, field.Type, name, t)
				if err != nil {
					return err
				}
				target.Field(index).Set(v)
				return nil
			},
		}
		if omitEmpty {
			// An omitempty property holding its zero value reads as absent.
			p.isSet = func(v reflect.Value) (bool, error) {
				v, err := structInstance(v, t, name)
				if err != nil {
					return false, err
				}
				return !v.Field(index).IsZero(), nil
			}
		} else {
			p.isSet = alwaysSet
		}
		properties[name] = p
	}
	if len(properties) == 0 {
		return nil, fmt.Errorf(`no "db" tags found in struct %q`, t.Name())
	}

	return newTable(t, properties, func(table *Table) (Builder, error) {
		return &structBuilder{table: table, instance: reflect.New(t).Elem()}, nil
	}), nil
}

// structInstance checks that v holds an instance of the struct the property
// belongs to, dereferencing a pointer if needed.
func structInstance(v reflect.Value, t reflect.Type, property string) (reflect.Value, error) {
	v = reflect.Indirect(v)
	if !v.IsValid() || v.Type() != t {
		got := "nil"
		if v.IsValid() {
			got = v.Type().String()
		}
		return reflect.Value{}, fmt.Errorf("cannot read property %q: need %s, got %s",
			property, t.String(), got)
	}
	return v, nil
}

// structBuilder writes properties directly into a live struct instance.
type structBuilder struct {
	table    *Table
	instance reflect.Value
}

func (b *structBuilder) Set(name string, value any) error {
	p, err := b.table.Property(name)
	if err != nil {
		return err
	}
	return p.set(b.instance, value)
}

// Build returns a pointer to the mutated instance.
func (b *structBuilder) Build() (any, error) {
	return b.instance.Addr().Interface(), nil
}
