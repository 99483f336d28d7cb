// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package jdbi

import (
	"fmt"
	"reflect"
	"strings"
)

// enumInfo holds the constants of a registered enum type in declaration
// order, together with their names.
type enumInfo struct {
	typ    reflect.Type
	values []reflect.Value
	names  []string
}

// enumNameKey keys the memoized by-name matches: one entry per enum type and
// queried text, including case variants.
type enumNameKey struct {
	typ  reflect.Type
	name string
}

// RegisterEnum registers the constants of an enum type, in ordinal order.
// All values must share one type, and the type must implement fmt.Stringer;
// the by-name codec matches column text against the String results.
func (r *Registry) RegisterEnum(values ...any) error {
	if len(values) == 0 {
		return fmt.Errorf("need at least one enum constant, got none")
	}
	t := reflect.TypeOf(values[0])
	if t == nil {
		return fmt.Errorf("need enum constant, got nil")
	}
	if !t.Implements(reflect.TypeOf((*fmt.Stringer)(nil)).Elem()) {
		return fmt.Errorf("enum type %s does not implement fmt.Stringer", t.String())
	}
	info := &enumInfo{
		typ:    t,
		values: make([]reflect.Value, len(values)),
		names:  make([]string, len(values)),
	}
	seen := map[string]bool{}
	for i, value := range values {
		v := reflect.ValueOf(value)
		if v.Type() != t {
			return fmt.Errorf("enum constants have mixed types: %s and %s", t.String(), v.Type().String())
		}
		name := value.(fmt.Stringer).String()
		if seen[name] {
			return fmt.Errorf("enum type %s has duplicate constant name %q", t.String(), name)
		}
		seen[name] = true
		info.values[i] = v
		info.names[i] = name
	}
	r.mutex.Lock()
	defer r.mutex.Unlock()
	if _, ok := r.enums[t]; ok {
		return fmt.Errorf("enum type %q already registered", t.String())
	}
	r.enums[t] = info
	return nil
}

func (r *Registry) enumInfo(t reflect.Type) (*enumInfo, bool) {
	r.mutex.RLock()
	info, ok := r.enums[t]
	r.mutex.RUnlock()
	return info, ok
}

// enumFactory builds codecs for registered enum types. The ByName and
// ByOrdinal markers pick the representation; an unmarked enum type decodes
// by name.
func enumFactory(t QualifiedType, r *Registry) (Codec, bool, error) {
	byName := t.Has(ByName)
	byOrdinal := t.Has(ByOrdinal)
	info, registered := r.enumInfo(t.Base())
	if !registered {
		if byName || byOrdinal {
			return nil, false, fmt.Errorf("type %s not registered as enum", t.Base().String())
		}
		return nil, false, nil
	}
	if byName && byOrdinal {
		return nil, false, fmt.Errorf("type %s carries both %q and %q markers", t.Base().String(), ByName, ByOrdinal)
	}
	if rest := t.Without(ByName).Without(ByOrdinal); rest.Markers().Len() != 0 {
		// Leave other markers to factories that understand them.
		return nil, false, nil
	}
	if byOrdinal {
		return byOrdinalCodec(info), true, nil
	}
	return byNameCodec(info, r), true, nil
}

// byNameCodec decodes column text into the enum constant with that name:
// an exact match wins, otherwise a unique case-insensitive one. Empty or
// NULL columns read as absent. Matches are memoized per queried text, so
// repeated reads of the same spelling resolve without rescanning the
// constants.
func byNameCodec(info *enumInfo, r *Registry) Codec {
	return CodecFunc(func(column any) (any, bool, error) {
		if column == nil {
			return nil, false, nil
		}
		var name string
		switch c := column.(type) {
		case string:
			name = c
		case []byte:
			name = string(c)
		default:
			return nil, false, fmt.Errorf("cannot decode %s by name: need string, got %s",
				info.typ.String(), reflect.TypeOf(column).String())
		}
		if name == "" {
			return nil, false, nil
		}
		value, err := r.enumNames.GetOrCompute(enumNameKey{typ: info.typ, name: name}, func() (reflect.Value, error) {
			return info.match(name)
		})
		if err != nil {
			return nil, false, err
		}
		return value.Interface(), true, nil
	})
}

func (info *enumInfo) match(name string) (reflect.Value, error) {
	for i, candidate := range info.names {
		if candidate == name {
			return info.values[i], nil
		}
	}
	for i, candidate := range info.names {
		if strings.EqualFold(candidate, name) {
			return info.values[i], nil
		}
	}
	return reflect.Value{}, fmt.Errorf("no %s value could be matched to the name %q",
		info.typ.String(), name)
}

// byOrdinalCodec decodes a column integer into the enum constant at that
// position in the registered order.
func byOrdinalCodec(info *enumInfo) Codec {
	return CodecFunc(func(column any) (any, bool, error) {
		if column == nil {
			return nil, false, nil
		}
		v := reflect.ValueOf(column)
		var ordinal int
		switch {
		case v.CanInt():
			ordinal = int(v.Int())
		case v.CanUint():
			ordinal = int(v.Uint())
		default:
			return nil, false, fmt.Errorf("cannot decode %s by ordinal: need integer, got %s",
				info.typ.String(), v.Type().String())
		}
		if ordinal < 0 || ordinal >= len(info.values) {
			return nil, false, fmt.Errorf("no %s value could be matched to the ordinal %d",
				info.typ.String(), ordinal)
		}
		return info.values[ordinal].Interface(), true, nil
	})
}
