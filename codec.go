// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package jdbi

import (
	"fmt"
	"reflect"
)

// Codec decodes a raw column value into a property value. A nil returned
// value with present == false means the column read as absent (SQL NULL);
// codecs for non-nilable types report NULL this way rather than inventing a
// zero value.
type Codec interface {
	Decode(column any) (value any, present bool, err error)
}

// CodecFunc adapts a plain function to the Codec interface.
type CodecFunc func(column any) (any, bool, error)

// Decode implements Codec.
func (f CodecFunc) Decode(column any) (any, bool, error) {
	return f(column)
}

// Factory builds codecs for qualified types it recognizes. A factory that
// does not handle the given type returns ok == false, leaving the type to
// factories further down the chain.
type Factory interface {
	Codec(t QualifiedType, r *Registry) (codec Codec, ok bool, err error)
}

// FactoryFunc adapts a plain function to the Factory interface.
type FactoryFunc func(t QualifiedType, r *Registry) (Codec, bool, error)

// Codec implements Factory.
func (f FactoryFunc) Codec(t QualifiedType, r *Registry) (Codec, bool, error) {
	return f(t, r)
}

// RegisterFactory appends codec factories to the registry. Factories are
// consulted in registration order, before the built-in factories.
func (r *Registry) RegisterFactory(factories ...Factory) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	r.factories = append(r.factories, factories...)
}

// Codec returns the first codec any factory offers for the qualified type t.
// User factories run in registration order, then the non-null wrapper, the
// enum factories and the identity codec.
func (r *Registry) Codec(t QualifiedType) (Codec, error) {
	codec, ok, err := r.lookupCodec(t)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("no codec for type %s", t.String())
	}
	return codec, nil
}

func (r *Registry) lookupCodec(t QualifiedType) (Codec, bool, error) {
	r.mutex.RLock()
	user := r.factories
	r.mutex.RUnlock()
	for _, factory := range user {
		codec, ok, err := factory.Codec(t, r)
		if err != nil || ok {
			return codec, ok, err
		}
	}
	for _, factory := range builtinFactories {
		codec, ok, err := factory(t, r)
		if err != nil || ok {
			return codec, ok, err
		}
	}
	return nil, false, nil
}

// The built-in chain. Order matters: non-null strips its marker and
// re-enters the chain, so it must run before the factories it composes
// with. Assigned in init because nonNullFactory re-enters lookupCodec,
// which walks this slice.
var builtinFactories []FactoryFunc

func init() {
	builtinFactories = []FactoryFunc{
		nonNullFactory,
		enumFactory,
		identityFactory,
	}
}

// nonNullFactory handles types carrying the NonNull marker by delegating to
// the codec for the same type without the marker and turning absence into an
// error. It declines when no inner codec exists, so an unmatchable type is
// reported as unmatchable rather than as a NULL violation.
func nonNullFactory(t QualifiedType, r *Registry) (Codec, bool, error) {
	if !t.Has(NonNull) {
		return nil, false, nil
	}
	inner, ok, err := r.lookupCodec(t.Without(NonNull))
	if err != nil || !ok {
		return nil, ok, err
	}
	codec := CodecFunc(func(column any) (any, bool, error) {
		value, present, err := inner.Decode(column)
		if err != nil {
			return nil, false, err
		}
		if !present {
			return nil, false, fmt.Errorf("got NULL value for non-null type %s", t.Base().String())
		}
		return value, true, nil
	})
	return codec, true, nil
}

// identityFactory is the fallback: it handles any unqualified type by
// converting the column value to the base type. It never matches a type
// carrying markers; a leftover marker means some factory was expected to
// interpret it.
func identityFactory(t QualifiedType, r *Registry) (Codec, bool, error) {
	if t.Markers().Len() != 0 {
		return nil, false, nil
	}
	want := t.Base()
	codec := CodecFunc(func(column any) (any, bool, error) {
		if column == nil {
			return nil, false, nil
		}
		value, err := convertColumn(column, want)
		if err != nil {
			return nil, false, err
		}
		return value, true, nil
	})
	return codec, true, nil
}

// convertColumn converts a driver-supplied column value to the wanted
// property type, permitting only conversions that preserve the value.
func convertColumn(column any, want reflect.Type) (any, error) {
	v := reflect.ValueOf(column)
	if v.Type() == want {
		return column, nil
	}
	if v.Type().AssignableTo(want) {
		out := reflect.New(want).Elem()
		out.Set(v)
		return out.Interface(), nil
	}
	if !v.Type().ConvertibleTo(want) {
		return nil, fmt.Errorf("cannot decode column value: need %s, got %s", want.String(), v.Type().String())
	}
	// Converting a number to a string type produces the character with that
	// code point, silently mangling the value. Refuse it.
	if want.Kind() == reflect.String && v.Type().Kind() != reflect.String &&
		!v.Type().ConvertibleTo(reflect.TypeOf([]byte(nil))) {
		return nil, fmt.Errorf("cannot decode column value: need %s, got %s", want.String(), v.Type().String())
	}
	converted := v.Convert(want)
	// Round-trip integer conversions to catch overflow and sign loss.
	if isInteger(want.Kind()) && isInteger(v.Type().Kind()) {
		if back := converted.Convert(v.Type()); !back.Equal(v) {
			return nil, fmt.Errorf("cannot decode column value: %v overflows %s", column, want.String())
		}
	}
	return converted.Interface(), nil
}

func isInteger(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}
