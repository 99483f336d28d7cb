// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package propinfo

import (
	"fmt"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/rigoleto/jdbi/internal/qualifier"
	"github.com/rigoleto/jdbi/internal/typeres"
)

var errorInterface = reflect.TypeOf((*error)(nil)).Elem()

// RecordSpec describes a registered builder-based record: the read-only
// interface definition its properties are discovered from, the constructor
// producing a fresh builder (immutable records) or a fresh live instance
// (modifiable records), the markers declared per property, and an optional
// generic definition with the concrete type arguments of this registration.
type RecordSpec struct {
	Defn       reflect.Type
	New        func() any
	Markers    map[string][]qualifier.Marker
	Definition *typeres.Definition
	Args       []reflect.Type
}

// Immutable discovers the properties of an immutable record: properties come
// from the zero-argument methods of the read-only interface definition, and
// construction goes through a builder located by probing for conventional
// setter names. Every property of a pure immutable build must be provided,
// so all properties report as set.
func Immutable(spec RecordSpec, cfg Config) (*Table, error) {
	accessors, err := scanDefn(spec.Defn)
	if err != nil {
		return nil, err
	}
	binding, err := bindDefinition(spec)
	if err != nil {
		return nil, err
	}

	builderSample := spec.New()
	if builderSample == nil {
		return nil, fmt.Errorf("builder constructor for %s returned nil", spec.Defn.String())
	}
	builderType := reflect.TypeOf(builderSample)
	build, err := findBuild(builderType, spec.Defn)
	if err != nil {
		return nil, err
	}

	properties := map[string]*Property{}
	for _, accessor := range accessors {
		declared, err := declaredType(spec, binding, accessor)
		if err != nil {
			return nil, err
		}
		setter, err := findBuilderSetter(builderType, accessor.property, declared, spec.Defn)
		if err != nil {
			return nil, err
		}
		properties[accessor.property] = &Property{
			name:  accessor.property,
			typ:   qualifier.Qualify(declared, propertyMarkers(spec, cfg, accessor)),
			get:   recordGetter(spec.Defn, accessor.method.Name, accessor.property),
			set:   recordSetter(setter, accessor.property, spec.Defn),
			isSet: alwaysSet,
		}
	}

	return newTable(spec.Defn, properties, func(table *Table) (Builder, error) {
		target, err := construct(spec.New, builderType, spec.Defn)
		if err != nil {
			return nil, err
		}
		return &recordBuilder{table: table, target: target, build: build}, nil
	}), nil
}

// Modifiable discovers the properties of a partially-settable record:
// properties come from the interface definition like the immutable shape,
// but setters live on the registered mutable implementation, a conventional
// <Name>IsSet probe supplies the is-set predicate, and building returns the
// live instance that received the writes.
func Modifiable(spec RecordSpec, cfg Config) (*Table, error) {
	accessors, err := scanDefn(spec.Defn)
	if err != nil {
		return nil, err
	}
	binding, err := bindDefinition(spec)
	if err != nil {
		return nil, err
	}

	implSample := spec.New()
	if implSample == nil {
		return nil, fmt.Errorf("constructor for %s returned nil", spec.Defn.String())
	}
	implType := reflect.TypeOf(implSample)
	if !implType.Implements(spec.Defn) {
		return nil, fmt.Errorf("%s does not implement %s", implType.String(), spec.Defn.String())
	}

	properties := map[string]*Property{}
	for _, accessor := range accessors {
		declared, err := declaredType(spec, binding, accessor)
		if err != nil {
			return nil, err
		}
		upper := upperFirst(accessor.property)
		setter, ok := implType.MethodByName("Set" + upper)
		if !ok || setter.Type.NumIn() != 2 {
			return nil, fmt.Errorf("cannot find setter Set%s for property %q of %s on %s",
				upper, accessor.property, spec.Defn.String(), implType.String())
		}
		if !declared.AssignableTo(setter.Type.In(1)) {
			return nil, fmt.Errorf("setter Set%s of %s takes %s, not %s",
				upper, implType.String(), setter.Type.In(1).String(), declared.String())
		}

		p := &Property{
			name:  accessor.property,
			typ:   qualifier.Qualify(declared, propertyMarkers(spec, cfg, accessor)),
			get:   recordGetter(spec.Defn, accessor.method.Name, accessor.property),
			set:   recordSetter(setter, accessor.property, spec.Defn),
			isSet: alwaysSet,
		}
		// A property without an IsSet probe is not optional.
		if probe, ok := implType.MethodByName(upper + "IsSet"); ok && isSetProbe(probe) {
			property := accessor.property
			p.isSet = func(v reflect.Value) (bool, error) {
				m := v.MethodByName(probe.Name)
				if !m.IsValid() {
					return false, fmt.Errorf("cannot read property %q: no method %s on %s",
						property, probe.Name, v.Type().String())
				}
				return m.Call(nil)[0].Bool(), nil
			}
		}
		properties[accessor.property] = p
	}

	return newTable(spec.Defn, properties, func(table *Table) (Builder, error) {
		target, err := construct(spec.New, implType, spec.Defn)
		if err != nil {
			return nil, err
		}
		// Build hands back the same live instance the writes went to.
		return &recordBuilder{table: table, target: target, build: func(target reflect.Value) (any, error) {
			return target.Interface(), nil
		}}, nil
	}), nil
}

// defnAccessor is a property accessor method found on a record definition.
type defnAccessor struct {
	method   reflect.Method
	property string
}

// scanDefn collects the property accessors of a record definition: its
// exported zero-argument, single-result methods.
func scanDefn(defn reflect.Type) ([]defnAccessor, error) {
	if defn == nil {
		return nil, fmt.Errorf("cannot discover properties: got nil definition")
	}
	if defn.Kind() != reflect.Interface {
		return nil, fmt.Errorf("cannot discover properties of %s: need interface definition, got %s",
			defn.String(), defn.Kind())
	}

	var accessors []defnAccessor
	seen := map[string]string{}
	for i := 0; i < defn.NumMethod(); i++ {
		method := defn.Method(i)
		if method.PkgPath != "" {
			continue
		}
		if method.Type.NumIn() != 0 || method.Type.NumOut() != 1 {
			continue
		}
		property := propertyName(method.Name)
		if prev, ok := seen[property]; ok {
			return nil, fmt.Errorf("methods %q and %q of %s map to the same property %q",
				prev, method.Name, defn.String(), property)
		}
		seen[property] = method.Name
		accessors = append(accessors, defnAccessor{method: method, property: property})
	}
	if len(accessors) == 0 {
		return nil, fmt.Errorf("no property accessors found in %s", defn.String())
	}
	return accessors, nil
}

// propertyName derives a property name from an accessor method name: a
// conventional Get or Is prefix is chopped and the first rune is lowered.
func propertyName(method string) string {
	name := method
	for _, prefix := range []string{"Get", "Is"} {
		if rest := strings.TrimPrefix(name, prefix); rest != name && startsUpper(rest) {
			name = rest
			break
		}
	}
	return lowerFirst(name)
}

func startsUpper(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func lowerFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToLower(r)) + s[size:]
}

func upperFirst(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// bindDefinition binds the registration's generic definition, when one was
// supplied, to its concrete type arguments.
func bindDefinition(spec RecordSpec) (*typeres.Binding, error) {
	if spec.Definition == nil {
		return nil, nil
	}
	binding, err := spec.Definition.Bind(spec.Args...)
	if err != nil {
		return nil, fmt.Errorf("cannot bind definition of %s: %s", spec.Defn.String(), err)
	}
	return binding, nil
}

// declaredType returns the declared type of a property. When the
// registration carries a generic definition the declared type expression is
// resolved against the concrete arguments and cross-checked against the
// accessor's signature.
func declaredType(spec RecordSpec, binding *typeres.Binding, accessor defnAccessor) (reflect.Type, error) {
	concrete := accessor.method.Type.Out(0)
	if binding == nil {
		return concrete, nil
	}
	resolved, found, err := binding.ResolveProperty(accessor.property)
	if err != nil {
		return nil, fmt.Errorf("cannot resolve type of property %q of %s: %s",
			accessor.property, spec.Defn.String(), err)
	}
	if !found {
		return concrete, nil
	}
	if resolved != concrete {
		return nil, fmt.Errorf("resolved type %s for property %q of %s does not match accessor type %s",
			resolved.String(), accessor.property, spec.Defn.String(), concrete.String())
	}
	return resolved, nil
}

// propertyMarkers resolves the markers declared for a property at
// registration time through the shared qualifier resolver.
func propertyMarkers(spec RecordSpec, cfg Config, accessor defnAccessor) qualifier.Set {
	return cfg.Resolver.Qualifiers(qualifier.Element{
		Key:        spec.Defn.String() + "." + accessor.method.Name,
		Candidates: spec.Markers[accessor.property],
	})
}

// recordGetter captures the accessor handle reading a property off a live
// record instance.
func recordGetter(defn reflect.Type, methodName, property string) func(reflect.Value) (reflect.Value, error) {
	return func(v reflect.Value) (reflect.Value, error) {
		if !v.Type().Implements(defn) {
			return reflect.Value{}, fmt.Errorf("cannot read property %q: %s does not implement %s",
				property, v.Type().String(), defn.String())
		}
		return v.MethodByName(methodName).Call(nil)[0], nil
	}
}

// recordSetter captures the setter handle writing a property through a
// located setter method. The value is checked against the setter's actual
// parameter, which the relaxed probing pass may have matched loosely.
func recordSetter(setter reflect.Method, property string, defn reflect.Type) func(reflect.Value, any) error {
	index := setter.Index
	want := setter.Type.In(1)
	return func(target reflect.Value, value any) error {
		v, err := coerce(value, want, property, defn)
		if err != nil {
			return err
		}
		out := target.Method(index).Call([]reflect.Value{v})
		if len(out) > 0 {
			if last := out[len(out)-1]; last.Type() == errorInterface && !last.IsNil() {
				return fmt.Errorf("cannot set property %q of %s: %s", property, defn.String(), last.Interface().(error))
			}
		}
		return nil
	}
}

// findBuild locates the Build method finalizing a builder. Build may return
// the finished record alone or with an error; a non-nil error is handed back
// to the caller untouched.
func findBuild(builderType reflect.Type, defn reflect.Type) (func(reflect.Value) (any, error), error) {
	method, ok := builderType.MethodByName("Build")
	if !ok || method.Type.NumIn() != 1 {
		return nil, fmt.Errorf("no Build method found on %s for %s", builderType.String(), defn.String())
	}
	switch method.Type.NumOut() {
	case 1:
	case 2:
		if method.Type.Out(1) != errorInterface {
			return nil, fmt.Errorf("Build method of %s must return (%s, error), got second result %s",
				builderType.String(), defn.String(), method.Type.Out(1).String())
		}
	default:
		return nil, fmt.Errorf("Build method of %s must return one or two results, got %d",
			builderType.String(), method.Type.NumOut())
	}
	if !method.Type.Out(0).AssignableTo(defn) {
		return nil, fmt.Errorf("Build method of %s returns %s, not %s",
			builderType.String(), method.Type.Out(0).String(), defn.String())
	}

	index := method.Index
	return func(target reflect.Value) (any, error) {
		out := target.Method(index).Call(nil)
		if len(out) == 2 && !out[1].IsNil() {
			// The record's own validation failure is returned as is.
			return nil, out[1].Interface().(error)
		}
		return out[0].Interface(), nil
	}, nil
}

// findBuilderSetter locates the builder method writing a property. The
// conventional Set<Name> spelling is probed first, then the bare property
// name, both requiring a parameter the declared type assigns to; a second,
// relaxed pass accepts any single-parameter method with either name.
func findBuilderSetter(builderType reflect.Type, property string, declared reflect.Type, defn reflect.Type) (reflect.Method, error) {
	upper := upperFirst(property)
	tried := []string{"Set" + upper, upper}
	for _, name := range tried {
		if m, ok := builderType.MethodByName(name); ok && m.Type.NumIn() == 2 && declared.AssignableTo(m.Type.In(1)) {
			return m, nil
		}
	}
	for _, name := range tried {
		if m, ok := builderType.MethodByName(name); ok && m.Type.NumIn() == 2 {
			return m, nil
		}
	}
	return reflect.Method{}, fmt.Errorf("cannot find builder setter for property %q of %s on %s (tried %s)",
		property, defn.String(), builderType.String(), strings.Join(tried, ", "))
}

// isSetProbe reports whether a method has the shape of an is-set probe. A
// probe with any other shape is treated as absent, matching the always-set
// fallback.
func isSetProbe(method reflect.Method) bool {
	return method.Type.NumIn() == 1 && method.Type.NumOut() == 1 && method.Type.Out(0).Kind() == reflect.Bool
}

// construct runs a registered constructor and checks it produced the type
// seen at discovery time.
func construct(newFn func() any, want reflect.Type, defn reflect.Type) (reflect.Value, error) {
	instance := newFn()
	if instance == nil {
		return reflect.Value{}, fmt.Errorf("constructor for %s returned nil", defn.String())
	}
	v := reflect.ValueOf(instance)
	if v.Type() != want {
		return reflect.Value{}, fmt.Errorf("constructor for %s returned %s, not %s",
			defn.String(), v.Type().String(), want.String())
	}
	return v, nil
}

// recordBuilder accumulates writes against a builder or live record and
// finalizes them according to the owning shape's protocol.
type recordBuilder struct {
	table  *Table
	target reflect.Value
	build  func(target reflect.Value) (any, error)
}

func (b *recordBuilder) Set(name string, value any) error {
	p, err := b.table.Property(name)
	if err != nil {
		return err
	}
	return p.set(b.target, value)
}

func (b *recordBuilder) Build() (any, error) {
	return b.build(b.target)
}
