// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package typeres resolves the declared types of record properties against
concrete instantiations of generic record definitions. A definition lists the
ordered type parameters of a record shape, the type expression declared for
each of its properties, and, for definitions that extend another, how the
parent's parameters are bound in terms of its own. Binding a definition to
concrete type arguments yields a pure, deterministic resolver: the same
binding always resolves a property to the same concrete type, and a parameter
that cannot be resolved is reported as a configuration error at discovery
time rather than at use time.
*/
package typeres

import (
	"fmt"
	"reflect"
)

// Expr is the declared type of a property: either a concrete Go type or a
// reference to a type parameter of the owning definition.
type Expr struct {
	concrete reflect.Type
	param    string
}

// Concrete returns the expression for a concrete Go type.
func Concrete(t reflect.Type) Expr {
	return Expr{concrete: t}
}

// Param returns the expression referencing the named type parameter of the
// definition it is declared on.
func Param(name string) Expr {
	return Expr{param: name}
}

// String returns the expression in a form suitable for error messages.
func (e Expr) String() string {
	if e.concrete != nil {
		return e.concrete.String()
	}
	return e.param
}

// Definition describes a possibly generic record definition: its ordered
// type parameters, the type expression declared for each property, and the
// definition it extends, if any.
type Definition struct {
	name       string
	params     []string
	properties map[string]Expr
	parent     *Definition
	parentArgs []Expr
}

// NewDefinition returns a definition with the given name and ordered type
// parameters.
func NewDefinition(name string, params ...string) *Definition {
	return &Definition{
		name:       name,
		params:     params,
		properties: map[string]Expr{},
	}
}

// Declare records the declared type expression of a property of this
// definition. It returns the definition for chaining.
func (d *Definition) Declare(property string, expr Expr) *Definition {
	d.properties[property] = expr
	return d
}

// Extend records that this definition extends parent, binding each of the
// parent's type parameters, in order, to an expression over this
// definition's own parameters. It returns the definition for chaining.
func (d *Definition) Extend(parent *Definition, args ...Expr) *Definition {
	d.parent = parent
	d.parentArgs = args
	return d
}

// Name returns the definition's name.
func (d *Definition) Name() string {
	return d.name
}

// Binding is a definition resolved against concrete type arguments.
type Binding struct {
	def *Definition
	env map[string]reflect.Type
}

// Bind resolves the definition against the given concrete type arguments,
// which must match the definition's parameters in number and order.
func (d *Definition) Bind(args ...reflect.Type) (*Binding, error) {
	if len(args) != len(d.params) {
		return nil, fmt.Errorf("definition %q declares %d type parameter(s), got %d argument(s)",
			d.name, len(d.params), len(args))
	}
	env := make(map[string]reflect.Type, len(args))
	for i, param := range d.params {
		if args[i] == nil {
			return nil, fmt.Errorf("nil type argument for parameter %q of definition %q", param, d.name)
		}
		env[param] = args[i]
	}
	return &Binding{def: d, env: env}, nil
}

// Resolve resolves a type expression declared directly on the bound
// definition.
func (b *Binding) Resolve(expr Expr) (reflect.Type, error) {
	return resolveExpr(b.def, b.env, expr)
}

// ResolveProperty resolves the declared type of the named property, walking
// up the definition chain and substituting concrete arguments for type
// parameters at every level. It reports found=false if no definition in the
// chain declares the property.
func (b *Binding) ResolveProperty(property string) (t reflect.Type, found bool, err error) {
	def, env := b.def, b.env
	for def != nil {
		if expr, ok := def.properties[property]; ok {
			t, err := resolveExpr(def, env, expr)
			return t, err == nil, err
		}
		if def.parent == nil {
			break
		}
		if len(def.parentArgs) != len(def.parent.params) {
			return nil, false, fmt.Errorf("definition %q binds %d of the %d type parameter(s) of %q",
				def.name, len(def.parentArgs), len(def.parent.params), def.parent.name)
		}
		parentEnv := make(map[string]reflect.Type, len(def.parentArgs))
		for i, arg := range def.parentArgs {
			t, err := resolveExpr(def, env, arg)
			if err != nil {
				return nil, false, err
			}
			parentEnv[def.parent.params[i]] = t
		}
		def, env = def.parent, parentEnv
	}
	return nil, false, nil
}

func resolveExpr(owner *Definition, env map[string]reflect.Type, expr Expr) (reflect.Type, error) {
	if expr.concrete != nil {
		return expr.concrete, nil
	}
	t, ok := env[expr.param]
	if !ok {
		return nil, fmt.Errorf("cannot resolve type parameter %q of definition %q", expr.param, owner.name)
	}
	return t, nil
}
