// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package jdbi discovers the named properties of record-shaped Go types and
binds them to a tabular column namespace. It reconciles three structurally
different construction protocols behind one interface: plain mutable structs
written field by field, immutable records built through a write-then-build
builder, and partially-settable records that track which properties were
explicitly written.

# Basics

Types are registered on a [Registry], which owns all discovery state. The
registry hands out the discovered property table of a type and fresh builders
for it:

	reg := jdbi.NewRegistry()
	err := reg.RegisterStruct(Person{})

	table, err := reg.Properties(Person{})
	b, err := reg.Builder(Person{})
	err = b.Set("name", "Fred")
	p, err := b.Build()

A direct-mutation record is a struct whose properties are named by `db` tags:

	type Person struct {
		Name string `db:"name"`
		ID   int    `db:"id"`
	}

An immutable record is registered with its read-only interface definition and
a builder constructor. Properties come from the definition's zero-argument
methods; the builder's setters are found by probing Set<Name> and then the
bare property name:

	type Train interface {
		Name() string
		Carriages() int
	}
	err := reg.RegisterImmutable((*Train)(nil), func() any { return &TrainBuilder{} })

A modifiable record is registered with a constructor for its live mutable
implementation. A <Name>IsSet method on the implementation makes the property
optional: a never-written property reads as absent, not as its zero value.

Discovery runs once per concrete type. The resulting property table is
immutable and cached on the registry for its lifetime, so repeated use costs
one map lookup.

# Qualified types and codecs

Properties carry a qualified type: the Go type of the property plus the set
of markers found on its accessors, e.g. `db:"id,nonnull"`. Value codecs are
selected by qualified type through a chain of factories; the built-in
factories handle the non-null enforcement wrapper, enum decoding by name or
ordinal, and the identity fallback. [Registry.ScanRow] and [Registry.Params]
connect the discovered accessors to database/sql rows and statement
parameters.
*/
package jdbi
