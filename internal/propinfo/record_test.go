// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package propinfo

import (
	"errors"
	"reflect"

	. "gopkg.in/check.v1"

	"github.com/rigoleto/jdbi/internal/qualifier"
	"github.com/rigoleto/jdbi/internal/typeres"
)

type recordSuite struct{}

var _ = Suite(&recordSuite{})

// Train is an immutable record: reads go through the interface, writes go
// through trainBuilder.
type Train interface {
	GetName() string
	Seats() int
	IsExpress() bool
}

type train struct {
	name    string
	seats   int
	express bool
}

func (t *train) GetName() string { return t.name }
func (t *train) Seats() int      { return t.seats }
func (t *train) IsExpress() bool { return t.express }

var errTrainName = errors.New("train has no name")

// trainBuilder mixes the setter spellings on purpose: a conventional
// chainable Set<Name>, a bare property name, and a plain void setter.
type trainBuilder struct {
	train train
}

func (b *trainBuilder) SetName(name string) *trainBuilder {
	b.train.name = name
	return b
}

func (b *trainBuilder) Seats(seats int) *trainBuilder {
	b.train.seats = seats
	return b
}

func (b *trainBuilder) SetExpress(express bool) {
	b.train.express = express
}

func (b *trainBuilder) Build() (Train, error) {
	if b.train.name == "" {
		return nil, errTrainName
	}
	t := b.train
	return &t, nil
}

func newTrainBuilder() any { return &trainBuilder{} }

func trainSpec() RecordSpec {
	return RecordSpec{
		Defn:    reflect.TypeOf((*Train)(nil)).Elem(),
		New:     newTrainBuilder,
		Markers: map[string][]qualifier.Marker{},
	}
}

func (s *recordSuite) TestImmutableDiscovery(c *C) {
	table, err := Immutable(trainSpec(), testConfig())
	c.Assert(err, IsNil)
	c.Assert(table.Type(), Equals, reflect.TypeOf((*Train)(nil)).Elem())
	// Get and Is prefixes are chopped off the accessor names.
	c.Assert(table.Names(), DeepEquals, []string{"express", "name", "seats"})

	name, err := table.Property("name")
	c.Assert(err, IsNil)
	c.Assert(name.Type().Base(), Equals, reflect.TypeOf(""))
}

func (s *recordSuite) TestImmutableRoundTrip(c *C) {
	table, err := Immutable(trainSpec(), testConfig())
	c.Assert(err, IsNil)

	builder, err := table.Builder()
	c.Assert(err, IsNil)
	c.Assert(builder.Set("name", "Flying Scotsman"), IsNil)
	c.Assert(builder.Set("seats", 400), IsNil)
	c.Assert(builder.Set("express", true), IsNil)

	instance, err := builder.Build()
	c.Assert(err, IsNil)

	built, ok := instance.(Train)
	c.Assert(ok, Equals, true)
	c.Assert(built.GetName(), Equals, "Flying Scotsman")
	c.Assert(built.Seats(), Equals, 400)
	c.Assert(built.IsExpress(), Equals, true)

	// Reads through the property table see the same values, and every
	// immutable property reads as present.
	name, _ := table.Lookup("name")
	value, present, err := name.Get(built)
	c.Assert(err, IsNil)
	c.Assert(present, Equals, true)
	c.Assert(value, Equals, "Flying Scotsman")
}

// A validation failure raised by the record's own Build comes back to the
// caller as the very error the record returned, not wrapped.
func (s *recordSuite) TestImmutableBuildErrorIdentity(c *C) {
	table, err := Immutable(trainSpec(), testConfig())
	c.Assert(err, IsNil)

	builder, err := table.Builder()
	c.Assert(err, IsNil)
	c.Assert(builder.Set("seats", 400), IsNil)

	_, err = builder.Build()
	c.Assert(err, Equals, errTrainName)
}

func (s *recordSuite) TestImmutableSetErrors(c *C) {
	table, err := Immutable(trainSpec(), testConfig())
	c.Assert(err, IsNil)

	builder, err := table.Builder()
	c.Assert(err, IsNil)

	err = builder.Set("speed", 125)
	c.Assert(err, ErrorMatches, `type "propinfo.Train" has no property "speed" \(have "express", "name", "seats"\)`)

	err = builder.Set("seats", "lots")
	c.Assert(err, ErrorMatches, `cannot set property "seats" of propinfo.Train: need int, got string`)
}

func (s *recordSuite) TestImmutableGetErrors(c *C) {
	table, err := Immutable(trainSpec(), testConfig())
	c.Assert(err, IsNil)

	name, _ := table.Lookup("name")
	_, _, err = name.Get(5)
	c.Assert(err, ErrorMatches, `cannot read property "name": int does not implement propinfo.Train`)
}

func (s *recordSuite) TestImmutableMarkers(c *C) {
	spec := trainSpec()
	spec.Markers["name"] = []qualifier.Marker{"nonnull", "json"}

	table, err := Immutable(spec, testConfig("nonnull"))
	c.Assert(err, IsNil)

	name, _ := table.Lookup("name")
	c.Assert(name.Type().Has("nonnull"), Equals, true)
	c.Assert(name.Type().Has("json"), Equals, false)

	seats, _ := table.Lookup("seats")
	c.Assert(seats.Type().Markers().Len(), Equals, 0)
}

// Distance exercises the relaxed setter pass: the accessor declares int but
// the only setter takes int64, so the loose match wins and values are
// checked against the setter's actual parameter.
type Distance interface {
	Meters() int
}

type distance struct {
	meters int64
}

func (d distance) Meters() int { return int(d.meters) }

type distanceBuilder struct {
	meters int64
}

func (b *distanceBuilder) SetMeters(meters int64) { b.meters = meters }

// Build also covers the single-result protocol.
func (b *distanceBuilder) Build() Distance { return distance{meters: b.meters} }

func (s *recordSuite) TestImmutableRelaxedSetter(c *C) {
	spec := RecordSpec{
		Defn:    reflect.TypeOf((*Distance)(nil)).Elem(),
		New:     func() any { return &distanceBuilder{} },
		Markers: map[string][]qualifier.Marker{},
	}
	table, err := Immutable(spec, testConfig())
	c.Assert(err, IsNil)

	builder, err := table.Builder()
	c.Assert(err, IsNil)

	// The located setter takes int64, so that is what Set accepts.
	err = builder.Set("meters", 42)
	c.Assert(err, ErrorMatches, `cannot set property "meters" of propinfo.Distance: need int64, got int`)
	c.Assert(builder.Set("meters", int64(42)), IsNil)

	instance, err := builder.Build()
	c.Assert(err, IsNil)
	c.Assert(instance.(Distance).Meters(), Equals, 42)
}

// Broken has no setter for its one property under either spelling.
type Broken interface {
	Thing() string
}

type brokenBuilder struct{}

func (b *brokenBuilder) Build() (Broken, error) { return nil, nil }

func (s *recordSuite) TestImmutableMissingSetter(c *C) {
	spec := RecordSpec{
		Defn:    reflect.TypeOf((*Broken)(nil)).Elem(),
		New:     func() any { return &brokenBuilder{} },
		Markers: map[string][]qualifier.Marker{},
	}
	_, err := Immutable(spec, testConfig())
	c.Assert(err, ErrorMatches,
		`cannot find builder setter for property "thing" of propinfo.Broken on \*propinfo.brokenBuilder \(tried SetThing, Thing\)`)
}

func (s *recordSuite) TestImmutableMissingBuild(c *C) {
	spec := RecordSpec{
		Defn:    reflect.TypeOf((*Broken)(nil)).Elem(),
		New:     func() any { return &struct{}{} },
		Markers: map[string][]qualifier.Marker{},
	}
	_, err := Immutable(spec, testConfig())
	c.Assert(err, ErrorMatches, `no Build method found on \*struct \{\} for propinfo.Broken`)
}

func (s *recordSuite) TestScanDefnErrors(c *C) {
	spec := trainSpec()
	spec.Defn = reflect.TypeOf(0)
	_, err := Immutable(spec, testConfig())
	c.Assert(err, ErrorMatches, "cannot discover properties of int: need interface definition, got int")

	type Empty interface{}
	spec.Defn = reflect.TypeOf((*Empty)(nil)).Elem()
	_, err = Immutable(spec, testConfig())
	c.Assert(err, ErrorMatches, "no property accessors found in propinfo.Empty")

	type Clash interface {
		GetName() string
		Name() string
	}
	spec.Defn = reflect.TypeOf((*Clash)(nil)).Elem()
	_, err = Immutable(spec, testConfig())
	c.Assert(err, ErrorMatches, `methods "GetName" and "Name" of propinfo.Clash map to the same property "name"`)
}

func (s *recordSuite) TestPropertyName(c *C) {
	c.Check(propertyName("GetName"), Equals, "name")
	c.Check(propertyName("Name"), Equals, "name")
	c.Check(propertyName("IsExpress"), Equals, "express")
	// Is and Get only count as prefixes when an upper-case rune follows.
	c.Check(propertyName("Issue"), Equals, "issue")
	c.Check(propertyName("Getaway"), Equals, "getaway")
	c.Check(propertyName("Is"), Equals, "is")
}

// Wagon is a modifiable record: setters live on the implementation and the
// label property carries an is-set probe.
type Wagon interface {
	Label() string
	Capacity() int
}

type wagon struct {
	label    string
	labelSet bool
	capacity int
}

func (w *wagon) Label() string { return w.label }

func (w *wagon) SetLabel(label string) error {
	if label == "" {
		return errors.New("empty label")
	}
	w.label = label
	w.labelSet = true
	return nil
}

func (w *wagon) LabelIsSet() bool { return w.labelSet }

func (w *wagon) Capacity() int { return w.capacity }

func (w *wagon) SetCapacity(capacity int) { w.capacity = capacity }

func wagonSpec() RecordSpec {
	return RecordSpec{
		Defn:    reflect.TypeOf((*Wagon)(nil)).Elem(),
		New:     func() any { return &wagon{} },
		Markers: map[string][]qualifier.Marker{},
	}
}

func (s *recordSuite) TestModifiableRoundTrip(c *C) {
	table, err := Modifiable(wagonSpec(), testConfig())
	c.Assert(err, IsNil)
	c.Assert(table.Names(), DeepEquals, []string{"capacity", "label"})

	builder, err := table.Builder()
	c.Assert(err, IsNil)
	c.Assert(builder.Set("label", "W123"), IsNil)
	c.Assert(builder.Set("capacity", 60), IsNil)

	instance, err := builder.Build()
	c.Assert(err, IsNil)

	built, ok := instance.(*wagon)
	c.Assert(ok, Equals, true)
	c.Assert(built.label, Equals, "W123")
	c.Assert(built.capacity, Equals, 60)
}

// A probed property that was never written reads as absent; a property
// without a probe always reads as present. An explicitly written value is
// present even if it is later interrogated through the interface.
func (s *recordSuite) TestModifiableAbsence(c *C) {
	table, err := Modifiable(wagonSpec(), testConfig())
	c.Assert(err, IsNil)

	label, _ := table.Lookup("label")
	capacity, _ := table.Lookup("capacity")

	fresh := &wagon{}
	_, present, err := label.Get(fresh)
	c.Assert(err, IsNil)
	c.Assert(present, Equals, false)

	value, present, err := capacity.Get(fresh)
	c.Assert(err, IsNil)
	c.Assert(present, Equals, true)
	c.Assert(value, Equals, 0)

	c.Assert(fresh.SetLabel("W9"), IsNil)
	value, present, err = label.Get(fresh)
	c.Assert(err, IsNil)
	c.Assert(present, Equals, true)
	c.Assert(value, Equals, "W9")
}

func (s *recordSuite) TestModifiableUnknownProperty(c *C) {
	table, err := Modifiable(wagonSpec(), testConfig())
	c.Assert(err, IsNil)

	builder, err := table.Builder()
	c.Assert(err, IsNil)
	err = builder.Set("weight", 12)
	c.Assert(err, ErrorMatches, `type "propinfo.Wagon" has no property "weight" \(have "capacity", "label"\)`)
}

// A setter's own error return is surfaced, wrapped with the property it was
// rejected for.
func (s *recordSuite) TestModifiableSetterError(c *C) {
	table, err := Modifiable(wagonSpec(), testConfig())
	c.Assert(err, IsNil)

	builder, err := table.Builder()
	c.Assert(err, IsNil)
	err = builder.Set("label", "")
	c.Assert(err, ErrorMatches, `cannot set property "label" of propinfo.Wagon: empty label`)
}

type Caboose interface {
	Color() string
}

type caboose struct{}

func (c caboose) Color() string { return "" }

func (s *recordSuite) TestModifiableMissingSetter(c *C) {
	spec := RecordSpec{
		Defn:    reflect.TypeOf((*Caboose)(nil)).Elem(),
		New:     func() any { return caboose{} },
		Markers: map[string][]qualifier.Marker{},
	}
	_, err := Modifiable(spec, testConfig())
	c.Assert(err, ErrorMatches,
		`cannot find setter SetColor for property "color" of propinfo.Caboose on propinfo.caboose`)
}

func (s *recordSuite) TestModifiableNotImplementing(c *C) {
	spec := wagonSpec()
	spec.New = func() any { return caboose{} }
	_, err := Modifiable(spec, testConfig())
	c.Assert(err, ErrorMatches, "propinfo.caboose does not implement propinfo.Wagon")
}

// Box carries a generic definition: the declared type of value comes from
// the definition's type parameter and must agree with the accessor.
type Box interface {
	Value() int64
	Label() string
}

type box struct {
	value int64
	label string
}

func (b box) Value() int64  { return b.value }
func (b box) Label() string { return b.label }

type boxBuilder struct {
	box box
}

func (b *boxBuilder) SetValue(value int64) { b.box.value = value }
func (b *boxBuilder) SetLabel(label string) {
	b.box.label = label
}
func (b *boxBuilder) Build() (Box, error) { return b.box, nil }

func boxSpec(arg reflect.Type) RecordSpec {
	def := typeres.NewDefinition("Box", "T").
		Declare("value", typeres.Param("T"))
	return RecordSpec{
		Defn:       reflect.TypeOf((*Box)(nil)).Elem(),
		New:        func() any { return &boxBuilder{} },
		Markers:    map[string][]qualifier.Marker{},
		Definition: def,
		Args:       []reflect.Type{arg},
	}
}

func (s *recordSuite) TestGenericDefinition(c *C) {
	table, err := Immutable(boxSpec(reflect.TypeOf(int64(0))), testConfig())
	c.Assert(err, IsNil)

	value, _ := table.Lookup("value")
	c.Assert(value.Type().Base(), Equals, reflect.TypeOf(int64(0)))

	// Properties the definition does not declare keep the accessor's type.
	label, _ := table.Lookup("label")
	c.Assert(label.Type().Base(), Equals, reflect.TypeOf(""))
}

func (s *recordSuite) TestGenericDefinitionMismatch(c *C) {
	_, err := Immutable(boxSpec(reflect.TypeOf("")), testConfig())
	c.Assert(err, ErrorMatches,
		`resolved type string for property "value" of propinfo.Box does not match accessor type int64`)
}

func (s *recordSuite) TestGenericDefinitionArityError(c *C) {
	spec := boxSpec(reflect.TypeOf(int64(0)))
	spec.Args = nil
	_, err := Immutable(spec, testConfig())
	c.Assert(err, ErrorMatches,
		`cannot bind definition of propinfo.Box: definition "Box" declares 1 type parameter\(s\), got 0 argument\(s\)`)
}
