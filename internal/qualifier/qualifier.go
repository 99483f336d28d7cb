// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package qualifier implements marker tags and qualified types. A marker is an
opaque tag attached to a property accessor; the core only ever tests
membership, it never interprets a marker's meaning. A qualified type pairs a
Go type with the set of markers found on the accessors it was discovered on,
and is the key used to select between competing value codecs.
*/
package qualifier

import (
	"fmt"
	"reflect"
	"sort"
	"strings"
)

// Marker is an opaque tag attached to a property accessor.
type Marker string

// Set is an immutable, order-independent collection of markers.
type Set struct {
	markers map[Marker]bool
}

// NewSet returns a set holding the given markers.
func NewSet(markers ...Marker) Set {
	m := make(map[Marker]bool, len(markers))
	for _, marker := range markers {
		m[marker] = true
	}
	return Set{markers: m}
}

// Has reports whether the marker is a member of the set.
func (s Set) Has(marker Marker) bool {
	return s.markers[marker]
}

// Len returns the number of markers in the set.
func (s Set) Len() int {
	return len(s.markers)
}

// Markers returns the members of the set sorted by name.
func (s Set) Markers() []Marker {
	markers := make([]Marker, 0, len(s.markers))
	for marker := range s.markers {
		markers = append(markers, marker)
	}
	sort.Slice(markers, func(i, j int) bool { return markers[i] < markers[j] })
	return markers
}

// Without returns a copy of the set with the given marker removed.
func (s Set) Without(marker Marker) Set {
	m := make(map[Marker]bool, len(s.markers))
	for member := range s.markers {
		if member != marker {
			m[member] = true
		}
	}
	return Set{markers: m}
}

// Equal reports whether both sets hold exactly the same markers.
func (s Set) Equal(other Set) bool {
	if len(s.markers) != len(other.markers) {
		return false
	}
	for marker := range s.markers {
		if !other.markers[marker] {
			return false
		}
	}
	return true
}

// Key returns a canonical string for the set. Two sets have the same key if
// and only if they are equal.
func (s Set) Key() string {
	markers := s.Markers()
	names := make([]string, len(markers))
	for i, marker := range markers {
		names[i] = string(marker)
	}
	return strings.Join(names, ",")
}

// String returns the set in a form suitable for error messages.
func (s Set) String() string {
	return "[" + s.Key() + "]"
}

// Qualified pairs a base Go type with the markers attached to the accessors
// it was discovered on. Two Qualified values are equal if and only if the
// base types are identical and the marker sets are equal.
type Qualified struct {
	base    reflect.Type
	markers Set
}

// Qualify returns the qualified form of base with the given markers.
func Qualify(base reflect.Type, markers Set) Qualified {
	return Qualified{base: base, markers: markers}
}

// Base returns the underlying Go type.
func (q Qualified) Base() reflect.Type {
	return q.base
}

// Markers returns the marker set of the qualified type.
func (q Qualified) Markers() Set {
	return q.markers
}

// Has reports whether the marker qualifies this type.
func (q Qualified) Has(marker Marker) bool {
	return q.markers.Has(marker)
}

// Without returns the same base type with the given marker stripped.
func (q Qualified) Without(marker Marker) Qualified {
	return Qualified{base: q.base, markers: q.markers.Without(marker)}
}

// Equal reports whether both qualified types have identical base types and
// equal marker sets.
func (q Qualified) Equal(other Qualified) bool {
	return q.base == other.base && q.markers.Equal(other.markers)
}

// String returns the qualified type in a form suitable for error messages,
// e.g. `int` or `int [nonnull]`.
func (q Qualified) String() string {
	if q.base == nil {
		return "<nil>" + q.markersSuffix()
	}
	return q.base.String() + q.markersSuffix()
}

func (q Qualified) markersSuffix() string {
	if q.markers.Len() == 0 {
		return ""
	}
	return fmt.Sprintf(" %s", q.markers)
}
