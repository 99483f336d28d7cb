// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package qualifier

import (
	"sort"
	"strings"
	"sync"

	"github.com/rigoleto/jdbi/internal/cache"
)

// Registry records which marker names count as qualifying markers. Markers
// found on an element that have not been registered here are ignored by the
// resolver.
type Registry struct {
	mutex      sync.RWMutex
	qualifying map[Marker]bool
}

// NewRegistry returns a registry with no qualifying markers.
func NewRegistry() *Registry {
	return &Registry{qualifying: map[Marker]bool{}}
}

// Qualify registers the given markers as qualifying. Registrations must
// happen before the first property discovery: the resolver cache is never
// refreshed, so results computed earlier do not see later registrations.
func (r *Registry) Qualify(markers ...Marker) {
	r.mutex.Lock()
	defer r.mutex.Unlock()
	for _, marker := range markers {
		r.qualifying[marker] = true
	}
}

// IsQualifying reports whether the marker has been registered as qualifying.
func (r *Registry) IsQualifying(marker Marker) bool {
	r.mutex.RLock()
	defer r.mutex.RUnlock()
	return r.qualifying[marker]
}

// Element is a single annotated element as seen by the resolver: the
// candidate marker names found on it, plus a key identifying the element in
// the resolver cache, e.g. "Person.Name".
type Element struct {
	Key        string
	Candidates []Marker
}

// Resolver returns the set of qualifying markers present on a group of
// annotated elements. Results are cached for the lifetime of the owning
// registry, keyed by the element for a single element and by the unordered
// set of elements for a group.
type Resolver struct {
	registry *Registry
	cache    *cache.Cache[string, Set]
}

// NewResolver returns a resolver backed by the given registry.
func NewResolver(registry *Registry) *Resolver {
	return &Resolver{registry: registry, cache: cache.New[string, Set]()}
}

// Qualifiers returns the union of the qualifying markers found across the
// given elements.
func (r *Resolver) Qualifiers(elements ...Element) Set {
	set, _ := r.cache.GetOrCompute(groupKey(elements), func() (Set, error) {
		var markers []Marker
		for _, element := range elements {
			for _, candidate := range element.Candidates {
				if r.registry.IsQualifying(candidate) {
					markers = append(markers, candidate)
				}
			}
		}
		return NewSet(markers...), nil
	})
	return set
}

// groupKey builds the cache key for an element group. The key does not
// depend on the order the elements are given in.
func groupKey(elements []Element) string {
	if len(elements) == 1 {
		return elements[0].Key
	}
	keys := make([]string, len(elements))
	for i, element := range elements {
		keys[i] = element.Key
	}
	sort.Strings(keys)
	return strings.Join(keys, "\n")
}
