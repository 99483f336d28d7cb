// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package propinfo

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/rigoleto/jdbi/internal/qualifier"
)

// This expression should be aligned with the column names accepted by the
// statement binding layer.
var validPropNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses a "db" tag and returns the property name, whether the tag
// carries the "omitempty" option, and the marker names attached to it. Flags
// other than "omitempty" must be registered qualifying markers.
func parseTag(tag string, markers *qualifier.Registry) (string, bool, []qualifier.Marker, error) {
	options := strings.Split(tag, ",")

	var omitEmpty bool
	var candidates []qualifier.Marker
	if len(options) > 1 {
		for _, flag := range options[1:] {
			if flag == "omitempty" {
				omitEmpty = true
				continue
			}
			if !markers.IsQualifying(qualifier.Marker(flag)) {
				return "", false, nil, fmt.Errorf("unsupported flag %q in tag %q", flag, tag)
			}
			candidates = append(candidates, qualifier.Marker(flag))
		}
	}

	name := options[0]
	if len(name) == 0 {
		return "", false, nil, fmt.Errorf("empty db tag")
	}

	if !validPropNameRx.MatchString(name) {
		return "", false, nil, fmt.Errorf("invalid property name in 'db' tag: %q", name)
	}

	return name, omitEmpty, candidates, nil
}
