// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

/*
Package propinfo contains the property discovery strategies and the builder
protocol. As much as possible, reflection code is limited to this package. It
contains the logic for discovering the named properties of the three record
shapes, for reading property values back out of live instances, and for
constructing new instances through named property writes.
*/
package propinfo
