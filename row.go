// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package jdbi

import (
	"database/sql"
	"fmt"
)

// ScanRow reads the current row of rows into a fresh instance of the
// registered type of sample. Columns are matched to properties by name;
// columns with no matching property are ignored, and unmatched properties
// stay unset. The caller remains responsible for rows.Next and rows.Err.
func (r *Registry) ScanRow(rows *sql.Rows, sample any) (any, error) {
	table, err := r.Properties(sample)
	if err != nil {
		return nil, err
	}
	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("cannot read row into %s: %s", table.Type().String(), err)
	}

	raw := make([]any, len(columns))
	targets := make([]any, len(columns))
	for i := range raw {
		targets[i] = &raw[i]
	}
	if err := rows.Scan(targets...); err != nil {
		return nil, fmt.Errorf("cannot read row into %s: %s", table.Type().String(), err)
	}

	builder, err := table.Builder()
	if err != nil {
		return nil, err
	}
	for i, column := range columns {
		property, ok := table.Lookup(column)
		if !ok {
			continue
		}
		codec, err := r.Codec(property.Type())
		if err != nil {
			return nil, fmt.Errorf("cannot read column %q into %s: %s", column, table.Type().String(), err)
		}
		value, present, err := codec.Decode(raw[i])
		if err != nil {
			return nil, fmt.Errorf("cannot read column %q into %s: %s", column, table.Type().String(), err)
		}
		if !present {
			continue
		}
		if err := builder.Set(property.Name(), value); err != nil {
			return nil, err
		}
	}
	return builder.Build()
}

// Params reads the named properties off an instance of a registered type,
// in order, for use as statement arguments. An absent property yields a nil
// argument.
func (r *Registry) Params(instance any, names ...string) ([]any, error) {
	table, err := r.Properties(instance)
	if err != nil {
		return nil, err
	}
	args := make([]any, len(names))
	for i, name := range names {
		property, err := table.Property(name)
		if err != nil {
			return nil, err
		}
		value, present, err := property.Get(instance)
		if err != nil {
			return nil, err
		}
		if !present {
			continue
		}
		args[i] = value
	}
	return args, nil
}
