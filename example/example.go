// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package example

import (
	"database/sql"
	"fmt"

	"github.com/rigoleto/jdbi"

	_ "github.com/mattn/go-sqlite3"
)

type Employee struct {
	Name string `db:"name,nonnull"`
	ID   int64  `db:"id"`
	Team string `db:"team"`
}

// Ticket is an immutable record: reads go through the interface, writes go
// through ticketBuilder and finish with Build.
type Ticket interface {
	GetTitle() string
	Assignee() string
	IsOpen() bool
}

type ticket struct {
	title    string
	assignee string
	open     bool
}

func (t ticket) GetTitle() string { return t.title }
func (t ticket) Assignee() string { return t.assignee }
func (t ticket) IsOpen() bool     { return t.open }

type ticketBuilder struct {
	ticket ticket
}

func (b *ticketBuilder) SetTitle(title string) *ticketBuilder {
	b.ticket.title = title
	return b
}

func (b *ticketBuilder) SetAssignee(assignee string) *ticketBuilder {
	b.ticket.assignee = assignee
	return b
}

func (b *ticketBuilder) SetOpen(open bool) *ticketBuilder {
	b.ticket.open = open
	return b
}

func (b *ticketBuilder) Build() (Ticket, error) {
	if b.ticket.title == "" {
		return nil, fmt.Errorf("ticket has no title")
	}
	return b.ticket, nil
}

func example() {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		panic(err)
	}
	defer db.Close()

	_, err = db.Exec(`
	CREATE TABLE person (
		name text,
		id integer,
		team text
	);
	CREATE TABLE ticket (
		title text,
		assignee text,
		open integer
	)`)
	if err != nil {
		panic(err)
	}

	registry := jdbi.NewRegistry()
	err = registry.RegisterStruct(Employee{})
	if err != nil {
		panic(err)
	}
	err = registry.RegisterImmutable((*Ticket)(nil), func() any { return &ticketBuilder{} })
	if err != nil {
		panic(err)
	}

	// SQLite stores booleans as integers, so teach the registry how to
	// decode them.
	registry.RegisterFactory(jdbi.FactoryFunc(func(t jdbi.QualifiedType, r *jdbi.Registry) (jdbi.Codec, bool, error) {
		if !t.Equal(jdbi.TypeOf(false)) {
			return nil, false, nil
		}
		return jdbi.CodecFunc(func(column any) (any, bool, error) {
			if column == nil {
				return nil, false, nil
			}
			n, ok := column.(int64)
			if !ok {
				return nil, false, fmt.Errorf("need integer for bool column, got %T", column)
			}
			return n != 0, true, nil
		}), true, nil
	}))

	var al = Employee{"Alastair", 1, "engineering"}
	var ed = Employee{"Ed", 2, "engineering"}
	var marco = Employee{"Marco", 3, "engineering"}
	var pedro = Employee{"Pedro", 4, "management"}
	var people = []Employee{ed, al, marco, pedro}
	for _, p := range people {
		args, err := registry.Params(p, "name", "id", "team")
		if err != nil {
			panic(err)
		}
		_, err = db.Exec("INSERT INTO person (name, id, team) VALUES (?, ?, ?)", args...)
		if err != nil {
			panic(err)
		}
	}

	_, err = db.Exec("INSERT INTO ticket VALUES ('fix the build', 'Ed', 1)")
	if err != nil {
		panic(err)
	}

	// Read the engineers back into fresh Employee instances.
	rows, err := db.Query("SELECT name, id, team FROM person WHERE team = 'engineering' ORDER BY id")
	if err != nil {
		panic(err)
	}
	for rows.Next() {
		instance, err := registry.ScanRow(rows, Employee{})
		if err != nil {
			panic(err)
		}
		p := instance.(*Employee)
		fmt.Printf("%s is on the engineering team.\n", p.Name)
	}
	if err := rows.Err(); err != nil {
		panic(err)
	}
	rows.Close()

	// Immutable records come back the same way: the row lands in the
	// builder and Build validates the finished ticket.
	rows, err = db.Query("SELECT title, assignee, open FROM ticket")
	if err != nil {
		panic(err)
	}
	defer rows.Close()
	for rows.Next() {
		instance, err := registry.ScanRow(rows, (*Ticket)(nil))
		if err != nil {
			panic(err)
		}
		t := instance.(Ticket)
		fmt.Printf("%q is assigned to %s\n", t.GetTitle(), t.Assignee())
	}
	if err := rows.Err(); err != nil {
		panic(err)
	}
}
