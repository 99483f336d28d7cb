// Copyright 2024 the jdbi authors.
// Licensed under Apache 2.0, see LICENCE file for details.

package demo

import (
	"context"
	"fmt"
	"os"

	"github.com/canonical/go-dqlite/app"

	"github.com/rigoleto/jdbi"
)

type Server struct {
	Name    string `db:"name,nonnull"`
	Address string `db:"address"`
	Role    Role   `db:"role,byname"`
}

type Role int

const (
	Voter Role = iota
	StandBy
	Spare
)

func (r Role) String() string {
	switch r {
	case Voter:
		return "Voter"
	case StandBy:
		return "StandBy"
	case Spare:
		return "Spare"
	}
	return "Unknown"
}

// example runs a single-node dqlite cluster and reads its rows back through
// a registry.
func example() error {
	dir, err := os.MkdirTemp("", "jdbi-demo")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	node, err := app.New(dir, app.WithAddress("127.0.0.1:9001"))
	if err != nil {
		return err
	}
	defer node.Close()

	ctx := context.Background()
	if err := node.Ready(ctx); err != nil {
		return err
	}

	db, err := node.Open(ctx, "demo")
	if err != nil {
		return err
	}
	defer db.Close()

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS server (
			name text,
			address text,
			role text
		);`)
	if err != nil {
		return err
	}

	registry := jdbi.NewRegistry()
	if err := registry.RegisterStruct(Server{}); err != nil {
		return err
	}
	if err := registry.RegisterEnum(Voter, StandBy, Spare); err != nil {
		return err
	}

	servers := []Server{
		{Name: "alpha", Address: "10.0.0.1:9001", Role: Voter},
		{Name: "beta", Address: "10.0.0.2:9001", Role: StandBy},
		{Name: "gamma", Address: "10.0.0.3:9001", Role: Spare},
	}
	for _, server := range servers {
		args, err := registry.Params(server, "name", "address")
		if err != nil {
			return err
		}
		args = append(args, server.Role.String())
		_, err = db.Exec("INSERT INTO server (name, address, role) VALUES (?, ?, ?)", args...)
		if err != nil {
			return err
		}
	}

	rows, err := db.Query("SELECT name, address, role FROM server ORDER BY name")
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		instance, err := registry.ScanRow(rows, Server{})
		if err != nil {
			return err
		}
		server := instance.(*Server)
		fmt.Printf("%s (%s) joins as %s\n", server.Name, server.Address, server.Role)
	}
	return rows.Err()
}

func main() {
	err := example()
	if err != nil {
		panic(err)
	}
}
