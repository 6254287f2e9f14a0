package neo4jstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/go-vectis/vectis"
)

// BootstrapDatabase creates the database and the constraints a Store relies on:
// for the label of every discriminator registered with reg, the pair of
// partition key and id is a node key. The key constraint also serves as the
// index for lookups, and prevents duplicate nodes caused by concurrent MERGEs.
//
// To execute queries against the created database, open a session with the
// database name as the default database. For example:
//
//	s := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: name})
//	defer func() { _ = s.Close(ctx) }()
//	... use s ...
//
// This function is idempotent.
func BootstrapDatabase(ctx context.Context, d neo4j.DriverWithContext, name string, reg *vectis.Registry) error {
	if err := createDatabase(ctx, d, name); err != nil {
		return fmt.Errorf("create database: %w", err)
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{DatabaseName: name})
	defer func() { _ = s.Close(ctx) }()

	for _, l := range Labels(reg) {
		// Node keys are an enterprise edition feature; so is CREATE DATABASE.
		_, err := s.Run(ctx, `
			CREATE CONSTRAINT IF NOT EXISTS
			FOR (n:`+l+`)
			REQUIRE (n._pk, n._id) IS NODE KEY
		`, nil)
		if err != nil {
			return fmt.Errorf("key constraint: label %v: %w", l, err)
		}
	}
	return s.Close(ctx)
}

func createDatabase(ctx context.Context, d neo4j.DriverWithContext, name string) error {
	if name == "" {
		panic("neo4jstore: database name must not be empty")
	}
	if name == "neo4j" {
		panic("neo4jstore: database name must not be neo4j: reserved for the default database")
	}
	if strings.HasPrefix(name, "system") || strings.HasPrefix(name, "_") {
		panic("neo4jstore: names that begin with an underscore or with the prefix system are reserved for internal use")
	}

	s := d.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer func() { _ = s.Close(ctx) }()

	_, err := s.Run(ctx, `
			CREATE DATABASE $name IF NOT EXISTS WAIT
		`, map[string]any{
		"name": name,
	})
	return err
}
