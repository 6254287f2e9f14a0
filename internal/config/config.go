// Package config loads the configuration of the vectis daemon from the
// environment.
package config

import (
	"fmt"
	"strings"

	"github.com/caarlos0/env/v11"

	"github.com/go-vectis/vectis/codec/jsondoc"
	"github.com/go-vectis/vectis/codec/jsonstream"
)

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Daemon configures cmd/vectisd.
type Daemon struct {
	// JournalPath is the SQLite database of the event journal.
	JournalPath string `env:"VECTIS_JOURNAL_PATH" envDefault:"vectis-journal.db"`
	// Codec names the backend documents are written with.
	Codec string `env:"VECTIS_CODEC" envDefault:"jsonstream"`
	// Projection labels the telemetry of the daemon's projection.
	Projection string `env:"VECTIS_PROJECTION" envDefault:"vectisd"`

	// SnapshotBucketURL is a gocloud.dev/blob URL (mem://, file:///..., s3://...)
	// of the snapshot archive. Empty disables snapshots.
	SnapshotBucketURL string `env:"VECTIS_SNAPSHOT_BUCKET_URL"`

	// Neo4jURI is the bolt URI of the document store. Empty disables it.
	Neo4jURI      string `env:"VECTIS_NEO4J_URI"`
	Neo4jUser     string `env:"VECTIS_NEO4J_USER"`
	Neo4jPassword string `env:"VECTIS_NEO4J_PASSWORD"`
	Neo4jDatabase string `env:"VECTIS_NEO4J_DATABASE" envDefault:"vectis"`
}

// Load parses and validates the daemon configuration.
func Load() (Daemon, error) {
	var cfg Daemon
	if err := ParseEnv(&cfg); err != nil {
		return Daemon{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Daemon{}, err
	}
	return cfg, nil
}

// Validate checks values the environment parser cannot.
func (c Daemon) Validate() error {
	if strings.TrimSpace(c.JournalPath) == "" {
		return fmt.Errorf("VECTIS_JOURNAL_PATH is required")
	}
	switch c.Codec {
	case jsonstream.Backend, jsondoc.Backend:
	default:
		return fmt.Errorf("VECTIS_CODEC: unknown backend %q", c.Codec)
	}
	if c.Neo4jURI != "" && c.Neo4jPassword != "" && c.Neo4jUser == "" {
		return fmt.Errorf("VECTIS_NEO4J_USER is required with VECTIS_NEO4J_PASSWORD")
	}
	return nil
}
