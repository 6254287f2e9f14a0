package config_test

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/go-vectis/vectis/internal/config"
)

func TestLoadDefaults(t *testing.T) {
	got, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := config.Daemon{
		JournalPath:   "vectis-journal.db",
		Codec:         "jsonstream",
		Projection:    "vectisd",
		Neo4jDatabase: "vectis",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadEnv(t *testing.T) {
	t.Setenv("VECTIS_JOURNAL_PATH", "/var/lib/vectis/journal.db")
	t.Setenv("VECTIS_CODEC", "jsondoc")
	t.Setenv("VECTIS_SNAPSHOT_BUCKET_URL", "mem://")
	t.Setenv("VECTIS_NEO4J_URI", "neo4j://localhost:7687")
	t.Setenv("VECTIS_NEO4J_USER", "neo4j")
	t.Setenv("VECTIS_NEO4J_PASSWORD", "secret")

	got, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := config.Daemon{
		JournalPath:       "/var/lib/vectis/journal.db",
		Codec:             "jsondoc",
		Projection:        "vectisd",
		SnapshotBucketURL: "mem://",
		Neo4jURI:          "neo4j://localhost:7687",
		Neo4jUser:         "neo4j",
		Neo4jPassword:     "secret",
		Neo4jDatabase:     "vectis",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Load() mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"blank journal", map[string]string{"VECTIS_JOURNAL_PATH": " "}, "VECTIS_JOURNAL_PATH"},
		{"unknown codec", map[string]string{"VECTIS_CODEC": "xml"}, "unknown backend"},
		{"password without user", map[string]string{"VECTIS_NEO4J_URI": "neo4j://db", "VECTIS_NEO4J_PASSWORD": "x"}, "VECTIS_NEO4J_USER"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("Load() = %v, want error mentioning %q", err, tt.want)
			}
		})
	}
}

func TestParseEnvError(t *testing.T) {
	var cfg struct {
		Port int `env:"VECTIS_TEST_PORT" envDefault:"123"`
	}
	t.Setenv("VECTIS_TEST_PORT", "not-an-int")
	err := config.ParseEnv(&cfg)
	if err == nil || !strings.HasPrefix(err.Error(), "parse env:") {
		t.Errorf("ParseEnv() = %v, want error prefixed by %q", err, "parse env:")
	}
}
