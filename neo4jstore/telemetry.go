package neo4jstore

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/go-vectis/vectis/neo4jstore")
var meter = otel.Meter("github.com/go-vectis/vectis/neo4jstore")

var (
	// documentsWritten counts the documents passed to the store, labelled with
	// whether the node was modified ("written") or already held the same
	// fingerprint ("unchanged").
	documentsWritten metric.Int64Counter
)

func init() {
	// Failing to create an instrument here is a programming error, likely
	// related to its options.
	var err error
	documentsWritten, err = meter.Int64Counter(
		"vectis.neo4j.documents",
		metric.WithDescription("The number of entity documents written to neo4j, by outcome."),
	)
	if err != nil {
		s := fmt.Sprintf("neo4jstore: failed to init 'vectis.neo4j.documents' instrument: %v", err)
		panic(s)
	}
}
