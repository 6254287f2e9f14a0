// Command vectisd maintains the projection of a vectis event stream.
//
// It journals every event it receives, replays it onto the latest dataset of
// its partition and announces the resulting changes. Datasets are mirrored to a
// snapshot bucket and to a Neo4j document store when those are configured. At
// start-up the projection is seeded from the snapshot bucket and caught up from
// the journal.
//
// See internal/config for the environment variables it reads.
package main

import (
	"github.com/danielorbach/go-component"
	"github.com/danielorbach/go-component/loader"
)

// Names of the pubsub targets linked by the loader.
const (
	eventsInterest = "vectis.events"
	changesAspect  = "vectis.entity-changed"
)

// Component describes the vectis daemon deployment.
var Component = component.Descriptor{
	Name:      "vectisd",
	Doc:       "Journals vectis events, projects them onto datasets and mirrors the datasets to durable stores.",
	Bootstrap: bootstrap,
	Aspects:   []string{changesAspect},
	// The daemon consumes its own change notifications to mirror datasets.
	Interests: []string{eventsInterest, changesAspect},
}

func main() {
	loader.ParseFlags(&Component)
}
