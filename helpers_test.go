package vectis_test

import (
	"testing"
	"time"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/model"
)

// widget is a test-only entity with an ignored field and nested children.
type widget struct {
	vectis.Base
	Label string
	Note  string
	Parts []*widget
}

func (*widget) Discriminator() string { return "Widget" }

var widgetSchema = vectis.Schema{
	Discriminator: "Widget",
	New:           func() vectis.Entity { return new(widget) },
	Families:      []string{"Gadget"},
	Fields: []vectis.Field{
		vectis.StringField("Label", func(w *widget) *string { return &w.Label }).WithBackendWireName("jsondoc", "label"),
		vectis.StringField("Note", func(w *widget) *string { return &w.Note }).AsIgnored(),
		vectis.EntityListField("Parts", func(w *widget) *[]*widget { return &w.Parts }),
	},
}

// newRegistry returns the model registry extended with widget.
func newRegistry(t *testing.T) *vectis.Registry {
	t.Helper()
	reg := model.NewRegistry()
	if err := reg.Register(widgetSchema); err != nil {
		t.Fatalf("Register(%q): %v", widgetSchema.Discriminator, err)
	}
	return reg
}

var epoch = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

// header returns a deterministic event header; seq offsets the timestamp.
func header(eventID, partitionKey, objectID string, seq int) vectis.EventHeader {
	return vectis.EventHeader{
		PartitionKey: partitionKey,
		ID:           eventID,
		UserID:       "alice",
		Origin:       "test-host",
		Timestamp:    epoch.Add(time.Duration(seq) * time.Minute),
		ObjectID:     objectID,
	}
}

func createScheme(eventID, id string) vectis.CreateObjectEvent {
	return vectis.CreateObjectEvent{
		EventHeader:   header(eventID, id, id, 0),
		Discriminator: model.SchemeDiscriminator,
		Properties: vectis.PropertyList{
			{Name: "Name", Value: "Riverside"},
			{Name: "BorrowerEntityId", Value: "borrower-1"},
			{Name: "VatReclaimMonths", Value: "3"},
		},
	}
}

func createLoan(eventID, partitionKey, id string, ranking string) vectis.CreateObjectEvent {
	return vectis.CreateObjectEvent{
		EventHeader:   header(eventID, partitionKey, id, 1),
		Discriminator: model.LoanDiscriminator,
		Properties: vectis.PropertyList{
			{Name: "VersionId", Value: "rev-1"},
			{Name: "Name", Value: "Senior " + id},
			{Name: "Ranking", Value: ranking},
			{Name: "Security", Value: "Secured"},
			{Name: "TotalCommitmentAmount", Value: "1250000.50"},
			{Name: "StartDate", Value: "2024-01-01T00:00:00Z"},
			{Name: "Frequency", Value: "Quarterly"},
		},
	}
}

func update(eventID, partitionKey, id, name, value string, seq int) vectis.UpdatePropertyEvent {
	return vectis.UpdatePropertyEvent{
		EventHeader:  header(eventID, partitionKey, id, seq),
		PropertyName: name,
		NextValue:    value,
	}
}

func mustApply(t *testing.T, r *vectis.Replayer, current vectis.Entity, ev vectis.Event) vectis.Entity {
	t.Helper()
	e, err := r.Apply(current, ev)
	if err != nil {
		t.Fatalf("Apply(%s %s): %v", ev.Kind(), ev.Header().ID, err)
	}
	return e
}

func mustDescribe(t *testing.T, reg *vectis.Registry, e vectis.Entity) vectis.Description {
	t.Helper()
	d, err := reg.Describe(e)
	if err != nil {
		t.Fatalf("Describe(%s): %v", e.Discriminator(), err)
	}
	return d
}
