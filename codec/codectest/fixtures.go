package codectest

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/model"
)

// GaugeDiscriminator tags Gauge documents.
const GaugeDiscriminator = "Codec Gauge"

// Gauge exercises every field kind the model package does not: optional
// decimals and instants, a single nested entity, wire names that need escaping
// in path syntax, and an ignored field.
type Gauge struct {
	vectis.Base
	Label      string
	Reading    decimal.NullDecimal
	Calibrated sql.NullTime
	Enabled    bool
	Scratch    string // Never written.
	Primary    *Gauge
	Spares     []*Gauge
}

func (*Gauge) Discriminator() string { return GaugeDiscriminator }

// LocalDiscriminator tags Local documents.
const LocalDiscriminator = "Codec Local"

// Local has a field that only the jsondoc backend renames, so its documents
// do not travel between the two backends.
type Local struct {
	vectis.Base
	Code string
}

func (*Local) Discriminator() string { return LocalDiscriminator }

// Registry returns a registry holding the model types, Gauge and Local.
func Registry() *vectis.Registry {
	reg := model.NewRegistry()
	reg.MustRegister(
		vectis.Schema{
			Discriminator: GaugeDiscriminator,
			New:           func() vectis.Entity { return new(Gauge) },
			Fields: []vectis.Field{
				vectis.StringField("Label", func(g *Gauge) *string { return &g.Label }).
					WithBackendWireName("jsonstream", "label").
					WithBackendWireName("jsondoc", "label"),
				vectis.NullDecimalField("Reading", func(g *Gauge) *decimal.NullDecimal { return &g.Reading }).
					WithWireName("reading.value"),
				vectis.NullTimeField("Calibrated", func(g *Gauge) *sql.NullTime { return &g.Calibrated }).
					WithWireName("calibrated@utc"),
				vectis.BoolField("Enabled", func(g *Gauge) *bool { return &g.Enabled }),
				vectis.StringField("Scratch", func(g *Gauge) *string { return &g.Scratch }).AsIgnored(),
				vectis.EntityField("Primary", func(g *Gauge) **Gauge { return &g.Primary }),
				vectis.EntityListField("Spares", func(g *Gauge) *[]*Gauge { return &g.Spares }),
			},
		},
		vectis.Schema{
			Discriminator: LocalDiscriminator,
			New:           func() vectis.Entity { return new(Local) },
			Fields: []vectis.Field{
				vectis.StringField("Code", func(l *Local) *string { return &l.Code }).
					WithBackendWireName("jsondoc", "code"),
			},
		},
	)
	return reg
}

// A Fixture is a named entity to encode.
type Fixture struct {
	Name   string
	Entity vectis.Entity
	// Portable reports whether both backends write the fixture identically.
	Portable bool
}

var at = time.Date(2024, time.March, 1, 9, 30, 0, 0, time.UTC)

func identify[E vectis.Entity](e E, id string) E {
	b := e.Core()
	_ = b.SetID(id)
	_ = b.SetPartitionKey("scheme-1")
	_ = b.SetCreatedBy("alice")
	return e
}

// Fixtures returns entities covering every type registered by Registry. Only
// the deleted drawdown, produced by replay, is frozen.
func Fixtures(reg *vectis.Registry) []Fixture {
	scheme := identify(&model.Scheme{
		Name:             "Riverside",
		Description:      "Phase one, \"north\" plot <A&B>",
		BorrowerEntityID: "borrower-1",
		VatReclaimMonths: 3,
	}, "scheme-1")

	loan := identify(&model.Loan{
		FundingSource: model.FundingSource{
			VersionID: "rev-1", InvestorID: "bank-1", Name: "Senior Facility",
			Ranking: 1, Security: model.Secured,
		},
		LoanTerms: model.LoanTerms{
			ApplyFacility:           true,
			CommitmentType:          model.CashAmount,
			CommitmentStacking:      model.Total,
			TrancheCommitmentAmount: decimal.RequireFromString("1250000.50"),
			TotalCommitmentAmount:   decimal.RequireFromString("12345678901234567890.123456789"),
			TrancheLTC:              decimal.RequireFromString("0.65"),
			TotalLTC:                decimal.RequireFromString("-0.0001"),
			StartDate:               at,
			FirstRollDate:           at.AddDate(0, 3, 0),
			EndDate:                 at.AddDate(5, 0, 0),
			Frequency:               model.Quarterly,
			Daycount:                model.DcACT365,
			PaymentDateAdjustment:   model.Unadjusted,
			NonUtilizationFeeRate:   decimal.RequireFromString("0.015"),
			EntryFee:                decimal.RequireFromString("1"),
			ExitFee:                 decimal.Zero,
		},
	}, "loan-1")

	pik := identify(&model.PIKAccrualCommittedLoan{
		FundingSource: model.FundingSource{Name: "Mezzanine", Ranking: 2, Security: model.Unsecured},
	}, "loan-2")

	equity := identify(&model.OrdinaryEquity{
		FundingSource: model.FundingSource{Name: "Sponsor equity", Ranking: 9},
	}, "equity-1")

	pair := identify(&model.InterestRatePair{
		FundingSourceID:         "loan-1",
		ContractualInterestRate: decimal.RequireFromString("0.0725"),
		AccountingInterestRate:  decimal.RequireFromString("0.07"),
		EffectiveDate:           at.Add(123456789 * time.Nanosecond),
	}, "pair-1")

	revision := identify(&model.CapitalStructureRevision{
		Name:             "Base case",
		DeploymentStatus: model.Deployed,
		EffectiveDate:    at,
	}, "revision-1")

	gauge := identify(&Gauge{
		Label:      "main ☃ \t tab",
		Reading:    decimal.NewNullDecimal(decimal.RequireFromString("42.125")),
		Calibrated: sql.NullTime{Time: at, Valid: true},
		Enabled:    true,
		Scratch:    "never written",
		Primary:    &Gauge{Label: "primary"},
		Spares:     []*Gauge{{Label: "spare-1"}, {Label: "spare-2", Spares: []*Gauge{{Label: "nested"}}}},
	}, "gauge-1")

	deleted, err := deletedDrawdown(reg)
	if err != nil {
		panic(fmt.Sprintf("codectest: %v", err))
	}

	dataset := vectis.NewDataset(reg, scheme, loan, pik, equity, pair)

	fixtures := []Fixture{
		{Name: "scheme", Entity: scheme, Portable: true},
		{Name: "loan", Entity: loan, Portable: true},
		{Name: "pik-loan", Entity: pik, Portable: true},
		{Name: "equity", Entity: equity, Portable: true},
		{Name: "interest-rate-pair", Entity: pair, Portable: true},
		{Name: "revision", Entity: revision, Portable: true},
		{Name: "deleted-drawdown", Entity: deleted, Portable: true},
		{Name: "gauge", Entity: gauge, Portable: true},
		{Name: "empty-gauge", Entity: new(Gauge), Portable: true},
		{Name: "dataset", Entity: dataset, Portable: true},
		{Name: "empty-dataset", Entity: vectis.NewDataset(reg, nil), Portable: true},
		{Name: "local", Entity: identify(&Local{Code: "X-1"}, "local-1"), Portable: false},
	}
	for _, f := range fixtures {
		if _, err := reg.SchemaOf(f.Entity); err != nil {
			panic(fmt.Sprintf("codectest: fixture %s: %v", f.Name, err))
		}
	}
	return fixtures
}

// deletedDrawdown replays the creation and deletion of a drawdown, so that the
// event-derived system fields are populated.
func deletedDrawdown(reg *vectis.Registry) (vectis.Entity, error) {
	r := vectis.NewReplayer(reg)
	header := vectis.EventHeader{PartitionKey: "scheme-1", UserID: "alice", Timestamp: at, ObjectID: "drawdown-1"}
	created := header
	created.ID = "ev-1"
	e, err := r.Apply(nil, vectis.CreateObjectEvent{
		EventHeader:   created,
		Discriminator: model.DrawdownDiscriminator,
		Properties: vectis.PropertyList{
			{Name: "FundingSourceId", Value: "loan-1"},
			{Name: "Amount", Value: "250.5"},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create drawdown: %w", err)
	}
	removed := header
	removed.ID = "ev-2"
	if e, err = r.Apply(e, vectis.DeleteObjectEvent{EventHeader: removed}); err != nil {
		return nil, fmt.Errorf("delete drawdown: %w", err)
	}
	return e, nil
}
