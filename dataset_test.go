package vectis_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/model"
)

func newLoan(id string, ranking int) *model.Loan {
	l := new(model.Loan)
	_ = l.SetID(id)
	_ = l.SetPartitionKey("scheme-1")
	l.Ranking = ranking
	return l
}

func newPair(id, fundingSourceID string) *model.InterestRatePair {
	p := new(model.InterestRatePair)
	_ = p.SetID(id)
	_ = p.SetPartitionKey("scheme-1")
	p.FundingSourceID = fundingSourceID
	return p
}

func newScheme(id string) *model.Scheme {
	s := new(model.Scheme)
	_ = s.SetID(id)
	_ = s.SetPartitionKey(id)
	return s
}

func ids[T vectis.Entity](items []T) []string {
	var out []string
	for _, e := range items {
		out = append(out, e.Core().ID())
	}
	return out
}

func TestDatasetQueries(t *testing.T) {
	reg := newRegistry(t)
	pik := new(model.PIKAccrualCommittedLoan)
	_ = pik.SetID("loan-3")
	equity := new(model.OrdinaryEquity)
	_ = equity.SetID("equity-1")

	d := vectis.NewDataset(reg, newScheme("scheme-1"),
		newLoan("loan-2", 2), newLoan("loan-1", 1), pik, equity, newPair("pair-1", "loan-1"))

	if got, want := d.PartitionKey(), "scheme-1"; got != want {
		t.Errorf("PartitionKey() = %q, want %q", got, want)
	}
	if got, want := ids(d.Items()), []string{"equity-1", "loan-1", "loan-2", "loan-3", "pair-1"}; !cmp.Equal(want, got) {
		t.Errorf("Items() mismatch (-want +got):\n%s", cmp.Diff(want, got))
	}

	t.Run("GetItem", func(t *testing.T) {
		l, ok, err := vectis.GetItem[*model.Loan](d, "loan-1")
		if err != nil || !ok || l.Ranking != 1 {
			t.Errorf("GetItem[*Loan](loan-1) = (%v, %v, %v)", l, ok, err)
		}
		_, ok, err = vectis.GetItem[*model.Loan](d, "missing")
		if ok || err != nil {
			t.Errorf("GetItem[*Loan](missing) = (_, %v, %v), want (_, false, nil)", ok, err)
		}
		_, ok, err = vectis.GetItem[*model.InterestRatePair](d, "loan-1")
		if ok || !errors.Is(err, vectis.ErrTypeMismatch) {
			t.Errorf("GetItem[*InterestRatePair](loan-1) = (_, %v, %v), want ErrTypeMismatch", ok, err)
		}
		// Interface types work too.
		fs, ok, err := vectis.GetItem[model.FundingSourceEntity](d, "equity-1")
		if err != nil || !ok || fs.Core().ID() != "equity-1" {
			t.Errorf("GetItem[FundingSourceEntity](equity-1) = (%v, %v, %v)", fs, ok, err)
		}
	})

	t.Run("GetItems", func(t *testing.T) {
		// Only plain loans; PIK loans share the family tag but not the type.
		if diff := cmp.Diff([]string{"loan-1", "loan-2"}, ids(vectis.GetItems[*model.Loan](d))); diff != "" {
			t.Errorf("GetItems[*Loan] mismatch (-want +got):\n%s", diff)
		}
		if got := vectis.GetItems[*model.FundingSourceDrawdown](d); len(got) != 0 {
			t.Errorf("GetItems[*FundingSourceDrawdown] = %v, want none", got)
		}
	})

	t.Run("GetTagged", func(t *testing.T) {
		tests := []struct {
			Tag  string
			Want []string
		}{
			{Tag: model.FamilyLoan, Want: []string{"loan-1", "loan-2", "loan-3"}},
			{Tag: model.FamilyFundingSource, Want: []string{"equity-1", "loan-1", "loan-2", "loan-3"}},
			{Tag: model.FamilyEquity, Want: []string{"equity-1"}},
			{Tag: "Unknown", Want: nil},
		}
		for _, tt := range tests {
			got := ids(vectis.GetTagged[vectis.Entity](d, tt.Tag))
			if diff := cmp.Diff(tt.Want, got); diff != "" {
				t.Errorf("GetTagged(%q) mismatch (-want +got):\n%s", tt.Tag, diff)
			}
		}
	})
}

func TestDatasetPersistence(t *testing.T) {
	reg := newRegistry(t)
	d := vectis.NewDataset(reg, newScheme("scheme-1"), newLoan("loan-1", 1))
	d.Freeze()

	added := d.Upsert(newLoan("loan-2", 2))
	if d.Len() != 1 || added.Len() != 2 {
		t.Errorf("Upsert: Len() = (%d, %d), want (1, 2)", d.Len(), added.Len())
	}
	if added.ID() != d.ID() || added.ViewVersion() == d.ViewVersion() {
		t.Errorf("Upsert kept (%q, %q) from (%q, %q); want the same id and a new version",
			added.ID(), added.ViewVersion(), d.ID(), d.ViewVersion())
	}
	if added.Frozen() {
		t.Errorf("Upsert returned a frozen dataset")
	}

	replaced := added.Upsert(newLoan("loan-1", 7))
	if l, _, _ := vectis.GetItem[*model.Loan](replaced, "loan-1"); l.Ranking != 7 {
		t.Errorf("Upsert(existing) did not replace the item: ranking %d", l.Ranking)
	}
	if l, _, _ := vectis.GetItem[*model.Loan](added, "loan-1"); l.Ranking != 1 {
		t.Errorf("Upsert modified its receiver: ranking %d", l.Ranking)
	}

	owner := newScheme("scheme-1")
	owner.Name = "Renamed"
	reowned := d.Upsert(owner)
	if got := reowned.Owner().(*model.Scheme).Name; got != "Renamed" || reowned.Len() != 1 {
		t.Errorf("Upsert(owner) = owner %q with %d items, want the new owner and 1 item", got, reowned.Len())
	}

	if same := d.Remove("missing"); same != d {
		t.Errorf("Remove(missing) returned a new dataset")
	}
	removed := added.Remove("loan-1")
	if _, ok := removed.Item("loan-1"); ok || removed.Len() != 1 {
		t.Errorf("Remove(loan-1) left %v", ids(removed.Items()))
	}
	if _, ok := added.Item("loan-1"); !ok {
		t.Errorf("Remove modified its receiver")
	}
}

func TestDatasetFreeze(t *testing.T) {
	reg := newRegistry(t)
	scheme, loan := newScheme("scheme-1"), newLoan("loan-1", 1)
	d := vectis.NewDataset(reg, scheme, loan)
	vectis.Freeze(d)

	for _, e := range []vectis.Entity{d, scheme, loan} {
		if !e.Core().Frozen() {
			t.Errorf("%s %q is not frozen", e.Discriminator(), e.Core().ID())
		}
	}
	if err := scheme.SetName("x"); !errors.Is(err, vectis.ErrFrozen) {
		t.Errorf("SetName on the owner of a frozen dataset: got %v, want ErrFrozen", err)
	}
}

// Upsert and Remove behave like map assignment and deletion.
func TestDatasetLaws(t *testing.T) {
	reg := newRegistry(t)
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	build := func(keys []int) (*vectis.Dataset, map[string]int) {
		d := vectis.NewDataset(reg, newScheme("scheme-1"))
		want := make(map[string]int)
		for i, k := range keys {
			id := fmt.Sprintf("loan-%02d", k%20)
			d = d.Upsert(newLoan(id, i))
			want[id] = i
		}
		return d, want
	}

	properties.Property("Upsert keeps the last item of every id", prop.ForAll(
		func(keys []int) bool {
			d, want := build(keys)
			if d.Len() != len(want) {
				return false
			}
			for id, ranking := range want {
				l, ok, err := vectis.GetItem[*model.Loan](d, id)
				if err != nil || !ok || l.Ranking != ranking {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.Property("Remove drops exactly one id", prop.ForAll(
		func(keys []int, victim int) bool {
			d, want := build(keys)
			id := fmt.Sprintf("loan-%02d", victim%20)
			after := d.Remove(id)
			if _, ok := after.Item(id); ok {
				return false
			}
			delete(want, id)
			return after.Len() == len(want)
		},
		gen.SliceOf(gen.IntRange(0, 100)),
		gen.IntRange(0, 100),
	))

	properties.Property("Items are ordered by id", prop.ForAll(
		func(keys []int) bool {
			d, _ := build(keys)
			items := ids(d.Items())
			for i := 1; i < len(items); i++ {
				if items[i-1] >= items[i] {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.IntRange(0, 100)),
	))

	properties.TestingRun(t)
}
