package model

import (
	"cmp"
	"slices"

	"github.com/go-vectis/vectis"
)

// FundingSources returns the live funding sources of d that belong to the
// given revision version, ordered by ranking. An empty versionID selects every
// funding source.
func FundingSources(d *vectis.Dataset, versionID string) []FundingSourceEntity {
	var out []FundingSourceEntity
	for _, fs := range vectis.GetTagged[FundingSourceEntity](d, FamilyFundingSource) {
		if fs.Core().Deleted() {
			continue
		}
		if versionID == "" || fs.FundingSourceCore().VersionID == versionID {
			out = append(out, fs)
		}
	}
	slices.SortStableFunc(out, func(a, b FundingSourceEntity) int {
		return cmp.Compare(a.FundingSourceCore().Ranking, b.FundingSourceCore().Ranking)
	})
	return out
}

// Loans returns the live loans of d, of every kind, in id order.
func Loans(d *vectis.Dataset) []LoanEntity {
	return live(vectis.GetTagged[LoanEntity](d, FamilyLoan))
}

// InterestRatePairs returns the live interest rate pairs of the given funding
// source, ordered by effective date.
func InterestRatePairs(d *vectis.Dataset, fundingSourceID string) []*InterestRatePair {
	pairs := of(vectis.GetItems[*InterestRatePair](d), func(p *InterestRatePair) bool {
		return p.FundingSourceID == fundingSourceID
	})
	slices.SortStableFunc(pairs, func(a, b *InterestRatePair) int {
		return a.EffectiveDate.Compare(b.EffectiveDate)
	})
	return pairs
}

// Drawdowns returns the live drawdowns of the given funding source.
func Drawdowns(d *vectis.Dataset, fundingSourceID string) []*FundingSourceDrawdown {
	return of(vectis.GetItems[*FundingSourceDrawdown](d), func(x *FundingSourceDrawdown) bool {
		return x.FundingSourceID == fundingSourceID
	})
}

// Repayments returns the live repayments of the given funding source.
func Repayments(d *vectis.Dataset, fundingSourceID string) []*FundingSourceRepayment {
	return of(vectis.GetItems[*FundingSourceRepayment](d), func(x *FundingSourceRepayment) bool {
		return x.FundingSourceID == fundingSourceID
	})
}

// SchemeOf returns the scheme owning d, resolved through its handle.
func SchemeOf(ds vectis.Datasets, h vectis.Handle) (*Scheme, bool) {
	d, ok := ds.Resolve(h)
	if !ok {
		return nil, false
	}
	s, ok := d.Owner().(*Scheme)
	return s, ok
}

func live[T vectis.Entity](items []T) []T {
	return of(items, func(T) bool { return true })
}

func of[T vectis.Entity](items []T, keep func(T) bool) []T {
	var out []T
	for _, x := range items {
		if !x.Core().Deleted() && keep(x) {
			out = append(out, x)
		}
	}
	return out
}
