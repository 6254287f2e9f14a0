/*
Package model declares the capital-structure entities of a development scheme:
the scheme itself, its funding sources (loans and equities), their interest
rates, drawdowns and repayments, and the revisions grouping them.

Every type registers with a vectis.Registry through Register. Fields are
exported for reading; mutate them through vectis.SetField (or the Set methods)
so that the freeze latch and change notifications are honoured, or better,
through events applied by a vectis.Replayer.
*/
package model

import (
	"time"

	"github.com/go-vectis/vectis"
	"github.com/shopspring/decimal"
)

// Discriminators of the registered types.
const (
	SchemeDiscriminator                      = "Scheme Record"
	LoanDiscriminator                        = "Loan"
	PIKDrawdownCommittedLoanDiscriminator    = "PIK Drawdown Committed Loan"
	PIKAccrualCommittedLoanDiscriminator     = "PIK Accrual Committed Loan"
	OrdinaryEquityDiscriminator              = "Ordinary Equity"
	ZeroCashflowPreferredEquityDiscriminator = "Zero Cashflow Preferred Equity"
	InterestRatePairDiscriminator            = "Interest Rate Pair"
	DrawdownDiscriminator                    = "Funding Source Drawdown"
	RepaymentDiscriminator                   = "Funding Source Repayment"
	CapitalStructureRevisionDiscriminator    = "Capital Structure Revision"
)

// Family tags. A dataset indexes every funding source under FamilyFundingSource
// in addition to its discriminator, every loan under FamilyLoan and so on.
const (
	FamilyFundingSource = "Funding Source"
	FamilyLoan          = "Loan"
	FamilyEquity        = "Equity"
	FamilyRevision      = "Revision"
)

// Scheme is the owner of a capital-structure dataset.
type Scheme struct {
	vectis.Base
	Name                             string
	Description                      string
	BorrowerEntityID                 string
	VatReclaimMonths                 int
	ActiveCapitalStructureRevisionID string
}

func (*Scheme) Discriminator() string { return SchemeDiscriminator }

func (s *Scheme) SetName(v string) error {
	_, err := vectis.SetField(&s.Base, &s.Name, v, "Name")
	return err
}

func (s *Scheme) SetDescription(v string) error {
	_, err := vectis.SetField(&s.Base, &s.Description, v, "Description")
	return err
}

// FundingSource holds the fields shared by every loan and equity.
type FundingSource struct {
	VersionID   string // Capital structure revision version the source belongs to.
	InvestorID  string
	Name        string
	Description string
	Ranking     int // Lower ranks are repaid first.
	Security    Security
}

// FundingSourceCore returns f. It is promoted to the types embedding
// FundingSource and makes them FundingSourceEntity.
func (f *FundingSource) FundingSourceCore() *FundingSource { return f }

// A FundingSourceEntity is any loan or equity.
type FundingSourceEntity interface {
	vectis.Entity
	FundingSourceCore() *FundingSource
}

// LoanTerms holds the fields shared by every loan.
type LoanTerms struct {
	ApplyFacility             bool
	CommitmentType            CommitmentType
	CommitmentStacking        CommitmentStacking
	TrancheCommitmentAmount   decimal.Decimal
	TotalCommitmentAmount     decimal.Decimal
	TrancheLTC                decimal.Decimal
	TotalLTC                  decimal.Decimal
	StartDate                 time.Time
	FirstRollDate             time.Time
	EndDate                   time.Time
	Frequency                 Frequency
	Daycount                  Daycount
	CalculationDateAdjustment DaycountAdjustment
	PaymentDateAdjustment     DaycountAdjustment
	NonUtilizationFeeRate     decimal.Decimal
	EntryFee                  decimal.Decimal
	ExitFee                   decimal.Decimal
}

func (t *LoanTerms) LoanCore() *LoanTerms { return t }

// A LoanEntity is any kind of loan.
type LoanEntity interface {
	FundingSourceEntity
	LoanCore() *LoanTerms
}

// Loan is a plain committed loan.
type Loan struct {
	vectis.Base
	FundingSource
	LoanTerms
}

func (*Loan) Discriminator() string { return LoanDiscriminator }

// PIKDrawdownCommittedLoan is an accreting loan whose whole commitment is
// available to draw; interest and fees come on top of it.
type PIKDrawdownCommittedLoan struct {
	vectis.Base
	FundingSource
	LoanTerms
}

func (*PIKDrawdownCommittedLoan) Discriminator() string {
	return PIKDrawdownCommittedLoanDiscriminator
}

// PIKAccrualCommittedLoan is an accreting loan whose commitment includes
// interest and fees, so the peak drawn amount never exceeds it.
type PIKAccrualCommittedLoan struct {
	vectis.Base
	FundingSource
	LoanTerms
}

func (*PIKAccrualCommittedLoan) Discriminator() string {
	return PIKAccrualCommittedLoanDiscriminator
}

// OrdinaryEquity is drawn first and captures the residual revenue.
type OrdinaryEquity struct {
	vectis.Base
	FundingSource
}

func (*OrdinaryEquity) Discriminator() string { return OrdinaryEquityDiscriminator }

// ZeroCashflowPreferredEquity ranks in the waterfall but has no programmatic
// cashflows.
type ZeroCashflowPreferredEquity struct {
	vectis.Base
	FundingSource
}

func (*ZeroCashflowPreferredEquity) Discriminator() string {
	return ZeroCashflowPreferredEquityDiscriminator
}

// InterestRatePair sets the rates of a funding source from a given date.
type InterestRatePair struct {
	vectis.Base
	FundingSourceID         string
	ContractualInterestRate decimal.Decimal
	AccountingInterestRate  decimal.Decimal
	EffectiveDate           time.Time
}

func (*InterestRatePair) Discriminator() string { return InterestRatePairDiscriminator }

// FundingSourceDrawdown is an actual amount drawn from a funding source to
// pay a cost.
type FundingSourceDrawdown struct {
	vectis.Base
	FundingSourceID            string
	CostScheduleActualAmountID string
	Amount                     decimal.Decimal
}

func (*FundingSourceDrawdown) Discriminator() string { return DrawdownDiscriminator }

// FundingSourceRepayment is an actual amount repaid to a funding source out of
// revenue.
type FundingSourceRepayment struct {
	vectis.Base
	FundingSourceID               string
	RevenueScheduleActualAmountID string
	Amount                        decimal.Decimal
}

func (*FundingSourceRepayment) Discriminator() string { return RepaymentDiscriminator }

// CapitalStructureRevision is a named alternative capital structure.
type CapitalStructureRevision struct {
	vectis.Base
	Name                 string
	Description          string
	ForkedBaseRevisionID string
	DeploymentStatus     DeploymentStatus
	EffectiveDate        time.Time
}

func (*CapitalStructureRevision) Discriminator() string {
	return CapitalStructureRevisionDiscriminator
}
