package model

import (
	"fmt"
	"time"

	"github.com/go-vectis/vectis"
	"github.com/shopspring/decimal"
)

var fundingSourceFields = []vectis.Field{
	vectis.StringField("VersionId", func(e FundingSourceEntity) *string { return &e.FundingSourceCore().VersionID }).AsReadOnly(),
	vectis.StringField("InvestorId", func(e FundingSourceEntity) *string { return &e.FundingSourceCore().InvestorID }).AsReadOnly(),
	vectis.StringField("Name", func(e FundingSourceEntity) *string { return &e.FundingSourceCore().Name }),
	vectis.StringField("Description", func(e FundingSourceEntity) *string { return &e.FundingSourceCore().Description }),
	vectis.IntField("Ranking", func(e FundingSourceEntity) *int { return &e.FundingSourceCore().Ranking }),
	vectis.EnumField("Security", func(e FundingSourceEntity) *Security { return &e.FundingSourceCore().Security }, securityNames),
}

func loanDecimal(name string, ref func(*LoanTerms) *decimal.Decimal) vectis.Field {
	return vectis.DecimalField(name, func(e LoanEntity) *decimal.Decimal { return ref(e.LoanCore()) })
}

var loanFields = []vectis.Field{
	vectis.BoolField("ApplyFacility", func(e LoanEntity) *bool { return &e.LoanCore().ApplyFacility }),
	vectis.EnumField("CommitmentType", func(e LoanEntity) *CommitmentType { return &e.LoanCore().CommitmentType }, commitmentTypeNames),
	vectis.EnumField("CommitmentStacking", func(e LoanEntity) *CommitmentStacking { return &e.LoanCore().CommitmentStacking }, commitmentStackingNames),
	loanDecimal("TrancheCommitmentAmount", func(t *LoanTerms) *decimal.Decimal { return &t.TrancheCommitmentAmount }),
	loanDecimal("TotalCommitmentAmount", func(t *LoanTerms) *decimal.Decimal { return &t.TotalCommitmentAmount }),
	loanDecimal("TrancheLTC", func(t *LoanTerms) *decimal.Decimal { return &t.TrancheLTC }),
	loanDecimal("TotalLTC", func(t *LoanTerms) *decimal.Decimal { return &t.TotalLTC }),
	vectis.TimeField("StartDate", func(e LoanEntity) *time.Time { return &e.LoanCore().StartDate }),
	vectis.TimeField("FirstRollDate", func(e LoanEntity) *time.Time { return &e.LoanCore().FirstRollDate }),
	vectis.TimeField("EndDate", func(e LoanEntity) *time.Time { return &e.LoanCore().EndDate }),
	vectis.EnumField("Frequency", func(e LoanEntity) *Frequency { return &e.LoanCore().Frequency }, frequencyNames),
	vectis.EnumField("Daycount", func(e LoanEntity) *Daycount { return &e.LoanCore().Daycount }, daycountNames),
	vectis.EnumField("CalculationDateAdjustment", func(e LoanEntity) *DaycountAdjustment { return &e.LoanCore().CalculationDateAdjustment }, daycountAdjustmentNames),
	vectis.EnumField("PaymentDateAdjustment", func(e LoanEntity) *DaycountAdjustment { return &e.LoanCore().PaymentDateAdjustment }, daycountAdjustmentNames),
	loanDecimal("NonUtilizationFeeRate", func(t *LoanTerms) *decimal.Decimal { return &t.NonUtilizationFeeRate }),
	loanDecimal("EntryFee", func(t *LoanTerms) *decimal.Decimal { return &t.EntryFee }),
	loanDecimal("ExitFee", func(t *LoanTerms) *decimal.Decimal { return &t.ExitFee }),
}

// Schemas returns the registration tables of every type of the package.
func Schemas() []vectis.Schema {
	return []vectis.Schema{
		{
			Discriminator: SchemeDiscriminator,
			New:           func() vectis.Entity { return new(Scheme) },
			Fields: []vectis.Field{
				vectis.StringField("Name", func(s *Scheme) *string { return &s.Name }),
				vectis.StringField("Description", func(s *Scheme) *string { return &s.Description }),
				vectis.StringField("BorrowerEntityId", func(s *Scheme) *string { return &s.BorrowerEntityID }).AsReadOnly(),
				vectis.IntField("VatReclaimMonths", func(s *Scheme) *int { return &s.VatReclaimMonths }),
				vectis.StringField("ActiveCapitalStructureRevisionId", func(s *Scheme) *string { return &s.ActiveCapitalStructureRevisionID }),
			},
		},
		{
			Discriminator: LoanDiscriminator,
			New:           func() vectis.Entity { return new(Loan) },
			Families:      []string{FamilyFundingSource, FamilyLoan},
			Fields:        vectis.Fields(fundingSourceFields, loanFields),
		},
		{
			Discriminator: PIKDrawdownCommittedLoanDiscriminator,
			New:           func() vectis.Entity { return new(PIKDrawdownCommittedLoan) },
			Families:      []string{FamilyFundingSource, FamilyLoan},
			Fields:        vectis.Fields(fundingSourceFields, loanFields),
		},
		{
			Discriminator: PIKAccrualCommittedLoanDiscriminator,
			New:           func() vectis.Entity { return new(PIKAccrualCommittedLoan) },
			Families:      []string{FamilyFundingSource, FamilyLoan},
			Fields:        vectis.Fields(fundingSourceFields, loanFields),
		},
		{
			Discriminator: OrdinaryEquityDiscriminator,
			New:           func() vectis.Entity { return new(OrdinaryEquity) },
			Families:      []string{FamilyFundingSource, FamilyEquity},
			Fields:        fundingSourceFields,
		},
		{
			Discriminator: ZeroCashflowPreferredEquityDiscriminator,
			New:           func() vectis.Entity { return new(ZeroCashflowPreferredEquity) },
			Families:      []string{FamilyFundingSource, FamilyEquity},
			Fields:        fundingSourceFields,
		},
		{
			Discriminator: InterestRatePairDiscriminator,
			New:           func() vectis.Entity { return new(InterestRatePair) },
			Fields: []vectis.Field{
				vectis.StringField("FundingSourceId", func(p *InterestRatePair) *string { return &p.FundingSourceID }).AsReadOnly(),
				vectis.DecimalField("ContractualInterestRate", func(p *InterestRatePair) *decimal.Decimal { return &p.ContractualInterestRate }),
				vectis.DecimalField("AccountingInterestRate", func(p *InterestRatePair) *decimal.Decimal { return &p.AccountingInterestRate }),
				vectis.TimeField("EffectiveDate", func(p *InterestRatePair) *time.Time { return &p.EffectiveDate }),
			},
		},
		{
			Discriminator: DrawdownDiscriminator,
			New:           func() vectis.Entity { return new(FundingSourceDrawdown) },
			Fields: []vectis.Field{
				vectis.StringField("FundingSourceId", func(d *FundingSourceDrawdown) *string { return &d.FundingSourceID }).AsReadOnly(),
				vectis.StringField("CostScheduleActualAmountId", func(d *FundingSourceDrawdown) *string { return &d.CostScheduleActualAmountID }).AsReadOnly(),
				vectis.DecimalField("Amount", func(d *FundingSourceDrawdown) *decimal.Decimal { return &d.Amount }),
			},
		},
		{
			Discriminator: RepaymentDiscriminator,
			New:           func() vectis.Entity { return new(FundingSourceRepayment) },
			Fields: []vectis.Field{
				vectis.StringField("FundingSourceId", func(r *FundingSourceRepayment) *string { return &r.FundingSourceID }).AsReadOnly(),
				vectis.StringField("RevenueScheduleActualAmountId", func(r *FundingSourceRepayment) *string { return &r.RevenueScheduleActualAmountID }).AsReadOnly(),
				vectis.DecimalField("Amount", func(r *FundingSourceRepayment) *decimal.Decimal { return &r.Amount }),
			},
		},
		{
			Discriminator: CapitalStructureRevisionDiscriminator,
			New:           func() vectis.Entity { return new(CapitalStructureRevision) },
			Families:      []string{FamilyRevision},
			Fields: []vectis.Field{
				vectis.StringField("Name", func(r *CapitalStructureRevision) *string { return &r.Name }),
				vectis.StringField("Description", func(r *CapitalStructureRevision) *string { return &r.Description }),
				vectis.StringField("ForkedBaseRevisionId", func(r *CapitalStructureRevision) *string { return &r.ForkedBaseRevisionID }).AsReadOnly(),
				vectis.EnumField("RevisionDeploymentStatus", func(r *CapitalStructureRevision) *DeploymentStatus { return &r.DeploymentStatus }, deploymentStatusNames),
				vectis.TimeField("EffectiveDate", func(r *CapitalStructureRevision) *time.Time { return &r.EffectiveDate }),
			},
		},
	}
}

// Register adds every type of the package to reg.
func Register(reg *vectis.Registry) error {
	for _, s := range Schemas() {
		if err := reg.Register(s); err != nil {
			return fmt.Errorf("model: %w", err)
		}
	}
	return nil
}

// NewRegistry returns a registry holding vectis.Dataset and every type of the
// package.
func NewRegistry() *vectis.Registry {
	reg := vectis.NewRegistry()
	if err := vectis.RegisterDataset(reg); err != nil {
		panic(err)
	}
	if err := Register(reg); err != nil {
		panic(err)
	}
	return reg
}
