package model

// Frequency is the interval between interest periods, in months.
type Frequency int

const (
	Monthly      Frequency = 1
	Quarterly    Frequency = 3
	SemiAnnually Frequency = 6
	Annually     Frequency = 12
)

var frequencyNames = map[Frequency]string{
	Monthly:      "Monthly",
	Quarterly:    "Quarterly",
	SemiAnnually: "SemiAnnually",
	Annually:     "Annually",
}

func (f Frequency) String() string { return frequencyNames[f] }

// Daycount is an ISDA day-count fraction convention.
type Daycount int

const (
	Dc30360 Daycount = iota
	Dc30E360
	DcACT360
	DcACT365
	DcACTACT
	DcACT36525
)

var daycountNames = map[Daycount]string{
	Dc30360:    "Dc30360",
	Dc30E360:   "Dc30E360",
	DcACT360:   "DcACT360",
	DcACT365:   "DcACT365",
	DcACTACT:   "DcACTACT",
	DcACT36525: "DcACT36525",
}

func (d Daycount) String() string { return daycountNames[d] }

// DaycountAdjustment tells whether period end dates move to business days.
type DaycountAdjustment int

const (
	Adjusted DaycountAdjustment = iota
	Unadjusted
)

var daycountAdjustmentNames = map[DaycountAdjustment]string{
	Adjusted:   "Adjusted",
	Unadjusted: "Unadjusted",
}

func (a DaycountAdjustment) String() string { return daycountAdjustmentNames[a] }

// CommitmentType determines how a loan's commitment amount is calculated.
type CommitmentType int

const (
	LoanToCost CommitmentType = iota // A percentage of cost.
	CashAmount                       // A fixed cash amount.
)

var commitmentTypeNames = map[CommitmentType]string{
	LoanToCost: "LoanToCost",
	CashAmount: "CashAmount",
}

func (c CommitmentType) String() string { return commitmentTypeNames[c] }

// CommitmentStacking determines how a mezzanine loan-to-cost is expressed:
// as the thickness of its own tranche, or as the total leverage including the
// senior loans.
type CommitmentStacking int

const (
	Tranched CommitmentStacking = iota
	Total
)

var commitmentStackingNames = map[CommitmentStacking]string{
	Tranched: "Tranched",
	Total:    "Total",
}

func (c CommitmentStacking) String() string { return commitmentStackingNames[c] }

type Security int

const (
	Secured Security = iota
	Unsecured
)

var securityNames = map[Security]string{
	Secured:   "Secured",
	Unsecured: "Unsecured",
}

func (s Security) String() string { return securityNames[s] }

// DeploymentStatus tracks whether a revision was published.
type DeploymentStatus int

const (
	WorkInProgress DeploymentStatus = iota
	Deployed
)

var deploymentStatusNames = map[DeploymentStatus]string{
	WorkInProgress: "WorkInProgress",
	Deployed:       "Deployed",
}

func (s DeploymentStatus) String() string { return deploymentStatusNames[s] }
