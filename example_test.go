package vectis_test

import (
	"fmt"
	"time"

	"github.com/go-vectis/vectis"
	"github.com/go-vectis/vectis/model"
)

// The following example replays the history of a scheme and its senior loan,
// then queries the resulting dataset.
func ExampleReplayer_ReplayAll() {
	reg := model.NewRegistry()
	at := time.Date(2024, time.March, 1, 0, 0, 0, 0, time.UTC)
	hdr := func(eventID, objectID string) vectis.EventHeader {
		return vectis.EventHeader{PartitionKey: "scheme-1", ID: eventID, UserID: "alice", Timestamp: at, ObjectID: objectID}
	}

	d, err := vectis.NewReplayer(reg).ReplayAll(nil,
		vectis.CreateObjectEvent{
			EventHeader:   hdr("ev-1", "scheme-1"),
			Discriminator: model.SchemeDiscriminator,
			Properties:    vectis.PropertyList{{Name: "Name", Value: "Riverside"}},
		},
		vectis.CreateObjectEvent{
			EventHeader:   hdr("ev-2", "loan-1"),
			Discriminator: model.LoanDiscriminator,
			Properties: vectis.PropertyList{
				{Name: "Name", Value: "Senior Facility"},
				{Name: "Ranking", Value: "1"},
				{Name: "TotalCommitmentAmount", Value: "12500000"},
			},
		},
		vectis.UpdatePropertyEvent{
			EventHeader:  hdr("ev-3", "loan-1"),
			PropertyName: "Ranking",
			NextValue:    "2",
		},
	)
	if err != nil {
		fmt.Println("replay:", err)
		return
	}

	scheme := d.Owner().(*model.Scheme)
	fmt.Println(scheme.Name)
	for _, l := range model.Loans(d) {
		fs := l.FundingSourceCore()
		fmt.Printf("%s ranks %d, commits %s (event %s)\n", fs.Name, fs.Ranking, l.LoanCore().TotalCommitmentAmount, l.Core().EventID())
	}
	// Output:
	// Riverside
	// Senior Facility ranks 2, commits 12500000 (event ev-3)
}
