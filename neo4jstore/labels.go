package neo4jstore

import (
	"strings"
	"unicode"

	"github.com/go-vectis/vectis"
)

// documentLabel is carried by every node a Store writes.
const documentLabel = "Document"

// Label returns the node label of a discriminator: its letters and digits, in
// order. "Scheme Record" becomes SchemeRecord.
func Label(discriminator string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return r
		}
		return -1
	}, discriminator)
}

// Labels returns the labels of every discriminator registered with reg, in the
// order of reg.Discriminators.
func Labels(reg *vectis.Registry) []string {
	ds := reg.Discriminators()
	labels := make([]string, 0, len(ds))
	for _, d := range ds {
		labels = append(labels, Label(d))
	}
	return labels
}
