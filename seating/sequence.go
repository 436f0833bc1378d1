package seating

import (
	"regexp"
	"slices"
	"strconv"
	"strings"
)

var suffixRe = regexp.MustCompile(`\d{2,4}`)

// Sequence orders identifiers by branch, then by their trailing number within
// a branch. The result depends only on the multiset of inputs.
func Sequence(identifiers []string, c *Classifier) []string {
	if c == nil {
		c = defaultClassifier
	}
	type keyed struct {
		id     string
		branch string
		num    int
		hasNum bool
	}
	ks := make([]keyed, len(identifiers))
	for i, id := range identifiers {
		num, ok := numericSuffix(id)
		ks[i] = keyed{id: id, branch: c.Classify(id), num: num, hasNum: ok}
	}

	// canonical starting order so that ties never depend on input order
	slices.SortFunc(ks, func(a, b keyed) int { return strings.Compare(a.id, b.id) })
	slices.SortStableFunc(ks, func(a, b keyed) int {
		if d := strings.Compare(a.branch, b.branch); d != 0 {
			return d
		}
		if a.hasNum && b.hasNum && a.num != b.num {
			return a.num - b.num
		}
		return strings.Compare(a.id, b.id)
	})

	out := make([]string, len(ks))
	for i, k := range ks {
		out[i] = k.id
	}
	return out
}

// Candidates sequences identifiers and tags each with its branch.
func Candidates(identifiers []string, c *Classifier) []Candidate {
	if c == nil {
		c = defaultClassifier
	}
	ordered := Sequence(identifiers, c)
	cands := make([]Candidate, len(ordered))
	for i, id := range ordered {
		cands[i] = Candidate{ID: id, Branch: c.Classify(id)}
	}
	return cands
}

func numericSuffix(id string) (int, bool) {
	runs := suffixRe.FindAllString(id, -1)
	if len(runs) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(runs[len(runs)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}
