package seating

import (
	"maps"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

const (
	DefaultMarker = "F1A"
	UnknownBranch = "Unknown"
)

var (
	trailingCodeRe = regexp.MustCompile(`[A-Z]+(\d{2})\d+$`)
	innerCodeRe    = regexp.MustCompile(`[A-Z]+(\d{2})\d+`)
	twoDigitRe     = regexp.MustCompile(`\d{2}`)
)

// DefaultBranches returns a fresh copy of the stock branch-code table.
func DefaultBranches() map[string]string {
	return map[string]string{
		"01": "CIVIL",
		"02": "EEE",
		"03": "MECH",
		"04": "ECE",
		"05": "CSE",
		"12": "IT",
	}
}

// Classifier maps candidate identifiers to branch labels. It is safe for
// concurrent use; the branch table is copied on construction and never
// modified afterwards.
type Classifier struct {
	marker   *regexp.Regexp
	branches map[string]string
}

func NewClassifier(marker string, branches map[string]string) *Classifier {
	if marker == "" {
		marker = DefaultMarker
	}
	table := make(map[string]string, len(branches))
	for code, name := range branches {
		table[code] = strings.TrimSpace(name)
	}
	return &Classifier{
		marker:   regexp.MustCompile(regexp.QuoteMeta(strings.ToUpper(marker)) + `(\d{2})`),
		branches: table,
	}
}

var defaultClassifier = NewClassifier(DefaultMarker, DefaultBranches())

// Classify uses the stock marker and branch table.
func Classify(identifier string) string {
	return defaultClassifier.Classify(identifier)
}

func (c *Classifier) Classify(identifier string) string {
	code, ok := c.Code(identifier)
	if !ok {
		return UnknownBranch
	}
	if name, ok := c.branches[code]; ok {
		return name
	}
	return UnknownBranch + "-" + code
}

// Code extracts the two-digit branch code embedded in identifier. The rules
// are tried in order and the first one that yields a code wins.
func (c *Classifier) Code(identifier string) (string, bool) {
	s := strings.ToUpper(strings.TrimSpace(identifier))
	if s == "" {
		return "", false
	}

	if m := c.marker.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := trailingCodeRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}
	if m := innerCodeRe.FindStringSubmatch(s); m != nil {
		return m[1], true
	}

	if utf8.RuneCountInString(s) == 10 {
		r := []rune(s)
		if code := string(r[5:7]); isTwoDigits(code) {
			return code, true
		}
		if code := string(r[7:9]); isTwoDigits(code) {
			return code, true
		}
	}

	pairs := twoDigitRe.FindAllString(s, -1)
	for _, p := range pairs {
		if _, ok := c.branches[p]; ok {
			return p, true
		}
	}
	switch {
	case len(pairs) >= 2:
		return pairs[len(pairs)-2], true
	case len(pairs) == 1:
		return pairs[0], true
	}
	return "", false
}

// Branches returns the distinct branch names of the table in sorted order.
func (c *Classifier) Branches() []string {
	names := slices.Collect(maps.Values(c.branches))
	slices.Sort(names)
	return slices.Compact(names)
}

// Table returns a copy of the code-to-branch table.
func (c *Classifier) Table() map[string]string {
	return maps.Clone(c.branches)
}

func isTwoDigits(s string) bool {
	return len(s) == 2 && s[0] >= '0' && s[0] <= '9' && s[1] >= '0' && s[1] <= '9'
}
