// Package ingest pulls hall ticket identifiers out of uploaded spreadsheets
// and free text.
package ingest

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/xuri/excelize/v2"
)

var ErrNoIdentifiers = errors.New("no hall ticket identifiers found")

// Patterns are tried in order on every cell; a value may match more than one.
var Patterns = []*regexp.Regexp{
	regexp.MustCompile(`\d{3}F1A\d{4}`),
	regexp.MustCompile(`\d{2}[A-Z]\d{2}[A-Z]\d{4}`),
	regexp.MustCompile(`\b\d{2}[A-Z]{1,2}\d{2}[A-Z]\d{2,4}\b`),
}

type collector struct {
	seen map[string]bool
	ids  []string
}

func newCollector() *collector {
	return &collector{seen: map[string]bool{}}
}

func (c *collector) scan(value string) {
	value = strings.ToUpper(strings.TrimSpace(value))
	if value == "" {
		return
	}
	for _, re := range Patterns {
		for _, m := range re.FindAllString(value, -1) {
			if !c.seen[m] {
				c.seen[m] = true
				c.ids = append(c.ids, m)
			}
		}
	}
}

// FromText returns the unique identifiers found in values, in first-seen order.
func FromText(values ...string) []string {
	c := newCollector()
	for _, v := range values {
		c.scan(v)
	}
	return c.ids
}

// Unique trims values and drops blanks and repeats, keeping first-seen order.
// Unlike FromText it accepts identifiers of any shape.
func Unique(values []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// Extract reads an xlsx workbook and returns the unique identifiers found in
// any cell of any sheet, in sheet, row, column order.
func Extract(r io.Reader) ([]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("workbook has no sheets: %w", ErrNoIdentifiers)
	}

	c := newCollector()
	for _, sheet := range sheets {
		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		for _, row := range rows {
			for _, cell := range row {
				c.scan(cell)
			}
		}
	}

	if len(c.ids) == 0 {
		return nil, ErrNoIdentifiers
	}
	return c.ids, nil
}
