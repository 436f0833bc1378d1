package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"examseat/config"
	"examseat/ingest"
	"examseat/seating"
)

type runResult struct {
	rooms       int
	emptySeats  int
	violations  int
	perRoom     []int
	fingerprint string
	elapsed     time.Duration
}

func printStats(label string, results []runResult, runs int) {
	fmt.Printf("--- %s ---\n", label)
	if len(results) == 0 {
		fmt.Printf("  no successful runs\n\n")
		return
	}

	var totalTime time.Duration
	fingerprints := map[string]int{}
	for _, r := range results {
		totalTime += r.elapsed
		fingerprints[r.fingerprint]++
	}
	first := results[0]

	fmt.Printf("  avg time: %v\n", totalTime/time.Duration(len(results)))
	fmt.Printf("  rooms: %d, empty seats: %d\n", first.rooms, first.emptySeats)
	fmt.Printf("  adjacent same-branch pairs: %d\n", first.violations)
	fmt.Printf("  occupancy per room: %v\n", first.perRoom)
	fmt.Printf("  distinct plans across %d/%d runs: %d\n", len(results), runs, len(fingerprints))
	if len(fingerprints) == 1 {
		fmt.Printf("  plan is stable\n")
	}
	fmt.Println()
}

func branchStats(ids []string, c *seating.Classifier) {
	counts := map[string]int{}
	for _, id := range ids {
		counts[c.Classify(id)]++
	}
	var names []string
	for name := range counts {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if counts[names[i]] != counts[names[j]] {
			return counts[names[i]] > counts[names[j]]
		}
		return names[i] < names[j]
	})
	fmt.Printf("Branches:")
	for _, name := range names {
		fmt.Printf(" %s=%d", name, counts[name])
	}
	fmt.Printf("\n")
}

func main() {
	file := flag.String("file", "", "xlsx workbook or text file of hall ticket numbers (one or more per line)")
	synthetic := flag.String("synthetic", "01:6,02:6,03:6,04:6", "comma-separated code:count pairs used when -file is empty")
	runs := flag.Int("runs", 20, "number of placement runs per parameter set")
	perRoom := flag.String("per", "24,30", "comma-separated students-per-room values")
	layouts := flag.String("layouts", "4x6,5x5", "comma-separated RxC room layouts")
	marker := flag.String("marker", seating.DefaultMarker, "college marker preceding the branch code")
	branches := flag.String("branches", "", "branch table as code=NAME pairs, e.g. 05=CSE,12=IT")
	flag.Parse()

	table := seating.DefaultBranches()
	if *branches != "" {
		var err error
		if table, err = config.ParseBranchCodes(*branches); err != nil {
			fmt.Fprintf(os.Stderr, "parsing branches: %v\n", err)
			os.Exit(1)
		}
	}
	classifier := seating.NewClassifier(*marker, table)

	ids, err := loadIdentifiers(*file, *synthetic, *marker)
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading candidates: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Candidates: %d\n", len(ids))
	branchStats(ids, classifier)
	fmt.Printf("Runs per config: %d\n\n", *runs)

	for _, per := range parseIntList(*perRoom) {
		for _, layout := range parseLayouts(*layouts) {
			var results []runResult
			for range *runs {
				start := time.Now()
				plan, err := seating.Generate(ids, per, layout, classifier)
				elapsed := time.Since(start)
				if err != nil {
					fmt.Fprintf(os.Stderr, "per=%d layout=%dx%d: %v\n", per, layout.Rows, layout.Cols, err)
					break
				}
				var occupied []int
				for _, room := range plan.Rooms {
					occupied = append(occupied, room.Occupied())
				}
				results = append(results, runResult{
					rooms:       len(plan.Rooms),
					emptySeats:  plan.EmptySeats(),
					violations:  plan.Violations(),
					perRoom:     occupied,
					fingerprint: plan.Fingerprint(),
					elapsed:     elapsed,
				})
			}
			label := fmt.Sprintf("per=%d layout=%dx%d capacity=%d", per, layout.Rows, layout.Cols, layout.Capacity())
			printStats(label, results, *runs)
		}
	}
}

func loadIdentifiers(file, synthetic, marker string) ([]string, error) {
	if file == "" {
		return syntheticIdentifiers(synthetic, marker)
	}
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(file), ".xlsx") {
		return ingest.Extract(f)
	}

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	ids := ingest.FromText(lines...)
	if len(ids) == 0 {
		ids = ingest.Unique(lines)
	}
	if len(ids) == 0 {
		return nil, ingest.ErrNoIdentifiers
	}
	return ids, nil
}

// syntheticIdentifiers builds identifiers like 259F1A0501 from "05:40".
func syntheticIdentifiers(pairs, marker string) ([]string, error) {
	var ids []string
	for _, part := range strings.Split(pairs, ",") {
		code, count, ok := strings.Cut(strings.TrimSpace(part), ":")
		if !ok {
			return nil, fmt.Errorf("invalid synthetic entry %q", part)
		}
		n, err := strconv.Atoi(count)
		if err != nil || n < 0 {
			return nil, fmt.Errorf("invalid count in %q", part)
		}
		for k := 1; k <= n; k++ {
			ids = append(ids, fmt.Sprintf("259%s%s%02d", marker, code, k))
		}
	}
	if len(ids) == 0 {
		return nil, ingest.ErrNoIdentifiers
	}
	return ids, nil
}

func parseLayouts(s string) []seating.Layout {
	var result []seating.Layout
	for _, p := range strings.Split(s, ",") {
		rows, cols, ok := strings.Cut(strings.ToLower(strings.TrimSpace(p)), "x")
		if !ok {
			continue
		}
		r, err1 := strconv.Atoi(rows)
		c, err2 := strconv.Atoi(cols)
		if err1 == nil && err2 == nil {
			result = append(result, seating.Layout{Rows: r, Cols: c})
		}
	}
	return result
}

func parseIntList(s string) []int {
	parts := strings.Split(s, ",")
	var result []int
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err == nil {
			result = append(result, v)
		}
	}
	return result
}
