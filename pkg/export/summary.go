package export

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/gnsslab/gorinex/pkg/rinex"
)

// Summary holds observation-table statistics for the text summary.
type Summary struct {
	ObsByConstellation  map[string]int
	SatsByConstellation map[string]int
	Start, End          time.Time
}

// Summarize computes the summary statistics of an observation table.
func Summarize(obs []rinex.Observation) *Summary {
	sum := &Summary{
		ObsByConstellation:  map[string]int{},
		SatsByConstellation: map[string]int{},
	}

	sats := map[string]struct{}{}
	for _, o := range obs {
		sum.ObsByConstellation[o.Constellation]++
		if _, seen := sats[o.Sat]; !seen {
			sats[o.Sat] = struct{}{}
			sum.SatsByConstellation[o.Constellation]++
		}
		if sum.Start.IsZero() || o.Date.Before(sum.Start) {
			sum.Start = o.Date
		}
		if o.Date.After(sum.End) {
			sum.End = o.Date
		}
	}
	return sum
}

// Write renders the summary as plain text.
func (sum *Summary) Write(w io.Writer) error {
	fmt.Fprintln(w, "RINEX Observation Data Summary")
	fmt.Fprintln(w, "==============================")
	fmt.Fprintln(w)

	fmt.Fprintln(w, "Observations by Constellation:")
	for _, sys := range sortedKeys(sum.ObsByConstellation) {
		fmt.Fprintf(w, "  %s: %d\n", sys, sum.ObsByConstellation[sys])
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, "Satellites by Constellation:")
	for _, sys := range sortedKeys(sum.SatsByConstellation) {
		fmt.Fprintf(w, "  %s: %d\n", sys, sum.SatsByConstellation[sys])
	}

	if !sum.Start.IsZero() {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "Date Range:")
		fmt.Fprintf(w, "  Start: %s\n", sum.Start.Format("2006-01-02"))
		if _, err := fmt.Fprintf(w, "  End: %s\n", sum.End.Format("2006-01-02")); err != nil {
			return err
		}
	}
	return nil
}

// WriteSummary writes the summary of an observation table to a text file,
// creating the output directory if necessary.
func WriteSummary(path string, obs []rinex.Observation) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return errors.Wrap(err, "create output dir")
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "write summary %s", path)
	}
	defer f.Close()

	if err := Summarize(obs).Write(f); err != nil {
		return errors.Wrapf(err, "write summary %s", path)
	}
	return f.Close()
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
