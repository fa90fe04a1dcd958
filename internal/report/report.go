// Package report formats the outcome of a dosing search for people.
package report

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"text/tabwriter"

	"github.com/cwbudde/saltcalc/internal/fit"
)

const (
	markPass = "ok"
	markFail = "FAIL"
)

// Report is everything needed to print a dosing plan.
type Report struct {
	Table       *fit.Table
	Constraints fit.ConstraintSet
	Result      *fit.OptimizationResult
	Volume      float64 // litres of water to treat
}

// Write prints the target, achieved concentrations, alkalinity, and salt additions.
func Write(w io.Writer, r Report) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	conc := r.Result.Concentrations

	fmt.Fprintln(tw, "Target concentrations:")
	fmt.Fprintln(tw)
	if len(r.Constraints) == 0 {
		fmt.Fprintln(tw, "  (none)")
	}
	for _, c := range r.Constraints {
		fmt.Fprintf(tw, "  %s\n", c)
	}

	fmt.Fprintln(tw)
	fmt.Fprintln(tw, "Achieved concentrations:")
	fmt.Fprintln(tw)
	for i, ion := range r.Table.Ions {
		mark := ""
		if c, ok := r.Constraints.ForIon(i); ok {
			mark = passMark(c.Satisfied(conc))
		}
		fmt.Fprintf(tw, "  %s\t%s\t%s\n", ion, formatValue(conc[i]), mark)
	}

	ratios := false
	for _, check := range r.Result.Checks {
		ratio, ok := check.Constraint.(fit.Ratio)
		if !ok {
			continue
		}
		if !ratios {
			fmt.Fprintln(tw)
			fmt.Fprintln(tw, "Achieved ratios:")
			fmt.Fprintln(tw)
			ratios = true
		}
		fmt.Fprintf(tw, "  %s : %s\t%s\t%s\n", ratio.NumeratorName, ratio.DenominatorName, formatValue(check.Achieved), passMark(check.Pass))
	}

	if alk, ok := fit.Alkalinity(r.Table, conc); ok {
		fmt.Fprintln(tw)
		fmt.Fprintf(tw, "Alkalinity (as CaCO3):\t%s\n", formatValue(alk))
	}

	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Salt additions for %sl of water:\n", strconv.FormatFloat(r.Volume, 'g', -1, 64))
	fmt.Fprintln(tw)
	for s, salt := range r.Table.Salts {
		fmt.Fprintf(tw, "  %s\t%.3f g\n", salt, r.Result.Quantities[s]*r.Volume)
	}

	fmt.Fprintln(tw)
	fmt.Fprintf(tw, "Error:\t%.6g\n", r.Result.Error)

	return tw.Flush()
}

// Summary counts passed and failed constraints.
func Summary(checks []fit.Check) (passed, failed int) {
	for _, c := range checks {
		if c.Pass {
			passed++
		} else {
			failed++
		}
	}
	return passed, failed
}

func passMark(ok bool) string {
	if ok {
		return markPass
	}
	return markFail
}

func formatValue(v float64) string {
	if math.IsNaN(v) {
		return "n/a"
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}
