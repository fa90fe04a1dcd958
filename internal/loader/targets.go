package loader

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/cwbudde/saltcalc/internal/fit"
)

// LoadTargets reads a target file for the given table.
func LoadTargets(path string, table *fit.Table) (fit.ConstraintSet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open targets: %w", err)
	}
	defer f.Close()

	cs, err := ParseTargets(f, table)
	if err != nil {
		return nil, withPath(err, path)
	}
	return cs, nil
}

// ParseTargets parses target records, one per line:
//
//	Ca 60            exact concentration
//	Mg 5 - 15        inclusive range
//	Na *             unconstrained
//	Cl : SO4 0.5     ratio of two ions
//
// Each ion may carry at most one single-ion record; any number of ratios is allowed.
func ParseTargets(r io.Reader, table *fit.Table) (fit.ConstraintSet, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}

	cs := fit.ConstraintSet{}
	claimed := make(map[int]int) // ion index -> line of its single-ion record

	ion := func(rec record, name string) (int, error) {
		i := table.IonIndex(name)
		if i < 0 {
			return 0, parseErrorf(rec.line, "unknown ion %q", name)
		}
		return i, nil
	}
	claim := func(rec record, i int) error {
		if prev, ok := claimed[i]; ok {
			return parseErrorf(rec.line, "ion %q already has a target on line %d", table.Ions[i], prev)
		}
		claimed[i] = rec.line
		return nil
	}

	for _, rec := range records {
		f := rec.fields

		switch {
		case len(f) == 2 && f[1] == "*":
			i, err := ion(rec, f[0])
			if err != nil {
				return nil, err
			}
			if err := claim(rec, i); err != nil {
				return nil, err
			}

		case len(f) == 2:
			i, err := ion(rec, f[0])
			if err != nil {
				return nil, err
			}
			target, err := parseMagnitude(rec.line, f[1], "target")
			if err != nil {
				return nil, err
			}
			if err := claim(rec, i); err != nil {
				return nil, err
			}
			cs = append(cs, fit.Exact{Ion: i, Name: f[0], Target: target})

		case len(f) == 4 && f[2] == "-":
			i, err := ion(rec, f[0])
			if err != nil {
				return nil, err
			}
			lo, err := parseMagnitude(rec.line, f[1], "minimum")
			if err != nil {
				return nil, err
			}
			hi, err := parseMagnitude(rec.line, f[3], "maximum")
			if err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, parseErrorf(rec.line, "range minimum %s exceeds maximum %s", f[1], f[3])
			}
			if err := claim(rec, i); err != nil {
				return nil, err
			}
			cs = append(cs, fit.Range{Ion: i, Name: f[0], Min: lo, Max: hi})

		case len(f) == 4 && f[1] == ":":
			num, err := ion(rec, f[0])
			if err != nil {
				return nil, err
			}
			den, err := ion(rec, f[2])
			if err != nil {
				return nil, err
			}
			if num == den {
				return nil, parseErrorf(rec.line, "ratio of %q to itself", f[0])
			}
			target, err := parseMagnitude(rec.line, f[3], "ratio")
			if err != nil {
				return nil, err
			}
			cs = append(cs, fit.Ratio{
				Numerator:       num,
				Denominator:     den,
				NumeratorName:   f[0],
				DenominatorName: f[2],
				Target:          target,
			})

		default:
			return nil, parseErrorf(rec.line, "unrecognized target %q", strings.Join(f, " "))
		}
	}

	return cs, nil
}
