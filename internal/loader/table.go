package loader

import (
	"fmt"
	"io"
	"os"

	"github.com/cwbudde/saltcalc/internal/fit"
)

// LoadTable reads a contribution table file.
func LoadTable(path string) (*fit.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open contribution table: %w", err)
	}
	defer f.Close()

	table, err := ParseTable(f)
	if err != nil {
		return nil, withPath(err, path)
	}
	return table, nil
}

// ParseTable parses a contribution table.
//
// The first record lists the ion names. Every following record is a salt name followed
// by one non-negative contribution per ion:
//
//	Ca   Mg   Na  SO4  Cl   HCO3-
//	CaSO4 232.8 0 0 558.0 0 0
func ParseTable(r io.Reader) (*fit.Table, error) {
	records, err := readRecords(r)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ParseError{Reason: "contribution table is empty"}
	}

	header := records[0]
	ions := header.fields
	seenIons := make(map[string]bool, len(ions))
	for _, ion := range ions {
		if seenIons[ion] {
			return nil, parseErrorf(header.line, "duplicate ion %q", ion)
		}
		seenIons[ion] = true
	}

	salts := make([]string, 0, len(records)-1)
	rows := make([][]float64, 0, len(records)-1)
	seenSalts := make(map[string]bool, len(records)-1)

	for _, rec := range records[1:] {
		if len(rec.fields) != len(ions)+1 {
			return nil, parseErrorf(rec.line, "expected salt name and %d values, got %d fields", len(ions), len(rec.fields))
		}

		name := rec.fields[0]
		if seenSalts[name] {
			return nil, parseErrorf(rec.line, "duplicate salt %q", name)
		}
		seenSalts[name] = true

		row := make([]float64, len(ions))
		for i, field := range rec.fields[1:] {
			v, err := parseMagnitude(rec.line, field, "contribution of "+name+" to "+ions[i])
			if err != nil {
				return nil, err
			}
			row[i] = v
		}

		salts = append(salts, name)
		rows = append(rows, row)
	}

	return fit.NewTable(ions, salts, rows)
}
