package fit

import (
	"fmt"
	"math"
)

// HCO3 is the ion name that enables the alkalinity figure.
const HCO3 = "HCO3-"

// Table holds the ions and salts of a run together with their contribution matrix.
// It is built once at startup and never mutated afterwards.
type Table struct {
	Ions   []string
	Salts  []string
	Matrix *ContributionMatrix
}

// NewTable creates a table from ion names, salt names and one contribution row per salt.
func NewTable(ions, salts []string, rows [][]float64) (*Table, error) {
	if len(rows) != len(salts) {
		return nil, fmt.Errorf("got %d contribution rows for %d salts", len(rows), len(salts))
	}

	m, err := NewContributionMatrix(len(ions), rows)
	if err != nil {
		return nil, err
	}

	return &Table{
		Ions:   append([]string(nil), ions...),
		Salts:  append([]string(nil), salts...),
		Matrix: m,
	}, nil
}

// IonIndex returns the index of the named ion, or -1.
func (t *Table) IonIndex(name string) int {
	for i, ion := range t.Ions {
		if ion == name {
			return i
		}
	}
	return -1
}

// Alkalinity returns the CaCO3-equivalent alkalinity derived from the HCO3- concentration.
// The second result is false when the table has no HCO3- ion.
func Alkalinity(t *Table, concentrations []float64) (float64, bool) {
	i := t.IonIndex(HCO3)
	if i < 0 {
		return 0, false
	}
	return concentrations[i] * 50 / 61, true
}

// Bounds defines the quantity range handed to an optimizer.
// For the nudge search Upper only bounds the initial draw; quantities may grow past it.
type Bounds struct {
	Lower []float64
	Upper []float64
}

// NewBounds creates bounds [0, initMax] for every salt.
func NewBounds(salts int, initMax float64) *Bounds {
	lower := make([]float64, salts)
	upper := make([]float64, salts)
	for s := range upper {
		upper[s] = initMax
	}
	return &Bounds{Lower: lower, Upper: upper}
}

// ClampLower raises every quantity to at least its lower bound.
func (b *Bounds) ClampLower(data []float64) {
	for i := range data {
		data[i] = math.Max(b.Lower[i], data[i])
	}
}
