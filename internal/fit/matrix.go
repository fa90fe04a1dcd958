package fit

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// ContributionMatrix maps salt quantities to ion concentrations.
// Row s holds the concentration each ion gains per unit of salt s.
type ContributionMatrix struct {
	salts int
	ions  int
	dense *mat.Dense // nil when salts or ions is zero
}

// NewContributionMatrix validates rows and copies them into a dense salts × ions matrix.
// Every row must have exactly ions entries, each finite and non-negative.
func NewContributionMatrix(ions int, rows [][]float64) (*ContributionMatrix, error) {
	m := &ContributionMatrix{salts: len(rows), ions: ions}
	if m.salts == 0 || ions == 0 {
		return m, nil
	}

	data := make([]float64, 0, m.salts*ions)
	for s, row := range rows {
		if len(row) != ions {
			return nil, fmt.Errorf("contribution row %d has %d entries, want %d", s, len(row), ions)
		}
		for i, v := range row {
			if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
				return nil, fmt.Errorf("contribution row %d entry %d must be a finite non-negative number, got %v", s, i, v)
			}
		}
		data = append(data, row...)
	}

	m.dense = mat.NewDense(m.salts, ions, data)
	return m, nil
}

// Dims returns the number of salts and ions.
func (m *ContributionMatrix) Dims() (salts, ions int) {
	return m.salts, m.ions
}

// At returns the contribution of salt s to ion i.
func (m *ContributionMatrix) At(s, i int) float64 {
	if m.dense == nil {
		panic("fit: index out of range")
	}
	return m.dense.At(s, i)
}

// Concentrations computes dst[i] = Σ_s M[s][i]*q[s].
// dst is reused when it has one entry per ion, otherwise a new slice is allocated.
// q must have one entry per salt.
func (m *ContributionMatrix) Concentrations(dst, q []float64) []float64 {
	if len(q) != m.salts {
		panic(fmt.Sprintf("fit: got %d quantities for %d salts", len(q), m.salts))
	}
	if len(dst) != m.ions {
		dst = make([]float64, m.ions)
	} else {
		for i := range dst {
			dst[i] = 0
		}
	}
	if m.dense == nil {
		return dst
	}

	for s, qs := range q {
		floats.AddScaled(dst, qs, m.dense.RawRowView(s))
	}
	return dst
}
