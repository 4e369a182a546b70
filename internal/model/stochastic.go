package model

import (
	"fmt"
	"math"

	"github.com/Harshitk-cp/bayesd/internal/domain"
	"go.uber.org/zap"
)

// normalizeVector returns v rescaled to sum to one. Negative or NaN entries are rejected;
// an all-zero vector becomes uniform. fixed reports whether rescaling was needed.
func normalizeVector(v []float64) (out []float64, fixed bool, err error) {
	out = make([]float64, len(v))
	var sum float64
	for i, x := range v {
		if math.IsNaN(x) || math.IsInf(x, 0) || x < 0 {
			return nil, false, fmt.Errorf("%w: probability %v at index %d", domain.ErrInvalidModel, x, i)
		}
		sum += x
	}
	if sum == 0 {
		u := 1 / float64(len(v))
		for i := range out {
			out[i] = u
		}
		return out, true, nil
	}
	for i, x := range v {
		out[i] = x / sum
	}
	return out, math.Abs(sum-1) > domain.Epsilon, nil
}

// normalizeRows makes every row of m sum to one, logging a warning for each row that
// had to be corrected. The input is not modified.
func normalizeRows(name string, m [][]float64, cols int, logger *zap.Logger) ([][]float64, error) {
	out := make([][]float64, len(m))
	for i, row := range m {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: %s row %d has %d entries, want %d", domain.ErrInvalidModel, name, i, len(row), cols)
		}
		norm, fixed, err := normalizeVector(row)
		if err != nil {
			return nil, fmt.Errorf("%s row %d: %w", name, i, err)
		}
		if fixed {
			logger.Warn("matrix row is not stochastic, renormalized",
				zap.String("matrix", name),
				zap.Int("row", i),
				zap.Float64("sum", sum(row)))
		}
		out[i] = norm
	}
	return out, nil
}

func uniformMatrix(rows, cols int) [][]float64 {
	out := make([][]float64, rows)
	for i := range out {
		out[i] = uniformVector(cols)
	}
	return out
}

func uniformVector(n int) []float64 {
	v := make([]float64, n)
	for i := range v {
		v[i] = 1 / float64(n)
	}
	return v
}

func sum(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x
	}
	return s
}

func indexOf(names []string) (map[string]int, error) {
	idx := make(map[string]int, len(names))
	for i, n := range names {
		if n == "" {
			return nil, fmt.Errorf("%w: empty state name", domain.ErrInvalidModel)
		}
		if _, dup := idx[n]; dup {
			return nil, fmt.Errorf("%w: duplicate state %q", domain.ErrInvalidModel, n)
		}
		idx[n] = i
	}
	return idx, nil
}

func copyMatrix(m [][]float64) [][]float64 {
	out := make([][]float64, len(m))
	for i, row := range m {
		out[i] = append([]float64(nil), row...)
	}
	return out
}
