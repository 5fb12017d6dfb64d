// Package visualize renders enrollment embeddings as a 2-D scatter plot so
// identity clusters can be checked by eye.
package visualize

import (
	"errors"
	"fmt"
	"math"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

// ErrVisualization is returned when the plot cannot be produced.
var ErrVisualization = errors.New("visualization failed")

const powerIterations = 200

// Project standardizes the samples per dimension and projects them onto the
// first two principal components.
func Project(samples []face.Embedding) ([][2]float64, error) {
	n := len(samples)
	if n < 2 {
		return nil, fmt.Errorf("%w: need at least 2 samples, got %d", ErrVisualization, n)
	}
	d := len(samples[0])
	if d < 2 {
		return nil, fmt.Errorf("%w: need at least 2 dimensions", ErrVisualization)
	}

	x := make([][]float64, n)
	for i, s := range samples {
		if len(s) != d {
			return nil, fmt.Errorf("%w: sample %d has %d dimensions, want %d", ErrVisualization, i, len(s), d)
		}
		x[i] = make([]float64, d)
		for j, v := range s {
			x[i][j] = float64(v)
		}
	}
	standardize(x)

	cov := covariance(x)
	v1, l1 := principal(cov)
	deflate(cov, v1, l1)
	v2, _ := principal(cov)

	out := make([][2]float64, n)
	for i, row := range x {
		out[i] = [2]float64{dot(row, v1), dot(row, v2)}
	}
	return out, nil
}

// standardize scales every column to zero mean and unit variance. Constant
// columns are only centered.
func standardize(x [][]float64) {
	n := float64(len(x))
	for j := range x[0] {
		var mean float64
		for i := range x {
			mean += x[i][j]
		}
		mean /= n

		var variance float64
		for i := range x {
			diff := x[i][j] - mean
			variance += diff * diff
		}
		std := math.Sqrt(variance / n)
		if std == 0 {
			std = 1
		}
		for i := range x {
			x[i][j] = (x[i][j] - mean) / std
		}
	}
}

func covariance(x [][]float64) [][]float64 {
	d := len(x[0])
	n := float64(len(x))
	cov := make([][]float64, d)
	for a := range cov {
		cov[a] = make([]float64, d)
	}
	for _, row := range x {
		for a := 0; a < d; a++ {
			for b := a; b < d; b++ {
				cov[a][b] += row[a] * row[b]
			}
		}
	}
	for a := 0; a < d; a++ {
		for b := a; b < d; b++ {
			cov[a][b] /= n
			cov[b][a] = cov[a][b]
		}
	}
	return cov
}

// principal returns the dominant eigenvector and eigenvalue by power
// iteration from a fixed start vector.
func principal(m [][]float64) ([]float64, float64) {
	d := len(m)
	v := make([]float64, d)
	for i := range v {
		v[i] = 1 + float64(i%7)/10
	}
	normalize(v)

	next := make([]float64, d)
	var lambda float64
	for it := 0; it < powerIterations; it++ {
		for i := range m {
			next[i] = dot(m[i], v)
		}
		lambda = math.Sqrt(dot(next, next))
		if lambda == 0 {
			return v, 0
		}
		for i := range v {
			v[i] = next[i] / lambda
		}
	}
	return v, lambda
}

func deflate(m [][]float64, v []float64, lambda float64) {
	for a := range m {
		for b := range m[a] {
			m[a][b] -= lambda * v[a] * v[b]
		}
	}
}

func normalize(v []float64) {
	n := math.Sqrt(dot(v, v))
	if n == 0 {
		return
	}
	for i := range v {
		v[i] /= n
	}
}

func dot(a, b []float64) float64 {
	var s float64
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
