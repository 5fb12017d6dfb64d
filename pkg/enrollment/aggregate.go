// Package enrollment builds the gallery from a labeled dataset: it collects
// embeddings from original and augmented photos and reduces them to one
// representative vector per identity.
package enrollment

import (
	"errors"
	"fmt"
	"sort"

	"github.com/MrCodeEU/faceroll/pkg/face"
)

// ErrNoEmbeddings is returned when an identity has no usable sample.
var ErrNoEmbeddings = errors.New("no valid embeddings")

// ErrNoFacesEnrolled is returned when no identity could be enrolled at all.
var ErrNoFacesEnrolled = errors.New("no faces detected in any images")

// Policy selects how samples are reduced.
type Policy string

const (
	// PolicyAuto uses the median with at least MedianMinSamples samples and
	// the mean otherwise.
	PolicyAuto   Policy = "auto"
	PolicyMean   Policy = "mean"
	PolicyMedian Policy = "median"
)

// MedianMinSamples is the sample count from which PolicyAuto uses the median.
const MedianMinSamples = 3

// ParsePolicy parses a policy name. The empty string means PolicyAuto.
func ParsePolicy(s string) (Policy, error) {
	switch Policy(s) {
	case "", PolicyAuto:
		return PolicyAuto, nil
	case PolicyMean, PolicyMedian:
		return Policy(s), nil
	default:
		return "", fmt.Errorf("unknown aggregation policy: %s", s)
	}
}

// Aggregator reduces the samples of one identity to a unit-norm vector.
type Aggregator struct {
	policy Policy
}

// NewAggregator creates an Aggregator for policy.
func NewAggregator(policy Policy) *Aggregator {
	if policy == "" {
		policy = PolicyAuto
	}
	return &Aggregator{policy: policy}
}

// Policy returns the configured policy.
func (a *Aggregator) Policy() Policy {
	return a.policy
}

// Aggregate normalizes every valid sample, reduces them element-wise and
// re-normalizes the result. Zero-norm samples are dropped, and so are samples
// outside the most common dimension (ties go to the smaller dimension). The
// result does not depend on sample order beyond float rounding.
func (a *Aggregator) Aggregate(identity string, embeddings []face.Embedding) (face.Embedding, error) {
	units := make([]face.Embedding, 0, len(embeddings))
	counts := make(map[int]int)
	for _, e := range embeddings {
		unit, err := e.Normalize()
		if err != nil {
			continue
		}
		units = append(units, unit)
		counts[len(unit)]++
	}

	dim := majorityDimension(counts)
	samples := units[:0]
	for _, u := range units {
		if len(u) == dim {
			samples = append(samples, u)
		}
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("identity %q: %w", identity, ErrNoEmbeddings)
	}

	var reduced face.Embedding
	switch a.resolve(len(samples)) {
	case PolicyMedian:
		reduced = Median(samples)
	default:
		reduced = Mean(samples)
	}

	out, err := reduced.Normalize()
	if err != nil {
		// Samples that cancel out leave nothing to represent the identity.
		return nil, fmt.Errorf("identity %q: %w: %v", identity, ErrNoEmbeddings, err)
	}
	return out, nil
}

func majorityDimension(counts map[int]int) int {
	best, bestCount := 0, 0
	for dim, n := range counts {
		if n > bestCount || (n == bestCount && dim < best) {
			best, bestCount = dim, n
		}
	}
	return best
}

func (a *Aggregator) resolve(n int) Policy {
	if a.policy == PolicyAuto {
		if n >= MedianMinSamples {
			return PolicyMedian
		}
		return PolicyMean
	}
	return a.policy
}

// Mean returns the element-wise mean. All samples must share one dimension.
func Mean(samples []face.Embedding) face.Embedding {
	if len(samples) == 0 {
		return nil
	}
	sums := make([]float64, len(samples[0]))
	for _, s := range samples {
		for i, v := range s {
			sums[i] += float64(v)
		}
	}
	out := make(face.Embedding, len(sums))
	for i, sum := range sums {
		out[i] = float32(sum / float64(len(samples)))
	}
	return out
}

// Median returns the element-wise median, averaging the two middle values
// for an even sample count.
func Median(samples []face.Embedding) face.Embedding {
	if len(samples) == 0 {
		return nil
	}
	n := len(samples)
	out := make(face.Embedding, len(samples[0]))
	column := make([]float64, n)
	for i := range out {
		for j, s := range samples {
			column[j] = float64(s[i])
		}
		sort.Float64s(column)
		if n%2 == 1 {
			out[i] = float32(column[n/2])
		} else {
			out[i] = float32((column[n/2-1] + column[n/2]) / 2)
		}
	}
	return out
}
