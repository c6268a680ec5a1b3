package grouping

import (
	"fmt"
	"math"
)

// DistanceFunc compares two descriptors. It must be symmetric and return 0 for
// identical descriptors; smaller means more similar.
type DistanceFunc func(a, b []float32) float64

// Metric names accepted by MetricByName.
const (
	MetricEuclidean = "euclidean"
	MetricCosine    = "cosine"
)

// EuclideanDistance computes the L2 distance between two descriptors.
// Descriptors of different length are never similar and return +Inf.
func EuclideanDistance(a, b []float32) float64 {
	if len(a) != len(b) {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		diff := float64(a[i]) - float64(b[i])
		sum += diff * diff
	}
	return math.Sqrt(sum)
}

// CosineDistance computes the cosine distance between two vectors
// Returns a value between 0 (identical) and 2 (opposite)
// Cosine distance = 1 - cosine similarity
// Identical vectors are exactly 0 apart. Descriptors of different length,
// empty or zero vectors are never similar to anything else and return +Inf.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}
	if equalDescriptors(a, b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return math.Inf(1)
	}

	similarity := dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors
	if similarity > 1 {
		similarity = 1
	}
	if similarity < -1 {
		similarity = -1
	}

	return 1 - similarity
}

func equalDescriptors(a, b []float32) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// MetricByName returns the distance function registered under name.
// An empty name selects the Euclidean metric.
func MetricByName(name string) (DistanceFunc, error) {
	switch name {
	case "", MetricEuclidean:
		return EuclideanDistance, nil
	case MetricCosine:
		return CosineDistance, nil
	default:
		return nil, fmt.Errorf("unknown distance metric %q", name)
	}
}
