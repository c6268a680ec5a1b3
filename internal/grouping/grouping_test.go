package grouping

import (
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"reflect"
	"testing"

	"github.com/kozaktomas/face-groups/internal/constants"
)

// tableDistance looks distances up by the node id stored in descriptor[0].
func tableDistance(pairs map[[2]int]float64) DistanceFunc {
	return func(a, b []float32) float64 {
		x, y := int(a[0]), int(b[0])
		if x == y {
			return 0
		}
		if x > y {
			x, y = y, x
		}
		if d, ok := pairs[[2]int{x, y}]; ok {
			return d
		}
		return math.Inf(1)
	}
}

func node(id int) []float32 {
	return []float32{float32(id)}
}

func mustEngine(t *testing.T, threshold float64, distance DistanceFunc) *Engine {
	t.Helper()
	e, err := New(threshold, distance)
	if err != nil {
		t.Fatalf("New(%v) returned error: %v", threshold, err)
	}
	return e
}

func refsOf(groups []Group) [][]string {
	out := make([][]string, len(groups))
	for i, g := range groups {
		out[i] = g.Refs
	}
	return out
}

func TestNew_InvalidThreshold(t *testing.T) {
	for _, threshold := range []float64{-0.1, math.NaN()} {
		t.Run(fmt.Sprint(threshold), func(t *testing.T) {
			_, err := New(threshold, nil)
			if !errors.Is(err, ErrInvalidThreshold) {
				t.Errorf("expected ErrInvalidThreshold, got %v", err)
			}
		})
	}
}

func TestNew_ZeroThresholdAllowed(t *testing.T) {
	e := mustEngine(t, 0, nil)
	if e.Threshold() != 0 {
		t.Errorf("expected threshold 0, got %v", e.Threshold())
	}
}

func TestGroup_Empty(t *testing.T) {
	e := mustEngine(t, constants.DefaultDistanceThreshold, nil)

	groups := e.Group(nil)
	if groups == nil {
		t.Fatal("expected non-nil empty slice")
	}
	if len(groups) != 0 {
		t.Errorf("expected 0 groups, got %d", len(groups))
	}
}

func TestGroup_ThreeCloseFacesFormOneGroup(t *testing.T) {
	e := mustEngine(t, 0.6, nil)
	// Equilateral triangle with side 0.1.
	faces := []Face{
		{Ref: "a", Descriptor: []float32{0, 0}},
		{Ref: "b", Descriptor: []float32{0.1, 0}},
		{Ref: "c", Descriptor: []float32{0.05, 0.0866}},
	}

	groups := e.Group(faces)

	want := [][]string{{"a", "b", "c"}}
	if got := refsOf(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}

func TestGroup_DistantFacesAreSingletons(t *testing.T) {
	e := mustEngine(t, 0.6, nil)
	faces := []Face{
		{Ref: "a", Descriptor: []float32{0}},
		{Ref: "b", Descriptor: []float32{0.9}},
	}

	groups := e.Group(faces)

	want := [][]string{{"a"}, {"b"}}
	if got := refsOf(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}

func TestGroup_TransitiveChain(t *testing.T) {
	e := mustEngine(t, 0.4, tableDistance(map[[2]int]float64{
		{0, 1}: 0.3, // A-B
		{1, 2}: 0.3, // B-C
		{0, 2}: 0.9, // A-C
	}))
	faces := []Face{
		{Ref: "A", Descriptor: node(0)},
		{Ref: "C", Descriptor: node(2)},
		{Ref: "B", Descriptor: node(1)},
	}

	groups := e.Group(faces)

	want := [][]string{{"A", "C", "B"}}
	if got := refsOf(groups); !reflect.DeepEqual(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}

func TestGroup_ThresholdBoundaryIsInclusive(t *testing.T) {
	faces := []Face{
		{Ref: "a", Descriptor: []float32{0}},
		{Ref: "b", Descriptor: []float32{0.5}},
	}

	tests := []struct {
		name      string
		threshold float64
		want      int
	}{
		{"exactly at threshold", 0.5, 1},
		{"just below distance", math.Nextafter(0.5, 0), 2},
		{"above distance", 0.75, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := mustEngine(t, tt.threshold, nil)
			if got := len(e.Group(faces)); got != tt.want {
				t.Errorf("threshold %v: got %d groups, want %d", tt.threshold, got, tt.want)
			}
		})
	}
}

func TestGroup_ZeroThresholdJoinsIdenticalDescriptors(t *testing.T) {
	e := mustEngine(t, 0, nil)
	faces := []Face{
		{Ref: "a", Descriptor: []float32{0.2, 0.4}},
		{Ref: "b", Descriptor: []float32{0.2, 0.4}},
		{Ref: "c", Descriptor: []float32{0.2, 0.41}},
	}

	want := [][]string{{"a", "b"}, {"c"}}
	if got := refsOf(e.Group(faces)); !reflect.DeepEqual(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}

func TestGroup_DuplicateReferencesAreIndependent(t *testing.T) {
	e := mustEngine(t, 0.6, nil)
	faces := []Face{
		{Ref: "same.jpg", Descriptor: []float32{0}},
		{Ref: "other.jpg", Descriptor: []float32{5}},
		{Ref: "same.jpg", Descriptor: []float32{0}},
	}

	want := [][]string{{"same.jpg", "same.jpg"}, {"other.jpg"}}
	if got := refsOf(e.Group(faces)); !reflect.DeepEqual(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}

func TestGroup_MismatchedDescriptorLengthsNeverJoin(t *testing.T) {
	e := mustEngine(t, 100, nil)
	faces := []Face{
		{Ref: "a", Descriptor: []float32{0, 0}},
		{Ref: "b", Descriptor: []float32{0}},
	}

	if got := len(e.Group(faces)); got != 2 {
		t.Errorf("expected 2 groups, got %d", got)
	}
}

func TestGroup_NaNDistanceNeverJoins(t *testing.T) {
	nan := func(a, b []float32) float64 { return math.NaN() }
	e := mustEngine(t, 10, nan)
	faces := []Face{{Ref: "a", Descriptor: node(0)}, {Ref: "b", Descriptor: node(1)}}

	if got := len(e.Group(faces)); got != 2 {
		t.Errorf("expected 2 groups, got %d", got)
	}
}

func TestGroup_OrderFollowsFirstMember(t *testing.T) {
	e := mustEngine(t, 0.4, tableDistance(map[[2]int]float64{
		{0, 3}: 0.1,
		{1, 2}: 0.1,
	}))
	faces := []Face{
		{Ref: "p0", Descriptor: node(0)},
		{Ref: "p1", Descriptor: node(1)},
		{Ref: "p2", Descriptor: node(2)},
		{Ref: "p3", Descriptor: node(3)},
		{Ref: "p4", Descriptor: node(4)},
	}

	want := [][]string{{"p0", "p3"}, {"p1", "p2"}, {"p4"}}
	if got := refsOf(e.Group(faces)); !reflect.DeepEqual(got, want) {
		t.Errorf("Group() = %v, want %v", got, want)
	}
}

func randomFaces(r *rand.Rand, n, dim int) []Face {
	faces := make([]Face, n)
	for i := range faces {
		d := make([]float32, dim)
		for k := range d {
			d[k] = float32(r.Float64())
		}
		faces[i] = Face{Ref: fmt.Sprintf("img-%03d", i), Descriptor: d}
	}
	return faces
}

func TestGroup_PartitionProperty(t *testing.T) {
	r := rand.New(rand.NewPCG(7, 11))

	for _, threshold := range []float64{0, 0.2, 0.4, 0.6, 0.8, 1.5} {
		t.Run(fmt.Sprint(threshold), func(t *testing.T) {
			faces := randomFaces(r, 60, 3)
			e := mustEngine(t, threshold, nil)

			seen := make(map[string]int)
			for _, g := range e.Group(faces) {
				if len(g.Refs) == 0 {
					t.Fatal("found empty group")
				}
				for _, ref := range g.Refs {
					seen[ref]++
				}
			}

			if len(seen) != len(faces) {
				t.Errorf("expected %d members across groups, got %d", len(faces), len(seen))
			}
			for ref, count := range seen {
				if count != 1 {
					t.Errorf("%s appears in %d groups", ref, count)
				}
			}
		})
	}
}

func TestGroup_Idempotent(t *testing.T) {
	r := rand.New(rand.NewPCG(3, 5))
	faces := randomFaces(r, 80, 4)
	e := mustEngine(t, 0.5, nil)

	first := e.Group(faces)
	for range 5 {
		if again := e.Group(faces); !reflect.DeepEqual(first, again) {
			t.Fatalf("Group() is not deterministic:\nfirst: %v\nagain: %v", refsOf(first), refsOf(again))
		}
	}
}

func TestGroup_RefinesAsThresholdGrows(t *testing.T) {
	r := rand.New(rand.NewPCG(42, 42))
	faces := randomFaces(r, 70, 3)
	thresholds := []float64{0.1, 0.2, 0.3, 0.45, 0.6, 1.0}

	for i := 0; i+1 < len(thresholds); i++ {
		lo, hi := thresholds[i], thresholds[i+1]
		t.Run(fmt.Sprintf("%v<%v", lo, hi), func(t *testing.T) {
			fine := mustEngine(t, lo, nil).Group(faces)
			coarse := mustEngine(t, hi, nil).Group(faces)

			owner := make(map[string]int)
			for gi, g := range coarse {
				for _, ref := range g.Refs {
					owner[ref] = gi
				}
			}
			for _, g := range fine {
				want := owner[g.Refs[0]]
				for _, ref := range g.Refs[1:] {
					if owner[ref] != want {
						t.Errorf("group %v at %v is split at %v", g.Refs, lo, hi)
						break
					}
				}
			}
			if len(coarse) > len(fine) {
				t.Errorf("coarser threshold produced more groups: %d > %d", len(coarse), len(fine))
			}
		})
	}
}

func TestEuclideanDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"3-4-5", []float32{0, 0}, []float32{3, 4}, 5},
		{"empty", []float32{}, []float32{}, 0},
		{"length mismatch", []float32{1}, []float32{1, 2}, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := EuclideanDistance(tt.a, tt.b)
			if got != tt.expected && math.Abs(got-tt.expected) > 1e-9 {
				t.Errorf("EuclideanDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
			if rev := EuclideanDistance(tt.b, tt.a); rev != got {
				t.Errorf("not symmetric: %v vs %v", got, rev)
			}
		})
	}
}

func TestCosineDistance(t *testing.T) {
	tests := []struct {
		name     string
		a, b     []float32
		expected float64
	}{
		{"identical", []float32{1, 2, 3}, []float32{1, 2, 3}, 0},
		{"identical zero vectors", []float32{0, 0}, []float32{0, 0}, 0},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 1},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, 2},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, math.Inf(1)},
		{"length mismatch", []float32{1}, []float32{1, 0}, math.Inf(1)},
		{"empty", []float32{}, []float32{}, math.Inf(1)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CosineDistance(tt.a, tt.b)
			if math.IsInf(tt.expected, 1) {
				if !math.IsInf(got, 1) {
					t.Errorf("CosineDistance(%v, %v) = %v, want +Inf", tt.a, tt.b, got)
				}
				return
			}
			if math.Abs(got-tt.expected) > 1e-6 {
				t.Errorf("CosineDistance(%v, %v) = %v, want %v", tt.a, tt.b, got, tt.expected)
			}
		})
	}
}

func TestCosineDistance_IdenticalDescriptorsAreExactlyZero(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))
	for i := range 1000 {
		a := make([]float32, 128)
		for j := range a {
			a[j] = rng.Float32()*2 - 1
		}
		b := append([]float32(nil), a...)
		if d := CosineDistance(a, b); d != 0 {
			t.Fatalf("descriptor %d: distance to its copy is %v, want exactly 0", i, d)
		}
	}
}

func TestGroup_CosineDuplicatesShareGroupAtZeroThreshold(t *testing.T) {
	e := mustEngine(t, 0, CosineDistance)

	rng := rand.New(rand.NewPCG(3, 5))
	desc := make([]float32, 128)
	for j := range desc {
		desc[j] = rng.Float32()
	}

	faces := []Face{
		{Ref: "a.jpg", Descriptor: desc},
		{Ref: "blank.jpg", Descriptor: []float32{0, 0}},
		{Ref: "a.jpg", Descriptor: append([]float32(nil), desc...)},
		{Ref: "blank.jpg", Descriptor: []float32{0, 0}},
	}

	got := refsOf(e.Group(faces))
	want := [][]string{{"a.jpg", "a.jpg"}, {"blank.jpg", "blank.jpg"}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}

func TestMetricByName(t *testing.T) {
	for _, name := range []string{"", MetricEuclidean, MetricCosine} {
		if _, err := MetricByName(name); err != nil {
			t.Errorf("MetricByName(%q) returned error: %v", name, err)
		}
	}
	if _, err := MetricByName("manhattan"); err == nil {
		t.Error("expected error for unknown metric")
	}
}
