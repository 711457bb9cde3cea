package score

import (
	"math/rand"
	"testing"

	"github.com/build-flow-labs/spof/internal/spof/metrics"
)

func population(scores ...float64) []ScoredDependency {
	out := make([]ScoredDependency, len(scores))
	for i, s := range scores {
		out[i] = ScoredDependency{
			Name:     string(rune('a' + i)),
			Score:    s,
			RawScore: s,
		}
	}
	return out
}

func TestNormalizerFor(t *testing.T) {
	for _, name := range []string{"", "minmax", "MinMax", "percentile", "none"} {
		if _, err := NormalizerFor(name); err != nil {
			t.Errorf("NormalizerFor(%q): %v", name, err)
		}
	}
	if _, err := NormalizerFor("zscore"); err == nil {
		t.Error("NormalizerFor(zscore) succeeded, want error")
	}
}

func TestMinMax(t *testing.T) {
	in := population(30, 40, 35, 50)
	out := MinMax{}.Normalize(in)

	want := []float64{0, 50, 25, 100}
	for i, w := range want {
		if out[i].Score != w {
			t.Errorf("out[%d].Score = %v, want %v", i, out[i].Score, w)
		}
		if out[i].RawScore != in[i].Score {
			t.Errorf("out[%d].RawScore = %v, want %v", i, out[i].RawScore, in[i].Score)
		}
	}
	if in[0].Score != 30 {
		t.Error("input was modified")
	}
	if got := out[3].Recommendation; got != Recommend(100, metrics.SubScores{}) {
		t.Errorf("recommendation not re-derived: %q", got)
	}
}

func TestMinMaxDegenerate(t *testing.T) {
	for _, in := range [][]ScoredDependency{nil, population(42), population(42, 42, 42)} {
		out := MinMax{}.Normalize(in)
		if len(out) != len(in) {
			t.Fatalf("len = %d, want %d", len(out), len(in))
		}
		for i := range out {
			if out[i].Score != in[i].Score {
				t.Errorf("score changed: %v -> %v", in[i].Score, out[i].Score)
			}
		}
	}
}

func TestPercentile(t *testing.T) {
	out := Percentile{}.Normalize(population(10, 20, 20, 90))

	want := []float64{12.5, 50, 50, 87.5}
	for i, w := range want {
		if out[i].Score != w {
			t.Errorf("out[%d].Score = %v, want %v", i, out[i].Score, w)
		}
	}
}

func TestNone(t *testing.T) {
	in := population(1, 2, 3)
	out := None{}.Normalize(in)
	for i := range in {
		if out[i].Name != in[i].Name || out[i].Score != in[i].Score {
			t.Errorf("out[%d] = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestNormalizersPreserveOrderAndRange(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	normalizers := []Normalizer{MinMax{}, Percentile{}, None{}}

	for trial := 0; trial < 50; trial++ {
		scores := make([]float64, 1+rng.Intn(40))
		for i := range scores {
			// Cluster in a narrow band, with occasional ties.
			scores[i] = round2(30 + rng.Float64()*15)
			if i > 0 && rng.Intn(5) == 0 {
				scores[i] = scores[i-1]
			}
		}
		in := population(scores...)

		for _, n := range normalizers {
			out := n.Normalize(in)
			for i := range out {
				if out[i].Score < 0 || out[i].Score > 100 {
					t.Fatalf("%s: score %v out of range", n.Name(), out[i].Score)
				}
				for j := range out {
					if in[i].Score < in[j].Score && out[i].Score > out[j].Score {
						t.Fatalf("%s: order broken: %v<%v but %v>%v",
							n.Name(), in[i].Score, in[j].Score, out[i].Score, out[j].Score)
					}
				}
			}
		}
	}
}

func TestSortByScore(t *testing.T) {
	deps := []ScoredDependency{
		{NormalizedName: "b", Ecosystem: "npm", Score: 50},
		{NormalizedName: "a", Ecosystem: "pypi", Score: 70},
		{NormalizedName: "a", Ecosystem: "npm", Score: 50},
	}
	SortByScore(deps)

	got := []string{deps[0].Ecosystem + ":" + deps[0].NormalizedName, deps[1].Ecosystem + ":" + deps[1].NormalizedName, deps[2].Ecosystem + ":" + deps[2].NormalizedName}
	want := []string{"pypi:a", "npm:a", "npm:b"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("order = %v, want %v", got, want)
			break
		}
	}
}
