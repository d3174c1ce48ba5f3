package similarity

import (
	"math"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func TestScores_EmptyCandidates(t *testing.T) {
	got := NewEngine().Scores("vintage film camera", nil)
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", got)
	}
}

func TestScores_IdenticalDescriptions(t *testing.T) {
	desc := "Sony PlayStation 5 disc edition with two controllers"
	got := NewEngine().Scores(desc, []string{desc})
	if math.Abs(got[0]-1.0) > 1e-9 {
		t.Fatalf("identical descriptions scored %v, want 1", got[0])
	}
}

func TestScores_DisjointDescriptions(t *testing.T) {
	got := NewEngine().Scores("mountain bike shimano gears", []string{"leather jacket vintage size medium"})
	if got[0] != 0 {
		t.Fatalf("disjoint descriptions scored %v, want 0", got[0])
	}
}

func TestScores_StopWordsAndEmptyAreZero(t *testing.T) {
	e := NewEngine()
	got := e.Scores("", []string{"", "the and of", "camera"})
	for i, s := range got {
		if s != 0 {
			t.Errorf("candidate %d scored %v, want 0", i, s)
		}
	}

	got = e.Scores("the of and", []string{"the of and"})
	if got[0] != 0 {
		t.Errorf("stop-word only pair scored %v, want 0", got[0])
	}
}

func TestScores_PreservesCandidateOrder(t *testing.T) {
	e := NewEngine()
	query := "acoustic guitar with hard case"
	got := e.Scores(query, []string{"electric drill", "acoustic guitar", "guitar case"})
	if len(got) != 3 {
		t.Fatalf("expected 3 scores, got %d", len(got))
	}
	if got[0] != 0 {
		t.Errorf("unrelated candidate scored %v", got[0])
	}
	if got[1] <= got[0] || got[2] <= got[0] {
		t.Errorf("related candidates should outscore unrelated: %v", got)
	}
}

func TestTokenize(t *testing.T) {
	got := NewEngine().Tokenize("The Leica M3, with a leather case & 2 lenses!")
	want := []string{"leica", "m3", "leather", "case", "lenses"}
	if len(got) != len(want) {
		t.Fatalf("Tokenize = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Tokenize = %v, want %v", got, want)
		}
	}
}

func TestCosine_DegenerateVectors(t *testing.T) {
	if s := Cosine([]float64{0, 0}, []float64{1, 0}); s != 0 {
		t.Errorf("zero vector similarity = %v", s)
	}
	if s := Cosine([]float64{1}, []float64{1, 0}); s != 0 {
		t.Errorf("mismatched length similarity = %v", s)
	}
	if s := Cosine(nil, nil); s != 0 {
		t.Errorf("empty vector similarity = %v", s)
	}
}

var words = []interface{}{
	"camera", "leica", "bike", "trek", "guitar", "fender", "watch", "apple",
	"books", "dickens", "console", "controller", "the", "and", "vintage", "leather",
}

func genDescription() gopter.Gen {
	return gen.SliceOfN(6, gen.OneConstOf(words...)).Map(func(ws []string) string {
		return strings.Join(ws, " ")
	})
}

// Feature: swap-matching, Property 2: Similarity is symmetric
// Validates: Engine.Similarity
func TestProperty_SimilarityIsSymmetric(t *testing.T) {
	properties := gopter.NewProperties(nil)
	e := NewEngine()

	properties.Property("similarity(a,[b]) == similarity(b,[a])", prop.ForAll(
		func(a, b string) bool {
			return math.Abs(e.Similarity(a, b)-e.Similarity(b, a)) < 1e-12
		},
		genDescription(),
		genDescription(),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}

// Feature: swap-matching, Property 3: Similarity scores are bounded and deterministic
// Validates: Engine.Similarity
func TestProperty_ScoresAreBoundedAndDeterministic(t *testing.T) {
	properties := gopter.NewProperties(nil)
	e := NewEngine()

	properties.Property("scores lie in [0,1] and repeat exactly", prop.ForAll(
		func(query string, candidates []string) bool {
			first := e.Scores(query, candidates)
			second := e.Scores(query, candidates)
			if len(first) != len(candidates) {
				return false
			}
			for i, s := range first {
				if s < 0 || s > 1 || math.IsNaN(s) || s != second[i] {
					return false
				}
			}
			return true
		},
		gen.AnyString(),
		gen.SliceOf(gen.AnyString()),
	))

	properties.TestingRun(t, gopter.ConsoleReporter(false))
}
