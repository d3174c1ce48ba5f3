package matching

import (
	"fmt"
	"sort"

	"swapmatch/internal/domain"
	"swapmatch/internal/fairness"
	"swapmatch/internal/similarity"
)

const (
	// DefaultTopK is the number of matches returned when no limit is given
	DefaultTopK = 5

	// PriceWeight and SimilarityWeight split the combined match score.
	// Price compatibility dominates; description similarity breaks ties.
	PriceWeight      = 0.7
	SimilarityWeight = 0.3
)

// MatchResult is one ranked trade candidate for a source item
type MatchResult struct {
	CandidateItemID   string             `json:"candidate_item_id"`
	Candidate         domain.Item        `json:"candidate"`
	MatchScore        float64            `json:"match_score"`
	Similarity        float64            `json:"similarity"`
	PriceRatio        float64            `json:"price_ratio"`
	IsFair            bool               `json:"is_fair"`
	PriceGap          float64            `json:"price_gap"`
	PriceGapDirection fairness.Direction `json:"price_gap_direction"`
	FairnessCategory  fairness.Category  `json:"fairness_category"`
}

// Eligibility decides whether a catalog item may be offered as a candidate
type Eligibility func(candidate domain.Item) bool

// ActiveOnly excludes inactive listings
func ActiveOnly(candidate domain.Item) bool {
	return candidate.Active
}

// Option configures a Finder
type Option func(*Finder)

// WithEligibility adds an extra candidate predicate
func WithEligibility(filter Eligibility) Option {
	return func(f *Finder) {
		f.filters = append(f.filters, filter)
	}
}

// WithSimilarityEngine replaces the default TF-IDF engine
func WithSimilarityEngine(engine *similarity.Engine) Option {
	return func(f *Finder) {
		f.similarity = engine
	}
}

// Finder ranks catalog items as trade partners for a source item
type Finder struct {
	similarity *similarity.Engine
	filters    []Eligibility
}

// NewFinder creates a Finder
func NewFinder(opts ...Option) *Finder {
	f := &Finder{similarity: similarity.NewEngine()}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FindMatches returns at most topK candidates from catalog, best first.
// Items owned by requesterID and items not offered for trade are never returned.
// A topK of zero or less falls back to DefaultTopK.
func (f *Finder) FindMatches(source domain.Item, catalog []domain.Item, requesterID string, topK int) ([]MatchResult, error) {
	if source.Price < 0 {
		return nil, fmt.Errorf("%w: source item %s has negative price", domain.ErrInvalidInput, source.ID)
	}
	if topK <= 0 {
		topK = DefaultTopK
	}

	eligible := f.eligible(source, catalog, requesterID)
	if len(eligible) == 0 {
		return []MatchResult{}, nil
	}

	descriptions := make([]string, len(eligible))
	for i, c := range eligible {
		descriptions[i] = c.Description
	}
	sims := f.similarity.Scores(source.Description, descriptions)

	results := make([]MatchResult, len(eligible))
	for i, c := range eligible {
		price := fairness.Classify(source.Price, c.Price)
		score := CombinedScore(price.Ratio, sims[i])
		results[i] = MatchResult{
			CandidateItemID:   c.ID,
			Candidate:         c,
			MatchScore:        score,
			Similarity:        sims[i],
			PriceRatio:        price.Ratio,
			IsFair:            fairness.IsFairMatch(score),
			PriceGap:          price.Gap,
			PriceGapDirection: fairness.DirectionOf(source.Price, c.Price),
			FairnessCategory:  price.Category,
		}
	}

	// stable keeps catalog order among equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].MatchScore > results[j].MatchScore
	})

	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// CombinedScore weights price ratio and similarity into a [0,1] score
func CombinedScore(priceRatio, sim float64) float64 {
	s := PriceWeight*priceRatio + SimilarityWeight*sim
	if s < 0 {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

func (f *Finder) eligible(source domain.Item, catalog []domain.Item, requesterID string) []domain.Item {
	out := make([]domain.Item, 0, len(catalog))
	for _, c := range catalog {
		if c.OwnerID == requesterID || !c.ForTrade || c.Price < 0 {
			continue
		}
		if source.ID != "" && c.ID == source.ID {
			continue
		}
		if !f.passes(c) {
			continue
		}
		out = append(out, c)
	}
	return out
}

func (f *Finder) passes(c domain.Item) bool {
	for _, filter := range f.filters {
		if !filter(c) {
			return false
		}
	}
	return true
}
