package fairness

import "math"

// Category is the three-way fairness label of a price pair
type Category string

const (
	Fair           Category = "Fair"
	SlightlyUnfair Category = "Slightly Unfair"
	Unfair         Category = "Unfair"
)

const (
	// FairGapPercent is the largest gap still labelled Fair
	FairGapPercent = 10.0
	// SlightlyUnfairGapPercent is the largest gap still labelled Slightly Unfair
	SlightlyUnfairGapPercent = 25.0
	// MatchScoreThreshold is the combined score a match must exceed to count as fair
	MatchScoreThreshold = 0.7
)

// Result describes the price relationship of two items
type Result struct {
	Ratio      float64  `json:"ratio"`
	Gap        float64  `json:"gap"`
	GapPercent float64  `json:"gap_percent"`
	Category   Category `json:"category"`
}

// Classify compares two prices. Both prices at zero yield ratio 0 and Fair.
func Classify(priceA, priceB float64) Result {
	hi := math.Max(priceA, priceB)
	lo := math.Min(priceA, priceB)
	gap := math.Abs(priceA - priceB)

	var ratio, gapPct float64
	if hi > 0 {
		ratio = lo / hi
		gapPct = gap / hi * 100
	}

	return Result{
		Ratio:      clamp01(ratio),
		Gap:        gap,
		GapPercent: gapPct,
		Category:   CategoryFor(gapPct),
	}
}

// CategoryFor maps a gap percentage to its label
func CategoryFor(gapPercent float64) Category {
	switch {
	case gapPercent <= FairGapPercent:
		return Fair
	case gapPercent <= SlightlyUnfairGapPercent:
		return SlightlyUnfair
	default:
		return Unfair
	}
}

// IsFairMatch applies the single-score policy used for ranked matches.
// It is independent of the three-way price label.
func IsFairMatch(matchScore float64) bool {
	return matchScore > MatchScoreThreshold
}

// Direction tells which side of a trade carries the higher price
type Direction string

const (
	GivingMore    Direction = "giving-more"
	ReceivingMore Direction = "receiving-more"
	Even          Direction = "even"
)

// DirectionOf is seen from the side giving away an item worth give
// in exchange for one worth receive.
func DirectionOf(give, receive float64) Direction {
	switch {
	case give > receive:
		return GivingMore
	case give < receive:
		return ReceivingMore
	default:
		return Even
	}
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
