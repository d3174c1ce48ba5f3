package valuation

import (
	"math"
	"math/rand"
	"sync"
	"time"
	"unicode/utf8"

	"swapmatch/internal/domain"
)

// richDescriptionLength is the description length at which richness saturates
const richDescriptionLength = 200

// Range is a base value interval for a category
type Range struct {
	Min float64
	Max float64
}

var defaultRange = Range{Min: 5, Max: 100}

var categoryRanges = map[domain.Category]Range{
	domain.CategoryElectronics: {Min: 50, Max: 500},
	domain.CategoryClothing:    {Min: 10, Max: 150},
	domain.CategoryHomeGoods:   {Min: 15, Max: 300},
	domain.CategoryTools:       {Min: 10, Max: 250},
	domain.CategoryToysGames:   {Min: 5, Max: 120},
	domain.CategoryBooks:       {Min: 3, Max: 30},
	domain.CategoryHandmade:    {Min: 10, Max: 200},
	domain.CategoryServices:    {Min: 20, Max: 400},
	domain.CategoryOther:       {Min: 5, Max: 100},
}

const defaultConditionMultiplier = 0.5

var conditionMultipliers = map[domain.Condition]float64{
	domain.ConditionNew:     1.0,
	domain.ConditionLikeNew: 0.9,
	domain.ConditionGood:    0.7,
	domain.ConditionFair:    0.5,
	domain.ConditionPoor:    0.3,
}

// RangeFor returns the base value range of a category, falling back to 5-100
func RangeFor(category domain.Category) Range {
	if r, ok := categoryRanges[category]; ok {
		return r
	}
	return defaultRange
}

// ConditionMultiplier returns the value multiplier of a condition, 0.5 when unknown
func ConditionMultiplier(condition domain.Condition) float64 {
	if m, ok := conditionMultipliers[condition]; ok {
		return m
	}
	return defaultConditionMultiplier
}

// RichnessFactor scales with description length and saturates at 1
func RichnessFactor(description string) float64 {
	return math.Min(1.0, float64(utf8.RuneCountInString(description))/richDescriptionLength)
}

// Estimator produces randomised trade value estimates.
//
// Two calls with identical inputs may return different values within the
// category range. Tests pin the output by injecting a seeded source.
type Estimator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewEstimator creates an estimator drawing from src
func NewEstimator(src rand.Source) *Estimator {
	return &Estimator{rng: rand.New(src)}
}

// NewDefaultEstimator creates an estimator seeded from the clock
func NewDefaultEstimator() *Estimator {
	return NewEstimator(rand.NewSource(time.Now().UnixNano()))
}

// Estimate returns a whole-unit trade value for an item
func (e *Estimator) Estimate(description string, category domain.Category, condition domain.Condition) float64 {
	r := RangeFor(category)

	e.mu.Lock()
	base := r.Min + e.rng.Float64()*(r.Max-r.Min)
	e.mu.Unlock()

	value := base * ConditionMultiplier(condition) * (0.8 + 0.4*RichnessFactor(description))
	return math.Round(value)
}

// EstimateItem estimates the trade value of an existing listing
func (e *Estimator) EstimateItem(item domain.Item) float64 {
	return e.Estimate(item.Description, item.Category, item.Condition)
}
