package matching

import (
	"context"
	"errors"
	"math"
	"sort"
	"strings"

	"swapmatch/internal/domain"

	"go.uber.org/zap"
)

// HeuristicScore is assigned to matches found by substring matching alone
const HeuristicScore = 0.5

// ErrSemanticUnavailable is returned by a SemanticMatcher that cannot answer
var ErrSemanticUnavailable = errors.New("semantic matcher unavailable")

// Source tells how a mutual match was found
type Source string

const (
	SourceHeuristic Source = "heuristic"
	SourceSemantic  Source = "semantic"
)

// Party is one side of a two-way trade search
type Party struct {
	UserID   string
	Username string
	Items    []domain.Item
	Wishlist []domain.WishlistEntry
}

// PartyFromProfile builds a Party from a stored profile
func PartyFromProfile(p *domain.Profile) Party {
	return Party{
		UserID:   p.UserID,
		Username: p.Username,
		Items:    p.ListedItems,
		Wishlist: p.Wishlist,
	}
}

// SemanticMatch is a match proposed by an external semantic matcher,
// referring to items by id
type SemanticMatch struct {
	ItemsFromA  []string `json:"current_user_items"`
	ItemsFromB  []string `json:"other_user_items"`
	MatchScore  float64  `json:"match_score"`
	Explanation string   `json:"explanation"`
}

// SemanticMatcher is an optional AI-assisted matcher. Implementations return
// ErrSemanticUnavailable (or any error) when they cannot produce an answer.
type SemanticMatcher interface {
	MatchTrades(ctx context.Context, a, b Party) ([]SemanticMatch, error)
}

// ItemMatch is a listed item that satisfies someone's wishlist
type ItemMatch struct {
	Item             domain.Item `json:"item"`
	WishlistItemName string      `json:"wishlist_item_name,omitempty"`
	NameMatch        bool        `json:"name_match"`
	DescriptionMatch bool        `json:"description_match"`
	TradeMatch       bool        `json:"trade_match"`
}

// MutualMatch pairs items from both users that the other side wants
type MutualMatch struct {
	UserAID     string      `json:"user_a_id"`
	UserBID     string      `json:"user_b_id"`
	ItemsFromA  []ItemMatch `json:"items_from_a"`
	ItemsFromB  []ItemMatch `json:"items_from_b"`
	MatchScore  float64     `json:"match_score"`
	Explanation string      `json:"explanation"`
	Source      Source      `json:"source"`
}

// MutualOption configures a MutualMatcher
type MutualOption func(*MutualMatcher)

// WithSemanticMatcher tries s before falling back to substring matching
func WithSemanticMatcher(s SemanticMatcher) MutualOption {
	return func(m *MutualMatcher) {
		m.semantic = s
	}
}

// WithStrictTradeOverlap requires a wishlist text match and a
// looking_for / willing_to_trade overlap for an item to qualify
func WithStrictTradeOverlap() MutualOption {
	return func(m *MutualMatcher) {
		m.strict = true
	}
}

// WithItemEligibility adds a predicate listed items must satisfy
func WithItemEligibility(filter Eligibility) MutualOption {
	return func(m *MutualMatcher) {
		m.filters = append(m.filters, filter)
	}
}

// WithLogger sets the logger used to report semantic fallbacks
func WithLogger(logger *zap.Logger) MutualOption {
	return func(m *MutualMatcher) {
		m.logger = logger
	}
}

// WithFallbackObserver registers fn to be called whenever the semantic
// matcher fails and text matching is used instead
func WithFallbackObserver(fn func(err error)) MutualOption {
	return func(m *MutualMatcher) {
		m.onFallback = fn
	}
}

// MutualMatcher finds two-sided trades between users
type MutualMatcher struct {
	semantic   SemanticMatcher
	strict     bool
	filters    []Eligibility
	logger     *zap.Logger
	onFallback func(err error)
}

// NewMutualMatcher creates a MutualMatcher
func NewMutualMatcher(opts ...MutualOption) *MutualMatcher {
	m := &MutualMatcher{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// FindMutualMatches returns trades where each user lists something the other
// wants. Either side having no items or an empty wishlist yields no matches.
func (m *MutualMatcher) FindMutualMatches(ctx context.Context, a, b Party) ([]MutualMatch, error) {
	// both matchers only ever see tradable listings
	a.Items = m.eligibleItems(a.Items)
	b.Items = m.eligibleItems(b.Items)

	if a.UserID == b.UserID ||
		len(a.Items) == 0 || len(a.Wishlist) == 0 ||
		len(b.Items) == 0 || len(b.Wishlist) == 0 {
		return []MutualMatch{}, nil
	}

	if m.semantic != nil {
		proposed, err := m.semantic.MatchTrades(ctx, a, b)
		if err == nil {
			return m.resolveSemantic(a, b, proposed), nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		m.logger.Warn("Semantic matcher failed, using text matching",
			zap.String("user_a", a.UserID),
			zap.String("user_b", b.UserID),
			zap.Error(err),
		)
		if m.onFallback != nil {
			m.onFallback(err)
		}
	}

	return m.heuristic(a, b), nil
}

func (m *MutualMatcher) heuristic(a, b Party) []MutualMatch {
	fromA := m.MatchItemsToWishlist(a.Items, b.Wishlist)
	if len(fromA) == 0 {
		return []MutualMatch{}
	}
	fromB := m.MatchItemsToWishlist(b.Items, a.Wishlist)
	if len(fromB) == 0 {
		return []MutualMatch{}
	}

	return []MutualMatch{{
		UserAID:     a.UserID,
		UserBID:     b.UserID,
		ItemsFromA:  fromA,
		ItemsFromB:  fromB,
		MatchScore:  HeuristicScore,
		Explanation: "Basic trade match based on text matching",
		Source:      SourceHeuristic,
	}}
}

func (m *MutualMatcher) resolveSemantic(a, b Party, proposed []SemanticMatch) []MutualMatch {
	out := make([]MutualMatch, 0, len(proposed))
	for _, p := range proposed {
		fromA := m.pickItems(a.Items, p.ItemsFromA)
		fromB := m.pickItems(b.Items, p.ItemsFromB)
		if len(fromA) == 0 || len(fromB) == 0 {
			continue
		}
		out = append(out, MutualMatch{
			UserAID:     a.UserID,
			UserBID:     b.UserID,
			ItemsFromA:  fromA,
			ItemsFromB:  fromB,
			MatchScore:  clampScore(p.MatchScore),
			Explanation: p.Explanation,
			Source:      SourceSemantic,
		})
	}
	SortMutualMatches(out)
	return out
}

// MatchItemsToWishlist returns the eligible items that satisfy at least one
// wishlist entry. Each item is reported once, for the first entry it meets.
func (m *MutualMatcher) MatchItemsToWishlist(items []domain.Item, wishlist []domain.WishlistEntry) []ItemMatch {
	var matches []ItemMatch
	for _, item := range items {
		if !m.eligible(item) {
			continue
		}
		name := strings.ToLower(item.Name)
		desc := strings.ToLower(item.Description)

		for _, wish := range wishlist {
			wanted := strings.ToLower(strings.TrimSpace(wish.ItemName))
			var nameMatch, descMatch bool
			if wanted != "" {
				nameMatch = strings.Contains(name, wanted)
				descMatch = strings.Contains(desc, wanted)
			}
			tradeMatch := tradeOverlap(item.LookingFor, wish.WillingToTrade)

			qualifies := nameMatch || descMatch || tradeMatch
			if m.strict {
				qualifies = (nameMatch || descMatch) && tradeMatch
			}
			if !qualifies {
				continue
			}

			matches = append(matches, ItemMatch{
				Item:             item,
				WishlistItemName: wish.ItemName,
				NameMatch:        nameMatch,
				DescriptionMatch: descMatch,
				TradeMatch:       tradeMatch,
			})
			break
		}
	}
	return matches
}

// eligible reports whether item is offered for trade and passes every filter
func (m *MutualMatcher) eligible(item domain.Item) bool {
	if !item.ForTrade {
		return false
	}
	for _, filter := range m.filters {
		if !filter(item) {
			return false
		}
	}
	return true
}

func (m *MutualMatcher) eligibleItems(items []domain.Item) []domain.Item {
	out := make([]domain.Item, 0, len(items))
	for _, item := range items {
		if m.eligible(item) {
			out = append(out, item)
		}
	}
	return out
}

// tradeOverlap reports whether something the lister is looking for appears
// in what the wisher is willing to give up
func tradeOverlap(lookingFor domain.DesiredItems, willing []string) bool {
	for _, want := range lookingFor {
		w := strings.ToLower(strings.TrimSpace(want.ItemType))
		if w == "" {
			continue
		}
		for _, offered := range willing {
			if strings.Contains(strings.ToLower(offered), w) {
				return true
			}
		}
	}
	return false
}

// pickItems resolves model-proposed ids against the party's listings.
// Unknown and ineligible ids are dropped.
func (m *MutualMatcher) pickItems(items []domain.Item, ids []string) []ItemMatch {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	var out []ItemMatch
	for _, item := range items {
		if _, ok := wanted[item.ID]; ok && m.eligible(item) {
			out = append(out, ItemMatch{Item: item})
		}
	}
	return out
}

func clampScore(s float64) float64 {
	if s < 0 || math.IsNaN(s) {
		return 0
	}
	if s > 1 {
		return 1
	}
	return s
}

// SortMutualMatches orders matches by score, best first, keeping input order on ties
func SortMutualMatches(matches []MutualMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		return matches[i].MatchScore > matches[j].MatchScore
	})
}
