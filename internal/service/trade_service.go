package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"swapmatch/internal/domain"
	"swapmatch/internal/fairness"
	"swapmatch/internal/matching"
	"swapmatch/internal/metrics"
	"swapmatch/internal/repository"
	"swapmatch/internal/valuation"

	"go.uber.org/zap"
)

var (
	ErrUnpricedItem = errors.New("one or both items have no price")
)

// TradeRating compares the prices of two stored items
type TradeRating struct {
	Item1ID string `json:"item1_id"`
	Item2ID string `json:"item2_id"`
	fairness.Result
	Item1Price float64 `json:"item1_price"`
	Item2Price float64 `json:"item2_price"`
}

// TradeService defines the interface for valuation and matching business logic
type TradeService interface {
	EstimateValue(ctx context.Context, description string, category domain.Category, condition domain.Condition) float64
	CheckFairness(ctx context.Context, priceA, priceB float64) (fairness.Result, error)
	RateTrade(ctx context.Context, item1ID, item2ID string) (*TradeRating, error)
	FindMatchesForItem(ctx context.Context, itemID, requesterID string, topK int) ([]matching.MatchResult, error)
	FindMutualMatches(ctx context.Context, userID, otherUserID string) ([]matching.MutualMatch, error)
	FindTradeMatches(ctx context.Context, userID string) ([]matching.MutualMatch, error)
	CreateItem(ctx context.Context, username string, item *domain.Item) error
	GetWishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error)
	AddWishlistEntry(ctx context.Context, userID, username string, entry *domain.WishlistEntry) error
	RemoveWishlistEntry(ctx context.Context, userID string, index int) (*domain.WishlistEntry, error)
}

type tradeService struct {
	items       repository.ItemRepository
	profiles    repository.ProfileRepository
	users       repository.UserRepository
	finder      *matching.Finder
	mutual      *matching.MutualMatcher
	estimator   *valuation.Estimator
	metrics     *metrics.Metrics
	logger      *zap.Logger
	defaultTopK int
}

// NewTradeService creates a new instance of TradeService
func NewTradeService(
	items repository.ItemRepository,
	profiles repository.ProfileRepository,
	users repository.UserRepository,
	finder *matching.Finder,
	mutual *matching.MutualMatcher,
	estimator *valuation.Estimator,
	m *metrics.Metrics,
	logger *zap.Logger,
	defaultTopK int,
) TradeService {
	if defaultTopK <= 0 {
		defaultTopK = matching.DefaultTopK
	}
	return &tradeService{
		items:       items,
		profiles:    profiles,
		users:       users,
		finder:      finder,
		mutual:      mutual,
		estimator:   estimator,
		metrics:     m,
		logger:      logger,
		defaultTopK: defaultTopK,
	}
}

// EstimateValue returns a randomized trade value for an item description
func (s *tradeService) EstimateValue(ctx context.Context, description string, category domain.Category, condition domain.Condition) float64 {
	value := s.estimator.Estimate(description, category, condition)
	s.metrics.Valuation(string(category))
	return value
}

// CheckFairness classifies a pair of prices
func (s *tradeService) CheckFairness(ctx context.Context, priceA, priceB float64) (fairness.Result, error) {
	if priceA < 0 || priceB < 0 {
		return fairness.Result{}, fmt.Errorf("%w: prices must not be negative", domain.ErrInvalidInput)
	}
	return fairness.Classify(priceA, priceB), nil
}

// RateTrade classifies the trade of two stored items by their prices
func (s *tradeService) RateTrade(ctx context.Context, item1ID, item2ID string) (*TradeRating, error) {
	item1, err := s.items.GetItem(ctx, item1ID)
	if err != nil {
		return nil, err
	}
	item2, err := s.items.GetItem(ctx, item2ID)
	if err != nil {
		return nil, err
	}

	if item1.Price <= 0 || item2.Price <= 0 {
		return nil, ErrUnpricedItem
	}

	return &TradeRating{
		Item1ID:    item1.ID,
		Item2ID:    item2.ID,
		Result:     fairness.Classify(item1.Price, item2.Price),
		Item1Price: item1.Price,
		Item2Price: item2.Price,
	}, nil
}

// FindMatchesForItem ranks the active catalog against a stored item.
// An empty requesterID means the item's owner is asking.
func (s *tradeService) FindMatchesForItem(ctx context.Context, itemID, requesterID string, topK int) (results []matching.MatchResult, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("find_matches", start, len(results), err) }()

	source, err := s.items.GetItem(ctx, itemID)
	if err != nil {
		return nil, err
	}
	if requesterID == "" {
		requesterID = source.OwnerID
	}
	if topK <= 0 {
		topK = s.defaultTopK
	}

	catalog, err := s.items.ListActiveItems(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	results, err = s.finder.FindMatches(*source, catalog, requesterID, topK)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Computed item matches",
		zap.String("item_id", itemID),
		zap.Int("catalog_size", len(catalog)),
		zap.Int("results", len(results)),
	)
	return results, nil
}

// FindMutualMatches looks for two-sided trades between two users
func (s *tradeService) FindMutualMatches(ctx context.Context, userID, otherUserID string) (matches []matching.MutualMatch, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("find_mutual_matches", start, len(matches), err) }()

	a, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	b, err := s.profiles.GetProfile(ctx, otherUserID)
	if err != nil {
		return nil, err
	}

	matches, err = s.mutual.FindMutualMatches(ctx, matching.PartyFromProfile(a), matching.PartyFromProfile(b))
	if err != nil {
		return nil, err
	}
	s.countSources(matches)
	return matches, nil
}

// FindTradeMatches looks for mutual matches between userID and every other user
func (s *tradeService) FindTradeMatches(ctx context.Context, userID string) (matches []matching.MutualMatch, err error) {
	start := time.Now()
	defer func() { s.metrics.ObserveOperation("find_trade_matches", start, len(matches), err) }()

	me, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	matches = []matching.MutualMatch{}
	if len(me.Wishlist) == 0 || len(me.ListedItems) == 0 {
		return matches, nil
	}

	ids, err := s.users.ListIDs(ctx)
	if err != nil {
		return nil, err
	}

	self := matching.PartyFromProfile(me)
	for _, id := range ids {
		if id == userID {
			continue
		}
		other, err := s.profiles.GetProfile(ctx, id)
		if err != nil {
			if errors.Is(err, repository.ErrProfileNotFound) {
				continue
			}
			return nil, err
		}

		found, err := s.mutual.FindMutualMatches(ctx, self, matching.PartyFromProfile(other))
		if err != nil {
			return nil, err
		}
		matches = append(matches, found...)
	}

	matching.SortMutualMatches(matches)
	s.countSources(matches)

	s.logger.Info("Computed trade matches",
		zap.String("user_id", userID),
		zap.Int("users_scanned", len(ids)),
		zap.Int("matches", len(matches)),
	)
	return matches, nil
}

// CreateItem stores a new listing owned by item.OwnerID, estimating its
// trade value when none was given
func (s *tradeService) CreateItem(ctx context.Context, username string, item *domain.Item) error {
	if err := item.Validate(); err != nil {
		return err
	}
	if err := s.users.Ensure(ctx, item.OwnerID, username); err != nil {
		return err
	}

	if item.TradeValue == 0 {
		item.TradeValue = s.EstimateValue(ctx, item.Description, item.Category, item.Condition)
	}

	if err := s.items.Create(ctx, item); err != nil {
		return err
	}

	s.logger.Info("Item listed",
		zap.String("item_id", item.ID),
		zap.String("owner_id", item.OwnerID),
		zap.Float64("trade_value", item.TradeValue),
	)
	return nil
}

// GetWishlist returns the user's wishlist in order
func (s *tradeService) GetWishlist(ctx context.Context, userID string) ([]domain.WishlistEntry, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return profile.Wishlist, nil
}

// AddWishlistEntry appends an entry to the user's wishlist
func (s *tradeService) AddWishlistEntry(ctx context.Context, userID, username string, entry *domain.WishlistEntry) error {
	if strings.TrimSpace(entry.ItemName) == "" {
		return fmt.Errorf("%w: wishlist item name is required", domain.ErrInvalidInput)
	}
	if err := s.users.Ensure(ctx, userID, username); err != nil {
		return err
	}
	return s.profiles.AddWishlistEntry(ctx, userID, entry)
}

// RemoveWishlistEntry deletes the entry at index from the user's wishlist
func (s *tradeService) RemoveWishlistEntry(ctx context.Context, userID string, index int) (*domain.WishlistEntry, error) {
	return s.profiles.RemoveWishlistEntry(ctx, userID, index)
}

func (s *tradeService) countSources(matches []matching.MutualMatch) {
	for _, m := range matches {
		s.metrics.MutualMatchFound(string(m.Source))
	}
}
