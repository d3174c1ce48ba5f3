package transport

import (
	"errors"
	"net/http"
	"strconv"

	"swapmatch/internal/domain"
	"swapmatch/internal/fairness"
	"swapmatch/internal/matching"
	"swapmatch/internal/middleware"
	"swapmatch/internal/repository"
	"swapmatch/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ValuationRequest represents the valuation request payload
type ValuationRequest struct {
	Description string           `json:"description" validate:"required,max=2000"`
	Category    domain.Category  `json:"category" validate:"required,category"`
	Condition   domain.Condition `json:"condition" validate:"required,condition"`
}

// ValuationResponse carries an estimated trade value
type ValuationResponse struct {
	EstimatedValue float64 `json:"estimated_value"`
}

// FairnessRequest represents the fairness check payload
type FairnessRequest struct {
	Price1 float64 `json:"price1" validate:"gte=0"`
	Price2 float64 `json:"price2" validate:"gte=0"`
}

// FairnessResponse extends the classification with the match-score policy
type FairnessResponse struct {
	fairness.Result
	IsFair bool `json:"is_fair"`
}

// DesiredItemRequest is one entry of a listing's looking_for list
type DesiredItemRequest struct {
	Category    domain.Category  `json:"category" validate:"required,category"`
	ItemType    string           `json:"item_type" validate:"required,max=200"`
	Condition   domain.Condition `json:"condition" validate:"omitempty,condition"`
	Description string           `json:"description" validate:"max=2000"`
}

// CreateItemRequest represents the listing creation payload
type CreateItemRequest struct {
	Name        string               `json:"name" validate:"required,max=200"`
	Category    domain.Category      `json:"category" validate:"required,category"`
	Condition   domain.Condition     `json:"condition" validate:"required,condition"`
	Description string               `json:"description" validate:"required,max=2000"`
	Price       float64              `json:"price" validate:"gte=0"`
	TradeValue  float64              `json:"trade_value" validate:"gte=0"`
	ForSale     bool                 `json:"for_sale"`
	ForTrade    bool                 `json:"for_trade"`
	LookingFor  []DesiredItemRequest `json:"looking_for" validate:"max=20,dive"`
}

// WishlistEntryRequest represents the wishlist entry payload
type WishlistEntryRequest struct {
	ItemName       string   `json:"item_name" validate:"required,max=200"`
	Description    string   `json:"description" validate:"max=2000"`
	WillingToTrade []string `json:"willing_to_trade" validate:"max=20,dive,required,max=200"`
}

// MatchesResponse wraps ranked matches for a single item
type MatchesResponse struct {
	ItemID  string                 `json:"item_id"`
	Matches []matching.MatchResult `json:"matches"`
}

// MutualMatchesResponse wraps two-sided trade matches
type MutualMatchesResponse struct {
	Matches []matching.MutualMatch `json:"matches"`
}

// WishlistResponse wraps a user's ordered wishlist
type WishlistResponse struct {
	Wishlist []domain.WishlistEntry `json:"wishlist"`
}

// TradeHandler handles HTTP requests for valuation, fairness and matching
type TradeHandler struct {
	tradeService service.TradeService
	logger       *zap.Logger
}

// NewTradeHandler creates a new TradeHandler
func NewTradeHandler(tradeService service.TradeService, logger *zap.Logger) *TradeHandler {
	return &TradeHandler{
		tradeService: tradeService,
		logger:       logger,
	}
}

// RegisterRoutes registers all trade routes
func (h *TradeHandler) RegisterRoutes(r chi.Router, authMiddleware, optionalAuth func(http.Handler) http.Handler) {
	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/valuations", h.EstimateValue)
		r.Post("/fairness", h.CheckFairness)
		r.Get("/trades/rate", h.RateTrade)
		r.With(optionalAuth).Get("/items/{id}/matches", h.FindItemMatches)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware)
			r.Post("/items", h.CreateItem)
			r.With(middleware.RequireSelf("id", h.logger)).
				Get("/users/{id}/mutual-matches/{otherID}", h.FindMutualMatches)

			r.Route("/me", func(r chi.Router) {
				r.Get("/trade-matches", h.FindTradeMatches)
				r.Get("/wishlist", h.GetWishlist)
				r.Post("/wishlist", h.AddWishlistEntry)
				r.Delete("/wishlist/{index}", h.RemoveWishlistEntry)
			})
		})
	})
}

// EstimateValue handles trade value estimation
func (h *TradeHandler) EstimateValue(w http.ResponseWriter, r *http.Request) {
	var req ValuationRequest
	if !h.decode(w, r, &req) {
		return
	}

	value := h.tradeService.EstimateValue(r.Context(), req.Description, req.Category, req.Condition)
	middleware.RespondWithJSON(w, http.StatusOK, ValuationResponse{EstimatedValue: value})
}

// CheckFairness handles a fairness check of two prices
func (h *TradeHandler) CheckFairness(w http.ResponseWriter, r *http.Request) {
	var req FairnessRequest
	if !h.decode(w, r, &req) {
		return
	}

	result, err := h.tradeService.CheckFairness(r.Context(), req.Price1, req.Price2)
	if err != nil {
		h.respondServiceError(w, err, "failed to check fairness")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, FairnessResponse{
		Result: result,
		IsFair: result.Category == fairness.Fair,
	})
}

// RateTrade handles rating the fairness of two stored items
func (h *TradeHandler) RateTrade(w http.ResponseWriter, r *http.Request) {
	item1 := r.URL.Query().Get("item1")
	item2 := r.URL.Query().Get("item2")
	if item1 == "" || item2 == "" {
		middleware.RespondWithError(w, http.StatusBadRequest, "item1 and item2 are required")
		return
	}

	rating, err := h.tradeService.RateTrade(r.Context(), item1, item2)
	if err != nil {
		h.respondServiceError(w, err, "failed to rate trade")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, rating)
}

// FindItemMatches handles ranking trade candidates for an item
func (h *TradeHandler) FindItemMatches(w http.ResponseWriter, r *http.Request) {
	itemID := chi.URLParam(r, "id")

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			middleware.RespondWithError(w, http.StatusBadRequest, "top_k must be a positive integer")
			return
		}
		topK = n
	}

	// anonymous callers are treated as the item's owner
	requesterID, _ := middleware.GetUserID(r.Context())

	matches, err := h.tradeService.FindMatchesForItem(r.Context(), itemID, requesterID, topK)
	if err != nil {
		h.respondServiceError(w, err, "failed to find matches")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, MatchesResponse{ItemID: itemID, Matches: matches})
}

// CreateItem handles listing a new item for the caller
func (h *TradeHandler) CreateItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req CreateItemRequest
	if !h.decode(w, r, &req) {
		return
	}

	item := &domain.Item{
		OwnerID:     userID,
		Name:        req.Name,
		Category:    req.Category,
		Condition:   req.Condition,
		Description: req.Description,
		Price:       req.Price,
		TradeValue:  req.TradeValue,
		ForSale:     req.ForSale,
		ForTrade:    req.ForTrade,
		Active:      true,
		LookingFor:  make(domain.DesiredItems, 0, len(req.LookingFor)),
	}
	for _, d := range req.LookingFor {
		item.LookingFor = append(item.LookingFor, domain.DesiredItem{
			Category:    d.Category,
			ItemType:    d.ItemType,
			Condition:   d.Condition,
			Description: d.Description,
		})
	}

	username, _ := middleware.GetUsername(r.Context())
	if err := h.tradeService.CreateItem(r.Context(), username, item); err != nil {
		h.respondServiceError(w, err, "failed to create item")
		return
	}

	h.logger.Info("Item created successfully", zap.String("item_id", item.ID))
	middleware.RespondWithJSON(w, http.StatusCreated, item)
}

// FindMutualMatches handles two-sided matching between the caller and another user
func (h *TradeHandler) FindMutualMatches(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "id")
	otherID := chi.URLParam(r, "otherID")
	if userID == otherID {
		middleware.RespondWithError(w, http.StatusBadRequest, "cannot match a user with themselves")
		return
	}

	matches, err := h.tradeService.FindMutualMatches(r.Context(), userID, otherID)
	if err != nil {
		h.respondServiceError(w, err, "failed to find mutual matches")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, MutualMatchesResponse{Matches: matches})
}

// FindTradeMatches handles matching the caller against every other user
func (h *TradeHandler) FindTradeMatches(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	matches, err := h.tradeService.FindTradeMatches(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "failed to find trade matches")
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, MutualMatchesResponse{Matches: matches})
}

// GetWishlist handles reading the caller's wishlist
func (h *TradeHandler) GetWishlist(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	wishlist, err := h.tradeService.GetWishlist(r.Context(), userID)
	if err != nil {
		h.respondServiceError(w, err, "failed to get wishlist")
		return
	}
	if wishlist == nil {
		wishlist = []domain.WishlistEntry{}
	}

	middleware.RespondWithJSON(w, http.StatusOK, WishlistResponse{Wishlist: wishlist})
}

// AddWishlistEntry handles appending to the caller's wishlist
func (h *TradeHandler) AddWishlistEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	var req WishlistEntryRequest
	if !h.decode(w, r, &req) {
		return
	}

	entry := &domain.WishlistEntry{
		ItemName:       req.ItemName,
		Description:    req.Description,
		WillingToTrade: req.WillingToTrade,
	}
	if entry.WillingToTrade == nil {
		entry.WillingToTrade = []string{}
	}

	username, _ := middleware.GetUsername(r.Context())
	if err := h.tradeService.AddWishlistEntry(r.Context(), userID, username, entry); err != nil {
		h.respondServiceError(w, err, "failed to add wishlist entry")
		return
	}

	middleware.RespondWithJSON(w, http.StatusCreated, entry)
}

// RemoveWishlistEntry handles deleting a wishlist entry by position
func (h *TradeHandler) RemoveWishlistEntry(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.requireUser(w, r)
	if !ok {
		return
	}

	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		middleware.RespondWithError(w, http.StatusBadRequest, "index must be an integer")
		return
	}

	removed, err := h.tradeService.RemoveWishlistEntry(r.Context(), userID, index)
	if err != nil {
		h.respondServiceError(w, err, "failed to remove wishlist entry")
		return
	}

	h.logger.Info("Wishlist entry removed", zap.String("user_id", userID), zap.Int("index", index))
	middleware.RespondWithJSON(w, http.StatusOK, removed)
}

// decode writes the error response itself and reports whether the handler may continue
func (h *TradeHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	h.logger.Debug("Request validation failed", zap.String("path", r.URL.Path), zap.Error(err))
	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}

	middleware.RespondWithError(w, http.StatusBadRequest, "invalid request body")
	return false
}

func (h *TradeHandler) requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		h.logger.Error("User ID not found in context")
		middleware.RespondWithError(w, http.StatusUnauthorized, "unauthorized")
	}
	return userID, ok
}

// respondServiceError maps service and repository errors to statuses
func (h *TradeHandler) respondServiceError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, repository.ErrItemNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "item not found")
	case errors.Is(err, repository.ErrProfileNotFound):
		middleware.RespondWithError(w, http.StatusNotFound, "profile not found")
	case errors.Is(err, repository.ErrInvalidWishlistIndex):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, repository.ErrInvalidUserID):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		middleware.RespondWithError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, service.ErrUnpricedItem):
		middleware.RespondWithError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, repository.ErrUsernameTaken):
		middleware.RespondWithError(w, http.StatusConflict, err.Error())
	default:
		h.logger.Error("Request failed", zap.String("operation", fallback), zap.Error(err))
		middleware.RespondWithError(w, http.StatusInternalServerError, fallback)
	}
}
