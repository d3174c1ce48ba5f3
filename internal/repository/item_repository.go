package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"swapmatch/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

var (
	ErrItemNotFound = errors.New("item not found")
)

const itemColumns = `id, owner_id, name, category, condition, description, price, trade_value,
		for_sale, for_trade, active, looking_for, created_at`

// ItemRepository defines the interface for catalog data access
type ItemRepository interface {
	Create(ctx context.Context, item *domain.Item) error
	GetItem(ctx context.Context, id string) (*domain.Item, error)
	ListActiveItems(ctx context.Context) ([]domain.Item, error)
	ListByOwner(ctx context.Context, ownerID string) ([]domain.Item, error)
}

type itemRepository struct {
	db *sqlx.DB
}

// NewItemRepository creates a new instance of ItemRepository
func NewItemRepository(db *sqlx.DB) ItemRepository {
	return &itemRepository{db: db}
}

// Create inserts a new listing, assigning an id when the item has none
func (r *itemRepository) Create(ctx context.Context, item *domain.Item) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	if item.CreatedAt.IsZero() {
		// postgres keeps microseconds
		item.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}

	query := r.db.Rebind(`
		INSERT INTO items (` + itemColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err := r.db.ExecContext(
		ctx,
		query,
		item.ID,
		item.OwnerID,
		item.Name,
		item.Category,
		item.Condition,
		item.Description,
		item.Price,
		item.TradeValue,
		item.ForSale,
		item.ForTrade,
		item.Active,
		item.LookingFor,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create item: %w", err)
	}

	return nil
}

// GetItem retrieves a single listing by id
func (r *itemRepository) GetItem(ctx context.Context, id string) (*domain.Item, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, ErrItemNotFound
	}

	query := r.db.Rebind(`SELECT ` + itemColumns + ` FROM items WHERE id = ?`)

	item := &domain.Item{}
	if err := r.db.GetContext(ctx, item, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrItemNotFound
		}
		return nil, fmt.Errorf("failed to find item: %w", err)
	}

	return item, nil
}

// ListActiveItems returns the active catalog, oldest listings first
func (r *itemRepository) ListActiveItems(ctx context.Context) ([]domain.Item, error) {
	query := r.db.Rebind(`
		SELECT ` + itemColumns + `
		FROM items
		WHERE active = ?
		ORDER BY created_at, id
	`)

	items := []domain.Item{}
	if err := r.db.SelectContext(ctx, &items, query, true); err != nil {
		return nil, fmt.Errorf("failed to list active items: %w", err)
	}

	return items, nil
}

// ListByOwner returns every listing of one user, active or not
func (r *itemRepository) ListByOwner(ctx context.Context, ownerID string) ([]domain.Item, error) {
	query := r.db.Rebind(`
		SELECT ` + itemColumns + `
		FROM items
		WHERE owner_id = ?
		ORDER BY created_at, id
	`)

	items := []domain.Item{}
	if err := r.db.SelectContext(ctx, &items, query, ownerID); err != nil {
		return nil, fmt.Errorf("failed to list items by owner: %w", err)
	}

	return items, nil
}
