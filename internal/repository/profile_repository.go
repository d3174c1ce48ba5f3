package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"swapmatch/internal/domain"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"
)

var (
	ErrProfileNotFound      = errors.New("profile not found")
	ErrInvalidWishlistIndex = errors.New("wishlist index out of range")
)

// ProfileRepository defines the interface for trader profiles and wishlists
type ProfileRepository interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	AddWishlistEntry(ctx context.Context, userID string, entry *domain.WishlistEntry) error
	RemoveWishlistEntry(ctx context.Context, userID string, index int) (*domain.WishlistEntry, error)
}

type profileRepository struct {
	db    *sqlx.DB
	items ItemRepository
}

// NewProfileRepository creates a new instance of ProfileRepository
func NewProfileRepository(db *sqlx.DB, items ItemRepository) ProfileRepository {
	return &profileRepository{db: db, items: items}
}

type wishlistRow struct {
	ID             string `db:"id"`
	ItemName       string `db:"item_name"`
	Description    string `db:"description"`
	WillingToTrade []byte `db:"willing_to_trade"`
}

func (w wishlistRow) toDomain() (domain.WishlistEntry, error) {
	entry := domain.WishlistEntry{
		ID:             w.ID,
		ItemName:       w.ItemName,
		Description:    w.Description,
		WillingToTrade: []string{},
	}
	if len(w.WillingToTrade) > 0 {
		if err := json.Unmarshal(w.WillingToTrade, &entry.WillingToTrade); err != nil {
			return entry, fmt.Errorf("failed to decode willing_to_trade of %s: %w", w.ID, err)
		}
	}
	return entry, nil
}

// GetProfile assembles the user's wishlist and listed items
func (r *profileRepository) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if _, err := uuid.Parse(userID); err != nil {
		return nil, ErrProfileNotFound
	}

	profile := &domain.Profile{UserID: userID}
	err := r.db.GetContext(ctx, &profile.Username, r.db.Rebind(`SELECT username FROM users WHERE id = ?`), userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}

	rows := []wishlistRow{}
	query := r.db.Rebind(`
		SELECT id, item_name, description, willing_to_trade
		FROM wishlist_entries
		WHERE user_id = ?
		ORDER BY position, id
	`)
	if err := r.db.SelectContext(ctx, &rows, query, userID); err != nil {
		return nil, fmt.Errorf("failed to list wishlist: %w", err)
	}

	profile.Wishlist = make([]domain.WishlistEntry, 0, len(rows))
	for _, row := range rows {
		entry, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		profile.Wishlist = append(profile.Wishlist, entry)
	}

	profile.ListedItems, err = r.items.ListByOwner(ctx, userID)
	if err != nil {
		return nil, err
	}

	return profile, nil
}

// AddWishlistEntry appends entry to the end of the user's wishlist and sets its id
func (r *profileRepository) AddWishlistEntry(ctx context.Context, userID string, entry *domain.WishlistEntry) error {
	willing := entry.WillingToTrade
	if willing == nil {
		willing = []string{}
	}
	encoded, err := json.Marshal(willing)
	if err != nil {
		return fmt.Errorf("failed to encode willing_to_trade: %w", err)
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockUser(ctx, tx, userID); err != nil {
		return err
	}

	var next int
	err = tx.GetContext(ctx, &next,
		tx.Rebind(`SELECT COALESCE(MAX(position), -1) + 1 FROM wishlist_entries WHERE user_id = ?`), userID)
	if err != nil {
		return fmt.Errorf("failed to find wishlist position: %w", err)
	}

	id := ulid.Make().String()
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		INSERT INTO wishlist_entries (id, user_id, position, item_name, description, willing_to_trade)
		VALUES (?, ?, ?, ?, ?, ?)
	`), id, userID, next, entry.ItemName, entry.Description, string(encoded))
	if err != nil {
		return fmt.Errorf("failed to add wishlist entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit wishlist entry: %w", err)
	}

	entry.ID = id
	entry.WillingToTrade = willing
	return nil
}

// RemoveWishlistEntry deletes the entry at index and closes the gap it leaves
func (r *profileRepository) RemoveWishlistEntry(ctx context.Context, userID string, index int) (*domain.WishlistEntry, error) {
	if index < 0 {
		return nil, ErrInvalidWishlistIndex
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := lockUser(ctx, tx, userID); err != nil {
		return nil, err
	}

	var row wishlistRow
	err = tx.GetContext(ctx, &row, tx.Rebind(`
		SELECT id, item_name, description, willing_to_trade
		FROM wishlist_entries
		WHERE user_id = ? AND position = ?
		ORDER BY id
		LIMIT 1
	`), userID, index)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidWishlistIndex
		}
		return nil, fmt.Errorf("failed to find wishlist entry: %w", err)
	}

	if _, err := tx.ExecContext(ctx, tx.Rebind(`DELETE FROM wishlist_entries WHERE id = ?`), row.ID); err != nil {
		return nil, fmt.Errorf("failed to delete wishlist entry: %w", err)
	}
	_, err = tx.ExecContext(ctx, tx.Rebind(`
		UPDATE wishlist_entries SET position = position - 1
		WHERE user_id = ? AND position > ?
	`), userID, index)
	if err != nil {
		return nil, fmt.Errorf("failed to reorder wishlist: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit wishlist removal: %w", err)
	}

	entry, err := row.toDomain()
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// lockUser takes a write lock on the user's row so wishlist edits for one
// user run one at a time. Positions are derived from MAX(position), which
// two concurrent transactions would otherwise read alike.
func lockUser(ctx context.Context, tx *sqlx.Tx, userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return ErrProfileNotFound
	}
	res, err := tx.ExecContext(ctx, tx.Rebind(`UPDATE users SET username = username WHERE id = ?`), userID)
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to lock user: %w", err)
	}
	if n == 0 {
		return ErrProfileNotFound
	}
	return nil
}
