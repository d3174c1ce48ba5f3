package domain

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidInput marks malformed input such as a negative price
var ErrInvalidInput = errors.New("invalid input")

// Category is one of the fixed listing categories
type Category string

const (
	CategoryElectronics Category = "Electronics"
	CategoryClothing    Category = "Clothing"
	CategoryHomeGoods   Category = "Home Goods"
	CategoryTools       Category = "Tools"
	CategoryToysGames   Category = "Toys & Games"
	CategoryBooks       Category = "Books"
	CategoryHandmade    Category = "Handmade"
	CategoryServices    Category = "Services"
	CategoryOther       Category = "Other"
)

// Categories lists every known category in display order
var Categories = []Category{
	CategoryElectronics,
	CategoryClothing,
	CategoryHomeGoods,
	CategoryTools,
	CategoryToysGames,
	CategoryBooks,
	CategoryHandmade,
	CategoryServices,
	CategoryOther,
}

// Condition is the physical condition of a listed item
type Condition string

const (
	ConditionNew     Condition = "New"
	ConditionLikeNew Condition = "Like New"
	ConditionGood    Condition = "Good"
	ConditionFair    Condition = "Fair"
	ConditionPoor    Condition = "Poor"
)

// Conditions lists every supported condition, best first
var Conditions = []Condition{
	ConditionNew,
	ConditionLikeNew,
	ConditionGood,
	ConditionFair,
	ConditionPoor,
}

// IsKnownCategory reports whether c is one of Categories
func IsKnownCategory(c Category) bool {
	for _, known := range Categories {
		if c == known {
			return true
		}
	}
	return false
}

// IsKnownCondition reports whether c is one of Conditions
func IsKnownCondition(c Condition) bool {
	for _, known := range Conditions {
		if c == known {
			return true
		}
	}
	return false
}

// DesiredItem describes something an item owner would accept in a trade
type DesiredItem struct {
	Category    Category  `json:"category"`
	ItemType    string    `json:"item_type"`
	Condition   Condition `json:"condition,omitempty"`
	Description string    `json:"description,omitempty"`
}

// DesiredItems is stored as a JSON document column
type DesiredItems []DesiredItem

// Value implements driver.Valuer
func (d DesiredItems) Value() (driver.Value, error) {
	if d == nil {
		return "[]", nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan implements sql.Scanner
func (d *DesiredItems) Scan(src interface{}) error {
	var raw []byte
	switch v := src.(type) {
	case nil:
		*d = nil
		return nil
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	default:
		return fmt.Errorf("unsupported looking_for type %T", src)
	}
	if len(raw) == 0 {
		*d = nil
		return nil
	}
	return json.Unmarshal(raw, d)
}

// Item represents a listing in the marketplace catalog
type Item struct {
	ID          string       `json:"id" db:"id"`
	OwnerID     string       `json:"owner_id" db:"owner_id"`
	Name        string       `json:"name" db:"name"`
	Category    Category     `json:"category" db:"category"`
	Condition   Condition    `json:"condition" db:"condition"`
	Description string       `json:"description" db:"description"`
	Price       float64      `json:"price" db:"price"`
	TradeValue  float64      `json:"trade_value" db:"trade_value"`
	ForSale     bool         `json:"for_sale" db:"for_sale"`
	ForTrade    bool         `json:"for_trade" db:"for_trade"`
	Active      bool         `json:"active" db:"active"`
	LookingFor  DesiredItems `json:"looking_for" db:"looking_for"`
	CreatedAt   time.Time    `json:"created_at" db:"created_at"`
}

// Validate rejects items that cannot be priced or described
func (i *Item) Validate() error {
	if i.Price < 0 {
		return fmt.Errorf("%w: negative price %.2f", ErrInvalidInput, i.Price)
	}
	if i.TradeValue < 0 {
		return fmt.Errorf("%w: negative trade value %.2f", ErrInvalidInput, i.TradeValue)
	}
	if strings.TrimSpace(i.Description) == "" {
		return fmt.Errorf("%w: description is required", ErrInvalidInput)
	}
	return nil
}
