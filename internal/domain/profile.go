package domain

// WishlistEntry is something a user wants and what they would give up for it
type WishlistEntry struct {
	ID             string   `json:"id"`
	ItemName       string   `json:"item_name"`
	Description    string   `json:"description"`
	WillingToTrade []string `json:"willing_to_trade"`
}

// Profile is the trading view of a user
type Profile struct {
	UserID      string          `json:"user_id"`
	Username    string          `json:"username"`
	Wishlist    []WishlistEntry `json:"wishlist"`
	ListedItems []Item          `json:"listed_items"`
}
