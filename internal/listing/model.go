package listing

import "time"

type Kind string

const (
	KindUsername Kind = "username"
	KindAccount  Kind = "account"
)

type Status string

const (
	StatusActive    Status = "active"
	StatusSold      Status = "sold"
	StatusWithdrawn Status = "withdrawn"
)

// Listing is a username or account offered for sale.
type Listing struct {
	ID             string     `json:"id"`
	SellerID       string     `json:"seller_id"`
	SellerUsername string     `json:"seller_username"`
	Platform       string     `json:"platform"`
	Handle         string     `json:"handle"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Kind           Kind       `json:"kind"`
	PriceCents     int64      `json:"price_cents"`
	Status         Status     `json:"status"`
	BuyerID        *string    `json:"buyer_id,omitempty"`
	SalePriceCents *int64     `json:"sale_price_cents,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	SoldAt         *time.Time `json:"sold_at,omitempty"`
	TopBidCents    int64      `json:"top_bid_cents"`
	BidCount       int        `json:"bid_count"`
}

type Bid struct {
	ID             string    `json:"id"`
	ListingID      string    `json:"listing_id"`
	BidderID       string    `json:"bidder_id"`
	BidderUsername string    `json:"bidder_username"`
	AmountCents    int64     `json:"amount_cents"`
	CreatedAt      time.Time `json:"created_at"`
}

type CreateRequest struct {
	Platform    string `json:"platform"`
	Handle      string `json:"handle"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Kind        Kind   `json:"kind"`
	PriceCents  int64  `json:"price_cents"`
}

type BidRequest struct {
	AmountCents int64 `json:"amount_cents"`
}

// Sort orders browse results.
type Sort string

const (
	SortNewest    Sort = "newest"
	SortPriceAsc  Sort = "price_asc"
	SortPriceDesc Sort = "price_desc"
)

// Filter narrows a browse query. Zero values mean "any".
type Filter struct {
	SellerID      string
	Platform      string
	Kind          Kind
	Query         string
	MinPriceCents int64
	MaxPriceCents int64
	Status        Status
	Sort          Sort
	Limit         int
	Offset        int
}

// Dashboard summarizes a seller's listings.
type Dashboard struct {
	TotalListings     int       `json:"total_listings"`
	ActiveListings    int       `json:"active_listings"`
	SoldListings      int       `json:"sold_listings"`
	WithdrawnListings int       `json:"withdrawn_listings"`
	RevenueCents      int64     `json:"revenue_cents"`
	OpenBids          int       `json:"open_bids"`
	Recent            []Listing `json:"recent"`
}
