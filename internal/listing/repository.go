package listing

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"go-market/internal/db"
)

var (
	ErrNotFound     = errors.New("listing not found")
	ErrBidNotFound  = errors.New("bid not found")
	ErrNotActive    = errors.New("listing is no longer active")
	ErrBidTooLow    = errors.New("bid must be higher than the current top bid")
	ErrOwnListing   = errors.New("cannot buy or bid on your own listing")
	ErrForbidden    = errors.New("only the seller can do this")
	ErrInvalidInput = errors.New("invalid input")
)

const listingColumns = `
	l.id, l.seller_id, u.username, l.platform, l.handle, l.title, l.description,
	l.kind, l.price_cents, l.status, l.buyer_id, l.sale_price_cents, l.created_at, l.sold_at,
	COALESCE(b.top, 0), COALESCE(b.n, 0)`

const listingFrom = `
	FROM listings l
	JOIN users u ON u.id = l.seller_id
	LEFT JOIN (
		SELECT listing_id, MAX(amount_cents) AS top, COUNT(*) AS n
		FROM bids GROUP BY listing_id
	) b ON b.listing_id = l.id`

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Create(ctx context.Context, l *Listing) error {
	query := `INSERT INTO listings (id, seller_id, platform, handle, title, description, kind, price_cents, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9) RETURNING created_at`

	err := r.db.QueryRowContext(ctx, query,
		l.ID, l.SellerID, l.Platform, l.Handle, l.Title, l.Description, string(l.Kind), l.PriceCents, string(l.Status),
	).Scan(&l.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert listing: %w", err)
	}
	return nil
}

func (r *Repository) Get(ctx context.Context, id string) (*Listing, error) {
	if !db.ValidID(id) {
		return nil, ErrNotFound
	}
	row := r.db.QueryRowContext(ctx, "SELECT"+listingColumns+listingFrom+" WHERE l.id = $1", id)
	l, err := scanListing(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return l, err
}

// List runs a browse query. f must already carry a positive Limit.
func (r *Repository) List(ctx context.Context, f Filter) ([]Listing, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.SellerID != "" {
		where = append(where, "l.seller_id = "+arg(f.SellerID))
	}
	if f.Status != "" {
		where = append(where, "l.status = "+arg(string(f.Status)))
	}
	if f.Platform != "" {
		where = append(where, "LOWER(l.platform) = LOWER("+arg(f.Platform)+")")
	}
	if f.Kind != "" {
		where = append(where, "l.kind = "+arg(string(f.Kind)))
	}
	if f.Query != "" {
		p := arg(db.ContainsPattern(f.Query))
		where = append(where, "(l.handle ILIKE "+p+" OR l.title ILIKE "+p+")")
	}
	if f.MinPriceCents > 0 {
		where = append(where, "l.price_cents >= "+arg(f.MinPriceCents))
	}
	if f.MaxPriceCents > 0 {
		where = append(where, "l.price_cents <= "+arg(f.MaxPriceCents))
	}

	var sb strings.Builder
	sb.WriteString("SELECT" + listingColumns + listingFrom)
	if len(where) > 0 {
		sb.WriteString(" WHERE " + strings.Join(where, " AND "))
	}
	sb.WriteString(" ORDER BY " + orderBy(f.Sort))
	sb.WriteString(" LIMIT " + arg(f.Limit) + " OFFSET " + arg(f.Offset))

	rows, err := r.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("list listings: %w", err)
	}
	defer rows.Close()

	listings := []Listing{}
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		listings = append(listings, *l)
	}
	return listings, rows.Err()
}

func orderBy(s Sort) string {
	switch s {
	case SortPriceAsc:
		return "l.price_cents ASC, l.created_at DESC"
	case SortPriceDesc:
		return "l.price_cents DESC, l.created_at DESC"
	default:
		return "l.created_at DESC"
	}
}

// MarkSold transfers an active listing to buyerID at priceCents.
// It returns ErrNotActive when the listing was already sold or withdrawn.
func (r *Repository) MarkSold(ctx context.Context, id, buyerID string, priceCents int64) error {
	res, err := r.db.ExecContext(ctx, `UPDATE listings
		SET status = 'sold', buyer_id = $2, sale_price_cents = $3, sold_at = NOW()
		WHERE id = $1 AND status = 'active'`, id, buyerID, priceCents)
	if err != nil {
		return fmt.Errorf("mark sold: %w", err)
	}
	return expectOneRow(res, ErrNotActive)
}

func (r *Repository) Withdraw(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE listings SET status = 'withdrawn' WHERE id = $1 AND status = 'active'`, id)
	if err != nil {
		return fmt.Errorf("withdraw: %w", err)
	}
	return expectOneRow(res, ErrNotActive)
}

// PlaceBid inserts b if the listing is active and b outbids the current top bid.
// The listing row is locked for the duration of the check.
func (r *Repository) PlaceBid(ctx context.Context, b *Bid) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	var status string
	err = tx.QueryRowContext(ctx, "SELECT status FROM listings WHERE id = $1 FOR UPDATE", b.ListingID).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("lock listing: %w", err)
	}
	if Status(status) != StatusActive {
		return ErrNotActive
	}

	var top int64
	err = tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(amount_cents), 0) FROM bids WHERE listing_id = $1", b.ListingID).Scan(&top)
	if err != nil {
		return fmt.Errorf("top bid: %w", err)
	}
	if b.AmountCents <= top {
		return ErrBidTooLow
	}

	err = tx.QueryRowContext(ctx,
		"INSERT INTO bids (id, listing_id, bidder_id, amount_cents) VALUES ($1, $2, $3, $4) RETURNING created_at",
		b.ID, b.ListingID, b.BidderID, b.AmountCents,
	).Scan(&b.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert bid: %w", err)
	}
	return tx.Commit()
}

func (r *Repository) GetBid(ctx context.Context, id string) (*Bid, error) {
	if !db.ValidID(id) {
		return nil, ErrBidNotFound
	}
	b := &Bid{}
	err := r.db.QueryRowContext(ctx, `SELECT b.id, b.listing_id, b.bidder_id, u.username, b.amount_cents, b.created_at
		FROM bids b JOIN users u ON u.id = b.bidder_id WHERE b.id = $1`, id,
	).Scan(&b.ID, &b.ListingID, &b.BidderID, &b.BidderUsername, &b.AmountCents, &b.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrBidNotFound
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

// ListBids returns bids on a listing, highest first.
func (r *Repository) ListBids(ctx context.Context, listingID string) ([]Bid, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT b.id, b.listing_id, b.bidder_id, u.username, b.amount_cents, b.created_at
		FROM bids b JOIN users u ON u.id = b.bidder_id
		WHERE b.listing_id = $1
		ORDER BY b.amount_cents DESC, b.created_at ASC`, listingID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := []Bid{}
	for rows.Next() {
		var b Bid
		if err := rows.Scan(&b.ID, &b.ListingID, &b.BidderID, &b.BidderUsername, &b.AmountCents, &b.CreatedAt); err != nil {
			return nil, err
		}
		bids = append(bids, b)
	}
	return bids, rows.Err()
}

// SellerStats fills the counters of a Dashboard. Recent is left empty.
func (r *Repository) SellerStats(ctx context.Context, sellerID string) (*Dashboard, error) {
	d := &Dashboard{}
	err := r.db.QueryRowContext(ctx, `SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE status = 'active'),
			COUNT(*) FILTER (WHERE status = 'sold'),
			COUNT(*) FILTER (WHERE status = 'withdrawn'),
			COALESCE(SUM(sale_price_cents) FILTER (WHERE status = 'sold'), 0)
		FROM listings WHERE seller_id = $1`, sellerID,
	).Scan(&d.TotalListings, &d.ActiveListings, &d.SoldListings, &d.WithdrawnListings, &d.RevenueCents)
	if err != nil {
		return nil, fmt.Errorf("seller stats: %w", err)
	}

	err = r.db.QueryRowContext(ctx, `SELECT COUNT(*)
		FROM bids b JOIN listings l ON l.id = b.listing_id
		WHERE l.seller_id = $1 AND l.status = 'active'`, sellerID,
	).Scan(&d.OpenBids)
	if err != nil {
		return nil, fmt.Errorf("open bids: %w", err)
	}
	return d, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanListing(s scanner) (*Listing, error) {
	var (
		l         Listing
		kind      string
		status    string
		buyerID   sql.NullString
		salePrice sql.NullInt64
		soldAt    sql.NullTime
	)
	err := s.Scan(&l.ID, &l.SellerID, &l.SellerUsername, &l.Platform, &l.Handle, &l.Title, &l.Description,
		&kind, &l.PriceCents, &status, &buyerID, &salePrice, &l.CreatedAt, &soldAt,
		&l.TopBidCents, &l.BidCount)
	if err != nil {
		return nil, err
	}
	l.Kind = Kind(kind)
	l.Status = Status(status)
	if buyerID.Valid {
		l.BuyerID = &buyerID.String
	}
	if salePrice.Valid {
		l.SalePriceCents = &salePrice.Int64
	}
	if soldAt.Valid {
		l.SoldAt = &soldAt.Time
	}
	return &l, nil
}

func expectOneRow(res sql.Result, none error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return none
	}
	return nil
}
