package listing

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go-market/internal/events"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	defaultLimit   = 20
	maxLimit       = 100
	recentListings = 5

	maxPriceCents     = 10_000_000_00
	maxTitleLen       = 140
	maxDescriptionLen = 2000
	maxHandleLen      = 100
	maxPlatformLen    = 40
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	Create(ctx context.Context, l *Listing) error
	Get(ctx context.Context, id string) (*Listing, error)
	List(ctx context.Context, f Filter) ([]Listing, error)
	MarkSold(ctx context.Context, id, buyerID string, priceCents int64) error
	Withdraw(ctx context.Context, id string) error
	PlaceBid(ctx context.Context, b *Bid) error
	GetBid(ctx context.Context, id string) (*Bid, error)
	ListBids(ctx context.Context, listingID string) ([]Bid, error)
	SellerStats(ctx context.Context, sellerID string) (*Dashboard, error)
}

type Service struct {
	repo   Store
	events events.Publisher
	log    *zap.Logger
}

func NewService(repo Store, pub events.Publisher, log *zap.Logger) *Service {
	if pub == nil {
		pub = events.Nop{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{repo: repo, events: pub, log: log}
}

func (s *Service) Create(ctx context.Context, sellerID string, req *CreateRequest) (*Listing, error) {
	l, err := newListing(sellerID, req)
	if err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, l); err != nil {
		return nil, err
	}

	created, err := s.repo.Get(ctx, l.ID)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeListingCreated, created)
	return created, nil
}

func newListing(sellerID string, req *CreateRequest) (*Listing, error) {
	platform := strings.ToLower(strings.TrimSpace(req.Platform))
	handle := strings.TrimPrefix(strings.TrimSpace(req.Handle), "@")
	title := strings.TrimSpace(req.Title)
	description := strings.TrimSpace(req.Description)

	switch {
	case platform == "" || len(platform) > maxPlatformLen:
		return nil, fmt.Errorf("%w: platform is required (max %d characters)", ErrInvalidInput, maxPlatformLen)
	case handle == "" || len(handle) > maxHandleLen:
		return nil, fmt.Errorf("%w: handle is required (max %d characters)", ErrInvalidInput, maxHandleLen)
	case req.Kind != KindUsername && req.Kind != KindAccount:
		return nil, fmt.Errorf("%w: kind must be %q or %q", ErrInvalidInput, KindUsername, KindAccount)
	case req.PriceCents <= 0 || req.PriceCents > maxPriceCents:
		return nil, fmt.Errorf("%w: price_cents must be between 1 and %d", ErrInvalidInput, int64(maxPriceCents))
	case utf8.RuneCountInString(title) > maxTitleLen:
		return nil, fmt.Errorf("%w: title is longer than %d characters", ErrInvalidInput, maxTitleLen)
	case utf8.RuneCountInString(description) > maxDescriptionLen:
		return nil, fmt.Errorf("%w: description is longer than %d characters", ErrInvalidInput, maxDescriptionLen)
	}
	if title == "" {
		title = fmt.Sprintf("@%s on %s", handle, platform)
	}

	return &Listing{
		ID:          uuid.NewString(),
		SellerID:    sellerID,
		Platform:    platform,
		Handle:      handle,
		Title:       title,
		Description: description,
		Kind:        req.Kind,
		PriceCents:  req.PriceCents,
		Status:      StatusActive,
	}, nil
}

// Browse lists listings matching f. Unless f asks for a status, only active listings are returned.
func (s *Service) Browse(ctx context.Context, f Filter) ([]Listing, error) {
	if f.Limit <= 0 {
		f.Limit = defaultLimit
	}
	if f.Limit > maxLimit {
		f.Limit = maxLimit
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status == "" {
		f.Status = StatusActive
	}
	switch f.Sort {
	case "", SortNewest, SortPriceAsc, SortPriceDesc:
	default:
		return nil, fmt.Errorf("%w: unknown sort %q", ErrInvalidInput, f.Sort)
	}
	if f.MaxPriceCents > 0 && f.MinPriceCents > f.MaxPriceCents {
		return nil, fmt.Errorf("%w: min_price is above max_price", ErrInvalidInput)
	}
	f.Query = strings.TrimSpace(f.Query)
	return s.repo.List(ctx, f)
}

func (s *Service) Get(ctx context.Context, id string) (*Listing, error) {
	return s.repo.Get(ctx, id)
}

// Buy purchases a listing at its asking price.
func (s *Service) Buy(ctx context.Context, buyerID, id string) (*Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.SellerID == buyerID {
		return nil, ErrOwnListing
	}
	if l.Status != StatusActive {
		return nil, ErrNotActive
	}
	if err := s.repo.MarkSold(ctx, id, buyerID, l.PriceCents); err != nil {
		return nil, err
	}
	return s.sold(ctx, id)
}

func (s *Service) PlaceBid(ctx context.Context, bidderID, id string, amountCents int64) (*Bid, error) {
	if amountCents <= 0 || amountCents > maxPriceCents {
		return nil, fmt.Errorf("%w: amount_cents must be between 1 and %d", ErrInvalidInput, int64(maxPriceCents))
	}
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.SellerID == bidderID {
		return nil, ErrOwnListing
	}
	if l.Status != StatusActive {
		return nil, ErrNotActive
	}

	b := &Bid{
		ID:          uuid.NewString(),
		ListingID:   id,
		BidderID:    bidderID,
		AmountCents: amountCents,
	}
	if err := s.repo.PlaceBid(ctx, b); err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeBidPlaced, b)
	return b, nil
}

func (s *Service) Bids(ctx context.Context, id string) ([]Bid, error) {
	if _, err := s.repo.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.ListBids(ctx, id)
}

// AcceptBid sells the listing to the bidder at the bid amount.
func (s *Service) AcceptBid(ctx context.Context, sellerID, id, bidID string) (*Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, ErrForbidden
	}
	b, err := s.repo.GetBid(ctx, bidID)
	if err != nil {
		return nil, err
	}
	if b.ListingID != id {
		return nil, ErrBidNotFound
	}
	if err := s.repo.MarkSold(ctx, id, b.BidderID, b.AmountCents); err != nil {
		return nil, err
	}
	return s.sold(ctx, id)
}

func (s *Service) Withdraw(ctx context.Context, sellerID, id string) (*Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if l.SellerID != sellerID {
		return nil, ErrForbidden
	}
	if err := s.repo.Withdraw(ctx, id); err != nil {
		return nil, err
	}
	return s.repo.Get(ctx, id)
}

// Dashboard returns the seller's counters and most recent listings.
func (s *Service) Dashboard(ctx context.Context, sellerID string) (*Dashboard, error) {
	d, err := s.repo.SellerStats(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	d.Recent, err = s.repo.List(ctx, Filter{SellerID: sellerID, Sort: SortNewest, Limit: recentListings})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (s *Service) sold(ctx context.Context, id string) (*Listing, error) {
	l, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	s.publish(ctx, events.TypeListingSold, l)
	return l, nil
}

// publish logs delivery failures instead of returning them.
func (s *Service) publish(ctx context.Context, eventType string, data any) {
	if err := s.events.Publish(ctx, events.New(eventType, data)); err != nil {
		s.log.Warn("publish event failed", zap.String("type", eventType), zap.Error(err))
	}
}
