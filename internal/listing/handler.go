package listing

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	myMiddleware "go-market/internal/middleware"
	"go-market/internal/subscription"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Gate wraps a handler so it only runs for users whose tier allows action.
type Gate func(action subscription.Action) func(http.Handler) http.Handler

type Handler struct {
	service *Service
	log     *zap.Logger
}

func NewHandler(s *Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{service: s, log: log}
}

// Mount registers the listing and dashboard routes on an authenticated router.
func (h *Handler) Mount(r chi.Router, gate Gate) {
	r.Route("/api/listings", func(r chi.Router) {
		r.Get("/", h.Browse)
		r.With(gate(subscription.ActionSell)).Post("/", h.Create)

		r.Route("/{listingID}", func(r chi.Router) {
			r.Get("/", h.Get)
			r.Get("/bids", h.Bids)
			r.Post("/withdraw", h.Withdraw)
			r.With(gate(subscription.ActionBuy)).Post("/buy", h.Buy)
			r.With(gate(subscription.ActionBid)).Post("/bids", h.PlaceBid)
			r.With(gate(subscription.ActionSell)).Post("/bids/{bidID}/accept", h.AcceptBid)
		})
	})
	r.Get("/api/dashboard", h.Dashboard)
}

func (h *Handler) Browse(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := Filter{
		Platform: q.Get("platform"),
		Kind:     Kind(q.Get("kind")),
		Query:    q.Get("q"),
		Status:   Status(q.Get("status")),
		Sort:     Sort(q.Get("sort")),
	}

	var err error
	if f.MinPriceCents, err = int64Param(q.Get("min_price")); err != nil {
		http.Error(w, "min_price must be an integer", http.StatusBadRequest)
		return
	}
	if f.MaxPriceCents, err = int64Param(q.Get("max_price")); err != nil {
		http.Error(w, "max_price must be an integer", http.StatusBadRequest)
		return
	}
	if v := q.Get("limit"); v != "" {
		if f.Limit, err = strconv.Atoi(v); err != nil || f.Limit <= 0 {
			http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
	}
	if v := q.Get("offset"); v != "" {
		if f.Offset, err = strconv.Atoi(v); err != nil || f.Offset < 0 {
			http.Error(w, "offset must be a non-negative integer", http.StatusBadRequest)
			return
		}
	}

	listings, err := h.service.Browse(r.Context(), f)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"listings": listings,
		"count":    len(listings),
	})
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req CreateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	l, err := h.service.Create(r.Context(), userID, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, l)
}

func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	l, err := h.service.Get(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) Buy(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	l, err := h.service.Buy(r.Context(), userID, chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) PlaceBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req BidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b, err := h.service.PlaceBid(r.Context(), userID, chi.URLParam(r, "listingID"), req.AmountCents)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (h *Handler) Bids(w http.ResponseWriter, r *http.Request) {
	bids, err := h.service.Bids(r.Context(), chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"bids":  bids,
		"count": len(bids),
	})
}

func (h *Handler) AcceptBid(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	l, err := h.service.AcceptBid(r.Context(), userID, chi.URLParam(r, "listingID"), chi.URLParam(r, "bidID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	l, err := h.service.Withdraw(r.Context(), userID, chi.URLParam(r, "listingID"))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, l)
}

func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	userID, ok := myMiddleware.UserID(r.Context())
	if !ok {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	d, err := h.service.Dashboard(r.Context(), userID)
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrInvalidInput), errors.Is(err, ErrBidTooLow):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrBidNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrForbidden), errors.Is(err, ErrOwnListing):
		http.Error(w, err.Error(), http.StatusForbidden)
	case errors.Is(err, ErrNotActive):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		h.log.Error("listing request failed", zap.Error(err))
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

func int64Param(v string) (int64, error) {
	if v == "" {
		return 0, nil
	}
	return strconv.ParseInt(v, 10, 64)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
