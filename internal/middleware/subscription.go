package middleware

import (
	"context"
	"encoding/json"
	"net/http"

	"go-market/internal/subscription"

	"go.uber.org/zap"
)

// TierLookup resolves a user's current subscription tier.
type TierLookup interface {
	Tier(ctx context.Context, userID string) (subscription.Tier, error)
}

// UpgradePrompt is the body of a 402 reply; clients render it in place of the action.
type UpgradePrompt struct {
	Error           string              `json:"error"`
	Action          subscription.Action `json:"action"`
	Tier            subscription.Tier   `json:"tier"`
	RequiredTier    subscription.Tier   `json:"required_tier"`
	UpgradeRequired bool                `json:"upgrade_required"`
}

// RequireAction lets the request through only when the caller's tier allows action.
// It must run after AuthMiddleware.
func RequireAction(lookup TierLookup, action subscription.Action, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := UserID(r.Context())
			if !ok {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}

			tier, err := lookup.Tier(r.Context(), userID)
			if err != nil {
				log.Error("tier lookup failed", zap.String("user", userID), zap.Error(err))
				http.Error(w, "could not check subscription", http.StatusInternalServerError)
				return
			}

			if !subscription.CanPerform(tier, action) {
				WriteUpgradePrompt(w, tier, action)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// WriteUpgradePrompt replies 402 with an UpgradePrompt for action.
func WriteUpgradePrompt(w http.ResponseWriter, tier subscription.Tier, action subscription.Action) {
	required, _ := subscription.RequiredTier(action)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusPaymentRequired)
	json.NewEncoder(w).Encode(UpgradePrompt{
		Error:           "your subscription does not allow this action",
		Action:          action,
		Tier:            tier,
		RequiredTier:    required,
		UpgradeRequired: true,
	})
}
