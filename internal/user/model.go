package user

import (
	"time"

	"go-market/internal/subscription"
)

type User struct {
	ID        string            `json:"id"`
	Username  string            `json:"username"`
	Password  string            `json:"-"`
	Tier      subscription.Tier `json:"subscription_tier"`
	CreatedAt time.Time         `json:"created_at"`
}

type RegisterRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string            `json:"access_token"`
	ID          string            `json:"id"`
	Username    string            `json:"username"`
	Tier        subscription.Tier `json:"subscription_tier"`
}

type SubscribeRequest struct {
	Tier string `json:"tier"`
}
