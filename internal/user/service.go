package user

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go-market/internal/subscription"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidInput       = errors.New("invalid input")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

const (
	minUsernameLen = 3
	maxUsernameLen = 50
	minPasswordLen = 8
	maxPasswordLen = 72 // bcrypt rejects longer passwords
)

// Store is the persistence the service needs. *Repository implements it.
type Store interface {
	CreateUser(ctx context.Context, u *User) (*User, error)
	GetUserByUsername(ctx context.Context, username string) (*User, error)
	GetUserByID(ctx context.Context, id string) (*User, error)
	SearchUsers(ctx context.Context, query string) ([]User, error)
	UpdateTier(ctx context.Context, id string, tier subscription.Tier) error
}

type Service struct {
	repo      Store
	jwtSecret string
	issuer    string
	tokenTTL  time.Duration
	hashCost  int
}

type MyJWTClaims struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

func NewService(repo Store, secret, issuer string, tokenTTL time.Duration) *Service {
	return &Service{
		repo:      repo,
		jwtSecret: secret,
		issuer:    issuer,
		tokenTTL:  tokenTTL,
		hashCost:  bcrypt.DefaultCost,
	}
}

func (s *Service) Register(ctx context.Context, req *RegisterRequest) (*User, error) {
	username := strings.TrimSpace(req.Username)
	if n := len(username); n < minUsernameLen || n > maxUsernameLen {
		return nil, fmt.Errorf("%w: username must be %d-%d characters", ErrInvalidInput, minUsernameLen, maxUsernameLen)
	}
	if len(req.Password) < minPasswordLen {
		return nil, fmt.Errorf("%w: password must be at least %d characters", ErrInvalidInput, minPasswordLen)
	}
	if len(req.Password) > maxPasswordLen {
		return nil, fmt.Errorf("%w: password must be at most %d bytes", ErrInvalidInput, maxPasswordLen)
	}

	hashedPwd, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		return nil, err
	}

	u := &User{
		ID:       uuid.NewString(),
		Username: username,
		Password: string(hashedPwd),
		Tier:     subscription.TierNone,
	}

	return s.repo.CreateUser(ctx, u)
}

func (s *Service) Login(ctx context.Context, req *RegisterRequest) (*LoginResponse, error) {
	u, err := s.repo.GetUserByUsername(ctx, strings.TrimSpace(req.Username))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(u.Password), []byte(req.Password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, MyJWTClaims{
		ID:       u.ID,
		Username: u.Username,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.issuer,
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.tokenTTL)),
		},
	})

	ss, err := token.SignedString([]byte(s.jwtSecret))
	if err != nil {
		return nil, err
	}

	return &LoginResponse{
		AccessToken: ss,
		ID:          u.ID,
		Username:    u.Username,
		Tier:        u.Tier,
	}, nil
}

func (s *Service) ValidateToken(tokenString string) (string, string, error) {
	claims := &MyJWTClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(s.jwtSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(s.issuer))

	if err != nil {
		return "", "", err
	}
	if !token.Valid || claims.ID == "" {
		return "", "", errors.New("invalid token")
	}

	return claims.ID, claims.Username, nil
}

func (s *Service) SearchUsers(ctx context.Context, query string) ([]User, error) {
	return s.repo.SearchUsers(ctx, strings.TrimSpace(query))
}

func (s *Service) Get(ctx context.Context, id string) (*User, error) {
	return s.repo.GetUserByID(ctx, id)
}

// Tier returns the user's current subscription tier.
func (s *Service) Tier(ctx context.Context, id string) (subscription.Tier, error) {
	u, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		return "", err
	}
	return u.Tier, nil
}

// Subscribe switches the user to tier. No payment is taken.
func (s *Service) Subscribe(ctx context.Context, id, tier string) (*User, error) {
	t, err := subscription.ParseTier(tier)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.repo.UpdateTier(ctx, id, t); err != nil {
		return nil, err
	}
	return s.repo.GetUserByID(ctx, id)
}
