package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	myMiddleware "go-market/internal/middleware"
	"go-market/internal/subscription"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

type memStore struct {
	mu    sync.Mutex
	users map[string]*User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[string]*User)}
}

func (m *memStore) CreateUser(_ context.Context, u *User) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, existing := range m.users {
		if existing.Username == u.Username {
			return nil, ErrConflict
		}
	}
	u.CreatedAt = time.Now()
	cp := *u
	m.users[u.ID] = &cp
	return u, nil
}

func (m *memStore) GetUserByUsername(_ context.Context, username string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == username {
			cp := *u
			return &cp, nil
		}
	}
	return nil, ErrNotFound
}

func (m *memStore) GetUserByID(_ context.Context, id string) (*User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memStore) SearchUsers(_ context.Context, query string) ([]User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []User{}
	for _, u := range m.users {
		if strings.Contains(strings.ToLower(u.Username), strings.ToLower(query)) {
			out = append(out, User{ID: u.ID, Username: u.Username})
		}
	}
	return out, nil
}

func (m *memStore) UpdateTier(_ context.Context, id string, tier subscription.Tier) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return ErrNotFound
	}
	u.Tier = tier
	return nil
}

func newTestService() *Service {
	s := NewService(newMemStore(), "test-secret", "go-market", time.Hour)
	s.hashCost = bcrypt.MinCost
	return s
}

func TestService_RegisterAndLogin(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	u, err := s.Register(ctx, &RegisterRequest{Username: "  alice ", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, subscription.TierNone, u.Tier)
	assert.NotEqual(t, "correct horse", u.Password)

	_, err = s.Register(ctx, &RegisterRequest{Username: "alice", Password: "another password"})
	assert.ErrorIs(t, err, ErrConflict)

	res, err := s.Login(ctx, &RegisterRequest{Username: "alice", Password: "correct horse"})
	require.NoError(t, err)
	assert.Equal(t, u.ID, res.ID)

	id, name, err := s.ValidateToken(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, u.ID, id)
	assert.Equal(t, "alice", name)

	_, err = s.Login(ctx, &RegisterRequest{Username: "alice", Password: "wrong password"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = s.Login(ctx, &RegisterRequest{Username: "nobody", Password: "correct horse"})
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RegisterValidation(t *testing.T) {
	s := newTestService()
	for _, req := range []RegisterRequest{
		{Username: "al", Password: "long enough"},
		{Username: strings.Repeat("a", 51), Password: "long enough"},
		{Username: "alice", Password: "short"},
		{Username: "alice", Password: strings.Repeat("p", maxPasswordLen+1)},
	} {
		_, err := s.Register(context.Background(), &req)
		assert.ErrorIs(t, err, ErrInvalidInput)
	}
}

func TestService_ValidateToken(t *testing.T) {
	s := newTestService()

	sign := func(claims MyJWTClaims, method jwt.SigningMethod, key any) string {
		tok, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return tok
	}
	valid := MyJWTClaims{
		ID:       "u-1",
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "go-market",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	_, _, err := s.ValidateToken(sign(valid, jwt.SigningMethodHS256, []byte("test-secret")))
	require.NoError(t, err)

	_, _, err = s.ValidateToken(sign(valid, jwt.SigningMethodHS256, []byte("other-secret")))
	assert.Error(t, err, "wrong secret")

	_, _, err = s.ValidateToken(sign(valid, jwt.SigningMethodHS512, []byte("test-secret")))
	assert.Error(t, err, "unexpected algorithm")

	expired := valid
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	_, _, err = s.ValidateToken(sign(expired, jwt.SigningMethodHS256, []byte("test-secret")))
	assert.Error(t, err, "expired")

	foreign := valid
	foreign.Issuer = "someone-else"
	_, _, err = s.ValidateToken(sign(foreign, jwt.SigningMethodHS256, []byte("test-secret")))
	assert.Error(t, err, "wrong issuer")
}

func TestService_Subscribe(t *testing.T) {
	ctx := context.Background()
	s := newTestService()

	u, err := s.Register(ctx, &RegisterRequest{Username: "seller", Password: "password123"})
	require.NoError(t, err)

	updated, err := s.Subscribe(ctx, u.ID, "pro")
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, updated.Tier)

	tier, err := s.Tier(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, subscription.TierPro, tier)

	_, err = s.Subscribe(ctx, u.ID, "diamond")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = s.Subscribe(ctx, "missing", "basic")
	assert.ErrorIs(t, err, ErrNotFound)
}

func newTestRouter(s *Service) http.Handler {
	return newTestRouterWithLog(s, nil)
}

func newTestRouterWithLog(s *Service, log *zap.Logger) http.Handler {
	h := NewHandler(s, log)
	auth := myMiddleware.NewAuthMiddleware(s)

	r := chi.NewRouter()
	r.Post("/register", h.Register)
	r.Post("/login", h.Login)
	r.Group(func(r chi.Router) {
		r.Use(auth.Handle)
		r.Get("/api/me", h.Me)
		r.Get("/api/users/search", h.SearchUsers)
		r.Get("/api/subscription/plans", h.Plans)
		r.Post("/api/subscription", h.Subscribe)
	})
	return r
}

func do(t *testing.T, h http.Handler, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Flow(t *testing.T) {
	h := newTestRouter(newTestService())

	rec := do(t, h, http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.NotContains(t, rec.Body.String(), "password")

	rec = do(t, h, http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Password: "password123"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = do(t, h, http.MethodPost, "/register", "", RegisterRequest{Username: "al", Password: "password123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/login", "", RegisterRequest{Username: "alice", Password: "nope-nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodPost, "/login", "", RegisterRequest{Username: "alice", Password: "password123"})
	require.Equal(t, http.StatusOK, rec.Code)
	var login LoginResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&login))
	require.NotEmpty(t, login.AccessToken)

	rec = do(t, h, http.MethodGet, "/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/me", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var me User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, subscription.TierNone, me.Tier)

	rec = do(t, h, http.MethodPost, "/api/subscription", login.AccessToken, SubscribeRequest{Tier: "basic"})
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&me))
	assert.Equal(t, subscription.TierBasic, me.Tier)

	rec = do(t, h, http.MethodPost, "/api/subscription", login.AccessToken, SubscribeRequest{Tier: "gold"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/users/search?q=ali", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var found []User
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&found))
	require.Len(t, found, 1)
	assert.Equal(t, "alice", found[0].Username)

	rec = do(t, h, http.MethodGet, "/api/subscription/plans", login.AccessToken, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var plans []subscription.Plan
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&plans))
	assert.Len(t, plans, 2)
}

func TestHandler_RegisterRejectsOverlongPassword(t *testing.T) {
	h := newTestRouter(newTestService())

	rec := do(t, h, http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Password: strings.Repeat("p", 80)})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, "/register", "", RegisterRequest{Username: "alice", Password: strings.Repeat("p", maxPasswordLen)})
	assert.Equal(t, http.StatusCreated, rec.Code)
}

type failingStore struct {
	*memStore
	err error
}

func (f failingStore) SearchUsers(context.Context, string) ([]User, error) { return nil, f.err }

func (f failingStore) GetUserByID(context.Context, string) (*User, error) { return nil, f.err }

func (f failingStore) GetUserByUsername(context.Context, string) (*User, error) { return nil, f.err }

func TestHandler_LogsInternalErrors(t *testing.T) {
	ctx := context.Background()
	s := newTestService()
	_, err := s.Register(ctx, &RegisterRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	res, err := s.Login(ctx, &RegisterRequest{Username: "alice", Password: "password123"})
	require.NoError(t, err)
	token := res.AccessToken
	s.repo = failingStore{memStore: newMemStore(), err: errors.New("connection reset")}

	core, logs := observer.New(zapcore.InfoLevel)
	h := newTestRouterWithLog(s, zap.New(core))

	for _, tc := range []struct {
		method, path, token string
		body                any
		message             string
	}{
		{http.MethodGet, "/api/users/search?q=al", token, nil, "user search failed"},
		{http.MethodGet, "/api/me", token, nil, "user request failed"},
		{http.MethodPost, "/login", "", RegisterRequest{Username: "alice", Password: "password123"}, "login failed"},
	} {
		rec := do(t, h, tc.method, tc.path, tc.token, tc.body)
		assert.Equal(t, http.StatusInternalServerError, rec.Code, tc.path)
		assert.NotContains(t, rec.Body.String(), "connection reset")

		entries := logs.FilterMessage(tc.message).All()
		require.Len(t, entries, 1, tc.message)
		assert.Equal(t, "connection reset", entries[0].ContextMap()["error"])
	}
}
