package chat

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	myMiddleware "go-market/internal/middleware"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRouter(s *Service) http.Handler {
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := r.Header.Get("X-User"); id != "" {
				r = r.WithContext(myMiddleware.WithUser(r.Context(), id, people[id]))
			}
			next.ServeHTTP(w, r)
		})
	})
	NewHandler(nil, s, nil, nil).Mount(r)
	return r
}

func do(t *testing.T, h http.Handler, method, path, userID string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if userID != "" {
		req.Header.Set("X-User", userID)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandler_Flow(t *testing.T) {
	s, _, _ := newTestService()
	h := newTestRouter(s)

	rec := do(t, h, http.MethodPost, "/api/conversations", "u-alice", StartRequest{UserID: "u-nobody"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, h, http.MethodPost, "/api/conversations", "u-alice", StartRequest{UserID: "u-bob"})
	require.Equal(t, http.StatusOK, rec.Code)
	var c Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&c))
	assert.Equal(t, "bob", c.PeerUsername)

	base := "/api/conversations/" + c.ID + "/messages"

	rec = do(t, h, http.MethodPost, base, "u-alice", SendRequest{Content: ""})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodPost, base, "u-carol", SendRequest{Content: "hi"})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = do(t, h, http.MethodPost, base, "u-alice", SendRequest{Content: "offer: $40"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = do(t, h, http.MethodGet, base+"?limit=10", "u-bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var msgs []Message
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "offer: $40", msgs[0].Content)
	assert.Equal(t, "alice", msgs[0].SenderUsername)

	rec = do(t, h, http.MethodGet, base+"?before=yesterday", "u-bob", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/conversations", "u-bob", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var convs []Conversation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&convs))
	require.Len(t, convs, 1)
	assert.Equal(t, "alice", convs[0].PeerUsername)

	rec = do(t, h, http.MethodGet, "/api/conversations", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
