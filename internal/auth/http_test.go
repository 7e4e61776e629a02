// ABOUTME: Tests for the HTTP authentication middleware and subject check
// ABOUTME: Covers header parsing, token validation, user lookup, and identity propagation

package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/agentdesk/internal/store"
)

type failingUsers struct{}

func (failingUsers) GetUser(context.Context, string) (*store.User, error) {
	return nil, errors.New("database is locked")
}

func newUsers(t *testing.T) *store.MockStore {
	t.Helper()
	s := store.NewMockStore()
	require.NoError(t, s.CreateUser(context.Background(), &store.User{ID: "u1", Email: "u1@example.com", CreatedAt: time.Now()}))
	return s
}

func serve(t *testing.T, mw func(http.Handler) http.Handler, authHeader string) (*httptest.ResponseRecorder, *Identity) {
	t.Helper()
	var got *Identity
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/get_chat", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	mw(handler).ServeHTTP(rec, req)
	return rec, got
}

func TestMiddleware_ValidToken(t *testing.T) {
	verifier := newVerifier(t)
	token, err := verifier.Generate("u1", time.Hour)
	require.NoError(t, err)

	rec, id := serve(t, Middleware(newUsers(t), verifier, nil), "Bearer "+token)

	assert.Equal(t, http.StatusOK, rec.Code)
	require.NotNil(t, id)
	assert.Equal(t, "u1", id.UserID)
	assert.Equal(t, "u1@example.com", id.Email)
}

func TestMiddleware_Rejections(t *testing.T) {
	verifier := newVerifier(t)
	ghost, err := verifier.Generate("ghost", time.Hour)
	require.NoError(t, err)
	expired, err := verifier.Generate("u1", -time.Minute)
	require.NoError(t, err)

	tests := []struct {
		name    string
		header  string
		wantMsg string
	}{
		{"missing header", "", "missing authorization header"},
		{"basic auth", "Basic dTE6cGFzcw==", "invalid authorization header format"},
		{"empty bearer", "Bearer ", "empty token"},
		{"garbage", "Bearer nope", "invalid token"},
		{"expired", "Bearer " + expired, "token expired"},
		{"unknown user", "Bearer " + ghost, "user not found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, id := serve(t, Middleware(newUsers(t), verifier, nil), tt.header)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.JSONEq(t, `{"error":"`+tt.wantMsg+`"}`, rec.Body.String())
			assert.Nil(t, id)
		})
	}
}

func TestMiddleware_StoreFailure(t *testing.T) {
	verifier := newVerifier(t)
	token, err := verifier.Generate("u1", time.Hour)
	require.NoError(t, err)

	rec, _ := serve(t, Middleware(failingUsers{}, verifier, nil), "Bearer "+token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestCheckSubject(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, CheckSubject(ctx, "anyone"), "auth disabled allows everything")

	ctx = WithUser(ctx, &Identity{UserID: "u1"})
	assert.NoError(t, CheckSubject(ctx, "u1"))
	assert.ErrorIs(t, CheckSubject(ctx, "u2"), ErrForbidden)
}
