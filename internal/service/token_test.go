package service

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"stockledger-api/internal/model"
)

func newTokenService(t *testing.T, f *fixture, ttl time.Duration) *TokenService {
	t.Helper()
	tokens, err := NewTokenService(f.cache, f.store, TokenConfig{
		SigningKey: []byte("test-signing-key"),
		LoginKey:   "open-sesame",
		TTL:        ttl,
	}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return tokens
}

func TestLoginAndResolve(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := newTokenService(t, f, time.Hour)

	_, _, err := tokens.Login(ctx, "wrong", "E-1")
	requireKind(t, err, KindUnauthenticated)

	_, _, err = tokens.Login(ctx, "open-sesame", "nobody")
	requireKind(t, err, KindUnauthenticated)

	_, _, err = tokens.Login(ctx, "open-sesame", " ")
	requireKind(t, err, KindValidation)

	token, session, err := tokens.Login(ctx, "open-sesame", " E-1 ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(token, TokenPrefix))
	assert.Equal(t, f.employee.UserID, session.UserID)

	identity, err := tokens.Resolve(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, model.RoleEmployee, identity.Role)
	require.NotNil(t, identity.WarehouseID)
	assert.Equal(t, f.main.ID, *identity.WarehouseID)

	tampered := token[:len(token)-1] + "0"
	if tampered == token {
		tampered = token[:len(token)-1] + "1"
	}
	_, err = tokens.Resolve(ctx, tampered)
	requireKind(t, err, KindUnauthenticated)

	_, err = tokens.Resolve(ctx, "Bearer nope")
	requireKind(t, err, KindUnauthenticated)

	require.NoError(t, tokens.RevokeToken(ctx, token))
	_, err = tokens.Resolve(ctx, token)
	requireKind(t, err, KindUnauthenticated)
}

func TestTokenSignedWithAnotherKeyIsRejected(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := newTokenService(t, f, time.Hour)

	token, _, err := tokens.GenerateToken(ctx, f.admin.UserID)
	require.NoError(t, err)

	other, err := NewTokenService(f.cache, f.store, TokenConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)
	_, err = other.ValidateToken(ctx, token)
	requireKind(t, err, KindUnauthenticated)
}

func TestRefreshToken(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tokens := newTokenService(t, f, time.Hour)

	token, session, err := tokens.GenerateToken(ctx, f.admin.UserID)
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	refreshed, err := tokens.RefreshToken(ctx, token)
	require.NoError(t, err)
	assert.True(t, refreshed.ExpiresAt.After(session.ExpiresAt))
	assert.Equal(t, session.CreatedAt.Unix(), refreshed.CreatedAt.Unix())
}

func TestLoginDisabledWithoutKey(t *testing.T) {
	f := newFixture(t)
	tokens, err := NewTokenService(f.cache, f.store, TokenConfig{}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, _, err = tokens.Login(context.Background(), "", "A-1")
	requireKind(t, err, KindUnauthenticated)
}
