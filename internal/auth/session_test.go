package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrew-dorrycott/giphy-manager/internal/db"
)

func testUser(t *testing.T, gdb *gorm.DB, username string) *db.User {
	t.Helper()
	user := db.User{Username: username, Password: "irrelevant"}
	require.NoError(t, gdb.Create(&user).Error)
	return &user
}

func TestUserTokenStoreIssueAndAuthenticate(t *testing.T) {
	gdb := testDB(t)
	s := NewUserTokenStore(gdb, zap.NewNop().Sugar())
	user := testUser(t, gdb, "amy")
	ctx := context.Background()

	token, err := s.Issue(ctx, user)
	require.NoError(t, err)
	require.NotEmpty(t, token)

	got, err := s.Authenticate(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
	assert.Equal(t, "amy", got.Username)
}

func TestUserTokenStoreSingleActiveSession(t *testing.T) {
	gdb := testDB(t)
	s := NewUserTokenStore(gdb, zap.NewNop().Sugar())
	user := testUser(t, gdb, "amy")
	ctx := context.Background()

	first, err := s.Issue(ctx, user)
	require.NoError(t, err)
	second, err := s.Issue(ctx, user)
	require.NoError(t, err)
	require.NotEqual(t, first, second)

	_, err = s.Authenticate(ctx, first)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	got, err := s.Authenticate(ctx, second)
	require.NoError(t, err)
	assert.Equal(t, user.ID, got.ID)
}

func TestUserTokenStoreRejectsBadTokens(t *testing.T) {
	gdb := testDB(t)
	s := NewUserTokenStore(gdb, zap.NewNop().Sugar())
	testUser(t, gdb, "amy")
	ctx := context.Background()

	_, err := s.Authenticate(ctx, "")
	assert.ErrorIs(t, err, ErrUnauthenticated)

	_, err = s.Authenticate(ctx, "not-a-real-token")
	assert.ErrorIs(t, err, ErrUnauthenticated)
}

func TestUserTokenStoreRevoke(t *testing.T) {
	gdb := testDB(t)
	s := NewUserTokenStore(gdb, zap.NewNop().Sugar())
	user := testUser(t, gdb, "amy")
	ctx := context.Background()

	token, err := s.Issue(ctx, user)
	require.NoError(t, err)

	require.NoError(t, s.Revoke(ctx, token))

	_, err = s.Authenticate(ctx, token)
	assert.ErrorIs(t, err, ErrUnauthenticated)

	// idempotent
	require.NoError(t, s.Revoke(ctx, token))
	require.NoError(t, s.Revoke(ctx, ""))
}

func TestTokensAreUnpredictable(t *testing.T) {
	gdb := testDB(t)
	s := NewUserTokenStore(gdb, zap.NewNop().Sugar())
	user := testUser(t, gdb, "amy")
	ctx := context.Background()

	seen := make(map[string]bool)
	for i := 0; i < 32; i++ {
		token, err := s.Issue(ctx, user)
		require.NoError(t, err)
		assert.False(t, seen[token])
		seen[token] = true
	}
}
