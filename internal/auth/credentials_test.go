package auth

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/andrew-dorrycott/giphy-manager/internal/config"
	"github.com/andrew-dorrycott/giphy-manager/internal/db"
)

func testDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func testCredentials(t *testing.T) *CredentialService {
	t.Helper()
	cfg := config.Config{AuthSalt: "test-salt"}
	return NewCredentialService(&cfg, testDB(t), zap.NewNop().Sugar())
}

func TestRegister(t *testing.T) {
	s := testCredentials(t)

	user, err := s.Register("amy", "correct horse battery")
	require.NoError(t, err)
	assert.Equal(t, "amy", user.Username)
	assert.NotEqual(t, "correct horse battery", user.Password)
	assert.NotContains(t, user.Password, "correct")
	// hex of a 32 byte key
	assert.Len(t, user.Password, 64)
}

func TestRegisterDuplicateUsername(t *testing.T) {
	s := testCredentials(t)

	_, err := s.Register("amy", "correct horse battery")
	require.NoError(t, err)

	_, err = s.Register("amy", "something else entirely")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
}

func TestVerify(t *testing.T) {
	s := testCredentials(t)

	registered, err := s.Register("amy", "correct horse battery")
	require.NoError(t, err)

	t.Run("correct password", func(t *testing.T) {
		user, err := s.Verify("amy", "correct horse battery")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := s.Verify("amy", "incorrect horse battery")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("unknown user", func(t *testing.T) {
		_, err := s.Verify("bob", "correct horse battery")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestDeriveIsDeterministic(t *testing.T) {
	cfg := config.Config{AuthSalt: "test-salt"}
	s := NewCredentialService(&cfg, nil, zap.NewNop().Sugar())

	assert.Equal(t, s.derive("password1234"), s.derive("password1234"))
	assert.NotEqual(t, s.derive("password1234"), s.derive("password1235"))

	other := NewCredentialService(&config.Config{AuthSalt: "other-salt"}, nil, zap.NewNop().Sugar())
	assert.NotEqual(t, s.derive("password1234"), other.derive("password1234"))
}
