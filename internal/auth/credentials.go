package auth

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/crypto/pbkdf2"
	"gorm.io/gorm"

	"github.com/andrew-dorrycott/giphy-manager/internal/config"
	"github.com/andrew-dorrycott/giphy-manager/internal/db"
	"github.com/andrew-dorrycott/giphy-manager/internal/service"
)

var (
	ErrDuplicateUsername  = errors.New("username already exists")
	ErrInvalidCredentials = errors.New("invalid login credentials")
)

const (
	kdfIterations = 100000
	kdfKeyLen     = 32
)

// CredentialService stores and verifies user passwords. Passwords are
// reduced to a salted PBKDF2-HMAC-SHA256 digest before they hit the
// database; the plaintext is never persisted and never logged.
type CredentialService struct {
	db     *gorm.DB
	salt   []byte
	logger *zap.SugaredLogger
}

func NewCredentialService(cfg *config.Config, gdb *gorm.DB, l *zap.SugaredLogger) *CredentialService {
	return &CredentialService{
		db:     gdb,
		salt:   []byte(cfg.AuthSalt),
		logger: l,
	}
}

func (s *CredentialService) Register(username, password string) (*db.User, error) {
	model := db.User{
		Username: username,
		Password: s.derive(password),
	}

	res := s.db.Create(&model)
	if res.Error != nil {
		if service.IsUniqueViolation(res.Error) {
			return nil, ErrDuplicateUsername
		}
		return nil, errors.Wrap(res.Error, "create user")
	}

	s.logger.Infow("user registered", "username", username)
	return &model, nil
}

func (s *CredentialService) Verify(username, password string) (*db.User, error) {
	user := db.User{}
	res := s.db.Where("username = ?", username).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			// Burn a derivation anyway so a missing user costs the
			// same as a wrong password.
			s.derive(password)
			return nil, ErrInvalidCredentials
		}
		return nil, errors.Wrap(res.Error, "find user")
	}

	if subtle.ConstantTimeCompare([]byte(s.derive(password)), []byte(user.Password)) != 1 {
		return nil, ErrInvalidCredentials
	}

	return &user, nil
}

func (s *CredentialService) derive(password string) string {
	key := pbkdf2.Key([]byte(password), s.salt, kdfIterations, kdfKeyLen, sha256.New)
	return hex.EncodeToString(key)
}
