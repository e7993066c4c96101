package auth

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrew-dorrycott/giphy-manager/internal/config"
	"github.com/andrew-dorrycott/giphy-manager/internal/db"
)

var ErrUnauthenticated = errors.New("no user for token")

// TokenStore issues and validates opaque session tokens. Tokens are
// uuid v4 strings, so the entropy comes from crypto/rand rather than
// anything time-derived.
type TokenStore interface {
	Issue(ctx context.Context, user *db.User) (string, error)
	Authenticate(ctx context.Context, token string) (*db.User, error)
	Revoke(ctx context.Context, token string) error
}

func NewTokenStore(cfg *config.Config, gdb *gorm.DB, l *zap.SugaredLogger) TokenStore {
	if cfg.SessionBackend == config.SessionBackendRedis {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		return NewRedisTokenStore(cfg, gdb, rdb, l)
	}
	return NewUserTokenStore(gdb, l)
}

// UserTokenStore keeps the token on the user row itself. One live
// session per user: issuing a new token overwrites the previous one.
// Expiry is enforced only through cookie max-age at the boundary.
type UserTokenStore struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewUserTokenStore(gdb *gorm.DB, l *zap.SugaredLogger) *UserTokenStore {
	return &UserTokenStore{db: gdb, logger: l}
}

func (s *UserTokenStore) Issue(ctx context.Context, user *db.User) (string, error) {
	token := uuid.New().String()
	res := s.db.WithContext(ctx).Model(user).Update("token", token)
	if res.Error != nil {
		return "", errors.Wrap(res.Error, "update token")
	}
	return token, nil
}

func (s *UserTokenStore) Authenticate(ctx context.Context, token string) (*db.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	user := db.User{}
	res := s.db.WithContext(ctx).Where("token = ?", token).First(&user)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, errors.Wrap(res.Error, "find user by token")
	}
	return &user, nil
}

func (s *UserTokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&db.User{}).Where("token = ?", token).Update("token", nil)
	if res.Error != nil {
		return errors.Wrap(res.Error, "clear token")
	}
	return nil
}

// RedisTokenStore maps token -> user id in redis with a real TTL, so
// tokens expire server side and a user can hold several live sessions.
type RedisTokenStore struct {
	cfg    *config.Config
	db     *gorm.DB
	rdb    *redis.Client
	logger *zap.SugaredLogger
}

func NewRedisTokenStore(cfg *config.Config, gdb *gorm.DB, rdb *redis.Client, l *zap.SugaredLogger) *RedisTokenStore {
	return &RedisTokenStore{cfg: cfg, db: gdb, rdb: rdb, logger: l}
}

func (s *RedisTokenStore) key(token string) string {
	return "session:" + token
}

func (s *RedisTokenStore) Issue(ctx context.Context, user *db.User) (string, error) {
	token := uuid.New().String()
	if err := s.rdb.Set(ctx, s.key(token), user.ID, s.cfg.SessionTTL).Err(); err != nil {
		return "", errors.Wrap(err, "store session")
	}
	return token, nil
}

func (s *RedisTokenStore) Authenticate(ctx context.Context, token string) (*db.User, error) {
	if token == "" {
		return nil, ErrUnauthenticated
	}

	userID, err := s.rdb.Get(ctx, s.key(token)).Uint64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrUnauthenticated
		}
		return nil, errors.Wrap(err, "load session")
	}

	user := db.User{}
	res := s.db.WithContext(ctx).First(&user, userID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, errors.Wrap(res.Error, "find session user")
	}
	return &user, nil
}

func (s *RedisTokenStore) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	if err := s.rdb.Del(ctx, s.key(token)).Err(); err != nil {
		return errors.Wrap(err, "delete session")
	}
	return nil
}
