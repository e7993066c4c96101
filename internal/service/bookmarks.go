package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrew-dorrycott/giphy-manager/internal/db"
)

// BookmarkService owns bookmark rows. Every operation takes the acting
// user and scopes its queries to that user's rows.
type BookmarkService struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewBookmarkService(gdb *gorm.DB, l *zap.SugaredLogger) *BookmarkService {
	return &BookmarkService{
		db:     gdb,
		logger: l,
	}
}

// Save bookmarks a gif for the user. Saving an already saved gif is a
// no-op that returns the existing row.
func (s *BookmarkService) Save(user *db.User, giphyID string) (*db.Bookmark, error) {
	model := db.Bookmark{}
	res := s.db.Where(db.Bookmark{UserID: user.ID, GiphyID: giphyID}).FirstOrCreate(&model)
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			// Lost the race against a concurrent save; the row exists now.
			return s.Get(user, giphyID)
		}
		return nil, errors.Wrap(res.Error, "save bookmark")
	}
	return &model, nil
}

// SetFavorite flips the favorite flag. Favoriting implicitly saves:
// when no bookmark exists and favorite is true, one is created.
// Unfavoriting a gif that was never saved is ErrBookmarkNotFound.
func (s *BookmarkService) SetFavorite(user *db.User, giphyID string, favorite bool) (*db.Bookmark, error) {
	model := db.Bookmark{}
	res := s.db.Where("user_id = ? AND giphy_id = ?", user.ID, giphyID).First(&model)
	if res.Error != nil {
		if !errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, errors.Wrap(res.Error, "find bookmark")
		}
		if !favorite {
			return nil, ErrBookmarkNotFound
		}

		model = db.Bookmark{UserID: user.ID, GiphyID: giphyID, Favorite: true}
		if err := s.db.Create(&model).Error; err != nil {
			if !IsUniqueViolation(err) {
				return nil, errors.Wrap(err, "create bookmark")
			}
			// A concurrent save won; fall through and flag that row.
			if res := s.db.Where("user_id = ? AND giphy_id = ?", user.ID, giphyID).First(&model); res.Error != nil {
				return nil, errors.Wrap(res.Error, "find bookmark after race")
			}
		} else {
			return &model, nil
		}
	}

	if model.Favorite == favorite {
		return &model, nil
	}
	if err := s.db.Model(&model).Update("favorite", favorite).Error; err != nil {
		return nil, errors.Wrap(err, "update favorite")
	}
	return &model, nil
}

// Remove deletes the bookmark and all of its category links as one
// transaction. Links go first; the schema has no delete cascade.
func (s *BookmarkService) Remove(user *db.User, giphyID string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := db.Bookmark{}
		res := tx.Where("user_id = ? AND giphy_id = ?", user.ID, giphyID).First(&model)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrBookmarkNotFound
			}
			return errors.Wrap(res.Error, "find bookmark")
		}

		sql, args, err := squirrel.Delete(db.JoinTable).
			Where(squirrel.Eq{"bookmark_id": model.ID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "build sql")
		}
		if err := tx.Exec(sql, args...).Error; err != nil {
			return errors.Wrap(err, "delete links")
		}

		if err := tx.Delete(&model).Error; err != nil {
			return errors.Wrap(err, "delete bookmark")
		}
		return nil
	})
}

// Get returns the user's bookmark for a gif with its categories resolved.
func (s *BookmarkService) Get(user *db.User, giphyID string) (*db.Bookmark, error) {
	model := db.Bookmark{}
	res := s.db.Preload("Categories").
		Where("user_id = ? AND giphy_id = ?", user.ID, giphyID).
		First(&model)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, ErrBookmarkNotFound
		}
		return nil, errors.Wrap(res.Error, "find bookmark")
	}
	return &model, nil
}

// List returns the user's bookmarks in insertion order, each with its
// categories resolved.
func (s *BookmarkService) List(user *db.User) ([]db.Bookmark, error) {
	bookmarks := make([]db.Bookmark, 0)
	res := s.db.Preload("Categories").
		Where("user_id = ?", user.ID).
		Order("id").
		Find(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "list bookmarks")
	}
	return bookmarks, nil
}
