package service

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrew-dorrycott/giphy-manager/internal/db"
)

// CategoryService owns category rows and the bookmark-category links.
// A link may only join a bookmark and a category of the same user;
// that invariant is checked here, not left to the schema.
type CategoryService struct {
	db     *gorm.DB
	logger *zap.SugaredLogger
}

func NewCategoryService(gdb *gorm.DB, l *zap.SugaredLogger) *CategoryService {
	return &CategoryService{
		db:     gdb,
		logger: l,
	}
}

// Create adds a category for the user. Creating a name that already
// exists returns the existing row, including when a concurrent creator
// wins the uniqueness race.
func (s *CategoryService) Create(user *db.User, name string) (*db.Category, error) {
	model := db.Category{
		Name:   name,
		UserID: user.ID,
	}

	res := s.db.Create(&model)
	if res.Error != nil {
		if IsUniqueViolation(res.Error) {
			existing := db.Category{}
			if res := s.db.Where("user_id = ? AND name = ?", user.ID, name).First(&existing); res.Error != nil {
				return nil, errors.Wrap(res.Error, "find existing category")
			}
			return &existing, nil
		}
		return nil, errors.Wrap(res.Error, "create category")
	}

	return &model, nil
}

// Delete removes the category and every link referencing it as one
// transaction, after checking the category belongs to the user.
func (s *CategoryService) Delete(user *db.User, categoryID uint64) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		model := db.Category{}
		res := tx.First(&model, categoryID)
		if res.Error != nil {
			if errors.Is(res.Error, gorm.ErrRecordNotFound) {
				return ErrCategoryNotFound
			}
			return errors.Wrap(res.Error, "find category")
		}
		if model.UserID != user.ID {
			return ErrForbidden
		}

		sql, args, err := squirrel.Delete(db.JoinTable).
			Where(squirrel.Eq{"category_id": model.ID}).
			ToSql()
		if err != nil {
			return errors.Wrap(err, "build sql")
		}
		if err := tx.Exec(sql, args...).Error; err != nil {
			return errors.Wrap(err, "delete links")
		}

		if err := tx.Delete(&model).Error; err != nil {
			return errors.Wrap(err, "delete category")
		}
		return nil
	})
}

// Link puts the user's bookmark for a gif into one of the user's
// categories. Linking twice is a no-op.
func (s *CategoryService) Link(user *db.User, giphyID string, categoryID uint64) error {
	bookmark, category, err := s.resolve(user, giphyID, categoryID)
	if err != nil {
		return err
	}

	sql, args, err := squirrel.Insert(db.JoinTable).
		Columns("bookmark_id", "category_id").
		Values(bookmark.ID, category.ID).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build sql")
	}
	if err := s.db.Exec(sql, args...).Error; err != nil {
		if IsUniqueViolation(err) {
			return nil
		}
		return errors.Wrap(err, "insert link")
	}
	return nil
}

// Unlink removes the gif's bookmark from the category.
func (s *CategoryService) Unlink(user *db.User, giphyID string, categoryID uint64) error {
	bookmark, category, err := s.resolve(user, giphyID, categoryID)
	if err != nil {
		return err
	}

	sql, args, err := squirrel.Delete(db.JoinTable).
		Where(squirrel.Eq{"bookmark_id": bookmark.ID, "category_id": category.ID}).
		ToSql()
	if err != nil {
		return errors.Wrap(err, "build sql")
	}
	res := s.db.Exec(sql, args...)
	if res.Error != nil {
		return errors.Wrap(res.Error, "delete link")
	}
	if res.RowsAffected == 0 {
		return ErrLinkNotFound
	}
	return nil
}

// List returns the user's categories.
func (s *CategoryService) List(user *db.User) ([]db.Category, error) {
	categories := make([]db.Category, 0)
	res := s.db.Where("user_id = ?", user.ID).Order("id").Find(&categories)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "list categories")
	}
	return categories, nil
}

// resolve loads both ends of a link and verifies each belongs to the
// acting user. A valid-looking category id owned by someone else is
// ErrForbidden, never a silent success.
func (s *CategoryService) resolve(user *db.User, giphyID string, categoryID uint64) (*db.Bookmark, *db.Category, error) {
	bookmark := db.Bookmark{}
	res := s.db.Where("user_id = ? AND giphy_id = ?", user.ID, giphyID).First(&bookmark)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil, ErrBookmarkNotFound
		}
		return nil, nil, errors.Wrap(res.Error, "find bookmark")
	}

	category := db.Category{}
	res = s.db.First(&category, categoryID)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrRecordNotFound) {
			return nil, nil, ErrCategoryNotFound
		}
		return nil, nil, errors.Wrap(res.Error, "find category")
	}
	if category.UserID != user.ID {
		return nil, nil, ErrForbidden
	}

	return &bookmark, &category, nil
}
