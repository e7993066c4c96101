package db

import (
	"fmt"
	"log"
	"os"
	"time"

	"github.com/pkg/errors"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/andrew-dorrycott/giphy-manager/internal/config"
)

// JoinTable is the many-to-many table between bookmarks and categories.
// Link rows are managed by hand (squirrel statements) so cascades stay
// an application-level responsibility.
const JoinTable = "bookmark_categories"

type (
	GormForkedModel struct {
		ID        uint64 `gorm:"primarykey"`
		CreatedAt time.Time
		UpdatedAt time.Time
	}

	User struct {
		GormForkedModel
		Username string `gorm:"unique;not null"`
		// PBKDF2 digest, hex encoded. Plaintext never touches this row.
		Password   string `gorm:"not null"`
		Token      *string
		Bookmarks  []Bookmark
		Categories []Category
	}

	Bookmark struct {
		GormForkedModel
		GiphyID    string `gorm:"not null;uniqueIndex:uidx_giphy_user_id"`
		Favorite   bool   `gorm:"not null;default:false"`
		UserID     uint64 `gorm:"not null;uniqueIndex:uidx_giphy_user_id"`
		User       User
		Categories []Category `gorm:"many2many:bookmark_categories;"`
	}

	Category struct {
		GormForkedModel
		Name      string     `gorm:"not null;uniqueIndex:uidx_name_user_id"`
		Bookmarks []Bookmark `gorm:"many2many:bookmark_categories;"`
		UserID    uint64     `gorm:"not null;uniqueIndex:uidx_name_user_id"`
		User      User
	}
)

func NewGormClient(cfg *config.Config) (*gorm.DB, error) {
	newLogger := logger.New(log.New(os.Stdout, "\r\n", log.LstdFlags), logger.Config{
		SlowThreshold:             200 * time.Millisecond,
		LogLevel:                  logger.Info,
		Colorful:                  true,
		IgnoreRecordNotFoundError: false,
	})

	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=%s",
		cfg.DBHost, cfg.DBUser, cfg.DBPassword, cfg.DBName, cfg.DBPort, cfg.DBSSLMode)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: newLogger,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to connect database")
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}

	return db, nil
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(&User{}); err != nil {
		return errors.Wrap(err, "migrate user")
	}
	if err := db.AutoMigrate(&Bookmark{}); err != nil {
		return errors.Wrap(err, "migrate bookmark")
	}
	if err := db.AutoMigrate(&Category{}); err != nil {
		return errors.Wrap(err, "migrate category")
	}
	return nil
}
