package service

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

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

func testUser(t *testing.T, gdb *gorm.DB, username string) *db.User {
	t.Helper()
	user := db.User{Username: username, Password: "irrelevant"}
	require.NoError(t, gdb.Create(&user).Error)
	return &user
}

func testServices(t *testing.T) (*gorm.DB, *BookmarkService, *CategoryService) {
	t.Helper()
	gdb := testDB(t)
	l := zap.NewNop().Sugar()
	return gdb, NewBookmarkService(gdb, l), NewCategoryService(gdb, l)
}

func countRows(t *testing.T, gdb *gorm.DB, table string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, gdb.Table(table).Count(&n).Error)
	return n
}
