package search

import (
	"github.com/Masterminds/squirrel"
	"github.com/pkg/errors"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/andrew-dorrycott/giphy-manager/internal/db"
	"github.com/andrew-dorrycott/giphy-manager/internal/giphy"
)

// MissingField replaces provider fields that came back absent or
// empty. Partially broken items still render instead of failing the
// whole page.
const MissingField = "Error Data Lost"

type (
	CategoryView struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}

	// EnrichedItem is a provider item merged with the requesting
	// user's durable state for it.
	EnrichedItem struct {
		Type       string                 `json:"type"`
		ID         string                 `json:"id"`
		URL        string                 `json:"url"`
		Title      string                 `json:"title"`
		Images     map[string]interface{} `json:"images"`
		Saved      bool                   `json:"saved"`
		Favorited  bool                   `json:"favorited"`
		Categories []CategoryView         `json:"categories"`
	}

	Reconciler struct {
		db     *gorm.DB
		logger *zap.SugaredLogger
	}

	bookmarkState struct {
		favorited  bool
		categories []CategoryView
	}

	linkRow struct {
		BookmarkID uint64
		ID         uint64
		Name       string
	}
)

func NewReconciler(gdb *gorm.DB, l *zap.SugaredLogger) *Reconciler {
	return &Reconciler{
		db:     gdb,
		logger: l,
	}
}

// Reconcile merges a page of provider items with the user's bookmarks.
// The page keeps the provider's relevance order; the lookups batch the
// whole page into two queries regardless of page size.
func (r *Reconciler) Reconcile(user *db.User, page []giphy.Item) ([]EnrichedItem, error) {
	states, err := r.lookup(user, page)
	if err != nil {
		return nil, err
	}

	out := make([]EnrichedItem, 0, len(page))
	for _, item := range page {
		enriched := EnrichedItem{
			Type:       orMissing(item.Type),
			ID:         orMissing(item.ID),
			URL:        orMissing(item.URL),
			Title:      orMissing(item.Title),
			Images:     item.Images,
			Categories: []CategoryView{},
		}
		if enriched.Images == nil {
			enriched.Images = map[string]interface{}{}
		}
		if state, ok := states[item.ID]; ok {
			enriched.Saved = true
			enriched.Favorited = state.favorited
			enriched.Categories = state.categories
		}
		out = append(out, enriched)
	}
	return out, nil
}

func (r *Reconciler) lookup(user *db.User, page []giphy.Item) (map[string]*bookmarkState, error) {
	gifIDs := make([]string, 0, len(page))
	for _, item := range page {
		if item.ID != "" {
			gifIDs = append(gifIDs, item.ID)
		}
	}

	states := make(map[string]*bookmarkState)
	if len(gifIDs) == 0 {
		return states, nil
	}

	bookmarks := make([]db.Bookmark, 0)
	res := r.db.Where("user_id = ? AND giphy_id IN ?", user.ID, gifIDs).Find(&bookmarks)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "find bookmarks")
	}
	if len(bookmarks) == 0 {
		return states, nil
	}

	byRowID := make(map[uint64]*bookmarkState, len(bookmarks))
	bookmarkIDs := make([]uint64, 0, len(bookmarks))
	for i := range bookmarks {
		state := &bookmarkState{
			favorited:  bookmarks[i].Favorite,
			categories: []CategoryView{},
		}
		states[bookmarks[i].GiphyID] = state
		byRowID[bookmarks[i].ID] = state
		bookmarkIDs = append(bookmarkIDs, bookmarks[i].ID)
	}

	sql, args, err := squirrel.
		Select("bc.bookmark_id", "c.id", "c.name").From("categories c").
		Join(db.JoinTable + " bc ON c.id = bc.category_id").
		OrderBy("c.id").
		Where(squirrel.Eq{"bc.bookmark_id": bookmarkIDs}).
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "build sql")
	}

	links := make([]linkRow, 0)
	res = r.db.Raw(sql, args...).Scan(&links)
	if res.Error != nil {
		return nil, errors.Wrap(res.Error, "scan links")
	}
	for _, link := range links {
		state := byRowID[link.BookmarkID]
		state.categories = append(state.categories, CategoryView{ID: link.ID, Name: link.Name})
	}

	return states, nil
}

func orMissing(value string) string {
	if value == "" {
		return MissingField
	}
	return value
}
