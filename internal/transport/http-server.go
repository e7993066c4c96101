package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/andrew-dorrycott/giphy-manager/internal/auth"
	"github.com/andrew-dorrycott/giphy-manager/internal/config"
	"github.com/andrew-dorrycott/giphy-manager/internal/db"
	"github.com/andrew-dorrycott/giphy-manager/internal/giphy"
	"github.com/andrew-dorrycott/giphy-manager/internal/search"
	"github.com/andrew-dorrycott/giphy-manager/internal/service"
)

const (
	// AuthCookie carries the session token; its max-age bounds the
	// session lifetime at this boundary.
	AuthCookie = "X-Auth-Token"

	defaultSearchLimit = 25
)

type (
	RegisterReq struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required,min=12"`
	}

	LoginReq struct {
		Username string `json:"username" validate:"required"`
		Password string `json:"password" validate:"required"`
	}

	TokenResp struct {
		Token string `json:"token"`
	}

	CategoryReq struct {
		Name string `json:"name" validate:"required"`
	}

	CategoryResp struct {
		ID   uint64 `json:"id"`
		Name string `json:"name"`
	}

	BookmarkResp struct {
		GiphyID    string         `json:"giphy_id"`
		Favorite   bool           `json:"favorite"`
		Categories []CategoryResp `json:"categories"`
	}

	SearchOutput struct {
		Count      int                   `json:"count"`
		Data       []search.EnrichedItem `json:"data"`
		Error      string                `json:"error"`
		Pagination giphy.Pagination      `json:"pagination"`
	}

	GifOutput struct {
		Data  *search.EnrichedItem `json:"data"`
		Error string               `json:"error"`
	}

	ErrorResp struct {
		Error string `json:"error"`
	}

	CustomValidator struct {
		validator *validator.Validate
	}

	HTTPServer struct {
		cfg         *config.Config
		logger      *zap.SugaredLogger
		credentials *auth.CredentialService
		sessions    auth.TokenStore
		bookmarks   *service.BookmarkService
		categories  *service.CategoryService
		gifs        *giphy.Client
		reconciler  *search.Reconciler
		echo        *echo.Echo
	}
)

func NewHTTPServer(
	lc fx.Lifecycle,
	cfg *config.Config,
	logger *zap.SugaredLogger,
	credentials *auth.CredentialService,
	sessions auth.TokenStore,
	bookmarks *service.BookmarkService,
	categories *service.CategoryService,
	gifs *giphy.Client,
	reconciler *search.Reconciler,
) *HTTPServer {
	instance := newServer(cfg, logger, credentials, sessions, bookmarks, categories, gifs, reconciler)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				listen := cfg.Host + ":" + cfg.Port
				if err := instance.echo.Start(listen); err != nil && err != http.ErrServerClosed {
					instance.echo.Logger.Fatal("shutting down the server")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			logger.Info("Stopping HTTP server.")
			return instance.echo.Shutdown(ctx)
		},
	})

	return instance
}

func newServer(
	cfg *config.Config,
	logger *zap.SugaredLogger,
	credentials *auth.CredentialService,
	sessions auth.TokenStore,
	bookmarks *service.BookmarkService,
	categories *service.CategoryService,
	gifs *giphy.Client,
	reconciler *search.Reconciler,
) *HTTPServer {
	e := echo.New()
	e.HideBanner = true

	instance := HTTPServer{
		cfg:         cfg,
		logger:      logger,
		credentials: credentials,
		sessions:    sessions,
		bookmarks:   bookmarks,
		categories:  categories,
		gifs:        gifs,
		reconciler:  reconciler,
		echo:        e,
	}

	e.POST("/auth/register", instance.Register)
	e.POST("/auth/login", instance.Login)
	e.POST("/auth/logout", instance.Logout)

	e.GET("/search/:query", instance.Search)

	gifG := e.Group("/gif")
	gifG.GET("/:id", instance.GifGet)
	gifG.POST("/:id/save", instance.GifSave)
	gifG.POST("/:id/favorite", instance.GifFavorite)
	gifG.DELETE("/:id/favorite", instance.GifUnfavorite)
	gifG.DELETE("/:id", instance.GifRemove)
	gifG.POST("/:id/category/:category_id", instance.CategoryLink)
	gifG.DELETE("/:id/category/:category_id", instance.CategoryUnlink)

	e.GET("/bookmark/list", instance.BookmarkList)

	categoryG := e.Group("/category")
	categoryG.GET("", instance.CategoryGet)
	categoryG.POST("", instance.CategoryCreate)
	categoryG.DELETE("/:id", instance.CategoryDelete)

	e.GET("/ping", func(c echo.Context) error { return c.String(http.StatusOK, "pong") })

	e.Use(middleware.CORS())
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.BodyDumpWithConfig(middleware.BodyDumpConfig{
		Skipper: func(c echo.Context) bool {
			return !strings.HasPrefix(c.Path(), "/auth/")
		},
		Handler: func(c echo.Context, reqBody, resBody []byte) {
			logger.Debugw("auth request", "path", c.Path(), "body", string(censorBody(reqBody)))
		},
	}))

	e.Use(instance.AuthMiddleware)

	e.Validator = &CustomValidator{validator: validator.New()}

	echo.NotFoundHandler = func(c echo.Context) error {
		return c.NoContent(http.StatusNotFound)
	}

	e.HTTPErrorHandler = instance.errorHandler

	return &instance
}

func (s *HTTPServer) Register(c echo.Context) error {
	req := RegisterReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.credentials.Register(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrDuplicateUsername) {
			return c.JSON(http.StatusConflict, ErrorResp{Error: "Username already exists"})
		}
		return err
	}

	token, err := s.sessions.Issue(c.Request().Context(), user)
	if err != nil {
		return err
	}
	s.setAuthCookie(c, token)

	return c.JSON(http.StatusOK, TokenResp{Token: token})
}

func (s *HTTPServer) Login(c echo.Context) error {
	req := LoginReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	user, err := s.credentials.Verify(req.Username, req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrInvalidCredentials) {
			return c.JSON(http.StatusUnauthorized, ErrorResp{Error: "Invalid Login Credentials"})
		}
		return err
	}

	token, err := s.sessions.Issue(c.Request().Context(), user)
	if err != nil {
		return err
	}
	s.setAuthCookie(c, token)

	return c.JSON(http.StatusOK, TokenResp{Token: token})
}

func (s *HTTPServer) Logout(c echo.Context) error {
	if cookie, err := c.Cookie(AuthCookie); err == nil {
		if err := s.sessions.Revoke(c.Request().Context(), cookie.Value); err != nil {
			return err
		}
	}

	c.SetCookie(&http.Cookie{
		Name:     AuthCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) Search(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	query := c.Param("query")

	out := SearchOutput{Data: []search.EnrichedItem{}}

	// Not using a default on a blank string so the requester can see
	// their own bad input echoed back.
	limit, limitErr := queryInt(c, "limit", defaultSearchLimit)
	offset, offsetErr := queryInt(c, "offset", 0)
	if limitErr != nil || offsetErr != nil {
		out.Error = fmt.Sprintf("Invalid parameters: limit=%s and/or offset=%s",
			c.QueryParam("limit"), c.QueryParam("offset"))
		return c.JSON(http.StatusOK, &out)
	}

	results, err := s.gifs.Search(c.Request().Context(), query, limit, offset)
	if err != nil {
		if errors.Is(err, giphy.ErrProviderUnavailable) {
			s.logger.Errorw("search degraded", "query", query, "error", err)
			out.Error = "Search provider unavailable"
			return c.JSON(http.StatusOK, &out)
		}
		return err
	}

	enriched, err := s.reconciler.Reconcile(user, results.Data)
	if err != nil {
		return err
	}

	out.Data = enriched
	out.Count = len(enriched)
	out.Pagination = results.Pagination
	if out.Count == 0 {
		out.Error = fmt.Sprintf("No results for %s", query)
	}
	return c.JSON(http.StatusOK, &out)
}

func (s *HTTPServer) GifGet(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}

	out := GifOutput{}

	item, err := s.gifs.Get(c.Request().Context(), id)
	if err != nil {
		if errors.Is(err, giphy.ErrProviderUnavailable) {
			s.logger.Errorw("gif lookup degraded", "gif_id", id, "error", err)
			out.Error = "Search provider unavailable"
			return c.JSON(http.StatusOK, &out)
		}
		return err
	}

	enriched, err := s.reconciler.Reconcile(user, []giphy.Item{*item})
	if err != nil {
		return err
	}
	out.Data = &enriched[0]
	return c.JSON(http.StatusOK, &out)
}

func (s *HTTPServer) GifSave(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := s.bookmarks.Save(user, id); err != nil {
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) GifFavorite(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := s.bookmarks.SetFavorite(user, id, true); err != nil {
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) GifUnfavorite(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}

	if _, err := s.bookmarks.SetFavorite(user, id, false); err != nil {
		// Unfavoriting a gif that was never saved stays a no-op so
		// clients can retry freely.
		if errors.Is(err, service.ErrBookmarkNotFound) {
			return c.NoContent(http.StatusNoContent)
		}
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) GifRemove(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.bookmarks.Remove(user, id); err != nil {
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) BookmarkList(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	bookmarks, err := s.bookmarks.List(user)
	if err != nil {
		return translateError(err)
	}

	resp := make([]BookmarkResp, len(bookmarks))
	for i := range bookmarks {
		categories := make([]CategoryResp, len(bookmarks[i].Categories))
		for j := range bookmarks[i].Categories {
			categories[j] = CategoryResp{
				ID:   bookmarks[i].Categories[j].ID,
				Name: bookmarks[i].Categories[j].Name,
			}
		}
		resp[i] = BookmarkResp{
			GiphyID:    bookmarks[i].GiphyID,
			Favorite:   bookmarks[i].Favorite,
			Categories: categories,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) CategoryGet(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	categories, err := s.categories.List(user)
	if err != nil {
		return translateError(err)
	}

	resp := make([]CategoryResp, len(categories))
	for i := range categories {
		resp[i] = CategoryResp{
			ID:   categories[i].ID,
			Name: categories[i].Name,
		}
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *HTTPServer) CategoryCreate(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}

	req := CategoryReq{}
	if err := BindAndValidate(c, &req); err != nil {
		return err
	}

	model, err := s.categories.Create(user, req.Name)
	if err != nil {
		return translateError(err)
	}

	return c.JSON(http.StatusOK, CategoryResp{
		ID:   model.ID,
		Name: model.Name,
	})
}

func (s *HTTPServer) CategoryDelete(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	id, err := GetAndParseParam(c, "id")
	if err != nil {
		return err
	}

	if err := s.categories.Delete(user, id); err != nil {
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) CategoryLink(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	gifID, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	categoryID, err := GetAndParseParam(c, "category_id")
	if err != nil {
		return err
	}

	if err := s.categories.Link(user, gifID, categoryID); err != nil {
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) CategoryUnlink(c echo.Context) error {
	user, err := GetUserFromContext(c)
	if err != nil {
		return err
	}
	gifID, err := GetParam(c, "id")
	if err != nil {
		return err
	}
	categoryID, err := GetAndParseParam(c, "category_id")
	if err != nil {
		return err
	}

	if err := s.categories.Unlink(user, gifID, categoryID); err != nil {
		return translateError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

func (s *HTTPServer) AuthMiddleware(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		switch c.Path() {
		case "/auth/register", "/auth/login", "/auth/logout", "/ping":
			return next(c)
		}

		cookie, err := c.Cookie(AuthCookie)
		if err != nil {
			return c.NoContent(http.StatusUnauthorized)
		}

		user, err := s.sessions.Authenticate(c.Request().Context(), cookie.Value)
		if err != nil {
			if !errors.Is(err, auth.ErrUnauthenticated) {
				s.logger.Errorw("authenticate token", "error", err)
			}
			return c.NoContent(http.StatusUnauthorized)
		}

		c.Set("user", user)
		return next(c)
	}
}

func (s *HTTPServer) setAuthCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     AuthCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.SessionTTL / time.Second),
		Secure:   s.cfg.CookieSecure,
		HttpOnly: true,
	})
}

// errorHandler keeps internal detail out of responses. Anything that
// is not already an HTTP error gets logged with its chain and turned
// into a generic 500.
func (s *HTTPServer) errorHandler(err error, c echo.Context) {
	var httpErr *echo.HTTPError
	if !errors.As(err, &httpErr) {
		s.logger.Errorw("unexpected error",
			"method", c.Request().Method,
			"path", c.Path(),
			"error", fmt.Sprintf("%+v", err),
		)
		err = echo.NewHTTPError(http.StatusInternalServerError, "Unexpected error occurred")
	}
	s.echo.DefaultHTTPErrorHandler(err, c)
}

////////

func (cv *CustomValidator) Validate(i interface{}) error {
	if err := cv.validator.Struct(i); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func translateError(err error) error {
	switch {
	case errors.Is(err, service.ErrBookmarkNotFound),
		errors.Is(err, service.ErrCategoryNotFound),
		errors.Is(err, service.ErrLinkNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, service.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, err.Error())
	}
	return err
}

func BindAndValidate(c echo.Context, v interface{}) error {
	var err error
	if err = c.Bind(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err = c.Validate(v); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	return nil
}

func GetUserFromContext(c echo.Context) (*db.User, error) {
	user, _ := c.Get("user").(*db.User)
	if user == nil {
		return nil, errors.New("no user found in context")
	}
	return user, nil
}

func GetParam(c echo.Context, name string) (string, error) {
	value := c.Param(name)
	if value == "" {
		return "", echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid path param '%s'", name))
	}
	return value, nil
}

func GetAndParseParam(c echo.Context, name string) (uint64, error) {
	v, e := GetParam(c, name)
	if e != nil {
		return 0, e
	}
	vv, e := strconv.ParseUint(v, 10, 64)
	if e != nil {
		return 0, echo.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("invalid path param '%s'", name))
	}
	return vv, nil
}

func queryInt(c echo.Context, name string, fallback int) (int, error) {
	value := c.QueryParam(name)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, err
	}
	return parsed, nil
}

// censorBody blanks credential fields so request logging never writes
// a plaintext password.
func censorBody(body []byte) []byte {
	data := map[string]interface{}{}
	if err := json.Unmarshal(body, &data); err != nil {
		return body
	}
	if _, ok := data["password"]; ok {
		data["password"] = "$censored"
	}
	censored, err := json.Marshal(data)
	if err != nil {
		return body
	}
	return censored
}
