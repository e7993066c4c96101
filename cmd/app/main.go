package main

import (
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/andrew-dorrycott/giphy-manager/internal/auth"
	"github.com/andrew-dorrycott/giphy-manager/internal/config"
	"github.com/andrew-dorrycott/giphy-manager/internal/db"
	"github.com/andrew-dorrycott/giphy-manager/internal/giphy"
	"github.com/andrew-dorrycott/giphy-manager/internal/search"
	"github.com/andrew-dorrycott/giphy-manager/internal/service"
	"github.com/andrew-dorrycott/giphy-manager/internal/transport"
)

func NewLogger() (*zap.SugaredLogger, error) {
	logger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}
	return logger.Sugar(), nil
}

func main() {
	app := fx.New(
		fx.Provide(
			NewLogger,
			config.NewConfig,
			db.NewGormClient,
			auth.NewCredentialService,
			auth.NewTokenStore,
			service.NewBookmarkService,
			service.NewCategoryService,
			giphy.NewClient,
			search.NewReconciler,
			transport.NewHTTPServer,
		),
		fx.Invoke(func(*transport.HTTPServer) {}),
	)

	app.Run()
}
