// Package app assembles the entity index from configuration: relational
// store, embedding provider, similarity index, data layer, and the two
// roles. Commands and embedding hosts construct one App and hand the roles
// to their producers and task workers.
package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/attachehq/attache/internal/config"
	"github.com/attachehq/attache/internal/datalayer"
	"github.com/attachehq/attache/internal/indexer"
	"github.com/attachehq/attache/internal/llm"
	"github.com/attachehq/attache/internal/search"
	"github.com/attachehq/attache/internal/storage"
	"github.com/attachehq/attache/internal/storage/sqlite"
	"github.com/attachehq/attache/internal/vector"
)

// App is a fully wired entity index. Indexer is the writer role, Search
// the reader role; producers must never touch the stores directly.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Store    *sqlite.Store
	Embedder llm.EmbeddingGenerator
	Data     *datalayer.Service
	Indexer  *indexer.Indexer
	Search   *search.Service

	points vector.PointStore
}

// New wires the full stack from the configuration. The caller owns the
// returned App and must Close it.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	store, err := sqlite.Open(cfg.Storage.DataPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open entity store: %w", err)
	}

	embedder, err := llm.NewEmbeddingGenerator(cfg)
	if err != nil {
		store.Close()
		return nil, err
	}

	var points vector.PointStore
	switch cfg.Vector.Backend {
	case "postgres":
		points, err = vector.NewPostgresPointStore(cfg.Vector.PostgresDSN, cfg.Embedding.Dimension)
	default:
		points, err = vector.NewSQLitePointStore(store.DB())
	}
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open point store: %w", err)
	}

	vectors := vector.NewService(embedder, points, logger.Named("vector"))

	data, err := datalayer.New(
		[]storage.EntityAdapter{
			store.Emails(),
			store.Contacts(),
			store.FollowUps(),
			store.Meetings(),
		},
		store.Generic(),
		store.Relationships(),
		vectors,
		logger.Named("datalayer"),
	)
	if err != nil {
		points.Close()
		store.Close()
		return nil, err
	}

	return &App{
		Config:   cfg,
		Logger:   logger,
		Store:    store,
		Embedder: embedder,
		Data:     data,
		Indexer:  indexer.New(data, logger.Named("indexer")),
		Search:   search.New(data, cfg.Vector.ScoreThreshold, logger.Named("search")),
		points:   points,
	}, nil
}

// Close releases the point store and the relational store.
func (a *App) Close() error {
	var firstErr error
	if err := a.points.Close(); err != nil {
		firstErr = err
	}
	if err := a.Store.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
