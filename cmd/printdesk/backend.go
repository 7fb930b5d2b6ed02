package main

import (
	"context"
	"fmt"

	"github.com/orrn/printdesk/internal/api/handlers"
	"github.com/orrn/printdesk/internal/api/middleware"
	"github.com/orrn/printdesk/internal/config"
	"github.com/orrn/printdesk/internal/core"
	"github.com/orrn/printdesk/internal/db"
	"github.com/orrn/printdesk/internal/db/memory"
	"github.com/orrn/printdesk/internal/db/postgres"
	"github.com/orrn/printdesk/internal/storage"
)

// backend is the persistence selected by database.driver. Every driver
// brings its schema up to date when opened.
type backend struct {
	jobs     core.JobStore
	settings middleware.SettingsStore
	close    func() error
}

func openBackend(ctx context.Context, dc config.DatabaseConfig) (*backend, error) {
	switch dc.Driver {
	case "sqlite":
		conn, err := db.Open(ctx, db.Config{Path: dc.Path})
		if err != nil {
			return nil, err
		}
		s := db.NewStore(conn)
		return &backend{jobs: s, settings: s, close: s.Close}, nil

	case "postgres":
		pool, err := postgres.NewPool(ctx, dc.DSN)
		if err != nil {
			return nil, err
		}
		s := postgres.NewStore(pool)
		if err := s.Migrate(ctx); err != nil {
			s.Close()
			return nil, err
		}
		return &backend{jobs: s, settings: s, close: s.Close}, nil

	case "memory":
		s := memory.New()
		return &backend{jobs: s, settings: s, close: s.Close}, nil
	}
	return nil, fmt.Errorf("unknown database driver %q", dc.Driver)
}

// openArtifacts returns the document store and, for local storage, the
// reader the admin API streams documents from.
func openArtifacts(sc config.StorageConfig, maxBytes int64) (core.ArtifactStore, handlers.DocumentOpener, error) {
	switch sc.Driver {
	case "local":
		local, err := storage.NewLocalStore(sc.LocalDir, maxBytes)
		if err != nil {
			return nil, nil, err
		}
		return local, local, nil
	case "pinning":
		client := storage.NewPinningClient(storage.PinningConfig{
			BaseURL:    sc.PinningBaseURL,
			GatewayURL: sc.PinningGatewayURL,
			APIKey:     sc.PinningAPIKey,
			APISecret:  sc.PinningAPISecret,
		})
		return client, nil, nil
	}
	return nil, nil, fmt.Errorf("unknown storage driver %q", sc.Driver)
}
