package app

import (
	"database/sql"
	"fmt"

	"github.com/karras2025-collab/it-freelance-exchange/internal/config"
	"github.com/karras2025-collab/it-freelance-exchange/internal/db"
	"github.com/karras2025-collab/it-freelance-exchange/internal/engine"
	"github.com/karras2025-collab/it-freelance-exchange/internal/migrate"
)

// Context wires the workspace database, config and engine for local
// commands. Missing config falls back to the built-in catalog so a
// fresh workspace works without fx config init.
type Context struct {
	Workspace string
	DB        *sql.DB
	Config    *config.Config
	Engine    engine.Engine
}

func Bootstrap(workspace string) (*Context, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, fmt.Errorf("ensure workspace: %w", err)
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	eng, err := engine.New(conn, cfg)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return &Context{Workspace: workspace, DB: conn, Config: cfg, Engine: eng}, nil
}

func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
