package app

import (
	"database/sql"

	"bountyboard/internal/config"
	"bountyboard/internal/db"
	"bountyboard/internal/engine"
	"bountyboard/internal/migrate"
)

// OpenEngine opens the workspace database, applies pending migrations,
// and builds an engine with the workspace config. A missing bountyboard.yml
// falls back to the built-in defaults.
func OpenEngine(workspace string) (engine.Engine, *sql.DB, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return engine.Engine{}, nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return engine.Engine{}, nil, err
	}
	if cfg == nil {
		cfg = config.Default()
	}
	return engine.New(conn, cfg), conn, nil
}
