// Package configstore persists TransferConfig values to SQLite. Saving a
// config deletes all of its dependent rows and re-inserts them inside one
// transaction, so cascading foreign keys make the wipe atomic and no
// partial-update path can exist.
package configstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"dynamics-transfer/internal/migrate"
)

// Store wraps a single-writer SQLite connection holding transfer configs.
type Store struct {
	db *sql.DB
}

// Open connects to (creating if absent) the SQLite database at path and
// bootstraps its schema: a single connection in WAL mode with foreign keys
// enforced.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open configstore: %w", err)
	}
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enable foreign keys: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping configstore: %w", err)
	}

	s := &Store{db: db}
	if err := s.bootstrap(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("bootstrap configstore schema: %w", err)
	}
	return nil
}

// Save writes cfg under its Name, replacing any existing row of that name
// and all of its dependent entity/field/resolver rows, inside a single
// transaction. Returns the config's row id.
func (s *Store) Save(ctx context.Context, cfg migrate.TransferConfig) (string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin save tx: %w", err)
	}
	defer tx.Rollback()

	var configID string
	err = tx.QueryRowContext(ctx, `SELECT id FROM transfer_configs WHERE name = ?`, cfg.Name).Scan(&configID)
	switch {
	case err == sql.ErrNoRows:
		configID = uuid.NewString()
		_, err = tx.ExecContext(ctx, `
			INSERT INTO transfer_configs (id, name, source_env, target_env, mode, lua_script, lua_script_path)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			configID, cfg.Name, cfg.SourceEnvironment, cfg.TargetEnvironment, string(cfg.Mode), nullableString(cfg.ScriptBody), nullableString(cfg.ScriptSourcePath))
		if err != nil {
			return "", fmt.Errorf("insert config: %w", err)
		}
	case err != nil:
		return "", fmt.Errorf("lookup existing config: %w", err)
	default:
		// Delete-then-reinsert: cascading FKs wipe every dependent row for
		// this config_id atomically within this transaction.
		if _, err := tx.ExecContext(ctx, `DELETE FROM transfer_entity_mappings WHERE config_id = ?`, configID); err != nil {
			return "", fmt.Errorf("wipe entity mappings: %w", err)
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE transfer_configs
			SET source_env=?, target_env=?, mode=?, lua_script=?, lua_script_path=?, updated_at=datetime('now')
			WHERE id=?`,
			cfg.SourceEnvironment, cfg.TargetEnvironment, string(cfg.Mode), nullableString(cfg.ScriptBody), nullableString(cfg.ScriptSourcePath), configID)
		if err != nil {
			return "", fmt.Errorf("update config: %w", err)
		}
	}

	for i, em := range cfg.EntityMappings {
		if err := insertEntityMapping(ctx, tx, configID, i, em); err != nil {
			return "", err
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit save tx: %w", err)
	}
	return configID, nil
}

func nullableString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// Load reconstructs a TransferConfig by name, or sql.ErrNoRows if absent.
func (s *Store) Load(ctx context.Context, name string) (migrate.TransferConfig, error) {
	var cfg migrate.TransferConfig
	var configID, mode string
	var luaScript, luaScriptPath sql.NullString

	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, source_env, target_env, mode, lua_script, lua_script_path
		FROM transfer_configs WHERE name = ?`, name).
		Scan(&configID, &cfg.Name, &cfg.SourceEnvironment, &cfg.TargetEnvironment, &mode, &luaScript, &luaScriptPath)
	if err != nil {
		return migrate.TransferConfig{}, err
	}
	cfg.Mode = migrate.TransferMode(mode)
	cfg.ScriptBody = luaScript.String
	cfg.ScriptSourcePath = luaScriptPath.String

	mappings, err := loadEntityMappings(ctx, s.db, configID)
	if err != nil {
		return migrate.TransferConfig{}, err
	}
	cfg.EntityMappings = mappings
	return cfg, nil
}
