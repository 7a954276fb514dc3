package configstore

// schemaSQL creates the four config-persistence tables: TEXT PRIMARY KEY
// ids, TEXT timestamps via datetime('now'), ON DELETE CASCADE foreign keys
// so a config wipe removes every dependent row.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS transfer_configs (
    id              TEXT PRIMARY KEY,
    name            TEXT NOT NULL UNIQUE,
    source_env      TEXT NOT NULL,
    target_env      TEXT NOT NULL,
    mode            TEXT NOT NULL DEFAULT 'declarative',
    lua_script      TEXT,
    lua_script_path TEXT,
    created_at      TEXT NOT NULL DEFAULT (datetime('now')),
    updated_at      TEXT NOT NULL DEFAULT (datetime('now')),
    last_used_at    TEXT
);

CREATE TABLE IF NOT EXISTS transfer_entity_mappings (
    id                 TEXT PRIMARY KEY,
    config_id          TEXT NOT NULL REFERENCES transfer_configs(id) ON DELETE CASCADE,
    source_entity      TEXT NOT NULL,
    target_entity      TEXT NOT NULL,
    priority           INTEGER NOT NULL DEFAULT 0,
    allow_creates      INTEGER NOT NULL DEFAULT 1,
    allow_updates      INTEGER NOT NULL DEFAULT 1,
    allow_deletes      INTEGER NOT NULL DEFAULT 0,
    allow_deactivates  INTEGER NOT NULL DEFAULT 0,
    source_pk_field    TEXT NOT NULL DEFAULT 'id',
    target_pk_field    TEXT NOT NULL DEFAULT 'id',
    source_filter_json TEXT,
    target_filter_json TEXT,
    validation_json    TEXT,
    ordinal            INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_entity_mappings_config ON transfer_entity_mappings(config_id);

CREATE TABLE IF NOT EXISTS transfer_field_mappings (
    id                TEXT PRIMARY KEY,
    entity_mapping_id TEXT NOT NULL REFERENCES transfer_entity_mappings(id) ON DELETE CASCADE,
    target_field      TEXT NOT NULL,
    transform_json    TEXT NOT NULL,
    ordinal           INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_field_mappings_entity ON transfer_field_mappings(entity_mapping_id);

CREATE TABLE IF NOT EXISTS transfer_resolvers (
    id                TEXT PRIMARY KEY,
    entity_mapping_id TEXT NOT NULL REFERENCES transfer_entity_mappings(id) ON DELETE CASCADE,
    name              TEXT NOT NULL,
    source_entity     TEXT NOT NULL,
    match_fields_json TEXT NOT NULL,
    fallback          TEXT NOT NULL DEFAULT 'error'
);
CREATE INDEX IF NOT EXISTS idx_resolvers_entity ON transfer_resolvers(entity_mapping_id);
`
