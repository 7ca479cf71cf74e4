package config

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "modernc.org/sqlite"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS configs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL UNIQUE,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS analysis_configs (
	config_id INTEGER PRIMARY KEY REFERENCES configs(id) ON DELETE CASCADE,
	settings TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS storage_configs (
	config_id INTEGER NOT NULL REFERENCES configs(id) ON DELETE CASCADE,
	backend_type TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 1,
	sqlite_path TEXT,
	timescale_connection_string TEXT,
	PRIMARY KEY (config_id, backend_type)
);
CREATE TABLE IF NOT EXISTS server_configs (
	config_id INTEGER PRIMARY KEY REFERENCES configs(id) ON DELETE CASCADE,
	cert TEXT,
	key TEXT,
	listen_addr TEXT,
	port INTEGER,
	max_upload_bytes INTEGER
);
`

// SQLiteProvider implements ConfigProvider for SQLite database configuration
type SQLiteProvider struct {
	db     *sql.DB
	dbPath string
}

// NewSQLiteProvider creates a new SQLite configuration provider, creating the
// configuration tables if they do not exist
func NewSQLiteProvider(dbPath string) (*SQLiteProvider, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create configuration schema: %w", err)
	}

	return &SQLiteProvider{
		db:     db,
		dbPath: dbPath,
	}, nil
}

// LoadConfig loads the complete configuration from SQLite database
func (s *SQLiteProvider) LoadConfig() (*ConfigData, error) {
	config := &ConfigData{}

	analysis, err := s.GetAnalysisConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load analysis config: %w", err)
	}
	config.Analysis = *analysis

	storage, err := s.GetStorageConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load storage config: %w", err)
	}
	config.Storage = *storage

	server, err := s.GetServerConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load server config: %w", err)
	}
	config.Server = server

	return config, nil
}

// GetAnalysisConfig returns the analysis overrides stored for the default config
func (s *SQLiteProvider) GetAnalysisConfig() (*AnalysisData, error) {
	query := `
		SELECT settings FROM analysis_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var settings string
	err := s.db.QueryRow(query).Scan(&settings)
	if errors.Is(err, sql.ErrNoRows) {
		return &AnalysisData{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query analysis config: %w", err)
	}

	analysis := &AnalysisData{}
	if err := json.Unmarshal([]byte(settings), analysis); err != nil {
		return nil, fmt.Errorf("failed to decode analysis config: %w", err)
	}
	return analysis, nil
}

// GetStorageConfig returns storage configuration from the database
func (s *SQLiteProvider) GetStorageConfig() (*StorageData, error) {
	query := `
		SELECT backend_type, sqlite_path, timescale_connection_string
		FROM storage_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default') AND enabled = 1
	`

	rows, err := s.db.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query storage configs: %w", err)
	}
	defer rows.Close()

	storage := &StorageData{}
	for rows.Next() {
		var backendType string
		var sqlitePath, timescaleConnectionString sql.NullString

		if err := rows.Scan(&backendType, &sqlitePath, &timescaleConnectionString); err != nil {
			return nil, fmt.Errorf("failed to scan storage config row: %w", err)
		}

		switch backendType {
		case "sqlite":
			if sqlitePath.Valid {
				storage.SQLite = &SQLiteData{Path: sqlitePath.String}
			}
		case "timescaledb":
			if timescaleConnectionString.Valid {
				storage.TimescaleDB = &TimescaleDBData{
					ConnectionString: timescaleConnectionString.String,
				}
			}
		}
	}

	return storage, rows.Err()
}

// GetServerConfig returns the REST server configuration, or nil if none is stored
func (s *SQLiteProvider) GetServerConfig() (*ServerData, error) {
	query := `
		SELECT cert, key, listen_addr, port, max_upload_bytes
		FROM server_configs
		WHERE config_id = (SELECT id FROM configs WHERE name = 'default')
	`

	var cert, key, listenAddr sql.NullString
	var port, maxUpload sql.NullInt64
	err := s.db.QueryRow(query).Scan(&cert, &key, &listenAddr, &port, &maxUpload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query server config: %w", err)
	}

	return &ServerData{
		Cert:           cert.String,
		Key:            key.String,
		ListenAddr:     listenAddr.String,
		Port:           int(port.Int64),
		MaxUploadBytes: maxUpload.Int64,
	}, nil
}

// IsReadOnly returns false since SQLite supports SaveConfig
func (s *SQLiteProvider) IsReadOnly() bool {
	return false
}

// Close closes the database connection
func (s *SQLiteProvider) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SaveConfig replaces the default configuration with configData
func (s *SQLiteProvider) SaveConfig(configData *ConfigData) error {
	// Start transaction
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	configID, err := s.getOrCreateConfigID(tx)
	if err != nil {
		return fmt.Errorf("failed to insert config: %w", err)
	}

	if err := s.clearExistingConfig(tx, configID); err != nil {
		return fmt.Errorf("failed to clear existing config: %w", err)
	}

	settings, err := json.Marshal(configData.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode analysis config: %w", err)
	}
	if _, err := tx.Exec(`INSERT INTO analysis_configs (config_id, settings) VALUES (?, ?)`, configID, string(settings)); err != nil {
		return fmt.Errorf("failed to insert analysis config: %w", err)
	}

	if err := s.insertStorageConfigs(tx, configID, &configData.Storage); err != nil {
		return fmt.Errorf("failed to insert storage configs: %w", err)
	}

	if srv := configData.Server; srv != nil {
		query := `INSERT INTO server_configs (config_id, cert, key, listen_addr, port, max_upload_bytes) VALUES (?, ?, ?, ?, ?, ?)`
		if _, err := tx.Exec(query, configID, nullString(srv.Cert), nullString(srv.Key),
			nullString(srv.ListenAddr), srv.Port, srv.MaxUploadBytes); err != nil {
			return fmt.Errorf("failed to insert server config: %w", err)
		}
	}

	// Commit transaction
	return tx.Commit()
}

func (s *SQLiteProvider) getOrCreateConfigID(tx *sql.Tx) (int64, error) {
	var id int64
	err := tx.QueryRow(`SELECT id FROM configs WHERE name = 'default'`).Scan(&id)
	if err == nil {
		_, err = tx.Exec(`UPDATE configs SET updated_at = datetime('now') WHERE id = ?`, id)
		return id, err
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, err
	}

	result, err := tx.Exec(`INSERT INTO configs (name, created_at, updated_at) VALUES ('default', datetime('now'), datetime('now'))`)
	if err != nil {
		return 0, err
	}
	return result.LastInsertId()
}

func (s *SQLiteProvider) clearExistingConfig(tx *sql.Tx, configID int64) error {
	queries := []string{
		"DELETE FROM analysis_configs WHERE config_id = ?",
		"DELETE FROM storage_configs WHERE config_id = ?",
		"DELETE FROM server_configs WHERE config_id = ?",
	}

	for _, query := range queries {
		if _, err := tx.Exec(query, configID); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteProvider) insertStorageConfigs(tx *sql.Tx, configID int64, storage *StorageData) error {
	query := `INSERT INTO storage_configs (config_id, backend_type, enabled, sqlite_path, timescale_connection_string) VALUES (?, ?, 1, ?, ?)`

	if storage.SQLite != nil {
		if _, err := tx.Exec(query, configID, "sqlite", storage.SQLite.Path, nil); err != nil {
			return err
		}
	}
	if storage.TimescaleDB != nil {
		if _, err := tx.Exec(query, configID, "timescaledb", nil, storage.TimescaleDB.ConnectionString); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
