package storage

import (
	"database/sql"
	"fmt"
	"strings"

	"teamassist/internal/config"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/mattn/go-sqlite3"
)

// Open connects to the configured database for the given driver.
func Open(dbType string, cfg *config.Config) (*sql.DB, error) {
	dbCfg, ok := cfg.Databases[dbType]
	if !ok {
		return nil, fmt.Errorf("database config for %s not found", dbType)
	}

	var (
		db  *sql.DB
		err error
	)

	switch strings.ToLower(dbType) {
	case "sqlite", "sqlite3":
		if dbCfg.DSN == "" {
			return nil, fmt.Errorf("sqlite dsn must be provided")
		}
		db, err = sql.Open("sqlite3", dbCfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("open sqlite database: %w", err)
		}
		if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable sqlite foreign keys: %w", err)
		}
	case "mysql":
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?%s",
			dbCfg.Username,
			dbCfg.Password,
			dbCfg.Host,
			dbCfg.Port,
			dbCfg.DBName,
			dbCfg.Params,
		)
		db, err = sql.Open("mysql", dsn)
		if err != nil {
			return nil, fmt.Errorf("open mysql database: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", dbType)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// Migrate ensures the required tables are present.
func Migrate(db *sql.DB, driver string) error {
	var stmts []string
	switch strings.ToLower(driver) {
	case "sqlite", "sqlite3":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS user_perms (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				password_hash TEXT NOT NULL,
				role TEXT NOT NULL DEFAULT 'employee',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token TEXT PRIMARY KEY,
				user_id INTEGER NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES user_perms(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_tokens_user ON user_tokens(user_id)`,
			`CREATE TABLE IF NOT EXISTS projects (
				id TEXT PRIMARY KEY,
				project_name TEXT NOT NULL,
				project_description TEXT,
				project_scope TEXT,
				status TEXT,
				client_name TEXT,
				start_date TEXT,
				end_date TEXT,
				tech_stack TEXT NOT NULL DEFAULT '[]',
				leader_of_project TEXT,
				assigned_to_emails TEXT NOT NULL DEFAULT '[]',
				created_at DATETIME NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS user_memories (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				project_id TEXT NOT NULL,
				chat_id TEXT NOT NULL,
				role TEXT NOT NULL,
				content TEXT NOT NULL,
				created_at DATETIME NOT NULL,
				response_length INTEGER,
				response_category TEXT,
				FOREIGN KEY(user_id) REFERENCES user_perms(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_user_memories_chat ON user_memories(user_id, project_id, chat_id, created_at)`,
			`CREATE TABLE IF NOT EXISTS episodic_memory (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_id INTEGER NOT NULL,
				project_id TEXT NOT NULL,
				chat_id TEXT NOT NULL,
				summary TEXT NOT NULL,
				message_count INTEGER NOT NULL,
				importance_score REAL NOT NULL,
				created_at DATETIME NOT NULL,
				FOREIGN KEY(user_id) REFERENCES user_perms(id) ON DELETE CASCADE
			)`,
			`CREATE INDEX IF NOT EXISTS idx_episodic_chat ON episodic_memory(user_id, project_id, chat_id, created_at DESC)`,
			`CREATE TABLE IF NOT EXISTS risk_logs (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				user_email TEXT NOT NULL,
				query TEXT NOT NULL,
				category TEXT NOT NULL,
				severity TEXT NOT NULL,
				action TEXT NOT NULL,
				project_id TEXT,
				chat_id TEXT,
				matched_pattern TEXT,
				created_at DATETIME NOT NULL
			)`,
			`CREATE INDEX IF NOT EXISTS idx_risk_logs_user ON risk_logs(user_email, created_at DESC)`,
		}
	case "mysql":
		stmts = []string{
			`CREATE TABLE IF NOT EXISTS user_perms (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				name VARCHAR(255) NOT NULL,
				email VARCHAR(255) NOT NULL UNIQUE,
				password_hash VARCHAR(255) NOT NULL,
				role VARCHAR(50) NOT NULL DEFAULT 'employee',
				created_at DATETIME NOT NULL,
				PRIMARY KEY (id)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_tokens (
				token VARCHAR(255) NOT NULL PRIMARY KEY,
				user_id BIGINT UNSIGNED NOT NULL,
				created_at DATETIME NOT NULL,
				expires_at DATETIME NOT NULL,
				INDEX idx_user_tokens_user (user_id),
				CONSTRAINT fk_user_tokens_user FOREIGN KEY (user_id) REFERENCES user_perms(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS projects (
				id VARCHAR(36) NOT NULL PRIMARY KEY,
				project_name VARCHAR(255) NOT NULL,
				project_description TEXT,
				project_scope TEXT,
				status VARCHAR(100),
				client_name VARCHAR(255),
				start_date VARCHAR(32),
				end_date VARCHAR(32),
				tech_stack TEXT NOT NULL,
				leader_of_project VARCHAR(255),
				assigned_to_emails TEXT NOT NULL,
				created_at DATETIME NOT NULL
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS user_memories (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				project_id VARCHAR(36) NOT NULL,
				chat_id VARCHAR(36) NOT NULL,
				role VARCHAR(50) NOT NULL,
				content MEDIUMTEXT NOT NULL,
				created_at DATETIME(6) NOT NULL,
				response_length INT,
				response_category VARCHAR(50),
				PRIMARY KEY (id),
				INDEX idx_user_memories_chat (user_id, project_id, chat_id, created_at),
				CONSTRAINT fk_user_memories_user FOREIGN KEY (user_id) REFERENCES user_perms(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS episodic_memory (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_id BIGINT UNSIGNED NOT NULL,
				project_id VARCHAR(36) NOT NULL,
				chat_id VARCHAR(36) NOT NULL,
				summary MEDIUMTEXT NOT NULL,
				message_count INT NOT NULL,
				importance_score DOUBLE NOT NULL,
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_episodic_chat (user_id, project_id, chat_id, created_at),
				CONSTRAINT fk_episodic_user FOREIGN KEY (user_id) REFERENCES user_perms(id) ON DELETE CASCADE
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
			`CREATE TABLE IF NOT EXISTS risk_logs (
				id BIGINT UNSIGNED NOT NULL AUTO_INCREMENT,
				user_email VARCHAR(255) NOT NULL,
				query TEXT NOT NULL,
				category VARCHAR(50) NOT NULL,
				severity VARCHAR(20) NOT NULL,
				action VARCHAR(20) NOT NULL,
				project_id VARCHAR(36),
				chat_id VARCHAR(36),
				matched_pattern VARCHAR(255),
				created_at DATETIME(6) NOT NULL,
				PRIMARY KEY (id),
				INDEX idx_risk_logs_user (user_email, created_at)
			) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4`,
		}
	default:
		return fmt.Errorf("unsupported driver for migration: %s", driver)
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate (%s): %w", driver, err)
		}
	}
	return nil
}
