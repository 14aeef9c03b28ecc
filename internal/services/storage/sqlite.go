package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/klyra-ai/klyra-backend/internal/models"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStorage implements Storage using SQLite
type SQLiteStorage struct {
	db     *sql.DB
	logger *logrus.Logger
}

// NewSQLiteStorage opens the database and runs migrations
func NewSQLiteStorage(path string, logger *logrus.Logger) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &SQLiteStorage{db: db, logger: logger}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	return s, nil
}

func (s *SQLiteStorage) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS chat_history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			query TEXT NOT NULL,
			response TEXT NOT NULL,
			timestamp DATETIME NOT NULL DEFAULT (datetime('now'))
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chat_history_user ON chat_history(user_id, domain, timestamp)`,
		`CREATE TABLE IF NOT EXISTS request_metrics (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			request_time DATETIME NOT NULL DEFAULT (datetime('now')),
			response_time FLOAT NOT NULL,
			success BOOLEAN NOT NULL,
			error_message TEXT
		)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *SQLiteStorage) SaveTurn(ctx context.Context, userID, domain string, turn models.Turn) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO chat_history (user_id, domain, query, response, timestamp) VALUES (?, ?, ?, ?, ?)`,
		userID, domain, turn.Query, turn.Response, turn.Timestamp)
	return err
}

func (s *SQLiteStorage) RecentTurns(ctx context.Context, userID, domain string, limit int) ([]models.Turn, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT query, response, timestamp
		 FROM chat_history
		 WHERE user_id = ? AND domain = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`,
		userID, domain, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var turns []models.Turn
	for rows.Next() {
		var t models.Turn
		if err := rows.Scan(&t.Query, &t.Response, &t.Timestamp); err != nil {
			return nil, err
		}
		turns = append(turns, t)
	}

	return turns, rows.Err()
}

func (s *SQLiteStorage) SaveMetric(ctx context.Context, rec models.MetricsRecord) error {
	var errMsg sql.NullString
	if rec.ErrorMessage != "" {
		errMsg = sql.NullString{String: rec.ErrorMessage, Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO request_metrics (user_id, request_time, response_time, success, error_message)
		 VALUES (?, ?, ?, ?, ?)`,
		rec.UserID, rec.RequestTime, rec.ResponseTime, rec.Success, errMsg)
	return err
}

func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}
