package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/transport-university/chatbot/backend/internal/model/chat"
	"github.com/transport-university/chatbot/backend/internal/model/user"
)

// SQLiteStore implements Repository on a local SQLite file.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens (and if needed creates) the database at dbPath.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		username TEXT NOT NULL UNIQUE COLLATE NOCASE,
		email TEXT NOT NULL UNIQUE COLLATE NOCASE,
		password_hash TEXT NOT NULL,
		is_active INTEGER NOT NULL DEFAULT 1,
		is_admin INTEGER NOT NULL DEFAULT 0,
		created_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS exchanges (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL,
		role TEXT NOT NULL DEFAULT 'user',
		message TEXT NOT NULL,
		response TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_exchanges_user ON exchanges(user_id, id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateExchange(ctx context.Context, ex chat.Exchange) (chat.Exchange, error) {
	if ex.CreatedAt.IsZero() {
		ex.CreatedAt = time.Now().UTC()
	}

	var response sql.NullString
	if ex.Response != nil {
		response = sql.NullString{String: *ex.Response, Valid: true}
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exchanges (user_id, role, message, response, created_at) VALUES (?, ?, ?, ?, ?)`,
		ex.UserID, ex.Role, ex.Message, response, ex.CreatedAt.UnixMilli())
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("insert exchange: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return chat.Exchange{}, fmt.Errorf("read exchange id: %w", err)
	}
	ex.ID = id
	return ex, nil
}

func (s *SQLiteStore) SetResponse(ctx context.Context, userID string, id int64, response string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE exchanges SET response = ? WHERE id = ? AND user_id = ?`, response, id, userID)
	if err != nil {
		return fmt.Errorf("update exchange response: %w", err)
	}
	return expectOneRow(res, ErrExchangeNotFound)
}

func (s *SQLiteStore) ListExchanges(ctx context.Context, userID string, limit, offset int) ([]chat.Exchange, int, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count exchanges: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, role, message, response, created_at
		FROM exchanges WHERE user_id = ?
		ORDER BY id DESC LIMIT ? OFFSET ?`, userID, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("query exchanges: %w", err)
	}
	defer rows.Close()

	items := make([]chat.Exchange, 0, limit)
	for rows.Next() {
		var ex chat.Exchange
		var response sql.NullString
		var createdAt int64
		if err := rows.Scan(&ex.ID, &ex.UserID, &ex.Role, &ex.Message, &response, &createdAt); err != nil {
			return nil, 0, fmt.Errorf("scan exchange row: %w", err)
		}
		if response.Valid {
			ex.Response = chat.StringPtr(response.String)
		}
		ex.CreatedAt = time.UnixMilli(createdAt).UTC()
		items = append(items, ex)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate exchanges: %w", err)
	}

	slices.Reverse(items)
	return items, total, nil
}

func (s *SQLiteStore) DeleteExchange(ctx context.Context, userID string, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM exchanges WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("delete exchange: %w", err)
	}
	return expectOneRow(res, ErrExchangeNotFound)
}

func (s *SQLiteStore) QuestionStats(ctx context.Context, n int) (int, []string, error) {
	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM exchanges WHERE role = 'user'`).Scan(&total); err != nil {
		return 0, nil, fmt.Errorf("count questions: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT message FROM exchanges WHERE role = 'user'
		GROUP BY message ORDER BY COUNT(*) DESC, message ASC LIMIT ?`, n)
	if err != nil {
		return 0, nil, fmt.Errorf("query frequent questions: %w", err)
	}
	defer rows.Close()

	questions := make([]string, 0, n)
	for rows.Next() {
		var q string
		if err := rows.Scan(&q); err != nil {
			return 0, nil, fmt.Errorf("scan question: %w", err)
		}
		questions = append(questions, q)
	}
	return total, questions, rows.Err()
}

func (s *SQLiteStore) CreateUser(ctx context.Context, u user.User) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO users (id, username, email, password_hash, is_active, is_admin, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Username, u.Email, u.PasswordHash, u.IsActive, u.IsAdmin, u.CreatedAt.Unix())
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return ErrUserExists
		}
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetUser(ctx context.Context, id string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE id = ?`, id))
}

func (s *SQLiteStore) GetUserByUsername(ctx context.Context, username string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, userColumns+` WHERE username = ?`, username))
}

func (s *SQLiteStore) CountUsers(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count users: %w", err)
	}
	return n, nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

const userColumns = `SELECT id, username, email, password_hash, is_active, is_admin, created_at FROM users`

func (s *SQLiteStore) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	var createdAt int64
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.IsActive, &u.IsAdmin, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return user.User{}, ErrUserNotFound
	}
	if err != nil {
		return user.User{}, fmt.Errorf("scan user row: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0).UTC()
	return u, nil
}

func expectOneRow(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
