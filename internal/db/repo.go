package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq" // Postgres driver
	_ "modernc.org/sqlite"

	"medassist/internal/logger"
	"medassist/pkg"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	// DriverMemory selects MemoryStore instead of a database.
	DriverMemory = "memory"
)

// Open connects to the database, verifies the connection and applies
// migrations.  SQLite files are created along with their directory.
func Open(ctx context.Context, driver, dsn string) (*sql.DB, error) {
	switch driver {
	case DriverSQLite:
		path, _, _ := strings.Cut(dsn, "?")
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create database directory: %w", err)
			}
		}
		dsn = sqliteDSN(dsn)
	case DriverPostgres:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	conn, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer keeps SQLite from returning SQLITE_BUSY under load
		conn.SetMaxOpenConns(1)
	} else {
		conn.SetMaxOpenConns(25)
		conn.SetMaxIdleConns(5)
		conn.SetConnMaxLifetime(5 * time.Minute)
	}

	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := conn.PingContext(pctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if err := Migrate(conn, driver); err != nil {
		conn.Close()
		return nil, err
	}
	return conn, nil
}

const sqlitePragmas = "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

// sqliteDSN appends the connection pragmas, keeping any query the caller set.
func sqliteDSN(dsn string) string {
	switch {
	case !strings.Contains(dsn, "?"):
		return dsn + "?" + sqlitePragmas
	case strings.HasSuffix(dsn, "?"), strings.HasSuffix(dsn, "&"):
		return dsn + sqlitePragmas
	default:
		return dsn + "&" + sqlitePragmas
	}
}

// Repository stores turns, summaries and per-session cities.
type Repository struct {
	DB       *sql.DB
	driver   string
	notifier *Notifier
	log      *logger.Logger
	now      func() time.Time
}

// NewRepository constructs a Repository over an open connection.  The
// caller owns the connection lifecycle.  notifier may be nil.
func NewRepository(db *sql.DB, driver string, notifier *Notifier, log *logger.Logger) *Repository {
	return &Repository{DB: db, driver: driver, notifier: notifier, log: log.With("component", "db"), now: time.Now}
}

// rebind rewrites ? placeholders to $n for Postgres.
func (r *Repository) rebind(q string) string {
	if r.driver != DriverPostgres {
		return q
	}
	var b strings.Builder
	n := 0
	for _, c := range q {
		if c == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(c)
	}
	return b.String()
}

// AppendTurn stores a new turn at the current time.
func (r *Repository) AppendTurn(ctx context.Context, sessionID string, role pkg.Role, content string) error {
	_, err := r.DB.ExecContext(ctx, r.rebind(
		`INSERT INTO turns (session_id, role, content, created_at) VALUES (?, ?, ?, ?)`),
		sessionID, string(role), content, r.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("append %s turn: %w", role, err)
	}
	return nil
}

// ListTurns returns every turn of the session in storage order.
func (r *Repository) ListTurns(ctx context.Context, sessionID string) ([]pkg.Turn, error) {
	rows, err := r.DB.QueryContext(ctx, r.rebind(
		`SELECT id, session_id, role, content, created_at
         FROM turns
         WHERE session_id = ?
         ORDER BY created_at ASC, id ASC`), sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var turns []pkg.Turn
	for rows.Next() {
		var (
			t    pkg.Turn
			role string
			ts   int64
		)
		if err := rows.Scan(&t.ID, &t.SessionID, &role, &t.Content, &ts); err != nil {
			return nil, err
		}
		t.Role = pkg.Role(role)
		t.CreatedAt = time.Unix(0, ts).UTC()
		turns = append(turns, t)
	}
	return turns, rows.Err()
}

// GetSummary returns the stored summary text, or "" when there is none.
func (r *Repository) GetSummary(ctx context.Context, sessionID string) (string, error) {
	var text string
	err := r.DB.QueryRowContext(ctx, r.rebind(
		`SELECT summary FROM summaries WHERE session_id = ?`), sessionID).Scan(&text)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return text, err
}

// SetSummary overwrites the session summary.  On Postgres a notification is
// published afterwards; a failed notification is only logged.
func (r *Repository) SetSummary(ctx context.Context, sessionID, text string) error {
	_, err := r.DB.ExecContext(ctx, r.rebind(
		`INSERT INTO summaries (session_id, summary, updated_at) VALUES (?, ?, ?)
         ON CONFLICT (session_id) DO UPDATE SET summary = excluded.summary, updated_at = excluded.updated_at`),
		sessionID, text, r.now().UTC().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("upsert summary: %w", err)
	}
	if r.notifier != nil {
		if err := r.notifier.Notify(ctx, sessionID); err != nil {
			r.log.Warn("summary notification failed", "session_id", sessionID, "error", err)
		}
	}
	return nil
}

// GetCity returns the city bound to the session, or "" when none is set.
func (r *Repository) GetCity(ctx context.Context, sessionID string) (string, error) {
	var city sql.NullString
	err := r.DB.QueryRowContext(ctx, r.rebind(
		`SELECT city FROM user_profiles WHERE session_id = ?`), sessionID).Scan(&city)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return city.String, nil
}

// SetCity binds city to the session, replacing any previous value.
func (r *Repository) SetCity(ctx context.Context, sessionID, city string) error {
	_, err := r.DB.ExecContext(ctx, r.rebind(
		`INSERT INTO user_profiles (session_id, city) VALUES (?, ?)
         ON CONFLICT (session_id) DO UPDATE SET city = excluded.city`),
		sessionID, city,
	)
	if err != nil {
		return fmt.Errorf("upsert city: %w", err)
	}
	return nil
}
