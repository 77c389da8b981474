package db

import (
	"context"
	"database/sql"
	"fmt"
)

// Notifier publishes summary updates on a PostgreSQL NOTIFY channel so other
// processes (a clinician dashboard, a cache) can react without polling.
type Notifier struct {
	DB      *sql.DB
	Channel string
}

// NewNotifier constructs a new Notifier.  The channel should match the
// POSTGRES_NOTIFY_CHANNEL environment variable.
func NewNotifier(db *sql.DB, channel string) *Notifier {
	return &Notifier{DB: db, Channel: channel}
}

// Notify sends the session ID as the payload on the configured channel.
func (n *Notifier) Notify(ctx context.Context, sessionID string) error {
	if _, err := n.DB.ExecContext(ctx, "SELECT pg_notify($1, $2)", n.Channel, sessionID); err != nil {
		return fmt.Errorf("notify %s: %w", n.Channel, err)
	}
	return nil
}
