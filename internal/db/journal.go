package db

import (
	"context"
	"fmt"
	"time"

	"github.com/iskrim46/ogurec/internal/events"
)

const journalHandler = "journal"

var journalSchema = []string{
	`CREATE TABLE intercepts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		session_id TEXT NOT NULL,
		at INTEGER NOT NULL,
		client_slot INTEGER NOT NULL,
		target INTEGER NOT NULL,
		original_damage INTEGER NOT NULL,
		new_damage INTEGER NOT NULL,
		reason TEXT NOT NULL
	);
	CREATE INDEX idx_intercepts_session ON intercepts(session_id);`,

	`CREATE TABLE sessions (
		id TEXT PRIMARY KEY,
		client_addr TEXT NOT NULL,
		upstream_addr TEXT NOT NULL,
		opened_at INTEGER NOT NULL,
		closed_at INTEGER,
		error TEXT NOT NULL DEFAULT ''
	);`,
}

// Intercept is one journalled damage rewrite.
type Intercept struct {
	ID             int64     `json:"id"`
	SessionID      string    `json:"session_id"`
	At             time.Time `json:"at"`
	ClientSlot     uint8     `json:"client_slot"`
	Target         uint8     `json:"target"`
	OriginalDamage int16     `json:"original_damage"`
	NewDamage      int16     `json:"new_damage"`
	Reason         string    `json:"reason"`
}

// SessionRecord is one journalled relay session.
type SessionRecord struct {
	ID           string     `json:"id"`
	ClientAddr   string     `json:"client_addr"`
	UpstreamAddr string     `json:"upstream_addr"`
	OpenedAt     time.Time  `json:"opened_at"`
	ClosedAt     *time.Time `json:"closed_at,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Journal is an append-only audit log of sessions and intercepted damage.
// Nothing in it is read back into relay state.
type Journal struct {
	db *Database
}

// OpenJournal opens the journal database and brings its schema up to date.
func OpenJournal(ctx context.Context, path string) (*Journal, error) {
	database, err := NewDatabase(path)
	if err != nil {
		return nil, err
	}

	if err := database.Migrate(ctx, journalSchema); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate journal: %w", err)
	}

	return &Journal{db: database}, nil
}

// Attach subscribes the journal to the bus.
func (j *Journal) Attach(bus *events.EventBus) {
	bus.Subscribe(events.EventDamageIntercepted, journalHandler, j.handle)
	bus.Subscribe(events.EventSessionOpened, journalHandler, j.handle)
	bus.Subscribe(events.EventSessionClosed, journalHandler, j.handle)
}

// Detach removes the journal's subscriptions.
func (j *Journal) Detach(bus *events.EventBus) {
	bus.UnsubscribeAll(journalHandler)
}

func (j *Journal) handle(ctx context.Context, e events.Event) error {
	switch p := e.Payload.(type) {
	case events.DamagePayload:
		return j.RecordIntercept(ctx, e.Time, p)
	case events.SessionPayload:
		if e.Type == events.EventSessionOpened {
			return j.RecordSessionOpened(ctx, e.Time, p)
		}
		return j.RecordSessionClosed(ctx, e.Time, p)
	}
	return nil
}

// RecordIntercept appends one damage rewrite.
func (j *Journal) RecordIntercept(ctx context.Context, at time.Time, p events.DamagePayload) error {
	_, err := j.db.Exec(ctx,
		`INSERT INTO intercepts (session_id, at, client_slot, target, original_damage, new_damage, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.SessionID, at.UnixMilli(), p.ClientSlot, p.Target, p.OriginalDamage, p.NewDamage, p.Reason)
	if err != nil {
		return fmt.Errorf("failed to record intercept: %w", err)
	}
	return nil
}

// RecordSessionOpened appends a session row.
func (j *Journal) RecordSessionOpened(ctx context.Context, at time.Time, p events.SessionPayload) error {
	_, err := j.db.Exec(ctx,
		`INSERT OR IGNORE INTO sessions (id, client_addr, upstream_addr, opened_at) VALUES (?, ?, ?, ?)`,
		p.SessionID, p.ClientAddr, p.UpstreamAddr, at.UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to record session: %w", err)
	}
	return nil
}

// RecordSessionClosed stamps the close time and error on a session row.
func (j *Journal) RecordSessionClosed(ctx context.Context, at time.Time, p events.SessionPayload) error {
	_, err := j.db.Exec(ctx,
		`UPDATE sessions SET closed_at = ?, error = ? WHERE id = ? AND closed_at IS NULL`,
		at.UnixMilli(), p.Error, p.SessionID)
	if err != nil {
		return fmt.Errorf("failed to close session: %w", err)
	}
	return nil
}

// RecentIntercepts returns up to limit intercepts, newest first.
func (j *Journal) RecentIntercepts(ctx context.Context, limit int) ([]Intercept, error) {
	rows, err := j.db.Query(ctx,
		`SELECT id, session_id, at, client_slot, target, original_damage, new_damage, reason
		 FROM intercepts ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query intercepts: %w", err)
	}
	defer rows.Close()

	var out []Intercept
	for rows.Next() {
		var (
			in Intercept
			at int64
		)
		if err := rows.Scan(&in.ID, &in.SessionID, &at, &in.ClientSlot, &in.Target,
			&in.OriginalDamage, &in.NewDamage, &in.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan intercept: %w", err)
		}
		in.At = time.UnixMilli(at)
		out = append(out, in)
	}
	return out, rows.Err()
}

// RecentSessions returns up to limit sessions, newest first.
func (j *Journal) RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	rows, err := j.db.Query(ctx,
		`SELECT id, client_addr, upstream_addr, opened_at, closed_at, error
		 FROM sessions ORDER BY opened_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			s        SessionRecord
			opened   int64
			closedAt *int64
		)
		if err := rows.Scan(&s.ID, &s.ClientAddr, &s.UpstreamAddr, &opened, &closedAt, &s.Error); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		s.OpenedAt = time.UnixMilli(opened)
		if closedAt != nil {
			t := time.UnixMilli(*closedAt)
			s.ClosedAt = &t
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// InterceptCount returns how many intercepts the journal holds.
func (j *Journal) InterceptCount(ctx context.Context) (int64, error) {
	var n int64
	if err := j.db.QueryRow(ctx, "SELECT COUNT(*) FROM intercepts").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count intercepts: %w", err)
	}
	return n, nil
}

// Prune removes intercepts recorded before cutoff and returns how many.
func (j *Journal) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := j.db.Exec(ctx, "DELETE FROM intercepts WHERE at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to prune intercepts: %w", err)
	}
	return res.RowsAffected()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
