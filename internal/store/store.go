// Package store is the sqlite-backed catalog of identities, proxies,
// linked accounts and queued commands. It exclusively owns all persisted
// rows; callers only ever see the typed records decoded here.
package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	sqlite3 "modernc.org/sqlite"

	"github.com/hexbound/flock/internal/fingerprint"
	"github.com/hexbound/flock/internal/plan"
)

var (
	// ErrNotFound means the referenced row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDuplicate means a uniqueness constraint was violated on create.
	ErrDuplicate = errors.New("duplicate key")
)

// Store is a SQLite-backed persistence layer. A single Store is safe for
// concurrent use by all in-flight sessions; updates are row-scoped.
type Store struct{ db *sql.DB }

//go:embed migrations/*.sql
var migrationFS embed.FS

// Open opens (creating if needed) the database at path and applies the
// schema. WAL mode and a busy timeout let concurrent sessions share the
// connection pool without lock errors.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, err
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema, err := migrationFS.ReadFile("migrations/0001_init.sql")
	if err != nil {
		return err
	}
	if _, err := s.db.Exec(string(schema)); err != nil {
		return fmt.Errorf("apply migration: %w", err)
	}
	return nil
}

func (s *Store) Close() error { return s.db.Close() }

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func isConstraintErr(err error) bool {
	var se *sqlite3.Error
	if errors.As(err, &se) {
		return se.Code()&0xff == 19 // SQLITE_CONSTRAINT
	}
	return false
}

// CreateIdentity persists a new identity with the given fingerprint and
// returns its id. Ids are random, not content-addressed: two calls with
// identical inputs mint two distinct identities. A uniqueness violation
// on the generated id surfaces as ErrDuplicate.
func (s *Store) CreateIdentity(ctx context.Context, name string, proxyID, accountID *int64, interactive bool, fp fingerprint.Fingerprint) (string, error) {
	id := uuid.NewString()
	if err := s.insertIdentity(ctx, id, name, proxyID, accountID, interactive, fp); err != nil {
		return "", err
	}
	return id, nil
}

func (s *Store) insertIdentity(ctx context.Context, id, name string, proxyID, accountID *int64, interactive bool, fp fingerprint.Fingerprint) error {
	blob, err := json.Marshal(fp)
	if err != nil {
		return fmt.Errorf("encode fingerprint: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO identities (id, name, proxy_id, account_id, fingerprint, status, interactive,
		                        user_agent, viewport_width, viewport_height, timezone, locale, platform)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, name, proxyID, accountID, string(blob), StatusInactive, interactive,
		fp.UserAgent, fp.Viewport.Width, fp.Viewport.Height, fp.Timezone, fp.Locale, fp.Platform)
	if isConstraintErr(err) {
		return fmt.Errorf("identity %s: %w", id, ErrDuplicate)
	}
	return err
}

const identityColumns = `id, name, proxy_id, account_id, fingerprint, status, interactive, last_interaction, created_at`

func scanIdentity(row interface{ Scan(...any) error }) (Identity, error) {
	var (
		ident   Identity
		proxyID sql.NullInt64
		acctID  sql.NullInt64
		blob    string
		status  string
		last    sql.NullTime
	)
	err := row.Scan(&ident.ID, &ident.Name, &proxyID, &acctID, &blob, &status,
		&ident.Interactive, &last, &ident.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Identity{}, ErrNotFound
	}
	if err != nil {
		return Identity{}, err
	}
	if err := json.Unmarshal([]byte(blob), &ident.Fingerprint); err != nil {
		return Identity{}, fmt.Errorf("decode fingerprint: %w", err)
	}
	ident.Status = Status(status)
	if proxyID.Valid {
		ident.ProxyID = &proxyID.Int64
	}
	if acctID.Valid {
		ident.AccountID = &acctID.Int64
	}
	if last.Valid {
		t := last.Time
		ident.LastInteraction = &t
	}
	return ident, nil
}

func (s *Store) GetIdentity(ctx context.Context, id string) (Identity, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+identityColumns+` FROM identities WHERE id = ?`, id)
	ident, err := scanIdentity(row)
	if errors.Is(err, ErrNotFound) {
		return Identity{}, fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	return ident, err
}

// ListIdentities returns all identities, newest first.
func (s *Store) ListIdentities(ctx context.Context) ([]Identity, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+identityColumns+` FROM identities ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Identity
	for rows.Next() {
		ident, err := scanIdentity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ident)
	}
	return out, rows.Err()
}

// SelectDue returns up to limit identities eligible for interaction:
// interactive, not currently running, stalest first with never-interacted
// identities ahead of everything.
func (s *Store) SelectDue(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM identities
		WHERE interactive = 1 AND status != ?
		ORDER BY last_interaction ASC NULLS FIRST
		LIMIT ?`, StatusRunning, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// SetStatus updates one identity's lifecycle status.
func (s *Store) SetStatus(ctx context.Context, id string, status Status) error {
	return s.updateIdentity(ctx, id, `UPDATE identities SET status = ? WHERE id = ?`, status, id)
}

// TouchLastInteraction records a successful session completion time.
func (s *Store) TouchLastInteraction(ctx context.Context, id string, ts time.Time) error {
	return s.updateIdentity(ctx, id, `UPDATE identities SET last_interaction = ? WHERE id = ?`, ts.UTC(), id)
}

func (s *Store) updateIdentity(ctx context.Context, id, query string, args ...any) error {
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("identity %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateProxy inserts a proxy row, deduplicating on (host, port, username):
// if an identical endpoint exists its id is returned instead.
func (s *Store) CreateProxy(ctx context.Context, p Proxy) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT OR IGNORE INTO proxies (host, port, username, password, protocol)
		VALUES (?, ?, ?, ?, ?)`, p.Host, p.Port, p.Username, p.Password, p.Protocol)
	if err != nil {
		return 0, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return res.LastInsertId()
	}
	var id int64
	err = s.db.QueryRowContext(ctx,
		`SELECT id FROM proxies WHERE host = ? AND port = ? AND username = ?`,
		p.Host, p.Port, p.Username).Scan(&id)
	return id, err
}

func (s *Store) GetProxy(ctx context.Context, id int64) (Proxy, error) {
	var p Proxy
	err := s.db.QueryRowContext(ctx,
		`SELECT id, host, port, username, password, protocol FROM proxies WHERE id = ?`, id).
		Scan(&p.ID, &p.Host, &p.Port, &p.Username, &p.Password, &p.Protocol)
	if errors.Is(err, sql.ErrNoRows) {
		return Proxy{}, fmt.Errorf("proxy %d: %w", id, ErrNotFound)
	}
	return p, err
}

// CreateAccount inserts a linked account. A duplicate address surfaces as
// ErrDuplicate.
func (s *Store) CreateAccount(ctx context.Context, a Account) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO accounts (address, secret, provider) VALUES (?, ?, ?)`,
		a.Address, a.Secret, a.Provider)
	if isConstraintErr(err) {
		return 0, fmt.Errorf("account %s: %w", a.Address, ErrDuplicate)
	}
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func (s *Store) GetAccount(ctx context.Context, id int64) (Account, error) {
	var a Account
	err := s.db.QueryRowContext(ctx,
		`SELECT id, address, secret, provider FROM accounts WHERE id = ?`, id).
		Scan(&a.ID, &a.Address, &a.Secret, &a.Provider)
	if errors.Is(err, sql.ErrNoRows) {
		return Account{}, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	return a, err
}

// SaveCommand queues one step for an identity, optionally scheduled.
func (s *Store) SaveCommand(ctx context.Context, identityID string, cmd plan.Command, scheduledAt *time.Time) (int64, error) {
	blob, err := json.Marshal(cmd)
	if err != nil {
		return 0, fmt.Errorf("encode command: %w", err)
	}
	var sched any
	if scheduledAt != nil {
		sched = scheduledAt.UTC()
	}
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO commands (identity_id, command_type, command_data, status, scheduled_time)
		VALUES (?, ?, ?, ?, ?)`, identityID, string(cmd.Kind), string(blob), CommandPending, sched)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// FetchPending returns pending commands ordered by schedule ascending.
// With an identity id it returns that identity's whole pending queue;
// without one it returns every command globally due now or unscheduled.
func (s *Store) FetchPending(ctx context.Context, identityID string) ([]QueuedCommand, error) {
	const cols = `id, identity_id, command_type, command_data, status, scheduled_time, executed_time, created_at`
	var (
		rows *sql.Rows
		err  error
	)
	if identityID != "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+cols+` FROM commands
			WHERE identity_id = ? AND status = ?
			ORDER BY scheduled_time ASC`, identityID, CommandPending)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT `+cols+` FROM commands
			WHERE status = ? AND (scheduled_time IS NULL OR scheduled_time <= ?)
			ORDER BY scheduled_time ASC`, CommandPending, time.Now().UTC())
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []QueuedCommand
	for rows.Next() {
		var (
			qc       QueuedCommand
			kind     string
			blob     string
			status   string
			sched    sql.NullTime
			executed sql.NullTime
		)
		if err := rows.Scan(&qc.ID, &qc.IdentityID, &kind, &blob, &status, &sched, &executed, &qc.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(blob), &qc.Command); err != nil {
			return nil, fmt.Errorf("decode command %d: %w", qc.ID, err)
		}
		qc.Status = CommandStatus(status)
		if sched.Valid {
			t := sched.Time
			qc.ScheduledAt = &t
		}
		if executed.Valid {
			t := executed.Time
			qc.ExecutedAt = &t
		}
		out = append(out, qc)
	}
	return out, rows.Err()
}

// MarkExecuted flips a queued command to executed.
func (s *Store) MarkExecuted(ctx context.Context, commandID int64, ts time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE commands SET status = ?, executed_time = ? WHERE id = ?`,
		CommandExecuted, ts.UTC(), commandID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("command %d: %w", commandID, ErrNotFound)
	}
	return nil
}
