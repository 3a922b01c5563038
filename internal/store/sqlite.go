package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/akulov/convopilot/internal/domain"
	"github.com/akulov/convopilot/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db             *sql.DB
	sessionStateMu sync.Mutex // Serializes the update-then-insert upsert and guards against SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// Open database with WAL mode for better concurrency.
	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
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
	CREATE TABLE IF NOT EXISTS targets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operator_id TEXT NOT NULL,
		name TEXT NOT NULL,
		goal TEXT NOT NULL DEFAULT '',
		notes TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE TABLE IF NOT EXISTS target_identities (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		target_id INTEGER NOT NULL,
		platform TEXT NOT NULL,
		native_id INTEGER,
		username TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_target_identities_target ON target_identities(target_id);

	CREATE TABLE IF NOT EXISTS platform_accounts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operator_id TEXT NOT NULL,
		platform TEXT NOT NULL,
		label TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS dialogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		operator_id TEXT NOT NULL,
		account_id INTEGER NOT NULL,
		kind TEXT NOT NULL DEFAULT 'private',
		counterpart_name TEXT NOT NULL DEFAULT '',
		counterpart_username TEXT NOT NULL DEFAULT '',
		counterpart_native_id INTEGER
	);
	CREATE INDEX IF NOT EXISTS idx_dialogs_operator ON dialogs(operator_id);
	CREATE INDEX IF NOT EXISTS idx_dialogs_counterpart ON dialogs(counterpart_native_id);

	CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		dialog_id INTEGER NOT NULL,
		native_id INTEGER NOT NULL,
		outgoing INTEGER NOT NULL DEFAULT 0,
		reply_to_native_id INTEGER,
		sent_at INTEGER NOT NULL,
		has_media INTEGER NOT NULL DEFAULT 0,
		body TEXT NOT NULL DEFAULT ''
	);
	CREATE INDEX IF NOT EXISTS idx_messages_dialog ON messages(dialog_id, sent_at, native_id);

	CREATE TABLE IF NOT EXISTS dialog_categories (
		dialog_id INTEGER NOT NULL,
		category TEXT NOT NULL,
		relevance_score REAL NOT NULL DEFAULT 0,
		success_score REAL,
		PRIMARY KEY (dialog_id, category)
	);

	CREATE TABLE IF NOT EXISTS style_profiles (
		target_id INTEGER PRIMARY KEY,
		humor REAL,
		formality REAL,
		empathy REAL,
		question_rate REAL,
		engagement REAL,
		cadence_seconds REAL,
		avg_message_runes REAL,
		preferred_opening TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS session_states (
		target_id INTEGER NOT NULL,
		sub_target TEXT NOT NULL DEFAULT '',
		handle TEXT NOT NULL,
		last_message_id INTEGER NOT NULL DEFAULT 0,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (target_id, sub_target)
	);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetTarget retrieves a target by id.
func (s *SQLiteStore) GetTarget(ctx context.Context, id int64) (*domain.Target, error) {
	query := `
		SELECT id, operator_id, name, goal, notes, created_at, updated_at
		FROM targets WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var t domain.Target
	var createdAt, updatedAt int64
	err := row.Scan(&t.ID, &t.OperatorID, &t.Name, &t.Goal, &t.Notes, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan target row", err)
	}

	t.CreatedAt = time.Unix(createdAt, 0)
	t.UpdatedAt = time.Unix(updatedAt, 0)
	return &t, nil
}

// ListTargetIdentities returns all platform identities of a target.
func (s *SQLiteStore) ListTargetIdentities(ctx context.Context, targetID int64) ([]domain.TargetIdentity, error) {
	query := `
		SELECT id, target_id, platform, native_id, username
		FROM target_identities WHERE target_id = ? ORDER BY id`

	rows, err := s.db.QueryContext(ctx, query, targetID)
	if err != nil {
		return nil, storageErr("query target identities", err)
	}
	defer closeRows(rows, "target identities")

	var identities []domain.TargetIdentity
	for rows.Next() {
		var ti domain.TargetIdentity
		var nativeID sql.NullInt64
		if err := rows.Scan(&ti.ID, &ti.TargetID, &ti.Platform, &nativeID, &ti.Username); err != nil {
			return nil, storageErr("scan target identity row", err)
		}
		ti.NativeID = nativeID.Int64
		identities = append(identities, ti)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate target identities", err)
	}
	return identities, nil
}

// GetPlatformAccount retrieves one of the operator's platform accounts.
func (s *SQLiteStore) GetPlatformAccount(ctx context.Context, id int64) (*domain.PlatformAccount, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, platform, label FROM platform_accounts WHERE id = ?`, id)

	var a domain.PlatformAccount
	err := row.Scan(&a.ID, &a.Platform, &a.Label)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan platform account row", err)
	}
	return &a, nil
}

// GetStyleProfile returns the computed style signals for a target.
func (s *SQLiteStore) GetStyleProfile(ctx context.Context, targetID int64) (*domain.StyleProfile, error) {
	query := `
		SELECT humor, formality, empathy, question_rate, engagement,
		       cadence_seconds, avg_message_runes, preferred_opening
		FROM style_profiles WHERE target_id = ?`

	row := s.db.QueryRowContext(ctx, query, targetID)

	var humor, formality, empathy, questionRate, engagement sql.NullFloat64
	var cadence, avgRunes sql.NullFloat64
	var opening string
	err := row.Scan(&humor, &formality, &empathy, &questionRate, &engagement,
		&cadence, &avgRunes, &opening)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan style profile row", err)
	}

	p := domain.DefaultStyleProfile()
	if humor.Valid {
		p.Humor = humor.Float64
	}
	if formality.Valid {
		p.Formality = formality.Float64
	}
	if empathy.Valid {
		p.Empathy = empathy.Float64
	}
	if questionRate.Valid {
		p.QuestionRate = questionRate.Float64
	}
	if engagement.Valid {
		p.Engagement = engagement.Float64
	}
	if cadence.Valid {
		p.CadenceSeconds = cadence.Float64
	}
	if avgRunes.Valid {
		p.AvgMessageRunes = avgRunes.Float64
	}
	p.PreferredOpening = opening
	return &p, nil
}

// GetDialog retrieves a dialog by id.
func (s *SQLiteStore) GetDialog(ctx context.Context, id int64) (*domain.Dialog, error) {
	query := `
		SELECT id, operator_id, account_id, kind,
		       counterpart_name, counterpart_username, counterpart_native_id
		FROM dialogs WHERE id = ?`

	row := s.db.QueryRowContext(ctx, query, id)

	var d domain.Dialog
	var nativeID sql.NullInt64
	err := row.Scan(&d.ID, &d.OperatorID, &d.AccountID, &d.Kind,
		&d.CounterpartName, &d.CounterpartUsername, &nativeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan dialog row", err)
	}
	d.CounterpartNativeID = nativeID.Int64
	return &d, nil
}

// DialogsForTarget returns every dialog whose counterpart matches one of
// the target's identities, across all platform accounts.
func (s *SQLiteStore) DialogsForTarget(ctx context.Context, operatorID string, targetID int64) ([]int64, error) {
	query := `
		SELECT DISTINCT d.id
		FROM dialogs d
		JOIN platform_accounts a ON a.id = d.account_id
		JOIN target_identities ti ON ti.target_id = ? AND ti.platform = a.platform
		WHERE d.operator_id = ?
		  AND (
			(ti.native_id IS NOT NULL AND d.counterpart_native_id = ti.native_id)
			OR (ti.username != '' AND lower(ltrim(d.counterpart_username, '@')) = lower(ltrim(ti.username, '@')))
		  )
		ORDER BY d.id`

	return s.queryDialogIDs(ctx, "query dialogs for target", query, targetID, operatorID)
}

// DialogsByCounterpartID returns dialogs whose counterpart has the given
// platform-native id.
func (s *SQLiteStore) DialogsByCounterpartID(ctx context.Context, operatorID string, nativeID int64) ([]int64, error) {
	query := `
		SELECT id FROM dialogs
		WHERE operator_id = ? AND counterpart_native_id = ?
		ORDER BY id`
	return s.queryDialogIDs(ctx, "query dialogs by counterpart id", query, operatorID, nativeID)
}

// DialogsByCounterpartUsername returns dialogs whose counterpart username
// matches case-insensitively, ignoring a leading "@".
func (s *SQLiteStore) DialogsByCounterpartUsername(ctx context.Context, operatorID, username string) ([]int64, error) {
	query := `
		SELECT id FROM dialogs
		WHERE operator_id = ?
		  AND counterpart_username != ''
		  AND lower(ltrim(counterpart_username, '@')) = lower(ltrim(?, '@'))
		ORDER BY id`
	return s.queryDialogIDs(ctx, "query dialogs by counterpart username", query, operatorID, username)
}

func (s *SQLiteStore) queryDialogIDs(ctx context.Context, op, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer closeRows(rows, op)

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, storageErr(op, err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return ids, nil
}

// CategoriesForDialogs returns the distinct categories tagged on any of the
// dialogs, ordered by descending max relevance, ties by name.
func (s *SQLiteStore) CategoriesForDialogs(ctx context.Context, dialogIDs []int64) ([]string, error) {
	if len(dialogIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT category FROM dialog_categories
		WHERE dialog_id IN (%s)
		GROUP BY category
		ORDER BY MAX(relevance_score) DESC, category ASC`,
		placeholders(len(dialogIDs)))

	rows, err := s.db.QueryContext(ctx, query, int64Args(dialogIDs)...)
	if err != nil {
		return nil, storageErr("query dialog categories", err)
	}
	defer closeRows(rows, "dialog categories")

	var categories []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, storageErr("scan category row", err)
		}
		categories = append(categories, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate categories", err)
	}
	return categories, nil
}

// CandidateDialogs runs the sampler candidate query: private dialogs of the
// same operator tagged with at least one of the categories, excluding the
// current target's own identities, ordered by max relevance then max
// success.
func (s *SQLiteStore) CandidateDialogs(ctx context.Context, q CandidateQuery) ([]Candidate, error) {
	if len(q.Categories) == 0 {
		return nil, nil
	}

	var sb strings.Builder
	args := make([]interface{}, 0, len(q.Categories)+len(q.ExcludeNativeIDs)+len(q.ExcludeUsernames)+2)

	sb.WriteString(`
		SELECT d.id,
		       CASE
		         WHEN d.counterpart_name != '' THEN d.counterpart_name
		         WHEN d.counterpart_username != '' THEN d.counterpart_username
		         ELSE 'dialog ' || d.id
		       END,
		       MAX(c.success_score)
		FROM dialogs d
		JOIN dialog_categories c ON c.dialog_id = d.id
		WHERE d.operator_id = ?
		  AND d.kind = 'private'
		  AND c.category IN (`)
	sb.WriteString(placeholders(len(q.Categories)))
	sb.WriteString(`)`)
	args = append(args, q.OperatorID)
	for _, c := range q.Categories {
		args = append(args, c)
	}

	if len(q.ExcludeNativeIDs) > 0 {
		sb.WriteString(` AND (d.counterpart_native_id IS NULL OR d.counterpart_native_id NOT IN (`)
		sb.WriteString(placeholders(len(q.ExcludeNativeIDs)))
		sb.WriteString(`))`)
		args = append(args, int64Args(q.ExcludeNativeIDs)...)
	}
	if len(q.ExcludeUsernames) > 0 {
		sb.WriteString(` AND lower(ltrim(d.counterpart_username, '@')) NOT IN (`)
		sb.WriteString(placeholders(len(q.ExcludeUsernames)))
		sb.WriteString(`)`)
		for _, u := range q.ExcludeUsernames {
			args = append(args, strings.ToLower(strings.TrimPrefix(u, "@")))
		}
	}

	sb.WriteString(`
		GROUP BY d.id
		ORDER BY MAX(c.relevance_score) DESC, MAX(c.success_score) DESC
		LIMIT ?`)
	args = append(args, q.Limit)

	rows, err := s.db.QueryContext(ctx, sb.String(), args...)
	if err != nil {
		return nil, storageErr("query candidate dialogs", err)
	}
	defer closeRows(rows, "candidate dialogs")

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		var success sql.NullFloat64
		if err := rows.Scan(&c.DialogID, &c.DisplayName, &success); err != nil {
			return nil, storageErr("scan candidate row", err)
		}
		if success.Valid {
			v := success.Float64
			c.Success = &v
		}
		candidates = append(candidates, c)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate candidates", err)
	}
	return candidates, nil
}

// MessagesForDialogs returns all messages of the dialogs ordered by
// timestamp, ties broken by native id.
func (s *SQLiteStore) MessagesForDialogs(ctx context.Context, dialogIDs []int64) ([]domain.Message, error) {
	if len(dialogIDs) == 0 {
		return nil, nil
	}

	query := fmt.Sprintf(`
		SELECT id, dialog_id, native_id, outgoing, reply_to_native_id, sent_at, has_media, body
		FROM messages
		WHERE dialog_id IN (%s)
		ORDER BY sent_at ASC, native_id ASC`,
		placeholders(len(dialogIDs)))

	return s.queryMessages(ctx, "query messages", query, int64Args(dialogIDs)...)
}

// TailMessages returns the last limit messages of one dialog in
// chronological order.
func (s *SQLiteStore) TailMessages(ctx context.Context, dialogID int64, limit int) ([]domain.Message, error) {
	query := `
		SELECT id, dialog_id, native_id, outgoing, reply_to_native_id, sent_at, has_media, body
		FROM (
			SELECT id, dialog_id, native_id, outgoing, reply_to_native_id, sent_at, has_media, body
			FROM messages WHERE dialog_id = ?
			ORDER BY sent_at DESC, native_id DESC
			LIMIT ?
		)
		ORDER BY sent_at ASC, native_id ASC`

	return s.queryMessages(ctx, "query message tail", query, dialogID, limit)
}

func (s *SQLiteStore) queryMessages(ctx context.Context, op, query string, args ...interface{}) ([]domain.Message, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, storageErr(op, err)
	}
	defer closeRows(rows, op)

	var messages []domain.Message
	for rows.Next() {
		var m domain.Message
		var replyTo sql.NullInt64
		var sentAt int64
		if err := rows.Scan(&m.ID, &m.DialogID, &m.NativeID, &m.Outgoing,
			&replyTo, &sentAt, &m.HasMedia, &m.Body); err != nil {
			return nil, storageErr(op, err)
		}
		m.ReplyToNativeID = replyTo.Int64
		m.SentAt = time.Unix(sentAt, 0)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr(op, err)
	}
	return messages, nil
}

// GetSessionState retrieves the persisted session state for a conversation.
func (s *SQLiteStore) GetSessionState(ctx context.Context, key domain.ConversationKey) (*domain.SessionState, error) {
	query := `
		SELECT handle, last_message_id, updated_at
		FROM session_states WHERE target_id = ? AND sub_target = ?`

	row := s.db.QueryRowContext(ctx, query, key.TargetID, key.SubTarget)

	state := domain.SessionState{Key: key}
	var updatedAt int64
	err := row.Scan(&state.Handle, &state.LastMessageID, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("scan session state row", err)
	}
	state.UpdatedAt = time.Unix(updatedAt, 0)
	return &state, nil
}

// ListSessionStates returns every persisted session state.
func (s *SQLiteStore) ListSessionStates(ctx context.Context) ([]domain.SessionState, error) {
	query := `
		SELECT target_id, sub_target, handle, last_message_id, updated_at
		FROM session_states ORDER BY target_id, sub_target`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, storageErr("query session states", err)
	}
	defer closeRows(rows, "session states")

	var states []domain.SessionState
	for rows.Next() {
		var st domain.SessionState
		var updatedAt int64
		if err := rows.Scan(&st.Key.TargetID, &st.Key.SubTarget, &st.Handle, &st.LastMessageID, &updatedAt); err != nil {
			return nil, storageErr("scan session state row", err)
		}
		st.UpdatedAt = time.Unix(updatedAt, 0)
		states = append(states, st)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("iterate session states", err)
	}
	return states, nil
}

// PutSessionState persists a session state. The update-by-identity runs
// first; the insert happens only when no row was affected, so one identity
// never accumulates duplicate rows.
func (s *SQLiteStore) PutSessionState(ctx context.Context, state *domain.SessionState) error {
	s.sessionStateMu.Lock()
	defer s.sessionStateMu.Unlock()

	now := time.Now().Unix()

	res, err := s.db.ExecContext(ctx,
		`UPDATE session_states SET handle = ?, last_message_id = ?, updated_at = ?
		 WHERE target_id = ? AND sub_target = ?`,
		state.Handle, state.LastMessageID, now, state.Key.TargetID, state.Key.SubTarget)
	if err != nil {
		return storageErr("update session state", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return storageErr("session state rows affected", err)
	}
	if affected > 0 {
		return nil
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO session_states (target_id, sub_target, handle, last_message_id, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(target_id, sub_target) DO UPDATE SET
			handle = excluded.handle,
			last_message_id = excluded.last_message_id,
			updated_at = excluded.updated_at`,
		state.Key.TargetID, state.Key.SubTarget, state.Handle, state.LastMessageID, now)
	if err != nil {
		return storageErr("insert session state", err)
	}
	return nil
}

// DeleteSessionState removes the session state for a conversation.
// Retries with backoff on SQLITE_BUSY.
func (s *SQLiteStore) DeleteSessionState(ctx context.Context, key domain.ConversationKey) error {
	err := shared.RetryOnConflict(ctx, 3, 100*time.Millisecond, func() error {
		s.sessionStateMu.Lock()
		defer s.sessionStateMu.Unlock()

		_, err := s.db.ExecContext(ctx,
			`DELETE FROM session_states WHERE target_id = ? AND sub_target = ?`,
			key.TargetID, key.SubTarget)
		return err
	})
	if err != nil {
		return storageErr("delete session state", err)
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func int64Args(ids []int64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}

func closeRows(rows *sql.Rows, what string) {
	if err := rows.Close(); err != nil {
		slog.Warn("failed to close rows", "query", what, "error", err)
	}
}
