package memory

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/dotsetgreg/dotrecall/pkg/logger"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists messages, contacts and interactions for one user.
// It serves as long-term store, message searcher, window loader and contact
// repository.
type SQLiteStore struct {
	db     *sql.DB
	userID string
}

// StoreStats counts the rows held for the store's user.
type StoreStats struct {
	Messages     int `json:"messages"`
	Contacts     int `json:"contacts"`
	Interactions int `json:"interactions"`
}

var ftsTermPattern = regexp.MustCompile(`[\p{L}\p{N}_]+`)

// NewSQLiteStore creates or opens the database at path.
func NewSQLiteStore(path, userID string) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create memory db dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	// One shared connection avoids SQLite writer lock contention between
	// the pipeline and the async writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	store := &SQLiteStore{db: db, userID: userID}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) init() error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`PRAGMA synchronous=NORMAL;`,
		`PRAGMA temp_store=MEMORY;`,
		`PRAGMA busy_timeout=5000;`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			thread_id TEXT NOT NULL DEFAULT '',
			speaker TEXT NOT NULL,
			content TEXT NOT NULL,
			intent TEXT NOT NULL DEFAULT '',
			entities_json TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS messages_user_time_idx ON messages(user_id, created_at_ms DESC);`,
		`CREATE TABLE IF NOT EXISTS contacts (
			id TEXT PRIMARY KEY,
			user_id TEXT NOT NULL,
			name TEXT NOT NULL,
			aliases_json TEXT NOT NULL DEFAULT '[]',
			email TEXT NOT NULL DEFAULT '',
			phone TEXT NOT NULL DEFAULT '',
			address TEXT NOT NULL DEFAULT '',
			company TEXT NOT NULL DEFAULT '',
			relationship TEXT NOT NULL DEFAULT '',
			last_interaction_ms INTEGER NOT NULL DEFAULT 0,
			interaction_count INTEGER NOT NULL DEFAULT 0,
			notes_json TEXT NOT NULL DEFAULT '[]',
			created_at_ms INTEGER NOT NULL,
			updated_at_ms INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS contacts_user_idx ON contacts(user_id, name);`,
		`CREATE TABLE IF NOT EXISTS interactions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			user_id TEXT NOT NULL,
			contact_id TEXT NOT NULL,
			message_id TEXT NOT NULL DEFAULT '',
			at_ms INTEGER NOT NULL,
			summary TEXT NOT NULL DEFAULT ''
		);`,
		`CREATE INDEX IF NOT EXISTS interactions_contact_idx ON interactions(contact_id, at_ms DESC);`,
		`CREATE VIRTUAL TABLE IF NOT EXISTS messages_fts USING fts5(message_id UNINDEXED, content, tokenize='unicode61 remove_diacritics 2');`,
		`CREATE TRIGGER IF NOT EXISTS messages_ai AFTER INSERT ON messages BEGIN
			INSERT INTO messages_fts(message_id, content) VALUES (new.id, new.content);
		END;`,
		`CREATE TRIGGER IF NOT EXISTS messages_ad AFTER DELETE ON messages BEGIN
			DELETE FROM messages_fts WHERE message_id = old.id;
		END;`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init sqlite schema failed on %q: %w", trimSQL(stmt), err)
		}
	}
	return nil
}

func trimSQL(sql string) string {
	line := strings.TrimSpace(sql)
	if len(line) > 96 {
		return line[:96] + "..."
	}
	return line
}

func nowMS() int64 { return time.Now().UnixMilli() }

func encodeStrings(values []string) string {
	if len(values) == 0 {
		return "[]"
	}
	b, err := json.Marshal(values)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeStrings(raw string) []string {
	out := []string{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []string{}
	}
	return out
}

func encodeEntities(entities []Entity) string {
	if len(entities) == 0 {
		return "[]"
	}
	b, err := json.Marshal(entities)
	if err != nil {
		return "[]"
	}
	return string(b)
}

func decodeEntities(raw string) []Entity {
	out := []Entity{}
	if raw == "" {
		return out
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return []Entity{}
	}
	return out
}

func msToTime(ms int64) *time.Time {
	if ms == 0 {
		return nil
	}
	t := time.UnixMilli(ms)
	return &t
}

func (s *SQLiteStore) StoreMessage(ctx context.Context, msg *Message) error {
	if msg == nil || strings.TrimSpace(msg.ID) == "" {
		return fmt.Errorf("store message: empty id")
	}
	created := msg.Timestamp
	if created.IsZero() {
		created = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO messages(id, user_id, thread_id, speaker, content, intent, entities_json, created_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		msg.ID, s.userID, msg.ThreadID, string(msg.Speaker), msg.Content, msg.Intent, encodeEntities(msg.Entities), created.UnixMilli())
	if err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// RecentMessages returns up to limit stored messages, oldest first.
func (s *SQLiteStore) RecentMessages(ctx context.Context, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 1
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT id, thread_id, speaker, content, intent, entities_json, created_at_ms
FROM messages
WHERE user_id = ?
ORDER BY created_at_ms DESC, rowid DESC
LIMIT ?`, s.userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	defer rows.Close()

	out := make([]*Message, 0, limit)
	for rows.Next() {
		var m Message
		var speaker, entitiesRaw string
		var createdMS int64
		if err := rows.Scan(&m.ID, &m.ThreadID, &speaker, &m.Content, &m.Intent, &entitiesRaw, &createdMS); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Speaker = Speaker(speaker)
		m.Entities = decodeEntities(entitiesRaw)
		m.Timestamp = time.UnixMilli(createdMS)
		out = append(out, &m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// ftsQuery turns free text into an OR of quoted terms so punctuation in
// the question never reaches the FTS5 parser.
func ftsQuery(text string) string {
	terms := ftsTermPattern.FindAllString(strings.ToLower(text), -1)
	seen := map[string]struct{}{}
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		quoted = append(quoted, `"`+t+`"`)
	}
	return strings.Join(quoted, " OR ")
}

// SearchMessages ranks stored messages by bm25 over the full-text index,
// falling back to a substring scan if the index query fails.
func (s *SQLiteStore) SearchMessages(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 20
	}
	match := ftsQuery(query)
	if match == "" {
		return []SearchHit{}, nil
	}
	hits, err := s.searchFTS(ctx, match, limit)
	if err == nil {
		return hits, nil
	}
	logger.DebugCF("memory", "FTS search failed; using LIKE fallback", map[string]interface{}{"error": err.Error()})
	return s.searchLike(ctx, strings.TrimSpace(query), limit)
}

func (s *SQLiteStore) searchFTS(ctx context.Context, match string, limit int) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT m.id, m.thread_id, m.speaker, m.content, m.created_at_ms, -bm25(messages_fts)
FROM messages_fts f
JOIN messages m ON m.id = f.message_id
WHERE messages_fts MATCH ?
AND m.user_id = ?
ORDER BY bm25(messages_fts), m.created_at_ms DESC
LIMIT ?`, match, s.userID, limit)
	if err != nil {
		return nil, fmt.Errorf("search messages fts: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func (s *SQLiteStore) searchLike(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, thread_id, speaker, content, created_at_ms, 1.0
FROM messages
WHERE user_id = ? AND content LIKE ?
ORDER BY created_at_ms DESC
LIMIT ?`, s.userID, "%"+query+"%", limit)
	if err != nil {
		return nil, fmt.Errorf("search messages like: %w", err)
	}
	defer rows.Close()
	return scanHits(rows)
}

func scanHits(rows *sql.Rows) ([]SearchHit, error) {
	out := []SearchHit{}
	for rows.Next() {
		var h SearchHit
		var speaker string
		var createdMS int64
		if err := rows.Scan(&h.MessageID, &h.ThreadID, &speaker, &h.Content, &createdMS, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		h.Speaker = Speaker(speaker)
		h.Timestamp = time.UnixMilli(createdMS)
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate search hits: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpsertContact(ctx context.Context, c Contact) error {
	if strings.TrimSpace(c.ID) == "" {
		return fmt.Errorf("upsert contact: empty id")
	}
	created := c.CreatedAt.UnixMilli()
	if c.CreatedAt.IsZero() {
		created = nowMS()
	}
	updated := c.UpdatedAt.UnixMilli()
	if c.UpdatedAt.IsZero() {
		updated = created
	}
	var last int64
	if c.LastInteraction != nil {
		last = c.LastInteraction.UnixMilli()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO contacts(id, user_id, name, aliases_json, email, phone, address, company, relationship, last_interaction_ms, interaction_count, notes_json, created_at_ms, updated_at_ms)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
	name = excluded.name,
	aliases_json = excluded.aliases_json,
	email = excluded.email,
	phone = excluded.phone,
	address = excluded.address,
	company = excluded.company,
	relationship = excluded.relationship,
	last_interaction_ms = excluded.last_interaction_ms,
	interaction_count = excluded.interaction_count,
	notes_json = excluded.notes_json,
	updated_at_ms = excluded.updated_at_ms`,
		c.ID, s.userID, c.Name, encodeStrings(c.Aliases), c.Email, c.Phone, c.Address, c.Company, c.Relationship,
		last, c.InteractionCount, encodeStrings(c.Notes), created, updated)
	if err != nil {
		return fmt.Errorf("upsert contact: %w", err)
	}
	return nil
}

func (s *SQLiteStore) LoadContacts(ctx context.Context) ([]Contact, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, name, aliases_json, email, phone, address, company, relationship, last_interaction_ms, interaction_count, notes_json, created_at_ms, updated_at_ms
FROM contacts
WHERE user_id = ?
ORDER BY created_at_ms ASC, id ASC`, s.userID)
	if err != nil {
		return nil, fmt.Errorf("load contacts: %w", err)
	}
	defer rows.Close()

	out := []Contact{}
	for rows.Next() {
		var c Contact
		var aliasesRaw, notesRaw string
		var lastMS, createdMS, updatedMS int64
		if err := rows.Scan(&c.ID, &c.Name, &aliasesRaw, &c.Email, &c.Phone, &c.Address, &c.Company, &c.Relationship,
			&lastMS, &c.InteractionCount, &notesRaw, &createdMS, &updatedMS); err != nil {
			return nil, fmt.Errorf("scan contact: %w", err)
		}
		c.Aliases = decodeStrings(aliasesRaw)
		c.Notes = decodeStrings(notesRaw)
		c.LastInteraction = msToTime(lastMS)
		c.CreatedAt = time.UnixMilli(createdMS)
		c.UpdatedAt = time.UnixMilli(updatedMS)
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate contacts: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) AppendInteraction(ctx context.Context, in Interaction) error {
	if strings.TrimSpace(in.ContactID) == "" {
		return fmt.Errorf("append interaction: empty contact id")
	}
	at := in.At.UnixMilli()
	if in.At.IsZero() {
		at = nowMS()
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO interactions(user_id, contact_id, message_id, at_ms, summary)
VALUES(?, ?, ?, ?, ?)`, s.userID, in.ContactID, in.MessageID, at, in.Summary)
	if err != nil {
		return fmt.Errorf("append interaction: %w", err)
	}
	return nil
}

// ListInteractions returns up to limit interactions for a contact, oldest first.
func (s *SQLiteStore) ListInteractions(ctx context.Context, contactID string, limit int) ([]Interaction, error) {
	if limit <= 0 {
		limit = defaultInteractionLog
	}
	rows, err := s.db.QueryContext(ctx, `
SELECT contact_id, message_id, at_ms, summary
FROM interactions
WHERE user_id = ? AND contact_id = ?
ORDER BY at_ms DESC, id DESC
LIMIT ?`, s.userID, contactID, limit)
	if err != nil {
		return nil, fmt.Errorf("list interactions: %w", err)
	}
	defer rows.Close()

	out := []Interaction{}
	for rows.Next() {
		var in Interaction
		var atMS int64
		if err := rows.Scan(&in.ContactID, &in.MessageID, &atMS, &in.Summary); err != nil {
			return nil, fmt.Errorf("scan interaction: %w", err)
		}
		in.At = time.UnixMilli(atMS)
		out = append(out, in)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate interactions: %w", err)
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *SQLiteStore) Stats(ctx context.Context) (StoreStats, error) {
	var st StoreStats
	row := s.db.QueryRowContext(ctx, `
SELECT
	(SELECT COUNT(*) FROM messages WHERE user_id = ?),
	(SELECT COUNT(*) FROM contacts WHERE user_id = ?),
	(SELECT COUNT(*) FROM interactions WHERE user_id = ?)`, s.userID, s.userID, s.userID)
	if err := row.Scan(&st.Messages, &st.Contacts, &st.Interactions); err != nil {
		return StoreStats{}, fmt.Errorf("store stats: %w", err)
	}
	return st, nil
}
