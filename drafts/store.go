// Package drafts keeps autosaved editor drafts in a local SQLite database.
package drafts

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	_ "modernc.org/sqlite"

	"github.com/nutriplan/clinicweb/content"
)

// ErrNotFound is returned when no draft has the requested id.
var ErrNotFound = errors.New("drafts: not found")

// Draft is an unpublished blog post as last autosaved by the editor.
type Draft struct {
	ID          string
	Title       string
	Slug        string
	Description string
	PublishDate string
	Categories  []string
	Body        content.Body
	UpdatedAt   time.Time
}

// Store wraps a SQLite database of drafts.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// NewStore opens (or creates) the SQLite database at path, ensures the data
// directory exists, and creates the schema.
func NewStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// WAL lets the autosave writer and the drafts list read concurrently.
	if _, err := db.Exec(`
		PRAGMA journal_mode=WAL;
		PRAGMA busy_timeout=5000;
		PRAGMA synchronous=NORMAL;
	`); err != nil {
		db.Close()
		return nil, err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	s := &Store{db: db, now: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) ensureSchema() error {
	_, err := s.db.Exec(`
CREATE TABLE IF NOT EXISTS drafts (
    id TEXT PRIMARY KEY,
    title TEXT NOT NULL,
    slug TEXT NOT NULL,
    description TEXT NOT NULL,
    publish_date TEXT NOT NULL,
    categories TEXT NOT NULL,
    body TEXT NOT NULL,
    updated_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS drafts_updated_at ON drafts (updated_at DESC);
`)
	return err
}

// Save upserts d and returns it with its id and timestamp filled in. A
// draft without an id gets a new one.
func (s *Store) Save(d Draft) (Draft, error) {
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	body, err := json.Marshal(d.Body)
	if err != nil {
		return Draft{}, fmt.Errorf("drafts: encode body: %w", err)
	}
	d.UpdatedAt = s.now().UTC()
	_, err = s.db.Exec(`INSERT OR REPLACE INTO drafts (id, title, slug, description, publish_date, categories, body, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		d.ID, d.Title, d.Slug, d.Description, d.PublishDate, FormatCategories(d.Categories), string(body), d.UpdatedAt.UnixNano())
	if err != nil {
		return Draft{}, err
	}
	return d, nil
}

// Get returns the draft with the given id.
func (s *Store) Get(id string) (Draft, error) {
	row := s.db.QueryRow(`SELECT id, title, slug, description, publish_date, categories, body, updated_at FROM drafts WHERE id = ?`, id)
	d, err := scanDraft(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Draft{}, ErrNotFound
	}
	return d, err
}

// List returns drafts, most recently updated first. If category is
// non-empty, results are filtered to drafts carrying it.
func (s *Store) List(category string) ([]Draft, error) {
	var rows *sql.Rows
	var err error
	if category == "" {
		rows, err = s.db.Query(`SELECT id, title, slug, description, publish_date, categories, body, updated_at FROM drafts ORDER BY updated_at DESC`)
	} else {
		c := strings.ToLower(strings.TrimSpace(category))
		rows, err = s.db.Query(`SELECT id, title, slug, description, publish_date, categories, body, updated_at FROM drafts WHERE instr(lower(categories), ',' || ? || ',') > 0 ORDER BY updated_at DESC`, c)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// Categories returns the sorted, deduplicated categories of all drafts.
func (s *Store) Categories() ([]string, error) {
	rows, err := s.db.Query(`SELECT categories FROM drafts`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := make(map[string]struct{})
	for rows.Next() {
		var cats string
		if err := rows.Scan(&cats); err != nil {
			return nil, err
		}
		for _, c := range ParseCategories(cats) {
			set[strings.ToLower(c)] = struct{}{}
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	result := make([]string, 0, len(set))
	for c := range set {
		result = append(result, c)
	}
	sort.Strings(result)
	return result, nil
}

// Delete removes a draft. Deleting a missing draft is not an error.
func (s *Store) Delete(id string) error {
	_, err := s.db.Exec(`DELETE FROM drafts WHERE id = ?`, id)
	return err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanDraft(row scanner) (Draft, error) {
	var (
		d         Draft
		cats      string
		body      string
		updatedAt int64
	)
	if err := row.Scan(&d.ID, &d.Title, &d.Slug, &d.Description, &d.PublishDate, &cats, &body, &updatedAt); err != nil {
		return Draft{}, err
	}
	d.Categories = ParseCategories(cats)
	d.UpdatedAt = time.Unix(0, updatedAt).UTC()
	blocks, err := content.DecodeBody([]byte(body))
	if err != nil {
		log.Warn().Err(err).Str("draft", d.ID).Msg("drafts: dropped malformed blocks")
	}
	d.Body = blocks
	return d, nil
}

// FormatCategories encodes categories as a comma-delimited string with
// leading and trailing commas (",diet,sleep,") so a single category can be
// matched with instr. Categories are lowercased.
func FormatCategories(cats []string) string {
	norm := make([]string, 0, len(cats))
	for _, c := range cats {
		c = strings.ToLower(strings.TrimSpace(c))
		if c != "" && !strings.Contains(c, ",") {
			norm = append(norm, c)
		}
	}
	return "," + strings.Join(norm, ",") + ","
}

// ParseCategories splits a string produced by FormatCategories.
func ParseCategories(s string) []string {
	s = strings.Trim(s, ",")
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
