package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/kalambet/sentio/internal/sentiment"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrInvalidRecord is returned when a record violates a store invariant
// before it reaches the database.
var ErrInvalidRecord = errors.New("invalid record")

// Store persists messages and products in SQLite. It owns identity
// assignment and creation timestamps.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (or creates) a SQLite database in dataDir and runs pending migrations.
// Pass ":memory:" as dataDir for an in-memory database (used by tests).
func Open(dataDir string) (*Store, error) {
	var dsn string
	if dataDir == ":memory:" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("creating data directory: %w", err)
		}
		dsn = filepath.Join(dataDir, "sentio.db")
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	// One connection: ":memory:" databases are per-connection, and SQLite
	// serializes writers anyway.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA journal_mode=WAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("applying %q: %w", p, err)
		}
	}

	s := &Store{db: db, now: func() time.Time { return time.Now().UTC() }}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// DB exposes the underlying handle so the SQLite vector backend can share it.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate applies embedded SQL migrations that are not yet recorded in schema_version.
func (s *Store) migrate() error {
	if _, err := s.db.Exec(`CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
	)`); err != nil {
		return fmt.Errorf("creating schema_version table: %w", err)
	}

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		return fmt.Errorf("reading migrations directory: %w", err)
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Name() < entries[j].Name()
	})

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		if err := s.applyMigration(entry.Name()); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) applyMigration(name string) error {
	version, err := parseMigrationVersion(name)
	if err != nil {
		return err
	}

	var exists int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM schema_version WHERE version = ?", version).Scan(&exists); err != nil {
		return fmt.Errorf("checking migration %d: %w", version, err)
	}
	if exists > 0 {
		return nil
	}

	content, err := migrationsFS.ReadFile("migrations/" + name)
	if err != nil {
		return fmt.Errorf("reading migration %s: %w", name, err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning transaction for migration %d: %w", version, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(string(content)); err != nil {
		return fmt.Errorf("applying migration %d: %w", version, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_version (version) VALUES (?)", version); err != nil {
		return fmt.Errorf("recording migration %d: %w", version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing migration %d: %w", version, err)
	}
	return nil
}

func parseMigrationVersion(filename string) (int, error) {
	var version int
	if _, err := fmt.Sscanf(filename, "%d_", &version); err != nil {
		return 0, fmt.Errorf("parsing migration version from %q: %w", filename, err)
	}
	return version, nil
}

// AppliedMigrations returns the list of applied migration versions in ascending order.
func (s *Store) AppliedMigrations() ([]int, error) {
	rows, err := s.db.Query("SELECT version FROM schema_version ORDER BY version ASC")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var versions []int
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// --- Messages ---

const messageColumns = `id, original_message, summary, auto_response, sentiment, sentiment_score, created_at`

// InsertMessage writes a new message inside a single transaction and returns
// the stored record with its assigned id and creation time.
func (s *Store) InsertMessage(ctx context.Context, m NewMessage) (Message, error) {
	if err := validateMessage(m); err != nil {
		return Message{}, err
	}

	createdAt := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Message{}, fmt.Errorf("beginning message transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO chat_messages (original_message, summary, auto_response, sentiment, sentiment_score, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		m.OriginalMessage, m.Summary, m.AutoResponse, string(m.Sentiment), m.SentimentScore,
		createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return Message{}, fmt.Errorf("inserting message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Message{}, fmt.Errorf("reading message id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Message{}, fmt.Errorf("committing message: %w", err)
	}

	return Message{
		ID:              id,
		OriginalMessage: m.OriginalMessage,
		Summary:         m.Summary,
		AutoResponse:    m.AutoResponse,
		Sentiment:       m.Sentiment,
		SentimentScore:  m.SentimentScore,
		CreatedAt:       createdAt.Truncate(time.Second),
	}, nil
}

func validateMessage(m NewMessage) error {
	if m.OriginalMessage == "" {
		return fmt.Errorf("%w: original message is empty", ErrInvalidRecord)
	}
	if _, err := sentiment.ParseLabel(string(m.Sentiment)); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	if m.SentimentScore < 0 || m.SentimentScore > 1 {
		return fmt.Errorf("%w: sentiment score %v outside [0,1]", ErrInvalidRecord, m.SentimentScore)
	}
	return nil
}

// GetMessage returns the message with the given id, or ErrNotFound.
func (s *Store) GetMessage(ctx context.Context, id int64) (Message, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+messageColumns+` FROM chat_messages WHERE id = ?`, id)
	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return Message{}, ErrNotFound
	}
	return m, err
}

// GetMessages resolves ids to messages in the order given. Ids without a
// matching row are skipped.
func (s *Store) GetMessages(ctx context.Context, ids []int64) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id IN (?`+strings.Repeat(",?", len(ids)-1)+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("querying messages by id: %w", err)
	}
	found, err := collectMessages(rows)
	if err != nil {
		return nil, err
	}

	byID := make(map[int64]Message, len(found))
	for _, m := range found {
		byID[m.ID] = m
	}
	// IN does not preserve order; rebuild it from ids.
	out := make([]Message, 0, len(found))
	for _, id := range ids {
		if m, ok := byID[id]; ok {
			out = append(out, m)
		}
	}
	return out, nil
}

// ListMessages returns messages newest first. limit <= 0 means no limit.
func (s *Store) ListMessages(ctx context.Context, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages ORDER BY created_at DESC, id DESC LIMIT ?`,
		sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages: %w", err)
	}
	return collectMessages(rows)
}

// ListMessagesAfter returns up to limit messages with an id above afterID,
// in id order. It pages through the whole table without an offset.
func (s *Store) ListMessagesAfter(ctx context.Context, afterID int64, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE id > ? ORDER BY id ASC LIMIT ?`,
		afterID, sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("paging messages: %w", err)
	}
	return collectMessages(rows)
}

// ListMessagesBySentiment returns messages with the given label, newest first.
func (s *Store) ListMessagesBySentiment(ctx context.Context, label sentiment.Label, limit int) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM chat_messages WHERE sentiment = ? ORDER BY created_at DESC, id DESC LIMIT ?`,
		string(label), sqlLimit(limit),
	)
	if err != nil {
		return nil, fmt.Errorf("listing messages by sentiment: %w", err)
	}
	return collectMessages(rows)
}

// CountMessages returns the number of stored messages.
func (s *Store) CountMessages(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_messages").Scan(&n)
	return n, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(r rowScanner) (Message, error) {
	var m Message
	var label, createdAt string
	if err := r.Scan(&m.ID, &m.OriginalMessage, &m.Summary, &m.AutoResponse, &label, &m.SentimentScore, &createdAt); err != nil {
		return Message{}, err
	}
	m.Sentiment = sentiment.Label(label)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Message{}, fmt.Errorf("parsing created_at for message %d: %w", m.ID, err)
	}
	m.CreatedAt = t
	return m, nil
}

func collectMessages(rows *sql.Rows) ([]Message, error) {
	defer rows.Close()
	var out []Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// --- Products ---

const productColumns = `id, name, description, generated_description, price, category, created_at`

// InsertProduct writes a new product inside a single transaction.
func (s *Store) InsertProduct(ctx context.Context, p NewProduct) (Product, error) {
	if strings.TrimSpace(p.Name) == "" {
		return Product{}, fmt.Errorf("%w: product name is empty", ErrInvalidRecord)
	}
	if strings.TrimSpace(p.Category) == "" {
		return Product{}, fmt.Errorf("%w: product category is empty", ErrInvalidRecord)
	}
	if !(p.Price > 0) {
		return Product{}, fmt.Errorf("%w: price %v must be positive", ErrInvalidRecord, p.Price)
	}

	createdAt := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Product{}, fmt.Errorf("beginning product transaction: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		INSERT INTO products (name, description, generated_description, price, category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.Name, p.Description, p.GeneratedDescription, p.Price, p.Category, createdAt.Format(time.RFC3339),
	)
	if err != nil {
		return Product{}, fmt.Errorf("inserting product: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return Product{}, fmt.Errorf("reading product id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return Product{}, fmt.Errorf("committing product: %w", err)
	}

	return Product{
		ID:                   id,
		Name:                 p.Name,
		Description:          p.Description,
		GeneratedDescription: p.GeneratedDescription,
		Price:                p.Price,
		Category:             p.Category,
		CreatedAt:            createdAt.Truncate(time.Second),
	}, nil
}

func (s *Store) GetProduct(ctx context.Context, id int64) (Product, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+productColumns+` FROM products WHERE id = ?`, id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return Product{}, ErrNotFound
	}
	return p, err
}

// ListProducts returns all products in insertion order.
func (s *Store) ListProducts(ctx context.Context) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+productColumns+` FROM products ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("listing products: %w", err)
	}
	return collectProducts(rows)
}

// ListProductsByCategory returns the products whose category matches exactly.
func (s *Store) ListProductsByCategory(ctx context.Context, category string) ([]Product, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+productColumns+` FROM products WHERE category = ? ORDER BY id ASC`, category)
	if err != nil {
		return nil, fmt.Errorf("listing products by category: %w", err)
	}
	return collectProducts(rows)
}

func scanProduct(r rowScanner) (Product, error) {
	var p Product
	var createdAt string
	if err := r.Scan(&p.ID, &p.Name, &p.Description, &p.GeneratedDescription, &p.Price, &p.Category, &createdAt); err != nil {
		return Product{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Product{}, fmt.Errorf("parsing created_at for product %d: %w", p.ID, err)
	}
	p.CreatedAt = t
	return p, nil
}

func collectProducts(rows *sql.Rows) ([]Product, error) {
	defer rows.Close()
	var out []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// sqlLimit maps "no limit" to SQLite's -1.
func sqlLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
