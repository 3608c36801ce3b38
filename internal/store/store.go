package store

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/xwordlive/xword/internal/puzzle"
)

// Store is the sqlite-backed puzzle catalog. Only puzzle definitions
// live here; board progress is never persisted.
type Store struct {
	db *sql.DB
}

// Record is catalog metadata for one puzzle.
type Record struct {
	ID        string
	Title     string
	Author    string
	Paper     string
	Date      string
	Size      int
	CreatedAt time.Time
}

func New(dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// Enable WAL mode for better concurrency
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, err
	}

	if err := createTables(db); err != nil {
		return nil, err
	}

	log.Printf("Puzzle catalog initialized at %s", dbPath)
	return &Store{db: db}, nil
}

func createTables(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS puzzles (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT NOT NULL DEFAULT '',
		paper TEXT NOT NULL DEFAULT '',
		date TEXT NOT NULL DEFAULT '',
		size INTEGER NOT NULL,
		data BLOB NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_puzzles_date ON puzzles(date DESC);
	`

	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreatePuzzle validates raw puzzle JSON and inserts it under the given id.
func (s *Store) CreatePuzzle(id string, raw []byte) error {
	p, err := puzzle.Parse(raw)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO puzzles (id, title, author, paper, date, size, data) VALUES (?, ?, ?, ?, ?, ?, ?)",
		id, p.Title, p.Author, p.Paper, p.Date, len(p.Squares), raw,
	)
	return err
}

// GetPuzzle returns catalog metadata, or nil when the id is unknown.
func (s *Store) GetPuzzle(id string) (*Record, error) {
	row := s.db.QueryRow(
		"SELECT id, title, author, paper, date, size, created_at FROM puzzles WHERE id = ?",
		id,
	)

	var r Record
	err := row.Scan(&r.ID, &r.Title, &r.Author, &r.Paper, &r.Date, &r.Size, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// GetPuzzleData returns the stored puzzle JSON, or nil when unknown.
func (s *Store) GetPuzzleData(id string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRow("SELECT data FROM puzzles WHERE id = ?", id).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *Store) ListPuzzles(limit, offset int) ([]Record, error) {
	rows, err := s.db.Query(
		"SELECT id, title, author, paper, date, size, created_at FROM puzzles ORDER BY date DESC LIMIT ? OFFSET ?",
		limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.Title, &r.Author, &r.Paper, &r.Date, &r.Size, &r.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

func (s *Store) DeletePuzzle(id string) error {
	_, err := s.db.Exec("DELETE FROM puzzles WHERE id = ?", id)
	return err
}

func (s *Store) CountPuzzles() (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM puzzles").Scan(&count)
	return count, err
}

// ImportDir loads every .json file in dir into the catalog, keyed by
// filename without extension. Invalid puzzles are skipped with a log
// line rather than aborting the import.
func (s *Store) ImportDir(dir string) (int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0, fmt.Errorf("store: read puzzle dir: %w", err)
	}

	imported := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".json") {
			continue
		}

		raw, err := os.ReadFile(filepath.Join(dir, entry.Name()))
		if err != nil {
			return imported, err
		}

		id := strings.TrimSuffix(entry.Name(), ".json")
		if err := s.CreatePuzzle(id, raw); err != nil {
			log.Printf("Skipping puzzle %s: %v", id, err)
			continue
		}
		imported++
	}
	return imported, nil
}
