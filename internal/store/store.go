package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"maintenance-query-agent/models"
	"maintenance-query-agent/utils"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store wraps the SQLite database holding documents, chunks, history and
// admin credentials. All mutations are single statements; SQLite provides
// per-statement atomicity.
type Store struct {
	db *sql.DB
}

func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping reports database health.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS admin_users (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			username TEXT UNIQUE NOT NULL,
			password_hash TEXT NOT NULL,
			must_change_password INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS documents (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			filename TEXT NOT NULL,
			uploaded_at TIMESTAMP NOT NULL,
			status TEXT NOT NULL DEFAULT 'pending',
			chunks_count INTEGER NOT NULL DEFAULT 0
		)`,
		`CREATE TABLE IF NOT EXISTS chunks (
			id TEXT PRIMARY KEY,
			document_id INTEGER NOT NULL REFERENCES documents(id),
			ordinal INTEGER NOT NULL,
			text BLOB NOT NULL,
			embedding BLOB NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_chunks_document ON chunks(document_id)`,
		`CREATE TABLE IF NOT EXISTS history (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			query TEXT NOT NULL,
			answer TEXT NOT NULL,
			sources_json TEXT NOT NULL DEFAULT '[]',
			used_documents INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at)`,
	}

	for _, query := range queries {
		if _, err := s.db.Exec(query); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
	}
	return nil
}

// --- Admin credentials ---

// CreateAdminUser inserts an admin credential, returning false when the
// username already exists.
func (s *Store) CreateAdminUser(ctx context.Context, username, passwordHash string, mustChange bool) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO admin_users (username, password_hash, must_change_password, created_at)
		 VALUES (?, ?, ?, ?) ON CONFLICT(username) DO NOTHING`,
		username, passwordHash, boolToInt(mustChange), time.Now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to create admin user: %w", err)
	}

	// ON CONFLICT DO NOTHING reports zero rows affected on a duplicate.
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) GetAdminUser(ctx context.Context, username string) (*models.AdminUser, error) {
	var user models.AdminUser
	var mustChange int
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, must_change_password, created_at
		 FROM admin_users WHERE username = ?`, username).
		Scan(&user.ID, &user.Username, &user.PasswordHash, &mustChange, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load admin user: %w", err)
	}
	user.MustChangePassword = mustChange != 0
	return &user, nil
}

func (s *Store) UpdateAdminPassword(ctx context.Context, username, newHash string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE admin_users SET password_hash = ?, must_change_password = 0 WHERE username = ?`,
		newHash, username)
	if err != nil {
		return fmt.Errorf("failed to update admin password: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// --- Documents ---

func (s *Store) AddDocument(ctx context.Context, filename string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO documents (filename, uploaded_at, status) VALUES (?, ?, ?)`,
		filename, time.Now().UTC(), models.StatusPending)
	if err != nil {
		return 0, fmt.Errorf("failed to insert document: %w", err)
	}
	return res.LastInsertId()
}

func (s *Store) SetDocumentStatus(ctx context.Context, id int64, status string, chunksCount int) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE documents SET status = ?, chunks_count = ? WHERE id = ?`,
		status, chunksCount, id)
	if err != nil {
		return fmt.Errorf("failed to update document status: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context) ([]models.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, filename, uploaded_at, status, chunks_count
		 FROM documents ORDER BY uploaded_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query documents: %w", err)
	}
	defer rows.Close()

	docs := make([]models.Document, 0)
	for rows.Next() {
		var d models.Document
		if err := rows.Scan(&d.ID, &d.Filename, &d.UploadedAt, &d.Status, &d.ChunksCount); err != nil {
			return nil, fmt.Errorf("failed to scan document row: %w", err)
		}
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// CountReadyDocuments reports how many documents are fully ingested. The
// retrieval pipeline short-circuits when this is zero.
func (s *Store) CountReadyDocuments(ctx context.Context) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM documents WHERE status = ?`, models.StatusReady).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count documents: %w", err)
	}
	return count, nil
}

// --- Chunks ---

// AddChunk persists one chunk. Text is stored brotli-compressed, the
// embedding as a little-endian float32 blob.
func (s *Store) AddChunk(ctx context.Context, chunk models.Chunk) error {
	compressed, err := utils.CompressText(chunk.Text)
	if err != nil {
		return fmt.Errorf("failed to compress chunk text: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO chunks (id, document_id, ordinal, text, embedding) VALUES (?, ?, ?, ?, ?)`,
		chunk.ID, chunk.DocumentID, chunk.Ordinal, compressed, encodeVector(chunk.Embedding))
	if err != nil {
		return fmt.Errorf("failed to insert chunk: %w", err)
	}
	return nil
}

// GetChunkExcerpt loads a chunk's text and its owning document's filename.
func (s *Store) GetChunkExcerpt(ctx context.Context, chunkID string) (text, filename string, err error) {
	var compressed []byte
	err = s.db.QueryRowContext(ctx,
		`SELECT c.text, d.filename FROM chunks c
		 JOIN documents d ON d.id = c.document_id
		 WHERE c.id = ?`, chunkID).Scan(&compressed, &filename)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("failed to load chunk: %w", err)
	}

	text, err = utils.DecompressText(compressed)
	if err != nil {
		return "", "", fmt.Errorf("failed to decompress chunk text: %w", err)
	}
	return text, filename, nil
}

func (s *Store) CountChunks(ctx context.Context, documentID int64) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM chunks WHERE document_id = ?`, documentID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count chunks: %w", err)
	}
	return count, nil
}

// ChunkVector pairs a chunk identifier with its stored embedding, used for
// rebuilding the vector index at startup.
type ChunkVector struct {
	ID        string
	Embedding []float32
}

// AllChunkVectors returns every persisted chunk vector in insertion order.
func (s *Store) AllChunkVectors(ctx context.Context) ([]ChunkVector, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, embedding FROM chunks ORDER BY rowid`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunk vectors: %w", err)
	}
	defer rows.Close()

	var vectors []ChunkVector
	for rows.Next() {
		var cv ChunkVector
		var blob []byte
		if err := rows.Scan(&cv.ID, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk vector row: %w", err)
		}
		cv.Embedding = decodeVector(blob)
		vectors = append(vectors, cv)
	}
	return vectors, rows.Err()
}

// --- History ---

func (s *Store) AddHistory(ctx context.Context, h models.History) (int64, error) {
	sourcesJSON, err := json.Marshal(h.Sources)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal sources: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO history (query, answer, sources_json, used_documents, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		h.Query, h.Answer, string(sourcesJSON), boolToInt(h.UsedDocuments), time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert history: %w", err)
	}
	return res.LastInsertId()
}

// ListHistory returns records newest first. A non-positive limit returns
// everything.
func (s *Store) ListHistory(ctx context.Context, limit int) ([]models.History, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, query, answer, sources_json, used_documents, created_at
		 FROM history ORDER BY created_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query history: %w", err)
	}
	defer rows.Close()

	records := make([]models.History, 0)
	for rows.Next() {
		var h models.History
		var sourcesJSON string
		var used int
		if err := rows.Scan(&h.ID, &h.Query, &h.Answer, &sourcesJSON, &used, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		h.UsedDocuments = used != 0
		h.Sources = make([]models.Source, 0)
		if err := json.Unmarshal([]byte(sourcesJSON), &h.Sources); err != nil {
			h.Sources = make([]models.Source, 0)
		}
		records = append(records, h)
	}
	return records, rows.Err()
}

// DeleteHistory removes one record, reporting whether it existed.
func (s *Store) DeleteHistory(ctx context.Context, id int64) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("failed to delete history record: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

func (s *Store) ClearHistory(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM history`); err != nil {
		return fmt.Errorf("failed to clear history: %w", err)
	}
	return nil
}

// TrimHistoryBefore deletes records older than the cutoff, used by the
// retention job.
func (s *Store) TrimHistoryBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM history WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to trim history: %w", err)
	}
	return res.RowsAffected()
}

// --- Vector blob encoding ---

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(blob []byte) []float32 {
	vec := make([]float32, len(blob)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(blob[i*4:]))
	}
	return vec
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
