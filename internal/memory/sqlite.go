package memory

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"codeloom/internal/logging"
	"codeloom/internal/types"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists entries in a SQLite database. Payloads larger than
// the compression threshold are stored zstd-compressed.
type SQLiteStore struct {
	db            *sql.DB
	mu            sync.RWMutex
	path          string
	embedder      Embedder
	encoder       *zstd.Encoder
	decoder       *zstd.Decoder
	compressAbove int
	now           func() time.Time
}

// SQLiteOptions configures a SQLiteStore.
type SQLiteOptions struct {
	CompressionLevel int // zstd level, 1-22
	CompressAbove    int // bytes; <= 0 disables compression
	Embedder         Embedder
}

const schema = `
CREATE TABLE IF NOT EXISTS memory_entries (
	id TEXT PRIMARY KEY,
	collection TEXT NOT NULL,
	entry_key TEXT,
	type TEXT NOT NULL DEFAULT '',
	content BLOB NOT NULL,
	compressed INTEGER NOT NULL DEFAULT 0,
	metadata TEXT,
	embedding BLOB,
	created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_memory_collection ON memory_entries(collection, created_at);
CREATE INDEX IF NOT EXISTS idx_memory_key ON memory_entries(collection, entry_key);
`

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string, opts SQLiteOptions) (*SQLiteStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewSQLiteStore")
	defer timer.Stop()

	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	level := opts.CompressionLevel
	if level <= 0 {
		level = 3
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		db.Close()
		return nil, fmt.Errorf("failed to create zstd decoder: %w", err)
	}

	logging.Store("SQLite memory store opened at %s", path)
	return &SQLiteStore{
		db:            db,
		path:          path,
		embedder:      opts.Embedder,
		encoder:       enc,
		decoder:       dec,
		compressAbove: opts.CompressAbove,
		now:           time.Now,
	}, nil
}

// Close releases the database and codec resources.
func (s *SQLiteStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decoder.Close()
	if err := s.encoder.Close(); err != nil {
		logging.StoreDebug("zstd encoder close: %v", err)
	}
	return s.db.Close()
}

// Add stores content, replacing an entry with the same metadata key.
func (s *SQLiteStore) Add(ctx context.Context, collection, content string, meta Metadata) (Entry, error) {
	if collection == "" {
		return Entry{}, types.Invalid("memory collection required")
	}
	if content == "" {
		return Entry{}, types.Invalid("memory content required")
	}

	var vecBlob []byte
	if s.embedder != nil && !meta.NoEmbed {
		v, err := s.embedder.Embed(ctx, content)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("embedding failed, storing without vector: %v", err)
		} else {
			vecBlob = encodeVector(v)
		}
	}

	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to marshal metadata: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload, compressed := []byte(content), 0
	if s.compressAbove > 0 && len(payload) > s.compressAbove {
		payload, compressed = s.encoder.EncodeAll(payload, nil), 1
	}

	e := Entry{
		ID:         uuid.NewString(),
		Collection: collection,
		Content:    content,
		Metadata:   meta,
		CreatedAt:  s.now(),
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Entry{}, types.External("sqlite begin", err)
	}
	defer tx.Rollback()

	var key interface{}
	if meta.Key != "" {
		key = meta.Key
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM memory_entries WHERE collection = ? AND entry_key = ?",
			collection, meta.Key,
		); err != nil {
			return Entry{}, types.External("sqlite upsert", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO memory_entries (id, collection, entry_key, type, content, compressed, metadata, embedding, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, collection, key, meta.Type, payload, compressed, string(metaJSON), vecBlob, e.CreatedAt.UnixNano(),
	); err != nil {
		return Entry{}, types.External("sqlite insert", err)
	}
	if err := tx.Commit(); err != nil {
		return Entry{}, types.External("sqlite commit", err)
	}

	logging.StoreDebug("sqlite add %s/%s (%d bytes, compressed=%d)", collection, e.ID, len(content), compressed)
	return e, nil
}

// Search scores entries in the collection against the query.
func (s *SQLiteStore) Search(ctx context.Context, collection string, q Query) (Result, error) {
	timer := logging.StartTimer(logging.CategoryStore, "SQLiteStore.Search")
	defer timer.Stop()

	var qvec []float32
	if q.Text != "" && s.embedder != nil {
		v, err := s.embedder.Embed(ctx, q.Text)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("query embedding failed, using keyword scoring: %v", err)
		} else {
			qvec = v
		}
	}

	sqlQuery := "SELECT id, content, compressed, metadata, embedding, created_at FROM memory_entries WHERE collection = ?"
	args := []interface{}{collection}
	if len(q.Types) > 0 {
		sqlQuery += " AND type IN (?" + strings.Repeat(", ?", len(q.Types)-1) + ")"
		for _, t := range q.Types {
			args = append(args, t)
		}
	}
	sqlQuery += " ORDER BY created_at, rowid"

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return Result{}, types.External("sqlite search", err)
	}
	defer rows.Close()

	var matched []Entry
	for rows.Next() {
		e, vec, err := s.scanEntry(rows)
		if err != nil {
			logging.Get(logging.CategoryStore).Warn("skipping unreadable memory row: %v", err)
			continue
		}
		e.Collection = collection
		if q.Text != "" {
			if qvec != nil && vec != nil {
				e.Relevance = score(cosine(qvec, vec))
			} else {
				e.Relevance = score(keywordScore(q.Text, e.Content))
			}
		}
		matched = append(matched, e)
	}
	if err := rows.Err(); err != nil {
		return Result{}, types.External("sqlite search", err)
	}
	return rank(matched, q), nil
}

// Get returns one entry by id.
func (s *SQLiteStore) Get(ctx context.Context, collection, id string) (Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT id, content, compressed, metadata, embedding, created_at FROM memory_entries WHERE collection = ? AND id = ?",
		collection, id,
	)
	e, _, err := s.scanEntry(row)
	if err == sql.ErrNoRows {
		return Entry{}, types.NotFound("memory entry in "+collection, id)
	}
	if err != nil {
		return Entry{}, types.External("sqlite get", err)
	}
	e.Collection = collection
	return e, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func (s *SQLiteStore) scanEntry(r scanner) (Entry, []float32, error) {
	var (
		e          Entry
		payload    []byte
		compressed int
		metaJSON   sql.NullString
		vecBlob    []byte
		createdAt  int64
	)
	if err := r.Scan(&e.ID, &payload, &compressed, &metaJSON, &vecBlob, &createdAt); err != nil {
		return Entry{}, nil, err
	}
	if compressed == 1 {
		raw, err := s.decoder.DecodeAll(payload, nil)
		if err != nil {
			return Entry{}, nil, fmt.Errorf("decompress %s: %w", e.ID, err)
		}
		payload = raw
	}
	e.Content = string(payload)
	e.CreatedAt = time.Unix(0, createdAt)
	if metaJSON.Valid && metaJSON.String != "" {
		if err := json.Unmarshal([]byte(metaJSON.String), &e.Metadata); err != nil {
			return Entry{}, nil, fmt.Errorf("metadata %s: %w", e.ID, err)
		}
	}
	return e, decodeVector(vecBlob), nil
}

func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

func decodeVector(b []byte) []float32 {
	if len(b) == 0 || len(b)%4 != 0 {
		return nil
	}
	v := make([]float32, len(b)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return v
}
