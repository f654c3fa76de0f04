package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/adalundhe/weft/core/object"
)

// DefaultCacheSize bounds the latest-version cache.
const DefaultCacheSize = 256

// SQLiteConfig configures the durable store.
type SQLiteConfig struct {
	// Path is the database file; ":memory:" keeps everything in RAM.
	Path string

	// CacheSize is the number of latest versions to cache.
	CacheSize int
}

// DefaultSQLiteConfig returns sensible defaults rooted at basePath.
func DefaultSQLiteConfig(basePath string) SQLiteConfig {
	return SQLiteConfig{
		Path:      filepath.Join(basePath, "objects.db"),
		CacheSize: DefaultCacheSize,
	}
}

// SQLiteStore persists version chains in a single object_versions
// table with the document serialized as JSON alongside its hashes.
type SQLiteStore struct {
	db    *sql.DB
	cache *lru.Cache[string, Version]
	clock func() time.Time
}

func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Path != ":memory:" {
		if dir := filepath.Dir(cfg.Path); dir != "." && dir != "" {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return nil, fmt.Errorf("create store directory: %w", err)
			}
		}
	}

	db, err := sql.Open("sqlite3", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	// The version chain is single-writer per session; one connection
	// avoids sqlite lock contention between pooled handles.
	db.SetMaxOpenConns(1)

	cache, err := lru.New[string, Version](normalizeCacheSize(cfg.CacheSize))
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteStore{db: db, cache: cache, clock: time.Now}
	if err := s.ensureSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ensure schema: %w", err)
	}
	return s, nil
}

func normalizeCacheSize(size int) int {
	if size <= 0 {
		return DefaultCacheSize
	}
	return size
}

func (s *SQLiteStore) ensureSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS object_versions (
			id TEXT NOT NULL,
			seq INTEGER NOT NULL,
			tx_time INTEGER NOT NULL,
			object_hash TEXT NOT NULL,
			content_hash TEXT NOT NULL,
			metadata_view_hash TEXT NOT NULL,
			doc TEXT NOT NULL,
			PRIMARY KEY (id, seq)
		);
		CREATE INDEX IF NOT EXISTS idx_object_versions_tx_time
			ON object_versions (id, tx_time);
	`
	_, err := s.db.Exec(schema)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Put(ctx context.Context, obj object.Object) (Version, error) {
	sealed := object.Finalize(obj.Clone())

	current, err := s.Get(ctx, obj.ID)
	switch {
	case err == nil:
		if current.Object.ObjectHash == sealed.ObjectHash {
			return current, nil
		}
	case errors.Is(err, ErrNotFound):
		// first version
	default:
		return Version{}, err
	}

	now := s.clock()
	if sealed.CreatedAt.IsZero() {
		sealed.CreatedAt = now
	}
	version := Version{Object: sealed, Seq: current.Seq, TxTime: now}
	if err == nil {
		version.Seq = current.Seq + 1
	}

	doc, marshalErr := json.Marshal(sealed)
	if marshalErr != nil {
		return Version{}, marshalErr
	}

	_, execErr := s.db.ExecContext(ctx, `
		INSERT INTO object_versions
			(id, seq, tx_time, object_hash, content_hash, metadata_view_hash, doc)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sealed.ID, version.Seq, now.UnixNano(),
		sealed.ObjectHash.String(), sealed.ContentHash.String(),
		sealed.MetadataViewHash.String(), string(doc),
	)
	if execErr != nil {
		return Version{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, execErr)
	}

	s.cache.Add(sealed.ID, version)
	return version, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (Version, error) {
	if version, ok := s.cache.Get(id); ok {
		return cloneVersion(version), nil
	}

	row := s.db.QueryRowContext(ctx, `
		SELECT seq, tx_time, object_hash, doc
		FROM object_versions WHERE id = ?
		ORDER BY seq DESC LIMIT 1`, id)

	version, err := scanVersion(row)
	if err != nil {
		return Version{}, err
	}
	if err := verifyIntegrity(version.Object); err != nil {
		return Version{}, err
	}

	s.cache.Add(id, version)
	return cloneVersion(version), nil
}

func (s *SQLiteStore) GetAsOf(ctx context.Context, id string, t time.Time) (Version, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT seq, tx_time, object_hash, doc
		FROM object_versions WHERE id = ? AND tx_time <= ?
		ORDER BY seq DESC LIMIT 1`, id, t.UnixNano())

	version, err := scanVersion(row)
	if err != nil {
		return Version{}, err
	}
	if err := verifyIntegrity(version.Object); err != nil {
		return Version{}, err
	}
	return version, nil
}

func (s *SQLiteStore) History(ctx context.Context, id string) ([]Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, tx_time, object_hash, doc
		FROM object_versions WHERE id = ?
		ORDER BY seq ASC`, id)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var versions []Version
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		if err := verifyIntegrity(version.Object); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	if len(versions) == 0 {
		return nil, ErrNotFound
	}
	return versions, nil
}

func (s *SQLiteStore) Query(ctx context.Context, pred func(object.Object) bool) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.seq, v.tx_time, v.object_hash, v.doc
		FROM object_versions v
		JOIN (
			SELECT id, MAX(seq) AS max_seq
			FROM object_versions GROUP BY id
		) latest ON v.id = latest.id AND v.seq = latest.max_seq
		ORDER BY v.rowid ASC`)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		if err := verifyIntegrity(version.Object); err != nil {
			return nil, err
		}
		if pred(version.Object) {
			ids = append(ids, version.Object.ID)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return ids, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanVersion(row rowScanner) (Version, error) {
	var (
		seq        int
		txNanos    int64
		storedHash string
		doc        string
	)
	if err := row.Scan(&seq, &txNanos, &storedHash, &doc); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Version{}, ErrNotFound
		}
		return Version{}, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}

	var obj object.Object
	if err := json.Unmarshal([]byte(doc), &obj); err != nil {
		return Version{}, fmt.Errorf("decode stored document: %w", err)
	}
	if obj.ObjectHash.String() != storedHash {
		return Version{}, ErrHashMismatch
	}

	return Version{
		Object: obj,
		Seq:    seq,
		TxTime: time.Unix(0, txNanos),
	}, nil
}
