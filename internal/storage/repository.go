package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"fintrack/internal/api"
	"fintrack/internal/core"
	"fintrack/internal/query"
)

// Decoder turns a persisted entry back into the value the cache held.
type Decoder func(raw []byte) (any, error)

// CacheRepository persists query cache entries in SQLite so a restarted
// client renders immediately from its last known state.
type CacheRepository struct {
	db *sql.DB

	mu       sync.RWMutex
	decoders map[string]Decoder
}

func NewCacheRepository(dbPath string) (*CacheRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dbPath); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &CacheRepository{db: db, decoders: make(map[string]Decoder)}, nil
}

func (r *CacheRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Register sets the decoder for entries of resource. Entries without a
// decoder are skipped on load.
func (r *CacheRepository) Register(resource string, dec Decoder) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decoders[resource] = dec
}

// RegisterPage registers the api.Page[T] decoder for resource.
func RegisterPage[T any](r *CacheRepository, resource string) {
	r.Register(resource, func(raw []byte) (any, error) {
		return api.DecodePage[T](raw)
	})
}

// RegisterDefaults registers the list resources the client caches.
func RegisterDefaults(r *CacheRepository) {
	RegisterPage[core.Transaction](r, api.PathTransactions)
	RegisterPage[core.Budget](r, api.PathBudgets)
	RegisterPage[core.SavingGoal](r, api.PathSavings)
	RegisterPage[core.Category](r, api.PathCategories)
}

func (r *CacheRepository) decoder(resource string) (Decoder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	dec, ok := r.decoders[resource]
	return dec, ok
}

// Save replaces the persisted entries with records.
func (r *CacheRepository) Save(ctx context.Context, records []query.Record) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM cache_entries`); err != nil {
		return fmt.Errorf("clear cache entries: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO cache_entries (resource, params, data, updated_at) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, rec := range records {
		params, err := json.Marshal(nonNilParams(rec.Key.Params))
		if err != nil {
			return fmt.Errorf("encode params for %s: %w", rec.Key, err)
		}
		data, err := json.Marshal(rec.Data)
		if err != nil {
			return fmt.Errorf("encode data for %s: %w", rec.Key, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.Key.Resource, string(params), string(data), rec.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("insert %s: %w", rec.Key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Load returns every persisted entry with a registered decoder. Entries that
// fail to decode are skipped and logged.
func (r *CacheRepository) Load(ctx context.Context) ([]query.Record, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT resource, params, data, updated_at FROM cache_entries ORDER BY updated_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("query cache entries: %w", err)
	}
	defer rows.Close()

	var out []query.Record
	for rows.Next() {
		var (
			resource, params, data string
			updatedAt              int64
		)
		if err := rows.Scan(&resource, &params, &data, &updatedAt); err != nil {
			return nil, fmt.Errorf("scan cache entry: %w", err)
		}
		dec, ok := r.decoder(resource)
		if !ok {
			continue
		}
		var keyParams []string
		if err := json.Unmarshal([]byte(params), &keyParams); err != nil {
			slog.WarnContext(ctx, "Skipping cache entry with bad params", "resource", resource, "error", err)
			continue
		}
		value, err := dec([]byte(data))
		if err != nil {
			slog.WarnContext(ctx, "Skipping undecodable cache entry", "resource", resource, "error", err)
			continue
		}
		out = append(out, query.Record{
			Key:       query.NewKey(resource, keyParams...),
			Data:      value,
			UpdatedAt: time.Unix(0, updatedAt),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate cache entries: %w", err)
	}
	return out, nil
}

// Persist saves the store's current entries.
func (r *CacheRepository) Persist(ctx context.Context, store *query.Store) (int, error) {
	var records []query.Record
	for _, rec := range store.Records() {
		if _, ok := r.decoder(rec.Key.Resource); ok {
			records = append(records, rec)
		}
	}
	if err := r.Save(ctx, records); err != nil {
		return 0, err
	}
	slog.DebugContext(ctx, "Cache persisted", "entries", len(records))
	return len(records), nil
}

// Hydrate seeds store from the persisted entries and reports how many were
// applied.
func (r *CacheRepository) Hydrate(ctx context.Context, store *query.Store) (int, error) {
	records, err := r.Load(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, rec := range records {
		if store.Hydrate(rec) {
			n++
		}
	}
	slog.DebugContext(ctx, "Cache hydrated", "entries", n)
	return n, nil
}

// Count returns the number of persisted entries.
func (r *CacheRepository) Count(ctx context.Context) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM cache_entries`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count cache entries: %w", err)
	}
	return n, nil
}

func nonNilParams(p []string) []string {
	if p == nil {
		return []string{}
	}
	return p
}
