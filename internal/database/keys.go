package database

import (
	"context"
	"fmt"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"
	"github.com/jackc/pgx/v5"

	"github.com/JonMunkholm/sead-import/internal/logging"
)

// KeyService reads persisted primary key values.
type KeyService struct {
	db     DBTX
	schema string
}

// NewKeyService returns a KeyService reading tables of the given Postgres
// schema ("public" when empty).
func NewKeyService(db DBTX, schemaName string) *KeyService {
	return &KeyService{db: db, schema: schemaOrDefault(schemaName)}
}

// PrimaryKeyValues returns every non-null value of column pk in table.
func (k *KeyService) PrimaryKeyValues(ctx context.Context, table, pk string) (mapset.Set[int64], error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s IS NOT NULL",
		pgx.Identifier{pk}.Sanitize(),
		pgx.Identifier{k.schema, table}.Sanitize(),
		pgx.Identifier{pk}.Sanitize(),
	)

	rows, err := k.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query keys of %s: %w", table, err)
	}
	defer rows.Close()

	keys := mapset.NewThreadUnsafeSet[int64]()
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan key of %s: %w", table, err)
		}
		keys.Add(id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read keys of %s: %w", table, err)
	}

	logging.FromContext(ctx).Debug("persisted keys loaded", "table", table, "count", keys.Cardinality())
	return keys, nil
}

// keyLister is implemented by KeyService and test doubles.
type keyLister interface {
	PrimaryKeyValues(ctx context.Context, table, pk string) (mapset.Set[int64], error)
}

// CachedKeyService memoizes PrimaryKeyValues per table and key column.
// Errors are not cached.
type CachedKeyService struct {
	next keyLister

	mu    sync.Mutex
	cache map[string]mapset.Set[int64]
}

// NewCachedKeyService wraps next with a per-table cache.
func NewCachedKeyService(next keyLister) *CachedKeyService {
	return &CachedKeyService{next: next, cache: make(map[string]mapset.Set[int64])}
}

// PrimaryKeyValues returns a copy of the cached key set, loading it on first use.
func (c *CachedKeyService) PrimaryKeyValues(ctx context.Context, table, pk string) (mapset.Set[int64], error) {
	key := table + "." + pk

	c.mu.Lock()
	defer c.mu.Unlock()

	if keys, ok := c.cache[key]; ok {
		return keys.Clone(), nil
	}

	keys, err := c.next.PrimaryKeyValues(ctx, table, pk)
	if err != nil {
		return nil, err
	}
	c.cache[key] = keys
	return keys.Clone(), nil
}

// Invalidate drops every cached key set.
func (c *CachedKeyService) Invalidate() {
	c.mu.Lock()
	c.cache = make(map[string]mapset.Set[int64])
	c.mu.Unlock()
}
