package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync/atomic"
	"time"

	"github.com/lib/pq"
)

const documentsSchema = `
CREATE TABLE IF NOT EXISTS documents (
	collection TEXT        NOT NULL,
	id         TEXT        NOT NULL,
	data       JSONB       NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (collection, id)
)`

// changeChannel carries "<collection>/<id>" payloads for every write
const changeChannel = "document_changes"

// PostgresStore keeps documents as JSONB rows. Writes emit NOTIFY so that
// subscribers in every API process see remote changes.
type PostgresStore struct {
	db        *sql.DB
	feed      *Feed
	listening atomic.Bool
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:   db,
		feed: NewFeed(),
	}
}

// ConnectPostgres opens the pool and verifies the connection
func ConnectPostgres(connStr string) (*sql.DB, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	return db, nil
}

// EnsureSchema creates the documents table when missing
func (ps *PostgresStore) EnsureSchema(ctx context.Context) error {
	if _, err := ps.db.ExecContext(ctx, documentsSchema); err != nil {
		return fmt.Errorf("failed to create documents table: %w", err)
	}
	return nil
}

// Listen subscribes to change notifications until ctx is done. Without a
// running listener, subscribers only see writes made by this process.
func (ps *PostgresStore) Listen(ctx context.Context, connStr string) error {
	listener := pq.NewListener(connStr, 10*time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Printf("[Store] Listener event %d: %v", ev, err)
		}
	})
	if err := listener.Listen(changeChannel); err != nil {
		listener.Close()
		return fmt.Errorf("failed to listen on %s: %w", changeChannel, err)
	}
	ps.listening.Store(true)

	go func() {
		defer func() {
			ps.listening.Store(false)
			listener.Close()
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case n := <-listener.Notify:
				// nil after a reconnect
				if n == nil {
					continue
				}
				ps.relay(ctx, n.Extra)
			case <-time.After(90 * time.Second):
				if err := listener.Ping(); err != nil {
					log.Printf("[Store] Listener ping failed: %v", err)
				}
			}
		}
	}()
	return nil
}

func (ps *PostgresStore) relay(ctx context.Context, payload string) {
	collection, id, ok := strings.Cut(payload, "/")
	if !ok {
		return
	}
	doc, err := ps.Get(ctx, collection, id)
	if errors.Is(err, ErrNotFound) {
		ps.feed.Publish(collection, id, nil)
		return
	}
	if err != nil {
		log.Printf("[Store] Failed to reload %s/%s after notification: %v", collection, id, err)
		return
	}
	ps.feed.Publish(collection, id, doc)
}

// publishLocal is used when no listener is running
func (ps *PostgresStore) publishLocal(ctx context.Context, collection, id string) {
	if ps.listening.Load() {
		return
	}
	ps.relay(ctx, collection+"/"+id)
}

func (ps *PostgresStore) notify(ctx context.Context, tx *sql.Tx, collection, id string) error {
	_, err := tx.ExecContext(ctx, "SELECT pg_notify($1, $2)", changeChannel, collection+"/"+id)
	return err
}

// Get loads one document
func (ps *PostgresStore) Get(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := ps.db.QueryRowContext(ctx,
		"SELECT data FROM documents WHERE collection = $1 AND id = $2",
		collection, id,
	).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, Remote("get", err)
	}

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

// Set upserts the whole document
func (ps *PostgresStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if doc == nil {
		doc = Document{}
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	err = ps.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO documents (collection, id, data, updated_at)
			 VALUES ($1, $2, $3, NOW())
			 ON CONFLICT (collection, id) DO UPDATE SET data = EXCLUDED.data, updated_at = NOW()`,
			collection, id, data,
		); err != nil {
			return err
		}
		return ps.notify(ctx, tx, collection, id)
	})
	if err != nil {
		return Remote("set", err)
	}
	ps.publishLocal(ctx, collection, id)
	return nil
}

// Update merges fields with the JSONB concatenation operator
func (ps *PostgresStore) Update(ctx context.Context, collection, id string, fields Document) error {
	data, err := json.Marshal(fields)
	if err != nil {
		return fmt.Errorf("failed to encode fields: %w", err)
	}

	var affected int64
	err = ps.inTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE documents SET data = data || $3::jsonb, updated_at = NOW()
			 WHERE collection = $1 AND id = $2`,
			collection, id, data,
		)
		if err != nil {
			return err
		}
		if affected, err = res.RowsAffected(); err != nil {
			return err
		}
		if affected == 0 {
			return nil
		}
		return ps.notify(ctx, tx, collection, id)
	})
	if err != nil {
		return Remote("update", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	ps.publishLocal(ctx, collection, id)
	return nil
}

// AtomicAdjust runs a single conditional UPDATE so concurrent decrements
// can never take the field below zero.
func (ps *PostgresStore) AtomicAdjust(ctx context.Context, collection, id, field string, delta int) (int, error) {
	var (
		next  int64
		found bool
	)
	err := ps.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			`UPDATE documents
			 SET data = jsonb_set(data, ARRAY[$3::text], to_jsonb(COALESCE((data->>$3::text)::numeric, 0) + $4::bigint)),
			     updated_at = NOW()
			 WHERE collection = $1 AND id = $2
			   AND ($4::bigint >= 0 OR COALESCE((data->>$3::text)::numeric, 0) + $4::bigint >= 0)
			 RETURNING (data->>$3::text)::numeric::bigint`,
			collection, id, field, delta,
		).Scan(&next)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		found = true
		return ps.notify(ctx, tx, collection, id)
	})
	if err != nil {
		return 0, Remote("adjust", err)
	}
	if !found {
		var exists bool
		if err := ps.db.QueryRowContext(ctx,
			"SELECT EXISTS(SELECT 1 FROM documents WHERE collection = $1 AND id = $2)",
			collection, id,
		).Scan(&exists); err != nil {
			return 0, Remote("adjust", err)
		}
		if !exists {
			return 0, ErrNotFound
		}
		return 0, ErrInsufficient
	}
	ps.publishLocal(ctx, collection, id)
	return int(next), nil
}

// Delete removes a document
func (ps *PostgresStore) Delete(ctx context.Context, collection, id string) error {
	err := ps.inTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM documents WHERE collection = $1 AND id = $2",
			collection, id,
		); err != nil {
			return err
		}
		return ps.notify(ctx, tx, collection, id)
	})
	if err != nil {
		return Remote("delete", err)
	}
	ps.publishLocal(ctx, collection, id)
	return nil
}

// Take deletes with RETURNING so the caller sees exactly the row it removed
func (ps *PostgresStore) Take(ctx context.Context, collection, id string) (Document, error) {
	var raw []byte
	err := ps.inTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"DELETE FROM documents WHERE collection = $1 AND id = $2 RETURNING data",
			collection, id,
		).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			raw = nil
			return nil
		}
		if err != nil {
			return err
		}
		return ps.notify(ctx, tx, collection, id)
	})
	if err != nil {
		return nil, Remote("take", err)
	}
	if raw == nil {
		return nil, ErrNotFound
	}
	ps.publishLocal(ctx, collection, id)

	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode %s/%s: %w", collection, id, err)
	}
	return doc, nil
}

var sqlOps = map[Op]string{
	OpEqual:        "=",
	OpLess:         "<",
	OpLessEqual:    "<=",
	OpGreater:      ">",
	OpGreaterEqual: ">=",
}

// buildQuery translates q into SQL. Field names travel as bind parameters.
func buildQuery(collection string, q Query) (string, []any, error) {
	if err := q.validate(); err != nil {
		return "", nil, err
	}

	var sb strings.Builder
	args := []any{collection}
	sb.WriteString("SELECT data FROM documents WHERE collection = $1")

	for _, f := range q.Filters {
		args = append(args, f.Field)
		fieldArg := len(args)
		if f.Op == OpContains {
			args = append(args, fmt.Sprint(f.Value))
			fmt.Fprintf(&sb, " AND data->$%d::text @> jsonb_build_array($%d::text)", fieldArg, len(args))
			continue
		}
		if n, ok := Number(f.Value); ok && !isString(f.Value) {
			args = append(args, n)
			fmt.Fprintf(&sb, " AND (data->>$%d::text)::numeric %s $%d", fieldArg, sqlOps[f.Op], len(args))
			continue
		}
		args = append(args, fmt.Sprint(f.Value))
		fmt.Fprintf(&sb, " AND data->>$%d::text %s $%d", fieldArg, sqlOps[f.Op], len(args))
	}

	for i, o := range q.OrderBy {
		if i == 0 {
			sb.WriteString(" ORDER BY ")
		} else {
			sb.WriteString(", ")
		}
		args = append(args, o.Field)
		fmt.Fprintf(&sb, "data->$%d::text", len(args))
		if o.Desc {
			sb.WriteString(" DESC")
		}
	}

	if q.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", q.Limit)
	}
	return sb.String(), args, nil
}

func isString(v any) bool {
	_, ok := v.(string)
	return ok
}

// Query runs a filtered select over one collection
func (ps *PostgresStore) Query(ctx context.Context, collection string, q Query) ([]Document, error) {
	sqlText, args, err := buildQuery(collection, q)
	if err != nil {
		return nil, fmt.Errorf("invalid query: %w", err)
	}

	rows, err := ps.db.QueryContext(ctx, sqlText, args...)
	if err != nil {
		return nil, Remote("query", err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, Remote("query", err)
		}
		var doc Document
		if err := json.Unmarshal(raw, &doc); err != nil {
			log.Printf("[Store] Skipping undecodable document in %s: %v", collection, err)
			continue
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, Remote("query", err)
	}
	return docs, nil
}

// Subscribe delivers the current document and every later change
func (ps *PostgresStore) Subscribe(ctx context.Context, collection, id string, fn SnapshotFunc) (func(), error) {
	initial, err := ps.Get(ctx, collection, id)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return nil, err
	}
	return ps.feed.Subscribe(collection, id, initial, fn), nil
}

func (ps *PostgresStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
