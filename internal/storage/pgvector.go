package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresConfig describes the pgvector backend.
type PostgresConfig struct {
	DSN       string
	Dimension int
	Metric    Metric
}

// PgvectorStorage keeps chunks in Postgres with the pgvector extension. The
// namespace is the document_id column and each document is written in one
// transaction.
type PgvectorStorage struct {
	pool      *pgxpool.Pool
	dimension int
	metric    Metric
}

// NewPgvectorStorage connects, pings and creates the schema if needed.
func NewPgvectorStorage(ctx context.Context, cfg PostgresConfig) (*PgvectorStorage, error) {
	if cfg.Metric == "" {
		cfg.Metric = MetricCosine
	}

	config, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = time.Minute * 30

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create connection pool: %v", ErrIndexUnavailable, err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: failed to ping database: %v", ErrIndexUnavailable, err)
	}

	s := &PgvectorStorage{pool: pool, dimension: cfg.Dimension, metric: cfg.Metric}
	if err := s.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// OpenPgvector adapts NewPgvectorStorage to an Opener.
func OpenPgvector(cfg PostgresConfig) Opener {
	return func(ctx context.Context) (Index, error) {
		return NewPgvectorStorage(ctx, cfg)
	}
}

func (s *PgvectorStorage) ensureSchema(ctx context.Context) error {
	statements := []string{
		`CREATE EXTENSION IF NOT EXISTS vector`,
		`CREATE TABLE IF NOT EXISTS docqa_documents (
			id           UUID PRIMARY KEY,
			display_name TEXT NOT NULL,
			chunk_count  INTEGER NOT NULL,
			ingested_at  TIMESTAMPTZ NOT NULL
		)`,
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS docqa_chunks (
			id            UUID PRIMARY KEY,
			document_id   UUID NOT NULL,
			document_name TEXT NOT NULL,
			chunk_index   INTEGER NOT NULL,
			content       TEXT NOT NULL,
			ingested_at   TIMESTAMPTZ NOT NULL,
			embedding     vector(%d) NOT NULL
		)`, s.dimension),
		`CREATE INDEX IF NOT EXISTS docqa_chunks_document_id_idx ON docqa_chunks (document_id)`,
	}
	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}

	// An existing table created for another model would reject every insert.
	var typmod int
	err := s.pool.QueryRow(ctx,
		`SELECT atttypmod FROM pg_attribute
		 WHERE attrelid = 'docqa_chunks'::regclass AND attname = 'embedding'`,
	).Scan(&typmod)
	if err != nil {
		return fmt.Errorf("failed to inspect schema: %w", err)
	}
	if typmod != s.dimension {
		return fmt.Errorf("%w: docqa_chunks stores %d dimensions, expected %d",
			ErrDimensionMismatch, typmod, s.dimension)
	}
	return nil
}

// Upsert replaces the namespace contents in a single transaction.
func (s *PgvectorStorage) Upsert(ctx context.Context, doc *Document, chunks []*Chunk) error {
	if err := validateUpsert(doc, chunks, s.dimension); err != nil {
		return err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPg(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, chunk := range chunks {
		batch.Queue(
			`INSERT INTO docqa_chunks (id, document_id, document_name, chunk_index, content, ingested_at, embedding)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)
			 ON CONFLICT (id) DO UPDATE SET
			   content = EXCLUDED.content, chunk_index = EXCLUDED.chunk_index, embedding = EXCLUDED.embedding`,
			chunk.ID, chunk.DocumentID, chunk.DocumentName, chunk.ChunkIndex,
			chunk.Content, chunk.IngestedAt, pgvector.NewVector(chunk.Embedding),
		)
	}
	batch.Queue(
		`INSERT INTO docqa_documents (id, display_name, chunk_count, ingested_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (id) DO UPDATE SET
		   display_name = EXCLUDED.display_name, chunk_count = EXCLUDED.chunk_count`,
		doc.ID, doc.DisplayName, doc.ChunkCount, doc.IngestedAt,
	)

	br := tx.SendBatch(ctx, batch)
	for i := 0; i < batch.Len(); i++ {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return classifyPg(fmt.Errorf("failed to insert row %d: %w", i, err))
		}
	}
	if err := br.Close(); err != nil {
		return classifyPg(fmt.Errorf("failed to finish batch: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return classifyPg(fmt.Errorf("failed to commit: %w", err))
	}
	return nil
}

// Search orders the namespace's chunks by distance to query.
func (s *PgvectorStorage) Search(ctx context.Context, namespace string, query []float32, k int) ([]*ScoredChunk, error) {
	if err := validateQuery(query, s.dimension); err != nil {
		return nil, err
	}
	if k <= 0 || !isNamespace(namespace) {
		return []*ScoredChunk{}, nil
	}

	// <=> is cosine distance, <#> negative inner product, <-> L2 distance.
	var order, scoreExpr string
	switch s.metric {
	case MetricDot:
		order, scoreExpr = "embedding <#> $2", "-(embedding <#> $2)"
	case MetricEuclid:
		order, scoreExpr = "embedding <-> $2", "1 / (1 + (embedding <-> $2))"
	default:
		order, scoreExpr = "embedding <=> $2", "1 - (embedding <=> $2)"
	}

	rows, err := s.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, document_id, document_name, chunk_index, content, ingested_at, %s
		 FROM docqa_chunks
		 WHERE document_id = $1
		 ORDER BY %s, chunk_index
		 LIMIT $3`, scoreExpr, order),
		namespace, pgvector.NewVector(query), k,
	)
	if err != nil {
		err = classifyPg(fmt.Errorf("failed to search chunks: %w", err))
		if errors.Is(err, ErrIndexNotInitialized) {
			return []*ScoredChunk{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	hits := []*ScoredChunk{}
	for rows.Next() {
		chunk := &Chunk{}
		var score float64
		if err := rows.Scan(
			&chunk.ID, &chunk.DocumentID, &chunk.DocumentName, &chunk.ChunkIndex,
			&chunk.Content, &chunk.IngestedAt, &score,
		); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		hits = append(hits, &ScoredChunk{Chunk: chunk, Score: score})
	}
	if err := rows.Err(); err != nil {
		return nil, classifyPg(err)
	}
	return hits, nil
}

func (s *PgvectorStorage) GetDocument(ctx context.Context, namespace string) (*Document, error) {
	if !isNamespace(namespace) {
		return nil, ErrDocumentNotFound
	}
	doc := &Document{}
	err := s.pool.QueryRow(ctx,
		`SELECT id, display_name, chunk_count, ingested_at FROM docqa_documents WHERE id = $1`,
		namespace,
	).Scan(&doc.ID, &doc.DisplayName, &doc.ChunkCount, &doc.IngestedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDocumentNotFound
	}
	if err != nil {
		return nil, classifyPg(fmt.Errorf("failed to get document: %w", err))
	}
	return doc, nil
}

func (s *PgvectorStorage) ListDocuments(ctx context.Context) ([]*Document, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, display_name, chunk_count, ingested_at FROM docqa_documents
		 ORDER BY ingested_at DESC, id`,
	)
	if err != nil {
		return nil, classifyPg(fmt.Errorf("failed to list documents: %w", err))
	}

	docs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (*Document, error) {
		doc := &Document{}
		err := row.Scan(&doc.ID, &doc.DisplayName, &doc.ChunkCount, &doc.IngestedAt)
		return doc, err
	})
	if err != nil {
		return nil, classifyPg(fmt.Errorf("failed to scan documents: %w", err))
	}
	if docs == nil {
		docs = []*Document{}
	}
	return docs, nil
}

func (s *PgvectorStorage) DeleteNamespace(ctx context.Context, namespace string) error {
	if !isNamespace(namespace) {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return classifyPg(fmt.Errorf("failed to begin transaction: %w", err))
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `DELETE FROM docqa_chunks WHERE document_id = $1`, namespace); err != nil {
		return classifyPg(fmt.Errorf("failed to delete chunks: %w", err))
	}
	if _, err := tx.Exec(ctx, `DELETE FROM docqa_documents WHERE id = $1`, namespace); err != nil {
		return classifyPg(fmt.Errorf("failed to delete document: %w", err))
	}
	return classifyPg(tx.Commit(ctx))
}

func (s *PgvectorStorage) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{
		Backend:    "pgvector",
		Dimension:  s.dimension,
		Metric:     s.metric,
		Collection: "docqa_chunks",
	}
	err := s.pool.QueryRow(ctx,
		`SELECT (SELECT count(*) FROM docqa_documents), (SELECT count(*) FROM docqa_chunks)`,
	).Scan(&stats.Documents, &stats.Chunks)
	if err != nil {
		return nil, classifyPg(fmt.Errorf("failed to count rows: %w", err))
	}
	return stats, nil
}

func (s *PgvectorStorage) Health(ctx context.Context) error {
	if err := s.pool.Ping(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrIndexUnavailable, err)
	}
	return nil
}

func (s *PgvectorStorage) Close() error {
	s.pool.Close()
	return nil
}

// classifyPg tags connection failures with ErrIndexUnavailable and a missing
// table with ErrIndexNotInitialized.
func classifyPg(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code == "42P01" { // undefined_table
			return fmt.Errorf("%w: %w", ErrIndexNotInitialized, err)
		}
		return err
	}
	if pgconn.SafeToRetry(err) || pgconn.Timeout(err) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return fmt.Errorf("%w: %w", ErrIndexUnavailable, err)
	}
	return err
}
