package storage

import (
	"context"
	_ "embed"
	"messenger/internal/storage/zapadapter"

	"github.com/jackc/pgx/v4/pgxpool"
	"go.uber.org/zap"
)

//go:embed schema.sql
var schema string

// Store defines fields used in db interaction processes.
// Its embedded queries run outside of any transaction; use WithinTx for multi-step sequences.
type Store struct {
	*queries
	logger *zap.SugaredLogger
	db     *pgxpool.Pool
}

// New sets provided zap.Logger via zapadapter to pgxpool.Pool and returns instance of Store struct
func New(ctx context.Context, logger *zap.SugaredLogger, dsn string, opts ...Option) (*Store, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	config.ConnConfig.Logger = zapadapter.NewLogger(logger.Desugar())

	for _, opt := range opts {
		opt.apply(config)
	}

	pool, err := pgxpool.ConnectConfig(ctx, config)
	if err != nil {
		return nil, err
	}

	return &Store{
		queries: &queries{logger: logger, q: pgQuerier{c: pool}},
		logger:  logger,
		db:      pool,
	}, nil
}

// Migrate creates missing tables and indexes
func (s *Store) Migrate(ctx context.Context) error {
	s.logger.Debug("Applying schema")

	// no arguments, so pgx uses the simple protocol which accepts several statements at once
	_, err := s.db.Exec(ctx, schema)
	return err
}

// WithinTx runs fn against a Repository bound to a single transaction.
// The transaction is committed when fn returns nil and rolled back otherwise.
func (s *Store) WithinTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return err
	}
	// error handling can be omitted for rollback according docs
	// see https://pkg.go.dev/github.com/jackc/pgx/v4?tab=doc#hdr-Transactions or any source comment on Rollback
	defer tx.Rollback(context.Background())

	if err := fn(&queries{logger: s.logger, q: pgQuerier{c: tx}}); err != nil {
		return err
	}

	return tx.Commit(ctx)
}

// Querier exposes the raw storage primitives bound to the pool
func (s *Store) Querier() Querier {
	return s.queries.q
}

// Close closes all connections in the pool
func (s *Store) Close() {
	s.db.Close()
}
