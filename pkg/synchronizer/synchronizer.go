// Package synchronizer replaces every relationship owned by the job with the freshly written file.
package synchronizer

import (
	"context"
	"database/sql"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/bcp"
	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

type TxBeginner interface {
	GetTx(ctx context.Context, opts *sql.TxOptions) (database.Tx, error)
}

type RelationshipStore interface {
	DeleteByCreator(ctx context.Context, q database.Querier, userKey int) (int64, error)
	CountByCreator(ctx context.Context, userKey int) (int64, error)
}

type SequenceReconciler interface {
	SyncToMax(ctx context.Context) (sql.NullInt64, error)
}

// OutputFile is the written bcp file. It is closed before the loader reads it.
type OutputFile interface {
	Close() error
	Count() int
}

// Result describes a completed or partially completed sync.
type Result struct {
	Deleted  int64
	Written  int
	Loaded   bool
	MaxKey   int64
	Owned    int64
	Verified bool
}

// Mismatch reports whether the post-load row count disagrees with the number written.
func (r Result) Mismatch() bool {
	return r.Verified && r.Owned != int64(r.Written)
}

type Synchronizer struct {
	db            TxBeginner
	relationships RelationshipStore
	sequence      SequenceReconciler
	loader        bcp.Loader
	userKey       int
	logger        ectologger.Logger
}

func New(db TxBeginner, relationships RelationshipStore, sequence SequenceReconciler, loader bcp.Loader, userKey int, logger ectologger.Logger) *Synchronizer {
	return &Synchronizer{
		db:            db,
		relationships: relationships,
		sequence:      sequence,
		loader:        loader,
		userKey:       userKey,
		logger:        logger,
	}
}

// Sync deletes the owner's relationships and commits, closes the file, bulk loads it, then
// reconciles the key sequence. A load failure returns the loader's error and skips reconciliation.
func (s *Synchronizer) Sync(ctx context.Context, file OutputFile, req bcp.LoadRequest) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "synchronizer.Synchronizer.Sync")
	defer span.End()

	result := &Result{Written: file.Count()}

	s.logger.WithContext(ctx).WithField("user_key", s.userKey).Info("Starting delete of existing relationships")
	deleted, err := s.deleteOwned(ctx)
	if err != nil {
		_ = file.Close()
		return result, err
	}
	result.Deleted = deleted
	s.logger.WithContext(ctx).WithField("deleted", deleted).Info("Deleted existing relationships")

	if err := file.Close(); err != nil {
		return result, errors.Wrap(err, "failed to close bcp file before load")
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"table":   req.Table,
		"path":    req.Path(),
		"records": result.Written,
	}).Info("Starting bulk load")
	if err := s.loader.Load(ctx, req); err != nil {
		return result, err
	}
	result.Loaded = true

	s.logger.WithContext(ctx).Info("Starting key sequence reconciliation")
	maxKey, err := s.sequence.SyncToMax(ctx)
	if err != nil {
		return result, err
	}
	result.MaxKey = maxKey.Int64

	owned, err := s.relationships.CountByCreator(ctx, s.userKey)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("Could not verify loaded relationship count")
		return result, nil
	}
	result.Owned = owned
	result.Verified = true
	if result.Mismatch() {
		s.logger.WithContext(ctx).WithFields(map[string]any{
			"written": result.Written,
			"owned":   owned,
		}).Warn("Loaded relationship count does not match records written")
	}

	return result, nil
}

func (s *Synchronizer) deleteOwned(ctx context.Context) (int64, error) {
	tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	deleted, err := s.relationships.DeleteByCreator(ctx, tx, s.userKey)
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, err
	}
	return deleted, nil
}
