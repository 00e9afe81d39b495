package sequence

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// RelationshipSequence is the sequence behind mgi_relationship._relationship_key.
const RelationshipSequence = "mgi_relationship_seq"

// Repository advances and reconciles a key sequence against its table.
type Repository struct {
	db       database.DB
	logger   ectologger.Logger
	sequence string
	table    string
	column   string
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:       db,
		logger:   logger,
		sequence: RelationshipSequence,
		table:    "mgi_relationship",
		column:   "_relationship_key",
	}
}

// NextVal advances the sequence. The value is invalid when the query yields no row or NULL.
func (r *Repository) NextVal(ctx context.Context) (sql.NullInt64, error) {
	ctx, span := tracing.StartSpan(ctx, "sequence.Repository.NextVal")
	defer span.End()

	query := fmt.Sprintf("select nextval('%s') as next_key", r.sequence)

	var next sql.NullInt64
	if err := r.db.GetContext(ctx, &next, query); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return sql.NullInt64{}, nil
		}
		r.logger.WithContext(ctx).WithError(err).WithField("sequence", r.sequence).Error("Failed to read sequence")
		return sql.NullInt64{}, errors.Wrapf(err, "failed to read %s", r.sequence)
	}
	return next, nil
}

// SyncToMax sets the sequence to the table's maximum key and returns that value.
func (r *Repository) SyncToMax(ctx context.Context) (sql.NullInt64, error) {
	ctx, span := tracing.StartSpan(ctx, "sequence.Repository.SyncToMax")
	defer span.End()

	query := fmt.Sprintf("select setval('%s', (select max(%s) from %s))", r.sequence, r.column, r.table)

	var value sql.NullInt64
	if err := r.db.GetContext(ctx, &value, query); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("sequence", r.sequence).Error("Failed to reconcile sequence")
		return sql.NullInt64{}, errors.Wrapf(err, "failed to reconcile %s", r.sequence)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"sequence": r.sequence,
		"value":    value.Int64,
	}).Info("Reconciled key sequence")
	return value, nil
}
