package relationship

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

const table = "mgi_relationship"

type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DeleteByCreator removes every relationship created by userKey. Pass a transaction as q to
// control when the delete commits.
func (r *Repository) DeleteByCreator(ctx context.Context, q database.Querier, userKey int) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.DeleteByCreator")
	defer span.End()

	if q == nil {
		q = r.db
	}

	del := database.NewDeleteBuilder()
	del.DeleteFrom(table)
	del.Where(del.Equal("_createdby_key", userKey))

	query, args := del.Build()
	res, err := q.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("user_key", userKey).Error("Failed to delete relationships")
		return 0, errors.Wrap(err, "failed to delete relationships")
	}

	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "failed to read deleted row count")
	}
	return deleted, nil
}

// CountByCreator counts the relationships created by userKey.
func (r *Repository) CountByCreator(ctx context.Context, userKey int) (int64, error) {
	ctx, span := tracing.StartSpan(ctx, "relationship.Repository.CountByCreator")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("count(*)")
	sb.From(table)
	sb.Where(sb.Equal("_createdby_key", userKey))

	query, args := sb.Build()
	var count int64
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count relationships")
		return 0, errors.Wrap(err, "failed to count relationships")
	}
	return count, nil
}
