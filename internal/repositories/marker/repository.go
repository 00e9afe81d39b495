package marker

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// Repository reads mrk_marker joined to mrk_types.
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

// ListByTypes returns the distinct markers of the given types and status, ordered by key.
func (r *Repository) ListByTypes(ctx context.Context, typeKeys []models.MarkerTypeKey, statusKey int) ([]models.Marker, error) {
	ctx, span := tracing.StartSpan(ctx, "marker.Repository.ListByTypes")
	defer span.End()

	if len(typeKeys) == 0 {
		return nil, nil
	}

	sb := database.NewSelectBuilder()
	sb.Select(
		"m._marker_key AS marker_key",
		"m.symbol AS symbol",
		"m._marker_type_key AS marker_type_key",
		"t.name AS marker_type",
		"m._marker_status_key AS marker_status_key",
	).Distinct()
	sb.From("mrk_marker m")
	sb.Join("mrk_types t", "t._marker_type_key = m._marker_type_key")
	sb.Where(
		sb.In("m._marker_type_key", database.Ints(typeKeys)...),
		sb.Equal("m._marker_status_key", statusKey),
	)
	sb.OrderBy("m._marker_key")

	query, args := sb.Build()
	var markers []models.Marker
	if err := r.db.SelectContext(ctx, &markers, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list markers by type")
		return nil, errors.Wrap(err, "failed to list markers by type")
	}

	return markers, nil
}
