package mappingexperiment

import (
	"context"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// Repository reads mapping experiment marker rows with their reference.
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

// ListMarkersByExperimentType returns every marker attached to an experiment of the given type,
// with the experiment's reference key and J number.
func (r *Repository) ListMarkersByExperimentType(ctx context.Context, experimentType string) ([]models.ExperimentMarker, error) {
	ctx, span := tracing.StartSpan(ctx, "mappingexperiment.Repository.ListMarkersByExperimentType")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		"memv._expt_key AS expt_key",
		"memv.expttype AS expt_type",
		"memv._marker_key AS marker_key",
		"memv.symbol AS symbol",
		"mev._refs_key AS refs_key",
		"mev.jnumid AS jnumid",
	).Distinct()
	sb.From("mld_expt_marker_view memv")
	sb.Join("mld_expt_view mev", "mev._expt_key = memv._expt_key")
	sb.Where(sb.Equal("memv.expttype", experimentType))
	sb.OrderBy("memv._expt_key", "memv._marker_key")

	query, args := sb.Build()
	var rows []models.ExperimentMarker
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("experiment_type", experimentType).Error("Failed to list experiment markers")
		return nil, errors.Wrapf(err, "failed to list markers for %q experiments", experimentType)
	}

	return rows, nil
}
