// Package inference derives QTL candidate gene relationships from curated mapping experiments.
package inference

import (
	"context"
	"fmt"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// ErrQTLTypeEligible is returned when the eligible candidate types include the QTL type. Stage
// three keeps the QTL as its own candidate, so allowing the type would emit self relationships.
var ErrQTLTypeEligible = errors.New("eligible candidate types must not include the QTL marker type")

// MarkerSource reads markers of the given types and status.
type MarkerSource interface {
	ListByTypes(ctx context.Context, typeKeys []models.MarkerTypeKey, statusKey int) ([]models.Marker, error)
}

// ExperimentSource reads the marker rows of every experiment with the given type.
type ExperimentSource interface {
	ListMarkersByExperimentType(ctx context.Context, experimentType string) ([]models.ExperimentMarker, error)
}

type Options struct {
	ExperimentType string
	EligibleTypes  []models.MarkerTypeKey
}

// DefaultOptions derive candidates from TEXT-QTL-Candidate Genes experiments restricted to genes,
// pseudogenes, other genome features and complex/cluster/regions.
func DefaultOptions() Options {
	return Options{
		ExperimentType: models.ExperimentTypeQTLCandidateGenes,
		EligibleTypes:  models.CandidateMarkerTypes,
	}
}

// Stats counts the rows surviving each stage.
type Stats struct {
	QTLs           int
	Experiments    int
	CandidateLinks int
	Candidates     int
}

type Result struct {
	Candidates []models.Candidate
	Stats      Stats
}

type Engine struct {
	markers     MarkerSource
	experiments ExperimentSource
	opts        Options
	eligible    TypeSet
	logger      ectologger.Logger
}

func NewEngine(markers MarkerSource, experiments ExperimentSource, opts Options, logger ectologger.Logger) (*Engine, error) {
	eligible := NewTypeSet(opts.EligibleTypes...)
	if eligible.Contains(models.MarkerTypeQTL) {
		return nil, ErrQTLTypeEligible
	}
	if len(eligible) == 0 {
		return nil, errors.New("at least one eligible candidate type is required")
	}
	if opts.ExperimentType == "" {
		return nil, errors.New("experiment type is required")
	}
	return &Engine{
		markers:     markers,
		experiments: experiments,
		opts:        opts,
		eligible:    eligible,
		logger:      logger,
	}, nil
}

// Derive runs the four stages and returns the distinct (QTL, candidate, reference) tuples.
func (e *Engine) Derive(ctx context.Context) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "inference.Engine.Derive")
	defer span.End()

	e.logger.WithContext(ctx).Info("Selecting QTL markers")
	qtlMarkers, err := e.markers.ListByTypes(ctx, []models.MarkerTypeKey{models.MarkerTypeQTL}, models.MarkerStatusOfficial)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select QTL markers")
	}
	qtls := SelectQTLs(qtlMarkers)

	e.logger.WithContext(ctx).Info("Linking QTLs to candidate gene mapping experiments")
	rows, err := e.experiments.ListMarkersByExperimentType(ctx, e.opts.ExperimentType)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("failed to read %q experiments", e.opts.ExperimentType))
	}
	links := LinkExperiments(qtls, rows, e.opts.ExperimentType)

	e.logger.WithContext(ctx).Info("Extracting co-mapped markers")
	candidateLinks := ExtractCandidates(links, rows)

	e.logger.WithContext(ctx).Info("Filtering candidates by marker type")
	eligibleMarkers, err := e.markers.ListByTypes(ctx, e.eligible.Keys(), models.MarkerStatusOfficial)
	if err != nil {
		return nil, errors.Wrap(err, "failed to select eligible candidate markers")
	}
	candidates := FilterByType(candidateLinks, EligibleMarkers(eligibleMarkers, e.eligible))

	stats := Stats{
		QTLs:           len(qtls),
		Experiments:    len(links),
		CandidateLinks: len(candidateLinks),
		Candidates:     len(candidates),
	}
	e.logger.WithContext(ctx).WithFields(map[string]any{
		"qtls":            stats.QTLs,
		"qtl_experiments": stats.Experiments,
		"candidate_links": stats.CandidateLinks,
		"candidates":      stats.Candidates,
	}).Info("Derived QTL candidate genes")

	return &Result{Candidates: candidates, Stats: stats}, nil
}
