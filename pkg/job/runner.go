// Package job runs one QTL candidate gene load from derivation through sequence reconciliation.
package job

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/config"
	"github.com/Ramsey-B/qtlcandidateload/internal/repositories/mappingexperiment"
	"github.com/Ramsey-B/qtlcandidateload/internal/repositories/marker"
	"github.com/Ramsey-B/qtlcandidateload/internal/repositories/relationship"
	"github.com/Ramsey-B/qtlcandidateload/internal/repositories/sequence"
	"github.com/Ramsey-B/qtlcandidateload/pkg/bcp"
	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/events"
	"github.com/Ramsey-B/qtlcandidateload/pkg/inference"
	"github.com/Ramsey-B/qtlcandidateload/pkg/kafka"
	"github.com/Ramsey-B/qtlcandidateload/pkg/keys"
	"github.com/Ramsey-B/qtlcandidateload/pkg/metrics"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
	"github.com/Ramsey-B/qtlcandidateload/pkg/redis"
	"github.com/Ramsey-B/qtlcandidateload/pkg/synchronizer"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// DatabaseOpener connects to the database.
type DatabaseOpener func(ctx context.Context, cfg database.ConnectionConfig, logger ectologger.Logger) (database.DB, error)

// LoaderFactory picks the bulk loader once the database is open.
type LoaderFactory func(cfg *config.Config, db database.DB, logger ectologger.Logger) bcp.Loader

// DefaultLoader honours BCP_MODE.
func DefaultLoader(cfg *config.Config, db database.DB, logger ectologger.Logger) bcp.Loader {
	if cfg.BCPMode == config.BCPModeCopy {
		return bcp.NewCopyLoader(db, logger)
	}
	return bcp.NewCommandLoader(cfg.PGDBUtils, logger)
}

type Option func(*Runner)

func WithDatabaseOpener(open DatabaseOpener) Option {
	return func(r *Runner) { r.openDB = open }
}

func WithLoader(factory LoaderFactory) Option {
	return func(r *Runner) { r.newLoader = factory }
}

// WithPublisher replaces the Kafka producer for completion events.
func WithPublisher(p events.Publisher) Option {
	return func(r *Runner) { r.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Summary is what a run did.
type Summary struct {
	RunID    string
	Stats    inference.Stats
	Written  int
	FirstKey int64
	LastKey  int64
	Sync     *synchronizer.Result
	DryRun   bool
}

// Runner owns every resource of a single run.
type Runner struct {
	cfg       *config.Config
	logger    ectologger.Logger
	metrics   *metrics.Metrics
	runID     string
	runDate   time.Time
	now       func() time.Time
	openDB    DatabaseOpener
	newLoader LoaderFactory
	publisher events.Publisher
	loaded    bool

	db        database.DB
	allocator *keys.Allocator
	writer    *bcp.Writer
	tracer    *tracing.Provider
	redis     *redis.Client
	lock      *redis.Lock
	producer  *kafka.Producer

	summary Summary
}

func NewRunner(cfg *config.Config, logger ectologger.Logger, opts ...Option) *Runner {
	r := &Runner{
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics.New(),
		runID:     uuid.New().String(),
		now:       time.Now,
		openDB:    database.Open,
		newLoader: DefaultLoader,
		allocator: &keys.Allocator{},
	}
	for _, opt := range opts {
		opt(r)
	}
	r.runDate = r.now()
	r.summary = Summary{RunID: r.runID, DryRun: cfg.DryRun}
	return r
}

func (r *Runner) RunID() string {
	return r.runID
}

func (r *Runner) Summary() Summary {
	return r.summary
}

// Run executes the load. Resources are released on every path, and the metrics textfile is
// written whether or not the run succeeded.
func (r *Runner) Run(ctx context.Context) (err error) {
	ctx, span := tracing.StartSpan(ctx, "job.Runner.Run")
	defer span.End()

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":   r.runID,
		"dry_run":  r.cfg.DryRun,
		"bcp_mode": r.cfg.BCPMode,
	}).Info("Starting QTL candidate gene load")

	defer func() { r.finish(ctx, err) }()

	lifecycle := r.buildLifecycle()
	defer func() {
		stopErr := lifecycle.Stop(ctx)
		if stopErr == nil || err != nil {
			return
		}
		if r.loaded {
			// the table and sequence are already replaced
			r.logger.WithContext(ctx).WithError(stopErr).Warn("Failed to release resources after a successful load")
			return
		}
		err = stopErr
	}()

	observeStartup := r.metrics.ObserveStage("startup")
	if err := lifecycle.Start(ctx); err != nil {
		return errors.Wrap(err, "startup failed")
	}
	observeStartup()

	candidates, err := r.derive(ctx)
	if err != nil {
		return err
	}

	if err := r.write(ctx, candidates); err != nil {
		return err
	}

	if r.cfg.DryRun {
		if err := r.writer.Close(); err != nil {
			return err
		}
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"path":    r.writer.Path(),
			"records": r.writer.Count(),
		}).Info("Dry run complete, database left unchanged")
		return nil
	}

	result, err := r.sync(ctx)
	if err != nil {
		return err
	}
	r.loaded = true

	r.emit(ctx, result)
	return nil
}

func (r *Runner) derive(ctx context.Context) ([]models.Candidate, error) {
	r.logger.WithContext(ctx).Info("Starting candidate derivation")
	defer r.metrics.ObserveStage("derive")()

	engine, err := inference.NewEngine(
		marker.NewRepository(r.db, r.logger),
		mappingexperiment.NewRepository(r.db, r.logger),
		inference.DefaultOptions(),
		r.logger,
	)
	if err != nil {
		return nil, err
	}

	result, err := engine.Derive(ctx)
	if err != nil {
		return nil, err
	}
	r.summary.Stats = result.Stats
	r.metrics.SetRows(metrics.RowsDerived, int64(len(result.Candidates)))
	return result.Candidates, nil
}

func (r *Runner) write(ctx context.Context, candidates []models.Candidate) error {
	r.logger.WithContext(ctx).WithField("path", r.writer.Path()).Info("Starting relationship file write")
	defer r.metrics.ObserveStage("write")()

	for _, c := range candidates {
		if _, err := r.writer.WriteCandidate(c); err != nil {
			return err
		}
	}
	if r.allocator.Issued() != r.writer.Count() {
		return errors.Errorf("allocated %d keys for %d records", r.allocator.Issued(), r.writer.Count())
	}
	r.summary.Written = r.writer.Count()
	if r.writer.Count() > 0 {
		r.summary.FirstKey = r.allocator.Start()
		r.summary.LastKey = r.writer.MaxKey()
	}
	r.metrics.SetRows(metrics.RowsWritten, int64(r.writer.Count()))
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"records":   r.writer.Count(),
		"first_key": r.summary.FirstKey,
		"last_key":  r.summary.LastKey,
	}).Info("Wrote relationship records")
	return nil
}

func (r *Runner) sync(ctx context.Context) (*synchronizer.Result, error) {
	defer r.metrics.ObserveStage("sync")()

	syncer := synchronizer.New(
		r.db,
		relationship.NewRepository(r.db, r.logger),
		sequence.NewRepository(r.db, r.logger),
		r.newLoader(r.cfg, r.db, r.logger),
		models.QTLCandidateGeneDefaults.UserKey,
		r.logger,
	)

	result, err := syncer.Sync(ctx, r.writer, bcp.LoadRequest{
		Server:   r.cfg.DatabaseServer,
		Database: r.cfg.DatabaseName,
		Schema:   r.cfg.DatabaseSchema,
		Table:    models.RelationshipTable,
		Dir:      r.cfg.OutputDir,
		File:     bcp.FileName(models.RelationshipTable),
	})
	r.summary.Sync = result
	if result != nil {
		r.metrics.SetRows(metrics.RowsDeleted, result.Deleted)
		if result.Verified {
			r.metrics.SetRows(metrics.RowsOwned, result.Owned)
		}
		if result.Mismatch() {
			r.metrics.CountMismatch.Set(1)
		}
	}
	return result, err
}

// emit publishes the completion event. Failures are logged only.
func (r *Runner) emit(ctx context.Context, result *synchronizer.Result) {
	if r.publisher == nil {
		return
	}
	err := events.NewEmitter(r.publisher, r.cfg.AppName, r.logger).EmitRelationshipsReloaded(ctx, r.runID, events.Reload{
		Table:       models.RelationshipTable,
		CategoryKey: models.QTLCandidateGeneDefaults.CategoryKey,
		Deleted:     result.Deleted,
		Loaded:      result.Written,
		MaxKey:      result.MaxKey,
	}, r.now())
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Warn("Completion event not published")
	}
}

func (r *Runner) finish(ctx context.Context, err error) {
	code := ExitCode(err)
	r.metrics.Finish(code, r.now())

	if path, writeErr := r.metrics.WriteTextfile(r.cfg.ReportDir); writeErr != nil {
		r.logger.WithContext(ctx).WithError(writeErr).Warn("Failed to write metrics textfile")
	} else {
		r.logger.WithContext(ctx).WithField("path", path).Debug("Wrote metrics textfile")
	}

	if err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"run_id":    r.runID,
			"exit_code": code,
		}).Error("QTL candidate gene load failed")
		return
	}
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"run_id":  r.runID,
		"written": r.summary.Written,
		"elapsed": r.now().Sub(r.runDate).String(),
	}).Info("QTL candidate gene load complete")
}
