package job

import (
	"context"

	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/internal/repositories/sequence"
	"github.com/Ramsey-B/qtlcandidateload/pkg/bcp"
	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/kafka"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
	"github.com/Ramsey-B/qtlcandidateload/pkg/redis"
	"github.com/Ramsey-B/qtlcandidateload/pkg/startup"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing/exporters"
)

const (
	depTracer     = "tracer"
	depLock       = "lock"
	depDatabase   = "database"
	depOutputFile = "output-file"
	depEvents     = "events"
)

func (r *Runner) buildLifecycle() *startup.Lifecycle {
	lc := startup.NewLifecycle(r.logger)

	var dbRequires []string
	if r.cfg.TracingEnabled() {
		lc.AddDependency(&startup.Dependency{Name: depTracer, OnStart: r.startTracer, OnStop: r.stopTracer})
		dbRequires = append(dbRequires, depTracer)
	}
	if r.cfg.LockEnabled() {
		lc.AddDependency(&startup.Dependency{Name: depLock, OnStart: r.acquireLock, OnStop: r.releaseLock})
		dbRequires = append(dbRequires, depLock)
	}
	lc.AddDependency(&startup.Dependency{
		Name:     depDatabase,
		Requires: dbRequires,
		OnStart:  r.openDatabase,
		OnStop:   r.closeDatabase,
	})
	lc.AddDependency(&startup.Dependency{
		Name:     depOutputFile,
		Requires: []string{depDatabase},
		OnStart:  r.openOutputFile,
		OnStop:   r.closeOutputFile,
	})
	if r.publisher == nil && r.cfg.EventsEnabled() && !r.cfg.DryRun {
		lc.AddDependency(&startup.Dependency{Name: depEvents, OnStart: r.openProducer, OnStop: r.closeProducer})
	}
	return lc
}

func (r *Runner) startTracer(ctx context.Context) error {
	exporter, err := exporters.NewOTLPExporter(ctx, exporters.OTLPConfig{
		Endpoint: r.cfg.OTLPEndpoint,
		Protocol: r.cfg.OTLPProtocol,
		Insecure: true,
	})
	if err != nil {
		return errors.Wrap(err, "failed to create OTLP exporter")
	}
	r.tracer = tracing.NewProvider(exporter, r.cfg.AppName)
	return nil
}

func (r *Runner) stopTracer(ctx context.Context) error {
	if r.tracer == nil {
		return nil
	}
	return r.tracer.Shutdown(ctx)
}

func (r *Runner) acquireLock(ctx context.Context) error {
	client, err := redis.NewClient(ctx, redis.Config{
		Host:     r.cfg.RedisHost,
		Port:     r.cfg.RedisPort,
		Password: r.cfg.RedisPassword,
		DB:       r.cfg.RedisDB,
	}, r.logger)
	if err != nil {
		return err
	}
	lock, err := client.Locker("lock:").Acquire(ctx, r.cfg.AppName, r.cfg.LockTTL)
	if err != nil {
		_ = client.Close()
		if errors.Is(err, redis.ErrLockNotAcquired) {
			return errors.Wrap(err, "another run holds the load lock")
		}
		return err
	}
	r.redis = client
	r.lock = lock
	return nil
}

func (r *Runner) releaseLock(ctx context.Context) error {
	var releaseErr error
	if r.lock != nil {
		releaseErr = r.lock.Release(ctx)
	}
	if r.redis != nil {
		if err := r.redis.Close(); err != nil && releaseErr == nil {
			releaseErr = err
		}
	}
	return releaseErr
}

func (r *Runner) openDatabase(ctx context.Context) error {
	db, err := r.openDB(ctx, r.cfg.Connection(), r.logger)
	if err != nil {
		return err
	}
	r.db = db

	if r.cfg.MigrationsEnabled() {
		migrations := database.NewMigrationService(r.logger, &database.MigrationConfig{
			MigrationFolderPath: r.cfg.DatabaseMigrationFolderPath,
		})
		if err := migrations.MigratePostgres(db, r.cfg.DatabaseName); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) closeDatabase(context.Context) error {
	if r.db == nil {
		return nil
	}
	return r.db.Close()
}

// openOutputFile seeds the key allocator from the sequence and creates the bcp file.
func (r *Runner) openOutputFile(ctx context.Context) error {
	r.logger.WithContext(ctx).Info("Starting key allocation")
	if err := r.allocator.Init(ctx, sequence.NewRepository(r.db, r.logger)); err != nil {
		return err
	}
	r.logger.WithContext(ctx).WithField("start_key", r.allocator.Start()).Info("Allocated relationship keys")

	writer, err := bcp.NewWriter(r.cfg.OutputDir, r.allocator, models.QTLCandidateGeneDefaults, r.runDate, r.logger)
	if err != nil {
		return err
	}
	r.writer = writer
	return nil
}

func (r *Runner) closeOutputFile(context.Context) error {
	if r.writer == nil {
		return nil
	}
	return r.writer.Close()
}

func (r *Runner) openProducer(context.Context) error {
	producer, err := kafka.NewProducer(kafka.ProducerConfig{
		Brokers: r.cfg.KafkaBrokers,
		Topic:   r.cfg.KafkaTopic,
	}, r.logger)
	if err != nil {
		return err
	}
	r.producer = producer
	r.publisher = producer
	return nil
}

func (r *Runner) closeProducer(context.Context) error {
	if r.producer == nil {
		return nil
	}
	return r.producer.Close()
}
