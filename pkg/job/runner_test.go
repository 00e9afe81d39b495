package job

import (
	"context"
	"database/sql/driver"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/qtlcandidateload/config"
	"github.com/Ramsey-B/qtlcandidateload/internal/testutil"
	"github.com/Ramsey-B/qtlcandidateload/pkg/bcp"
	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/kafka"
	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
	"github.com/Ramsey-B/qtlcandidateload/pkg/metrics"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
)

var runDate = time.Date(2024, time.March, 7, 9, 30, 0, 0, time.UTC)

type fakeLoader struct {
	err      error
	requests []bcp.LoadRequest
	contents string
}

func (f *fakeLoader) Load(_ context.Context, req bcp.LoadRequest) error {
	f.requests = append(f.requests, req)
	data, err := os.ReadFile(req.Path())
	if err != nil {
		return err
	}
	f.contents = string(data)
	return f.err
}

type capturePublisher struct {
	events []*kafka.JobEvent
	err    error
}

func (c *capturePublisher) PublishJobEvent(_ context.Context, event *kafka.JobEvent) error {
	c.events = append(c.events, event)
	return c.err
}

// closeFailingDB fails Close after the run is done with it.
type closeFailingDB struct {
	database.DB
	err error
}

func (d closeFailingDB) Close() error {
	_ = d.DB.Close()
	return d.err
}

type fixture struct {
	cfg       *config.Config
	db        database.DB
	conn      *testutil.StubConn
	loader    *fakeLoader
	publisher *capturePublisher
	runner    *Runner
}

func newFixture(t *testing.T, mutate func(cfg *config.Config, conn *testutil.StubConn)) *fixture {
	t.Helper()
	dir := t.TempDir()
	cfg := &config.Config{
		AppName:        "qtlcandidateload",
		DatabaseServer: "db1",
		DatabaseName:   "mgd",
		DatabaseSchema: "mgd",
		OutputDir:      dir,
		ReportDir:      dir,
		PGDBUtils:      "/opt/pgdbutils",
		BCPMode:        config.BCPModeCommand,
		KafkaTopic:     "mgi.relationships",
	}

	db, conn := testutil.NewStubDB()
	// stub results match in registration order, so overrides go first
	if mutate != nil {
		mutate(cfg, conn)
	}
	conn.OnQuery("from mrk_marker m join mrk_types t",
		[]string{"marker_key", "symbol", "marker_type_key", "marker_type", "marker_status_key"},
		[]driver.Value{int64(1001), "Pbb1", int64(6), "QTL", int64(1)},
		[]driver.Value{int64(2002), "Xyz", int64(1), "Gene", int64(1)},
		[]driver.Value{int64(2003), "Tg1", int64(12), "Transgene", int64(1)},
	)
	conn.OnQuery("from mld_expt_marker_view",
		[]string{"expt_key", "expt_type", "marker_key", "symbol", "refs_key", "jnumid"},
		[]driver.Value{int64(500), models.ExperimentTypeQTLCandidateGenes, int64(1001), "Pbb1", int64(99), "J:99"},
		[]driver.Value{int64(500), models.ExperimentTypeQTLCandidateGenes, int64(2002), "Xyz", int64(99), "J:99"},
		[]driver.Value{int64(500), models.ExperimentTypeQTLCandidateGenes, int64(2003), "Tg1", int64(99), "J:99"},
	)
	conn.OnExec("delete from mgi_relationship", 4, nil)
	conn.OnQuery("count(*)", []string{"count"}, []driver.Value{int64(1)})
	conn.OnQuery("nextval('mgi_relationship_seq')", []string{"next_key"}, []driver.Value{int64(5000)})
	conn.OnQuery("select setval", []string{"setval"}, []driver.Value{int64(5000)})

	f := &fixture{cfg: cfg, db: db, conn: conn, loader: &fakeLoader{}, publisher: &capturePublisher{}}
	f.runner = NewRunner(cfg, logging.Discard(),
		WithDatabaseOpener(func(context.Context, database.ConnectionConfig, ectologger.Logger) (database.DB, error) {
			return db, nil
		}),
		WithLoader(func(*config.Config, database.DB, ectologger.Logger) bcp.Loader { return f.loader }),
		WithPublisher(f.publisher),
		WithClock(func() time.Time { return runDate }),
	)
	return f
}

func (f *fixture) queried(fragment string) bool {
	for _, q := range f.conn.Queries {
		if strings.Contains(strings.ToLower(q.Query), fragment) {
			return true
		}
	}
	return false
}

func (f *fixture) metricsFile(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(f.cfg.ReportDir, metrics.TextfileName))
	require.NoError(t, err)
	return string(data)
}

func TestRun_LoadsDerivedCandidates(t *testing.T) {
	f := newFixture(t, nil)

	err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))

	assert.Equal(t,
		"5000|1009|1001|2002|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024\n",
		f.loader.contents)
	require.Len(t, f.loader.requests, 1)
	assert.Equal(t, bcp.LoadRequest{
		Server:   "db1",
		Database: "mgd",
		Schema:   "mgd",
		Table:    "MGI_Relationship",
		Dir:      f.cfg.OutputDir,
		File:     "MGI_Relationship.bcp",
	}, f.loader.requests[0])

	assert.Equal(t, []string{"DELETE FROM mgi_relationship WHERE _createdby_key = $1"}, f.conn.ExecQueries())
	assert.Equal(t, 1, f.conn.Commits)
	assert.True(t, f.queried("select setval"))

	summary := f.runner.Summary()
	assert.Equal(t, 1, summary.Written)
	assert.Equal(t, int64(5000), summary.FirstKey)
	assert.Equal(t, int64(5000), summary.LastKey)
	assert.Equal(t, int64(4), summary.Sync.Deleted)
	assert.False(t, summary.Sync.Mismatch())

	require.Len(t, f.publisher.events, 1)
	assert.Equal(t, "relationships.reloaded", f.publisher.events[0].EventType)
	assert.Equal(t, f.runner.RunID(), f.publisher.events[0].RunID)

	assert.Contains(t, f.metricsFile(t), "qtlcandidateload_run_success 1")
}

func TestRun_BulkLoadFailure(t *testing.T) {
	f := newFixture(t, nil)
	f.loader.err = &bcp.LoadError{Table: "MGI_Relationship", ExitCode: 3}

	err := f.runner.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, ExitBulkLoad, ExitCode(err))

	assert.False(t, f.queried("select setval"), "sequence is not reconciled after a failed load")
	assert.Empty(t, f.publisher.events)
	assert.Contains(t, f.metricsFile(t), "qtlcandidateload_exit_code 2")
}

func TestRun_DryRunLeavesDatabaseUnchanged(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config, _ *testutil.StubConn) {
		cfg.DryRun = true
	})

	require.NoError(t, f.runner.Run(context.Background()))

	assert.Empty(t, f.conn.ExecQueries())
	assert.Empty(t, f.loader.requests)
	assert.Empty(t, f.publisher.events)

	data, err := os.ReadFile(filepath.Join(f.cfg.OutputDir, "MGI_Relationship.bcp"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "5000|1009|1001|2002|"))
}

func TestRun_EmptySequenceStartsAtDefaultKey(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, conn *testutil.StubConn) {
		conn.OnQuery("nextval", []string{"next_key"})
	})

	require.NoError(t, f.runner.Run(context.Background()))
	assert.True(t, strings.HasPrefix(f.loader.contents, "1000|"))
}

func TestRun_DerivationFailure(t *testing.T) {
	boom := errors.New("canceling statement due to statement timeout")
	f := newFixture(t, func(_ *config.Config, conn *testutil.StubConn) {
		conn.OnQueryError("mld_expt_marker_view", boom)
	})

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ExitFailure, ExitCode(err))
	assert.Empty(t, f.conn.ExecQueries())
	assert.Empty(t, f.loader.requests)
	assert.Contains(t, f.metricsFile(t), "qtlcandidateload_run_success 0")
}

func TestRun_StartupFailure(t *testing.T) {
	f := newFixture(t, nil)
	boom := errors.New("password authentication failed")
	f.runner.openDB = func(context.Context, database.ConnectionConfig, ectologger.Logger) (database.DB, error) {
		return nil, boom
	}

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestRun_EventFailureIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.publisher.err = errors.New("broker down")

	require.NoError(t, f.runner.Run(context.Background()))
	assert.Len(t, f.publisher.events, 1)
}

func (f *fixture) failClose(err error) {
	f.runner.openDB = func(context.Context, database.ConnectionConfig, ectologger.Logger) (database.DB, error) {
		return closeFailingDB{DB: f.db, err: err}, nil
	}
}

func TestRun_ReleaseFailureAfterLoadIsNotFatal(t *testing.T) {
	f := newFixture(t, nil)
	f.failClose(errors.New("connection already closed"))

	err := f.runner.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, ExitOK, ExitCode(err))
	assert.Len(t, f.loader.requests, 1)
	assert.Contains(t, f.metricsFile(t), "qtlcandidateload_run_success 1")
}

func TestRun_ReleaseFailureBeforeLoadFails(t *testing.T) {
	f := newFixture(t, func(cfg *config.Config, _ *testutil.StubConn) {
		cfg.DryRun = true
	})
	closeErr := errors.New("connection already closed")
	f.failClose(closeErr)

	err := f.runner.Run(context.Background())
	assert.ErrorIs(t, err, closeErr)
	assert.Equal(t, ExitFailure, ExitCode(err))
}

func TestRun_CountMismatchIsNotFatal(t *testing.T) {
	f := newFixture(t, func(_ *config.Config, conn *testutil.StubConn) {
		conn.OnQuery("count(*)", []string{"count"}, []driver.Value{int64(7)})
	})

	require.NoError(t, f.runner.Run(context.Background()))
	assert.Contains(t, f.metricsFile(t), "qtlcandidateload_count_mismatch 1")
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, ExitOK, ExitCode(nil))
	assert.Equal(t, ExitFailure, ExitCode(errors.New("boom")))
	assert.Equal(t, ExitBulkLoad, ExitCode(&bcp.LoadError{ExitCode: 3}))
}

func TestDefaultLoader(t *testing.T) {
	cfg := &config.Config{PGDBUtils: "/opt/pgdbutils", BCPMode: config.BCPModeCommand}
	assert.IsType(t, &bcp.CommandLoader{}, DefaultLoader(cfg, nil, logging.Discard()))

	cfg.BCPMode = config.BCPModeCopy
	assert.IsType(t, &bcp.CopyLoader{}, DefaultLoader(cfg, nil, logging.Discard()))
}
