package bcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/qtlcandidateload/internal/testutil"
	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
)

const copyStatement = `copy "mgd"."mgi_relationship"`

func writeBCP(t *testing.T, lines ...string) string {
	t.Helper()
	dir := t.TempDir()
	var contents string
	for _, l := range lines {
		contents += l + RecordDelimiter
	}
	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName("MGI_Relationship")), []byte(contents), 0o644))
	return dir
}

func TestCopyLoader_CopiesEveryRecordAndCommits(t *testing.T) {
	dir := writeBCP(t,
		"1000|1009|1001|2002|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024",
		"1001|1009|1001|2003|105563920|11391898|17396909|77|1631|1631|03/07/2024|03/07/2024",
	)
	db, conn := testutil.NewStubDB()

	err := NewCopyLoader(db, logging.Discard()).Load(context.Background(), request(dir))
	require.NoError(t, err)

	require.Len(t, conn.Prepared, 1)
	assert.Equal(t,
		`COPY "mgd"."mgi_relationship" ("_relationship_key", "_category_key", "_object_key_1", "_object_key_2", `+
			`"_relationshipterm_key", "_qualifier_key", "_evidence_key", "_refs_key", "_createdby_key", `+
			`"_modifiedby_key", "creation_date", "modification_date") FROM STDIN`,
		conn.Prepared[0])

	execs := conn.StatementExecs(copyStatement)
	require.Len(t, execs, 3, "one exec per record plus the flush")
	day := time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, []any{
		int64(1000), int64(1009), int64(1001), int64(2002), int64(105563920), int64(11391898),
		int64(17396909), int64(99), int64(1631), int64(1631), day, day,
	}, execs[0].Args)
	assert.Equal(t, int64(77), execs[1].Args[7])
	assert.Empty(t, execs[2].Args)

	assert.Equal(t, 1, conn.Begins)
	assert.Equal(t, 1, conn.Commits)
	assert.Zero(t, conn.Rollbacks)
}

func TestCopyLoader_Failures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(t *testing.T, conn *testutil.StubConn) string
		wantBegins int
	}{
		{
			name: "missing file",
			setup: func(t *testing.T, _ *testutil.StubConn) string {
				return t.TempDir()
			},
		},
		{
			name: "malformed line",
			setup: func(t *testing.T, _ *testutil.StubConn) string {
				return writeBCP(t,
					"1000|1009|1001|2002|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024",
					"1001|1009|1001",
				)
			},
			wantBegins: 1,
		},
		{
			name: "prepare error",
			setup: func(t *testing.T, conn *testutil.StubConn) string {
				conn.OnPrepareError(copyStatement, errors.New(`relation "mgd.mgi_relationship" does not exist`))
				return writeBCP(t, "1000|1009|1001|2002|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024")
			},
			wantBegins: 1,
		},
		{
			name: "copy rejects a row",
			setup: func(t *testing.T, conn *testutil.StubConn) string {
				conn.OnExec(copyStatement, 0, errors.New("duplicate key value violates unique constraint"))
				return writeBCP(t, "1000|1009|1001|2002|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024")
			},
			wantBegins: 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, conn := testutil.NewStubDB()
			dir := tt.setup(t, conn)

			err := NewCopyLoader(db, logging.Discard()).Load(context.Background(), request(dir))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrBulkLoad)

			var loadErr *LoadError
			require.ErrorAs(t, err, &loadErr)
			assert.Equal(t, "MGI_Relationship", loadErr.Table)
			assert.Equal(t, -1, loadErr.ExitCode)

			assert.Equal(t, tt.wantBegins, conn.Begins)
			assert.Equal(t, tt.wantBegins, conn.Rollbacks, "an opened transaction is rolled back")
			assert.Zero(t, conn.Commits)
		})
	}
}
