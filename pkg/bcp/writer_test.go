package bcp

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/qtlcandidateload/pkg/keys"
	"github.com/Ramsey-B/qtlcandidateload/pkg/logging"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
)

var runDate = time.Date(2024, time.March, 7, 15, 4, 5, 0, time.UTC)

func candidate(qtl, gene, refs int) models.Candidate {
	return models.Candidate{
		QTL:     models.QTL{Key: qtl, Symbol: "Pbb1"},
		Gene:    models.Marker{Key: gene, Symbol: "Xyz", TypeKey: models.MarkerTypeGene, StatusKey: models.MarkerStatusOfficial},
		RefsKey: refs,
	}
}

func TestWriter_WritesRelationshipRecords(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWriter(dir, keys.NewAllocator(1000), models.QTLCandidateGeneDefaults, runDate, logging.Discard())
	require.NoError(t, err)

	_, err = w.WriteCandidate(candidate(1001, 2002, 99))
	require.NoError(t, err)
	rel, err := w.WriteCandidate(candidate(1001, 2003, 99))
	require.NoError(t, err)
	assert.Equal(t, int64(1001), rel.Key)

	require.NoError(t, w.Close())
	require.NoError(t, w.Close(), "close is idempotent")

	data, err := os.ReadFile(w.Path())
	require.NoError(t, err)
	assert.Equal(t,
		"1000|1009|1001|2002|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024\n"+
			"1001|1009|1001|2003|105563920|11391898|17396909|99|1631|1631|03/07/2024|03/07/2024\n",
		string(data))
	assert.Equal(t, 2, w.Count())
	assert.Equal(t, int64(1001), w.MaxKey())
	assert.True(t, strings.HasSuffix(w.Path(), "MGI_Relationship.bcp"))
	assert.Equal(t, dir, filepath.Dir(w.Path()))
}

func TestWriter_EmptyRunLeavesEmptyFile(t *testing.T) {
	w, err := NewWriter(t.TempDir(), keys.NewAllocator(1000), models.QTLCandidateGeneDefaults, runDate, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	info, err := os.Stat(w.Path())
	require.NoError(t, err)
	assert.Zero(t, info.Size())
	assert.Zero(t, w.MaxKey())
}

func TestWriter_RejectsWritesAfterClose(t *testing.T) {
	w, err := NewWriter(t.TempDir(), keys.NewAllocator(1000), models.QTLCandidateGeneDefaults, runDate, logging.Discard())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = w.WriteCandidate(candidate(1, 2, 3))
	assert.Error(t, err)
}

func TestWriter_MissingDirectory(t *testing.T) {
	_, err := NewWriter("/nonexistent/qtlcandidateload", keys.NewAllocator(1000), models.QTLCandidateGeneDefaults, runDate, logging.Discard())
	assert.Error(t, err)
}

func TestParseRecord(t *testing.T) {
	line := strings.TrimSuffix(FormatRecord(models.NewRelationship(7, candidate(1, 2, 3), models.QTLCandidateGeneDefaults, runDate)), RecordDelimiter)

	values, err := ParseRecord(line)
	require.NoError(t, err)
	require.Len(t, values, 12)
	assert.Equal(t, int64(7), values[0])
	assert.Equal(t, int64(1009), values[1])
	assert.Equal(t, int64(3), values[7])
	assert.Equal(t, time.Date(2024, time.March, 7, 0, 0, 0, 0, time.UTC), values[10])

	_, err = ParseRecord("1|2|3")
	assert.Error(t, err)

	_, err = ParseRecord(strings.Replace(line, "1009", "x", 1))
	assert.Error(t, err)
}
