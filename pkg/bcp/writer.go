// Package bcp writes mgi_relationship rows in the bulk copy file format and loads them.
package bcp

import (
	"bufio"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
)

const (
	FieldDelimiter  = "|"
	RecordDelimiter = "\n"
	DateLayout      = "01/02/2006"
)

// FileName is the bcp file for table inside the output directory.
func FileName(table string) string {
	return table + ".bcp"
}

// KeyAllocator supplies relationship keys. The writer is its only consumer.
type KeyAllocator interface {
	Next() (int64, error)
}

// Writer appends relationship records to a bcp file.
type Writer struct {
	path      string
	file      *os.File
	buf       *bufio.Writer
	keys      KeyAllocator
	defaults  models.RelationshipDefaults
	runDate   time.Time
	logger    ectologger.Logger
	count     int
	maxKey    int64
	closed    bool
	closedErr error
}

// NewWriter creates (or truncates) outputDir/MGI_Relationship.bcp.
func NewWriter(outputDir string, keys KeyAllocator, defaults models.RelationshipDefaults, runDate time.Time, logger ectologger.Logger) (*Writer, error) {
	path := filepath.Join(outputDir, FileName(models.RelationshipTable))
	file, err := os.Create(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %s", path)
	}
	logger.WithField("path", path).Info("Opened relationship bcp file")
	return &Writer{
		path:     path,
		file:     file,
		buf:      bufio.NewWriter(file),
		keys:     keys,
		defaults: defaults,
		runDate:  runDate,
		logger:   logger,
	}, nil
}

// WriteCandidate assigns the next key to the candidate and appends its record.
func (w *Writer) WriteCandidate(c models.Candidate) (models.Relationship, error) {
	if w.closed {
		return models.Relationship{}, errors.New("bcp writer is closed")
	}
	key, err := w.keys.Next()
	if err != nil {
		return models.Relationship{}, err
	}
	rel := models.NewRelationship(key, c, w.defaults, w.runDate)
	if _, err := w.buf.WriteString(FormatRecord(rel)); err != nil {
		return models.Relationship{}, errors.Wrapf(err, "failed to write %s", w.path)
	}
	w.count++
	if key > w.maxKey {
		w.maxKey = key
	}
	return rel, nil
}

// FormatRecord renders one relationship as a delimited, terminated line.
func FormatRecord(r models.Relationship) string {
	fields := []string{
		strconv.FormatInt(r.Key, 10),
		strconv.Itoa(r.CategoryKey),
		strconv.Itoa(r.ObjectKey1),
		strconv.Itoa(r.ObjectKey2),
		strconv.Itoa(r.RelationshipTermKey),
		strconv.Itoa(r.QualifierKey),
		strconv.Itoa(r.EvidenceKey),
		strconv.Itoa(r.RefsKey),
		strconv.Itoa(r.CreatedByKey),
		strconv.Itoa(r.ModifiedByKey),
		r.CreationDate.Format(DateLayout),
		r.ModificationDate.Format(DateLayout),
	}
	return strings.Join(fields, FieldDelimiter) + RecordDelimiter
}

func (w *Writer) Path() string {
	return w.path
}

// Count is the number of records written.
func (w *Writer) Count() int {
	return w.count
}

// MaxKey is the largest key written, or zero when nothing was written.
func (w *Writer) MaxKey() int64 {
	return w.maxKey
}

// Close flushes and closes the file. Later calls return the first result.
func (w *Writer) Close() error {
	if w.closed {
		return w.closedErr
	}
	w.closed = true

	flushErr := w.buf.Flush()
	closeErr := w.file.Close()
	switch {
	case flushErr != nil:
		w.closedErr = errors.Wrapf(flushErr, "failed to flush %s", w.path)
	case closeErr != nil:
		w.closedErr = errors.Wrapf(closeErr, "failed to close %s", w.path)
	default:
		w.logger.WithFields(map[string]any{
			"path":    w.path,
			"records": w.count,
		}).Info("Closed relationship bcp file")
	}
	return w.closedErr
}
