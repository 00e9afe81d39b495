package bcp

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/lib/pq"
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/database"
	"github.com/Ramsey-B/qtlcandidateload/pkg/models"
	"github.com/Ramsey-B/qtlcandidateload/pkg/tracing"
)

// ErrBulkLoad marks every bulk load failure.
var ErrBulkLoad = errors.New("bulk load failed")

// LoadError reports a failed load. ExitCode is the loader's exit status, or -1 when it never ran.
type LoadError struct {
	Table    string
	ExitCode int
	Output   string
	Err      error
}

func (e *LoadError) Error() string {
	msg := fmt.Sprintf("bulk load of %s failed", e.Table)
	if e.ExitCode >= 0 {
		msg += fmt.Sprintf(" with exit status %d", e.ExitCode)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Err
}

func (e *LoadError) Is(target error) bool {
	return target == ErrBulkLoad
}

// LoadRequest names the file to load and where it goes.
type LoadRequest struct {
	Server   string
	Database string
	Schema   string
	Table    string
	Dir      string
	File     string
}

func (r LoadRequest) Path() string {
	return filepath.Join(r.Dir, r.File)
}

// Loader bulk loads a closed bcp file into its table.
type Loader interface {
	Load(ctx context.Context, req LoadRequest) error
}

// CommandLoader runs ${PG_DBUTILS}/bin/bcpin.csh.
type CommandLoader struct {
	utilsDir string
	logger   ectologger.Logger
}

func NewCommandLoader(utilsDir string, logger ectologger.Logger) *CommandLoader {
	return &CommandLoader{utilsDir: utilsDir, logger: logger}
}

func (l *CommandLoader) Script() string {
	return filepath.Join(l.utilsDir, "bin", "bcpin.csh")
}

// Args are the bcpin.csh arguments. The record delimiter is passed as the two characters \n.
func (l *CommandLoader) Args(req LoadRequest) []string {
	return []string{req.Server, req.Database, req.Table, req.Dir, req.File, FieldDelimiter, `\n`, req.Schema}
}

func (l *CommandLoader) Load(ctx context.Context, req LoadRequest) error {
	ctx, span := tracing.StartSpan(ctx, "bcp.CommandLoader.Load")
	defer span.End()

	args := l.Args(req)
	l.logger.WithContext(ctx).WithFields(map[string]any{
		"command": l.Script(),
		"args":    strings.Join(args, " "),
	}).Info("Running bulk loader")

	cmd := exec.CommandContext(ctx, l.Script(), args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	err := cmd.Run()
	if err == nil {
		return nil
	}

	loadErr := &LoadError{Table: req.Table, ExitCode: -1, Output: strings.TrimSpace(output.String())}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		loadErr.ExitCode = exitErr.ExitCode()
	} else {
		loadErr.Err = err
	}
	l.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
		"exit_code": loadErr.ExitCode,
		"output":    loadErr.Output,
	}).Error("Bulk loader failed")
	return loadErr
}

// CopyLoader streams the bcp file through COPY FROM STDIN on one transaction.
type CopyLoader struct {
	db     database.DB
	logger ectologger.Logger
}

func NewCopyLoader(db database.DB, logger ectologger.Logger) *CopyLoader {
	return &CopyLoader{db: db, logger: logger}
}

func (l *CopyLoader) Load(ctx context.Context, req LoadRequest) error {
	ctx, span := tracing.StartSpan(ctx, "bcp.CopyLoader.Load")
	defer span.End()

	if err := l.copy(ctx, req); err != nil {
		l.logger.WithContext(ctx).WithError(err).WithField("path", req.Path()).Error("COPY load failed")
		return &LoadError{Table: req.Table, ExitCode: -1, Err: err}
	}
	l.logger.WithContext(ctx).WithField("path", req.Path()).Info("COPY load complete")
	return nil
}

func (l *CopyLoader) copy(ctx context.Context, req LoadRequest) error {
	file, err := os.Open(req.Path())
	if err != nil {
		return errors.Wrap(err, "failed to open bcp file")
	}
	defer file.Close()

	tx, err := l.db.GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	stmt, err := tx.PrepareContext(ctx, pq.CopyInSchema(req.Schema, strings.ToLower(req.Table), models.RelationshipColumns...))
	if err != nil {
		return errors.Wrap(err, "failed to prepare COPY")
	}

	scanner := bufio.NewScanner(file)
	line := 0
	for scanner.Scan() {
		line++
		values, err := ParseRecord(scanner.Text())
		if err != nil {
			_ = stmt.Close()
			return errors.Wrapf(err, "line %d", line)
		}
		if _, err := stmt.ExecContext(ctx, values...); err != nil {
			_ = stmt.Close()
			return errors.Wrapf(err, "failed to copy line %d", line)
		}
	}
	if err := scanner.Err(); err != nil {
		_ = stmt.Close()
		return errors.Wrap(err, "failed to read bcp file")
	}
	if _, err := stmt.ExecContext(ctx); err != nil {
		_ = stmt.Close()
		return errors.Wrap(err, "failed to flush COPY")
	}
	if err := stmt.Close(); err != nil {
		return errors.Wrap(err, "failed to close COPY")
	}
	return tx.Commit(ctx)
}

// ParseRecord converts one bcp line back into column values in RelationshipColumns order.
func ParseRecord(line string) ([]any, error) {
	fields := strings.Split(line, FieldDelimiter)
	if len(fields) != len(models.RelationshipColumns) {
		return nil, fmt.Errorf("expected %d fields, got %d", len(models.RelationshipColumns), len(fields))
	}
	values := make([]any, len(fields))
	dateStart := len(fields) - 2
	for i, f := range fields {
		if i >= dateStart {
			t, err := time.Parse(DateLayout, f)
			if err != nil {
				return nil, errors.Wrapf(err, "invalid %s", models.RelationshipColumns[i])
			}
			values[i] = t
			continue
		}
		n, err := strconv.ParseInt(f, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid %s", models.RelationshipColumns[i])
		}
		values[i] = n
	}
	return values, nil
}
