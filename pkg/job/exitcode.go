package job

import (
	"github.com/pkg/errors"

	"github.com/Ramsey-B/qtlcandidateload/pkg/bcp"
)

const (
	ExitOK       = 0
	ExitFailure  = 1
	ExitBulkLoad = 2
)

// ExitCode maps a run error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, bcp.ErrBulkLoad):
		return ExitBulkLoad
	default:
		return ExitFailure
	}
}
