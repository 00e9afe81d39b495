// Package keys hands out mgi_relationship primary keys for one run.
package keys

import (
	"context"
	"database/sql"

	"github.com/pkg/errors"
)

// DefaultStartKey is used when the sequence returns no value.
const DefaultStartKey int64 = 1000

// SequenceSource advances the relationship key sequence once.
type SequenceSource interface {
	NextVal(ctx context.Context) (sql.NullInt64, error)
}

// Allocator reads the sequence once at startup and increments locally afterwards. The bulk
// load bypasses the sequence, so it must be reconciled to the table maximum after loading.
type Allocator struct {
	next        int64
	initialized bool
	issued      int
}

// Init reads the starting key from the sequence.
func (a *Allocator) Init(ctx context.Context, seq SequenceSource) error {
	val, err := seq.NextVal(ctx)
	if err != nil {
		return errors.Wrap(err, "failed to read relationship key sequence")
	}
	a.next = DefaultStartKey
	if val.Valid {
		a.next = val.Int64
	}
	a.initialized = true
	return nil
}

// NewAllocator returns an allocator that starts at start. Used when the key is already known.
func NewAllocator(start int64) *Allocator {
	return &Allocator{next: start, initialized: true}
}

// Next returns the next unused key.
func (a *Allocator) Next() (int64, error) {
	if !a.initialized {
		return 0, errors.New("key allocator used before Init")
	}
	key := a.next
	a.next++
	a.issued++
	return key, nil
}

// Start is the first key this allocator will hand out or has handed out.
func (a *Allocator) Start() int64 {
	return a.next - int64(a.issued)
}

// Issued is the number of keys handed out.
func (a *Allocator) Issued() int {
	return a.issued
}
