// Package store provides the versioned object store boundary: an
// append-only version chain per object id with latest, as-of, and full
// history reads. The in-memory implementation is the explicit local
// version chain used when no external bitemporal store is wired in;
// the sqlite implementation persists the same chain durably.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/adalundhe/weft/core/object"
)

var (
	// ErrNotFound indicates no version exists for the requested id
	// (or none at the requested time).
	ErrNotFound = errors.New("object not found")

	// ErrHashMismatch indicates a stored hash disagrees with the hash
	// recomputed from the stored document. Treated as a data-integrity
	// alarm: propagated, never silently repaired.
	ErrHashMismatch = errors.New("stored hash does not match recomputed hash")

	// ErrStoreUnavailable wraps transient backend failures. Callers
	// may retry; the store itself never loops.
	ErrStoreUnavailable = errors.New("store unavailable")
)

// Version is one committed record in an object's version chain. Seq is
// the zero-based version index; TxTime is the transaction time the
// write was acknowledged.
type Version struct {
	Object object.Object
	Seq    int
	TxTime time.Time
}

// Store is the contract the core requires from the document store.
// Writes are durable once acknowledged; acknowledgment is the commit
// point the ingestion cursor advances on.
type Store interface {
	// Put appends a new version for obj.ID. Hashes are recomputed
	// before the write; if the object hash equals the current
	// version's, Put is a no-op and returns the existing version, so
	// retried translations of an already-applied message never mint
	// spurious versions.
	Put(ctx context.Context, obj object.Object) (Version, error)

	// Get returns the latest version for id.
	Get(ctx context.Context, id string) (Version, error)

	// GetAsOf returns the version whose transaction-time validity
	// interval contains t.
	GetAsOf(ctx context.Context, id string, t time.Time) (Version, error)

	// History returns all versions for id, oldest to newest.
	History(ctx context.Context, id string) ([]Version, error)

	// Query returns the ids whose latest version satisfies pred.
	Query(ctx context.Context, pred func(object.Object) bool) ([]string, error)
}

// verifyIntegrity recomputes the content hash of a stored document and
// reports disagreement with the recorded one.
func verifyIntegrity(obj object.Object) error {
	if recomputed := object.ComputeContentHash(obj.Content); recomputed != obj.ContentHash {
		return ErrHashMismatch
	}
	return nil
}
