package upload

import (
	"context"
	"slices"
	"time"

	mapset "github.com/deckarep/golang-set/v2"
)

type SessionState string

const (
	StateUploading  SessionState = "uploading"
	StateFinalizing SessionState = "finalizing"
	// StateCancelling sessions are invisible to readers and refuse chunks
	// while their staged bytes are removed
	StateCancelling SessionState = "cancelling"
)

// Session tracks one multipart upload until it is promoted, cancelled or expired.
// Values returned by a SessionStore are snapshots and never change underneath the caller.
type Session struct {
	ID         string
	BucketID   string
	Name       string
	Digest     string
	Size       int64
	ChunkSize  int64
	ChunkCount int
	Pending    mapset.Set[int]
	State      SessionState
	CreatedAt  time.Time
}

func (s *Session) Plan() Plan {
	return Plan{Size: s.Size, ChunkSize: s.ChunkSize, ChunkCount: s.ChunkCount}
}

// PendingSorted lists outstanding chunk indices in ascending order
func (s *Session) PendingSorted() []int {
	pending := s.Pending.ToSlice()
	slices.Sort(pending)
	return pending
}

func (s *Session) clone() *Session {
	c := *s
	c.Pending = s.Pending.Clone()
	return &c
}

type CreateSessionParams struct {
	BucketID  string
	Name      string
	Digest    string
	Size      int64
	ChunkSize int64
}

type MarkResult struct {
	Remaining int
	// Completed is true only for the call that removed the last pending index.
	// That call has also moved the session to StateFinalizing.
	Completed bool
}

type SessionStore interface {
	Create(ctx context.Context, params *CreateSessionParams) (*Session, error)
	Get(ctx context.Context, id string) (*Session, error)

	// MarkReceived removes index from the pending set. Removing an index that is
	// already gone is a no-op that reports the current count.
	MarkReceived(ctx context.Context, id string, index int) (MarkResult, error)

	// ClaimFinalize moves a session with no pending chunks to StateFinalizing
	ClaimFinalize(ctx context.Context, id string) error

	// ReleaseFinalize returns a claimed session to StateUploading
	ReleaseFinalize(ctx context.Context, id string) error

	// ClaimTeardown moves an uploading session to StateCancelling and returns it.
	// A finalizing session fails with ErrFinalizeInProgress. Claiming a session
	// that is already cancelling succeeds, so an interrupted teardown can be redone.
	ClaimTeardown(ctx context.Context, id string) (*Session, error)

	// Delete is idempotent
	Delete(ctx context.Context, id string) error

	// ListExpired returns uploading or cancelling sessions created before the cutoff
	ListExpired(ctx context.Context, before time.Time) ([]string, error)

	// RecoverFinalizing releases claims left behind by a previous process
	RecoverFinalizing(ctx context.Context) (int, error)

	Close() error
}

func newPendingSet(count int) mapset.Set[int] {
	set := mapset.NewThreadUnsafeSetWithSize[int](count)
	for i := range count {
		set.Add(i)
	}
	return set
}
